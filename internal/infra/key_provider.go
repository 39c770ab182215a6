package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

const (
	prefsKeySuffix = ".key"
	prefsKeyLen    = 32
)

var (
	// ErrPrefsKeyMissing means prefs.db exists but the key paired with it is gone.
	// A fresh key would never open it, so no new one is generated.
	ErrPrefsKeyMissing = errors.New("encrypted preferences exist but their key is missing")

	// ErrPrefsKeyMismatch means the key does not open an existing database.
	ErrPrefsKeyMismatch = errors.New("preferences key does not open the database")
)

// PrefsKeyFile holds the SQLCipher passphrase for one preferences database,
// stored base64 encoded in <db>.key with 0600 permissions.
type PrefsKeyFile struct {
	dbPath string
}

// NewPrefsKeyFile returns the key file paired with dbPath.
func NewPrefsKeyFile(dbPath string) *PrefsKeyFile {
	return &PrefsKeyFile{dbPath: dbPath}
}

// Path returns the key file location.
func (k *PrefsKeyFile) Path() string {
	return k.dbPath + prefsKeySuffix
}

// GetKey reads and validates the stored key.
func (k *PrefsKeyFile) GetKey() ([]byte, error) {
	encoded, err := os.ReadFile(k.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode preferences key: %w", err)
	}
	if len(key) != prefsKeyLen {
		return nil, fmt.Errorf("invalid preferences key length: got %d, want %d", len(key), prefsKeyLen)
	}
	return key, nil
}

// StoreKey publishes key with a hard link so readers never see a partial
// file. An existing key is never replaced; that case returns fs.ErrExist.
func (k *PrefsKeyFile) StoreKey(key []byte) error {
	if len(key) != prefsKeyLen {
		return fmt.Errorf("invalid preferences key length: got %d, want %d", len(key), prefsKeyLen)
	}

	tmp, err := os.CreateTemp(filepath.Dir(k.dbPath), filepath.Base(k.Path())+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create preferences key: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(base64.StdEncoding.EncodeToString(key))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write preferences key: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to restrict preferences key: %w", err)
	}
	if err := os.Link(tmp.Name(), k.Path()); err != nil {
		return fmt.Errorf("failed to store preferences key: %w", err)
	}
	return nil
}

// KeyExists reports whether the key file is present.
func (k *PrefsKeyFile) KeyExists() bool {
	_, err := os.Stat(k.Path())
	return err == nil
}

func newPrefsKey() ([]byte, error) {
	key := make([]byte, prefsKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate preferences key: %w", err)
	}
	return key, nil
}

// LoadPrefsKey returns the key for dbPath. A key is generated only while the
// database does not exist yet. When two processes race to create it, the
// loser reads the winner's key.
func LoadPrefsKey(keys domain.KeyProvider, dbPath string) ([]byte, error) {
	if keys.KeyExists() {
		return keys.GetKey()
	}
	if _, err := os.Stat(dbPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrPrefsKeyMissing, dbPath)
	}

	key, err := newPrefsKey()
	if err != nil {
		return nil, err
	}
	if err := keys.StoreKey(key); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return keys.GetKey()
		}
		return nil, err
	}
	return key, nil
}

// OpenEncryptedPreferences opens prefs.db in dataDir with its paired key,
// creating both on first use.
func OpenEncryptedPreferences(dataDir string) (*EncryptedPreferences, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, prefsDBName)
	key, err := LoadPrefsKey(NewPrefsKeyFile(dbPath), dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences key: %w", err)
	}
	return NewEncryptedPreferences(dataDir, key)
}

var _ domain.KeyProvider = (*PrefsKeyFile)(nil)
