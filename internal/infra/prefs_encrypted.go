package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const prefsDBName = "prefs.db"

// EncryptedPreferences implements domain.Preferences on a SQLCipher
// encrypted SQLite database.
type EncryptedPreferences struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedPreferences opens (or creates) the encrypted preferences database.
// The key is used as the SQLCipher passphrase via PRAGMA key. A key that
// cannot read an existing database yields ErrPrefsKeyMismatch.
func NewEncryptedPreferences(dataDir string, key []byte) (*EncryptedPreferences, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, prefsDBName)
	_, statErr := os.Stat(dbPath)
	existed := statErr == nil
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only shows up on first use.
	if err := db.Ping(); err != nil {
		db.Close()
		if existed {
			return nil, fmt.Errorf("%w: %v", ErrPrefsKeyMismatch, err)
		}
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	prefs := &EncryptedPreferences{
		db:     db,
		dbPath: dbPath,
	}

	if err := prefs.createTables(); err != nil {
		db.Close()
		if existed {
			return nil, fmt.Errorf("%w: %v", ErrPrefsKeyMismatch, err)
		}
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return prefs, nil
}

func (p *EncryptedPreferences) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS prefs (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := p.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (p *EncryptedPreferences) Path() string {
	return p.dbPath
}

// Get returns the value for key.
func (p *EncryptedPreferences) Get(key string) (string, bool, error) {
	var value string
	err := p.db.QueryRow(`SELECT value FROM prefs WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (p *EncryptedPreferences) Set(key, value string) error {
	_, err := p.db.Exec(`INSERT OR REPLACE INTO prefs (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	return nil
}

// Update runs a read-modify-write of key inside a BEGIN IMMEDIATE
// transaction, which takes SQLite's write lock before the read.
func (p *EncryptedPreferences) Update(key string, fn func(current string, ok bool) (string, error)) error {
	ctx := context.Background()
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `BEGIN IMMEDIATE`); err != nil {
		return fmt.Errorf("failed to begin update of %q: %w", key, err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(ctx, `ROLLBACK`)
		}
	}()

	var current string
	err = conn.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read preference %q: %w", key, err)
	}

	next, err := fn(current, err == nil)
	if err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO prefs (key, value, updated_at) VALUES (?, ?, ?)`,
		key, next, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	if _, err := conn.ExecContext(ctx, `COMMIT`); err != nil {
		return fmt.Errorf("failed to commit preference %q: %w", key, err)
	}
	committed = true
	return nil
}

// Close releases the database connection.
func (p *EncryptedPreferences) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// Ensure EncryptedPreferences implements domain.Preferences.
var _ domain.Preferences = (*EncryptedPreferences)(nil)
