package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

const prefsFileName = "prefs.json"

// FilePreferences implements domain.Preferences as a JSON object on disk.
// Writes take an flock and replace the file atomically (write + rename).
type FilePreferences struct {
	mu   sync.Mutex
	path string
}

// NewFilePreferences creates preferences stored under dataDir.
func NewFilePreferences(dataDir string) (*FilePreferences, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return NewFilePreferencesWithPath(filepath.Join(dataDir, prefsFileName)), nil
}

// NewFilePreferencesWithPath creates preferences at a specific path (for testing).
func NewFilePreferencesWithPath(path string) *FilePreferences {
	return &FilePreferences{path: path}
}

// Path returns the backing file path.
func (p *FilePreferences) Path() string {
	return p.path
}

// Get returns the value for key.
func (p *FilePreferences) Get(key string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	values, err := p.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// Set stores value under key.
func (p *FilePreferences) Set(key, value string) error {
	return p.Update(key, func(string, bool) (string, error) {
		return value, nil
	})
}

// Update runs a read-modify-write of key under the in-process mutex and an
// exclusive flock shared with other appkiller processes (monitor + CLI).
func (p *FilePreferences) Update(key string, fn func(current string, ok bool) (string, error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	unlock, err := lockPath(p.path + ".lock")
	if err != nil {
		return err
	}
	defer unlock()

	values, err := p.load()
	if err != nil {
		// Unreadable prefs are replaced rather than blocking every write.
		values = make(map[string]string)
	}

	current, ok := values[key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	values[key] = next

	return p.atomicWrite(values)
}

// Close is a no-op for the file backend.
func (p *FilePreferences) Close() error {
	return nil
}

func (p *FilePreferences) load() (map[string]string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return values, nil
}

// atomicWrite writes the map to a temp file and renames it into place.
func (p *FilePreferences) atomicWrite(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", p.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace preferences: %w", err)
	}
	return nil
}

// lockPath takes an exclusive flock on path, creating it if needed, and
// returns the release func.
func lockPath(path string) (func(), error) {
	lockFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		lockFile.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return func() {
		_ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN)
		lockFile.Close()
	}, nil
}

// Ensure FilePreferences implements domain.Preferences.
var _ domain.Preferences = (*FilePreferences)(nil)
