package infra

import (
	"os"
	"os/user"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ExecMode represents the privilege level appkiller runs with.
type ExecMode string

const (
	// ExecModeUser runs as a regular user; data lives under the home directory.
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root; data lives under /var/lib.
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths derived from the execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Where preferences, key, and the metrics trace live
	IsRoot  bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if unix.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:    ExecModeSystem,
			DataDir: "/var/lib/appkiller",
			IsRoot:  true,
		}
	}
	return GetUserModeConfig()
}

// GetUserModeConfig returns user mode config regardless of current euid.
// Under sudo the invoking user's home directory is used.
func GetUserModeConfig() *ExecModeConfig {
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: filepath.Join(GetRealUserHome(), ".appkiller"),
		IsRoot:  unix.Geteuid() == 0,
	}
}

// ResolveDataDir returns override when set, otherwise the mode's default.
func ResolveDataDir(override string) string {
	if override != "" {
		return override
	}
	return DetectExecMode().DataDir
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
