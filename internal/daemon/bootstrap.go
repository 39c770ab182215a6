package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartDetached re-executes the current binary with args in a new session,
// detached from the terminal, and returns the child's PID.
func StartDetached(args ...string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}
	return StartDetachedWithPath(executable, args...)
}

// StartDetachedWithPath is StartDetached for a specific binary.
func StartDetachedWithPath(executable string, args ...string) (int, error) {
	cmd := exec.Command(executable, args...)

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", executable, err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release child: %w", err)
	}
	return pid, nil
}
