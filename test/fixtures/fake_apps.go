// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// FakeApp describes an installed application to fabricate.
type FakeApp struct {
	Package string // Binary basename, which becomes the package id
	Name    string
	Icon    string
	Hidden  bool
}

// FakeAppsDir creates .desktop entries and stand-in binaries under Root.
type FakeAppsDir struct {
	Root string
}

// NewFakeAppsDir creates a new fake applications directory generator.
func NewFakeAppsDir(root string) *FakeAppsDir {
	return &FakeAppsDir{Root: root}
}

// ApplicationsDir returns the directory holding the .desktop entries.
func (f *FakeAppsDir) ApplicationsDir() string {
	return filepath.Join(f.Root, "applications")
}

// BinaryPath returns where the stand-in binary for pkg lives.
func (f *FakeAppsDir) BinaryPath(pkg string) string {
	return filepath.Join(f.Root, "bin", pkg)
}

// Create writes one .desktop entry per app.
func (f *FakeAppsDir) Create(apps ...FakeApp) error {
	if err := os.MkdirAll(f.ApplicationsDir(), 0755); err != nil {
		return err
	}

	for _, app := range apps {
		content := "[Desktop Entry]\nType=Application\n"
		content += fmt.Sprintf("Name=%s\nExec=%s %%U\n", app.Name, f.BinaryPath(app.Package))
		if app.Icon != "" {
			content += fmt.Sprintf("Icon=%s\n", app.Icon)
		}
		if app.Hidden {
			content += "NoDisplay=true\n"
		}

		path := filepath.Join(f.ApplicationsDir(), app.Package+".desktop")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// StartApp copies the system sleep binary to BinaryPath(pkg) and runs it, so
// the process table shows a process named pkg. Callers must Wait on the result.
func (f *FakeAppsDir) StartApp(pkg string) (*exec.Cmd, error) {
	sleepPath, err := exec.LookPath("sleep")
	if err != nil {
		return nil, fmt.Errorf("sleep not available: %w", err)
	}

	binPath := f.BinaryPath(pkg)
	if err := os.MkdirAll(filepath.Dir(binPath), 0755); err != nil {
		return nil, err
	}
	if err := copyFile(sleepPath, binPath); err != nil {
		return nil, err
	}

	cmd := exec.Command(binPath, "120")
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
