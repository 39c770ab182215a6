package infra

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
)

// fakeProcessSource is a test double for ProcessSource
type fakeProcessSource struct {
	mu        sync.Mutex
	snaps     []ProcessSnapshot
	err       error
	signalErr map[int32]error
	signalled map[int32]syscall.Signal
}

func newFakeProcessSource(snaps ...ProcessSnapshot) *fakeProcessSource {
	return &fakeProcessSource{
		snaps:     snaps,
		signalErr: make(map[int32]error),
		signalled: make(map[int32]syscall.Signal),
	}
}

func (f *fakeProcessSource) Snapshot(ctx context.Context) ([]ProcessSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snaps, nil
}

func (f *fakeProcessSource) Signal(ctx context.Context, pid int32, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.signalErr[pid]; err != nil {
		return err
	}
	f.signalled[pid] = sig
	return nil
}

// fakeCommandRunner is a test double for CommandRunner
type fakeCommandRunner struct {
	paths   map[string]bool
	runErr  error
	calls   []string
	started []string
}

func newFakeCommandRunner(onPath ...string) *fakeCommandRunner {
	paths := make(map[string]bool)
	for _, p := range onPath {
		paths[p] = true
	}
	return &fakeCommandRunner{paths: paths}
}

func (f *fakeCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	f.calls = append(f.calls, fmt.Sprint(append([]string{name}, args...)))
	return f.runErr
}

func (f *fakeCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, fmt.Sprint(append([]string{name}, args...)))
	return nil, f.runErr
}

func (f *fakeCommandRunner) Start(name string, args ...string) error {
	f.started = append(f.started, fmt.Sprint(append([]string{name}, args...)))
	return f.runErr
}

func (f *fakeCommandRunner) LookPath(name string) (string, error) {
	if f.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

// exitStatus runs `sh -c "exit n"` to obtain a real *exec.ExitError.
func exitStatus(n int) error {
	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", n)).Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return err
}

// memPrefs is an in-memory domain.Preferences
type memPrefs struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
}

func newMemPrefs() *memPrefs {
	return &memPrefs{values: make(map[string]string)}
}

func (m *memPrefs) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memPrefs) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = value
	return nil
}

func (m *memPrefs) Update(key string, fn func(current string, ok bool) (string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.values[key]
	if m.getErr != nil {
		current, ok = "", false
	}
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	if m.setErr != nil {
		return m.setErr
	}
	m.values[key] = next
	return nil
}

func (m *memPrefs) Close() error { return nil }
