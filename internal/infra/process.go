// Package infra implements infrastructure concerns (process table, strategies, storage).
package infra

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// ProcessSnapshot is a point-in-time view of one host process.
type ProcessSnapshot struct {
	PID        int32
	UID        int32 // real uid, -1 when unreadable
	Name       string
	Cmdline    string
	Foreground bool
	Running    bool
	CreateTime time.Time
}

// ProcessSource enumerates and signals host processes.
type ProcessSource interface {
	Snapshot(ctx context.Context) ([]ProcessSnapshot, error)
	Signal(ctx context.Context, pid int32, sig syscall.Signal) error
}

// GopsutilProcessSource implements ProcessSource using gopsutil.
type GopsutilProcessSource struct{}

// NewProcessSource creates a gopsutil-backed process source.
func NewProcessSource() *GopsutilProcessSource {
	return &GopsutilProcessSource{}
}

// Snapshot lists processes. Processes that exit mid-scan are skipped.
func (s *GopsutilProcessSource) Snapshot(ctx context.Context) ([]ProcessSnapshot, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	snapshots := make([]ProcessSnapshot, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // Process may have exited
		}

		snap := ProcessSnapshot{PID: p.Pid, UID: -1, Name: name}
		if uids, err := p.UidsWithContext(ctx); err == nil && len(uids) > 0 {
			snap.UID = uids[0]
		}
		snap.Cmdline, _ = p.CmdlineWithContext(ctx)
		snap.Foreground, _ = p.ForegroundWithContext(ctx)

		if status, err := p.StatusWithContext(ctx); err == nil {
			for _, st := range status {
				if st == process.Running {
					snap.Running = true
				}
			}
		}
		if ms, err := p.CreateTimeWithContext(ctx); err == nil {
			snap.CreateTime = time.UnixMilli(ms)
		}

		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Signal delivers sig to pid.
func (s *GopsutilProcessSource) Signal(ctx context.Context, pid int32, sig syscall.Signal) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.SendSignalWithContext(ctx, sig)
}

// HostProcessTable implements domain.ProcessTable over a ProcessSource.
type HostProcessTable struct {
	source ProcessSource
}

// NewHostProcessTable creates a process table adapter.
func NewHostProcessTable(source ProcessSource) *HostProcessTable {
	return &HostProcessTable{source: source}
}

// EnumerateProcesses maps host processes onto the importance ladder:
// foreground process group, then runnable, then everything else.
func (t *HostProcessTable) EnumerateProcesses(ctx context.Context) ([]domain.ProcessInfo, error) {
	snaps, err := t.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]domain.ProcessInfo, 0, len(snaps))
	for _, s := range snaps {
		importance := domain.ImportanceCached
		switch {
		case s.Foreground:
			importance = domain.ImportanceForeground
		case s.Running:
			importance = domain.ImportanceVisible
		}
		infos = append(infos, domain.ProcessInfo{
			PID:        int(s.PID),
			Name:       ProcessName(s),
			Importance: importance,
		})
	}
	return infos, nil
}

// ProcessName prefers the executable basename from the command line, which is
// not truncated like the kernel's comm field.
func ProcessName(s ProcessSnapshot) string {
	if fields := strings.Fields(s.Cmdline); len(fields) > 0 {
		if base := filepath.Base(fields[0]); base != "." && base != "/" {
			return base
		}
	}
	return s.Name
}

// Ensure HostProcessTable implements domain.ProcessTable.
var _ domain.ProcessTable = (*HostProcessTable)(nil)
