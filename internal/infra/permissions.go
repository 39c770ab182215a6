package infra

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

const capabilityProbeTimeout = 2 * time.Second

// HostCapabilities implements domain.Capabilities for a Unix host.
type HostCapabilities struct {
	source  ProcessSource
	geteuid func() int
}

// NewHostCapabilities creates the host capability checks.
func NewHostCapabilities(source ProcessSource) *HostCapabilities {
	return &HostCapabilities{source: source, geteuid: unix.Geteuid}
}

// HasUsageAccess reports whether other users' processes are visible.
// Mounting /proc with hidepid hides them and leaves only our own.
func (c *HostCapabilities) HasUsageAccess() bool {
	ctx, cancel := context.WithTimeout(context.Background(), capabilityProbeTimeout)
	defer cancel()

	snaps, err := c.source.Snapshot(ctx)
	if err != nil {
		return false
	}
	self := int32(os.Getpid())
	for _, s := range snaps {
		if s.PID != self && s.Cmdline != "" {
			return true
		}
	}
	return false
}

// HasElevatedAdmin reports whether we run as root.
func (c *HostCapabilities) HasElevatedAdmin() bool {
	return c.geteuid() == 0
}

// Remediation describes how to grant c on this host.
func (c *HostCapabilities) Remediation(capability domain.Capability) domain.Remediation {
	switch capability {
	case domain.CapabilityUsageAccess:
		return domain.Remediation{
			Capability: capability,
			Summary:    "Process details of other users are hidden",
			Action:     "remount /proc without hidepid, or add this user to the group named by its gid= option",
		}
	case domain.CapabilityElevatedAdmin:
		return domain.Remediation{
			Capability: capability,
			Summary:    "Processes owned by other users cannot be signalled",
			Action:     "run appkiller with sudo",
		}
	default:
		return domain.Remediation{Capability: capability, Summary: "unknown capability"}
	}
}

// Ensure HostCapabilities implements domain.Capabilities.
var _ domain.Capabilities = (*HostCapabilities)(nil)
