package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// packagePlaceholder is replaced by the package id in the opener command.
const packagePlaceholder = "{package}"

// CommandSettingsOpener implements domain.SettingsOpener by launching a
// user-configured command, e.g. "gnome-system-monitor" or "xdg-open app://{package}".
type CommandSettingsOpener struct {
	command string
	runner  CommandRunner
}

// NewCommandSettingsOpener creates an opener. An empty command makes every
// request fail with domain.ErrUnavailable.
func NewCommandSettingsOpener(command string, runner CommandRunner) *CommandSettingsOpener {
	return &CommandSettingsOpener{command: strings.TrimSpace(command), runner: runner}
}

// OpenAppSettings launches the configured command without waiting for it.
func (o *CommandSettingsOpener) OpenAppSettings(ctx context.Context, packageID string) error {
	fields := strings.Fields(o.command)
	if len(fields) == 0 {
		return domain.ErrUnavailable
	}

	args := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		args = append(args, strings.ReplaceAll(f, packagePlaceholder, packageID))
	}

	if err := o.runner.Start(fields[0], args...); err != nil {
		return fmt.Errorf("failed to open settings for %s: %w", packageID, err)
	}
	return nil
}

// Ensure CommandSettingsOpener implements domain.SettingsOpener.
var _ domain.SettingsOpener = (*CommandSettingsOpener)(nil)
