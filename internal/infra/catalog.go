package infra

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// DesktopCatalog implements domain.AppCatalog by scanning XDG .desktop entries.
type DesktopCatalog struct {
	dirs   []string
	logger *zap.Logger
}

// NewDesktopCatalog scans the standard XDG application directories.
func NewDesktopCatalog(logger *zap.Logger) *DesktopCatalog {
	return NewDesktopCatalogWithDirs(XDGApplicationDirs(), logger)
}

// NewDesktopCatalogWithDirs scans specific directories (for testing).
// Earlier directories take precedence.
func NewDesktopCatalogWithDirs(dirs []string, logger *zap.Logger) *DesktopCatalog {
	return &DesktopCatalog{dirs: dirs, logger: logger}
}

// XDGApplicationDirs returns $XDG_DATA_HOME/applications followed by each
// $XDG_DATA_DIRS entry's applications directory.
func XDGApplicationDirs() []string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(GetRealUserHome(), ".local", "share")
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	dirs := []string{filepath.Join(dataHome, "applications")}
	for _, d := range strings.Split(dataDirs, ":") {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	return dirs
}

// InstalledApps returns launchable applications in directory order.
// Entries may repeat a package id; de-duplication belongs to the caller.
func (c *DesktopCatalog) InstalledApps(ctx context.Context) ([]domain.InstalledApp, error) {
	var apps []domain.InstalledApp
	for _, dir := range c.dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return fs.SkipDir // Missing directory
				}
				return nil
			}
			if d.IsDir() || filepath.Ext(path) != ".desktop" {
				return nil
			}
			app, ok := c.readEntry(path)
			if ok {
				apps = append(apps, app)
			}
			return nil
		})
		if err != nil {
			c.logger.Debug("failed to scan application directory", zap.String("dir", dir), zap.Error(err))
		}
	}
	return apps, nil
}

func (c *DesktopCatalog) readEntry(path string) (domain.InstalledApp, bool) {
	f, err := os.Open(path)
	if err != nil {
		c.logger.Debug("failed to open desktop entry", zap.String("path", path), zap.Error(err))
		return domain.InstalledApp{}, false
	}
	defer f.Close()
	return ParseDesktopEntry(f)
}

// ParseDesktopEntry reads the [Desktop Entry] group of a .desktop file.
// Hidden, NoDisplay, and non-Application entries are rejected.
func ParseDesktopEntry(r io.Reader) (domain.InstalledApp, bool) {
	values := make(map[string]string)
	inEntry := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := values[key]; !seen {
			values[key] = strings.TrimSpace(value)
		}
	}

	if values["Type"] != "Application" ||
		strings.EqualFold(values["NoDisplay"], "true") ||
		strings.EqualFold(values["Hidden"], "true") {
		return domain.InstalledApp{}, false
	}

	pkg := packageFromExec(values["Exec"])
	if pkg == "" {
		return domain.InstalledApp{}, false
	}

	name := values["Name"]
	if name == "" {
		name = pkg
	}
	return domain.InstalledApp{
		PackageID:   pkg,
		DisplayName: name,
		IconRef:     values["Icon"],
	}, true
}

// packageFromExec extracts the binary basename from an Exec line,
// skipping an "env VAR=value" prefix.
func packageFromExec(exec string) string {
	fields := strings.Fields(exec)
	i := 0
	if i < len(fields) && filepath.Base(strings.Trim(fields[i], `"'`)) == "env" {
		i++
		for i < len(fields) && strings.Contains(fields[i], "=") {
			i++
		}
	}
	if i >= len(fields) {
		return ""
	}
	return filepath.Base(strings.Trim(fields[i], `"'`))
}

// Ensure DesktopCatalog implements domain.AppCatalog.
var _ domain.AppCatalog = (*DesktopCatalog)(nil)
