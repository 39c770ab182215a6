package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
)

// Lister builds the application roster: installed apps with a liveness flag.
type Lister struct {
	catalog  domain.AppCatalog
	detector domain.LivenessDetector
	logger   *zap.Logger
}

// NewLister creates a roster builder.
func NewLister(catalog domain.AppCatalog, detector domain.LivenessDetector, logger *zap.Logger) *Lister {
	return &Lister{
		catalog:  catalog,
		detector: detector,
		logger:   logger,
	}
}

// List returns installed applications de-duplicated by package id and sorted
// by display name.
func (l *Lister) List(ctx context.Context) ([]domain.ApplicationRecord, error) {
	apps, err := l.catalog.InstalledApps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed apps: %w", err)
	}

	live := l.detector.Detect(ctx)

	seen := make(map[string]bool, len(apps))
	records := make([]domain.ApplicationRecord, 0, len(apps))
	for _, app := range apps {
		if app.PackageID == "" || seen[app.PackageID] {
			continue
		}
		seen[app.PackageID] = true

		_, isLive := live[app.PackageID]
		records = append(records, domain.ApplicationRecord{
			PackageID:   app.PackageID,
			DisplayName: app.DisplayName,
			IconRef:     app.IconRef,
			IsLive:      isLive,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DisplayName != records[j].DisplayName {
			return records[i].DisplayName < records[j].DisplayName
		}
		return records[i].PackageID < records[j].PackageID
	})

	l.logger.Debug("application roster built",
		zap.Int("installed", len(apps)),
		zap.Int("listed", len(records)),
		zap.Int("live", len(live)))

	return records, nil
}

// DisplayName resolves a package id to its label, falling back to the id.
func (l *Lister) DisplayName(ctx context.Context, packageID string) string {
	apps, err := l.catalog.InstalledApps(ctx)
	if err != nil {
		return packageID
	}
	for _, app := range apps {
		if app.PackageID == packageID && app.DisplayName != "" {
			return app.DisplayName
		}
	}
	return packageID
}
