package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/appkiller/internal/domain"
	"github.com/eliteGoblin/appkiller/internal/monitoring"
)

// TerminatorImpl implements domain.Terminator.
// Strategies run in the order given; each one is isolated from the others.
type TerminatorImpl struct {
	selfPackage string
	strategies  []domain.TerminationStrategy
	metrics     *monitoring.Metrics
	logger      *zap.Logger
}

// NewTerminator creates a new termination orchestrator.
func NewTerminator(
	selfPackage string,
	strategies []domain.TerminationStrategy,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *TerminatorImpl {
	return &TerminatorImpl{
		selfPackage: selfPackage,
		strategies:  strategies,
		metrics:     metrics,
		logger:      logger,
	}
}

// Terminate requests that packageID be stopped. It returns true if at least one
// strategy reported success. This is advisory: the target may still be running.
func (t *TerminatorImpl) Terminate(ctx context.Context, packageID string) bool {
	if packageID == "" || packageID == t.selfPackage {
		t.logger.Debug("termination rejected",
			zap.String("package", packageID),
			zap.Error(domain.ErrSelfTarget))
		return false
	}

	start := time.Now()
	success := false
	var attempted []string

	for _, strategy := range t.strategies {
		if !strategy.IsAvailable() {
			continue
		}
		attempted = append(attempted, strategy.Name())

		err := t.runStrategy(ctx, strategy, packageID)
		t.metrics.ObserveStrategy(strategy.Name(), err == nil)

		switch {
		case err == nil:
			success = true
			t.logger.Info("termination strategy succeeded",
				zap.String("package", packageID),
				zap.String("strategy", strategy.Name()))
		case errors.Is(err, domain.ErrNoMatch):
			t.logger.Debug("termination strategy found nothing",
				zap.String("package", packageID),
				zap.String("strategy", strategy.Name()))
		default:
			t.logger.Warn("termination strategy failed",
				zap.String("package", packageID),
				zap.String("strategy", strategy.Name()),
				zap.Error(err))
		}
	}

	t.metrics.ObserveTermination(success)
	t.logger.Info("termination requested",
		zap.String("package", packageID),
		zap.Strings("strategies", attempted),
		zap.Bool("success", success),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	return success
}

// runStrategy turns a panicking strategy into an ordinary failure.
func (t *TerminatorImpl) runStrategy(ctx context.Context, s domain.TerminationStrategy, packageID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Stop(ctx, packageID)
}

// Ensure TerminatorImpl implements domain.Terminator.
var _ domain.Terminator = (*TerminatorImpl)(nil)
