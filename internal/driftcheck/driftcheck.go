// Package driftcheck periodically re-verifies that this node's JetStream
// streams still match their desired spec, independent of the one-shot
// verification the Stream Bootstrapper performs at startup (spec.md §4.4).
// It never repairs drift, only reports it — adapted from
// apps/notification-service/internal/scheduler/cron.go's use of
// robfig/cron for background periodic work.
package driftcheck

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/streams"
)

// Checker is the subset of *streams.Bootstrapper driftcheck depends on.
type Checker interface {
	DriftCheck(specs []streams.Spec) int
}

// DriftChecker runs a periodic background re-verification pass.
type DriftChecker struct {
	cron    *cron.Cron
	checker Checker
	specs   []streams.Spec
	counter metric.Int64Counter
	logger  *zap.Logger
}

// NewDriftChecker constructs a DriftChecker on a cron schedule (standard
// five-field cron syntax, e.g. "*/15 * * * *"; cron.WithSeconds is not
// used, since stream config rarely drifts on a sub-minute basis).
func NewDriftChecker(checker Checker, specs []streams.Spec, driftCounter metric.Int64Counter, logger *zap.Logger) *DriftChecker {
	return &DriftChecker{
		cron:    cron.New(),
		checker: checker,
		specs:   specs,
		counter: driftCounter,
		logger:  logger,
	}
}

// Start schedules the drift check to run every 15 minutes and starts the
// underlying cron scheduler. Call Stop to gracefully shut down.
func (d *DriftChecker) Start() error {
	if _, err := d.cron.AddFunc("*/15 * * * *", d.run); err != nil {
		return err
	}
	d.cron.Start()
	d.logger.Info("drift checker started", zap.Int("streams_watched", len(d.specs)))
	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight run.
func (d *DriftChecker) Stop() {
	ctx := d.cron.Stop()
	<-ctx.Done()
	d.logger.Info("drift checker stopped")
}

func (d *DriftChecker) run() {
	drifted := d.checker.DriftCheck(d.specs)
	if drifted == 0 {
		d.logger.Debug("drift check completed, no drift detected")
		return
	}
	if d.counter != nil {
		d.counter.Add(context.Background(), int64(drifted))
	}
	d.logger.Warn("drift check found mismatched streams", zap.Int("count", drifted))
}
