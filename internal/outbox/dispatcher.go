package outbox

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/publish"
	"github.com/arc-self/sync-relay/internal/relayerr"
)

// DispatcherConfig controls the poll loop (spec.md §4.3, §6).
type DispatcherConfig struct {
	Enabled      bool
	BatchSize    int
	PollInterval time.Duration
	// MaxRetries <= 0 means retry forever — required for disconnected-leaf
	// scenarios where the local broker may be offline for minutes to days.
	MaxRetries int
}

// Dispatcher bridges the Outbox Store to the Publisher outside business
// transactions, providing at-least-once delivery with broker-side dedup
// keyed by the outbox row id (spec.md §4.3).
type Dispatcher struct {
	store     *Store
	publisher publish.Publisher
	cfg       DispatcherConfig
	log       *zap.Logger

	// seen is an optional best-effort hint populated by an external dedup
	// cache (internal/cache); purely a diagnostic/perf aid — correctness
	// never depends on it.
	seen func(id string) bool

	dispatched metric.Int64Counter
	failed     metric.Int64Counter
}

// NewDispatcher constructs a Dispatcher. seenHint, dispatched and failed may
// all be nil; dispatched/failed are the telemetry.RelayMetrics counters of
// the same name and are simply not recorded when absent (e.g. in tests).
func NewDispatcher(store *Store, publisher publish.Publisher, cfg DispatcherConfig, log *zap.Logger, seenHint func(id string) bool, dispatched, failed metric.Int64Counter) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if seenHint == nil {
		seenHint = func(string) bool { return false }
	}
	return &Dispatcher{store: store, publisher: publisher, cfg: cfg, log: log, seen: seenHint, dispatched: dispatched, failed: failed}
}

// Run blocks, polling until ctx is cancelled. Multiple Dispatcher instances
// may run concurrently across processes: broker dedup makes any resulting
// duplicate publish harmless (spec.md §4.3).
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.log.Info("outbox dispatcher started",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("max_retries", d.cfg.MaxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			d.log.Info("outbox dispatcher stopping")
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

func (d *Dispatcher) tick(ctx context.Context) {
	events, err := d.store.FindPending(ctx, d.cfg.BatchSize)
	if err != nil {
		if errors.Is(err, relayerr.ErrDbFatal) {
			d.log.Error("find pending outbox events failed with a non-retryable error, will try again next tick but this needs operator attention", zap.Error(err))
		} else {
			d.log.Warn("find pending outbox events failed, retrying next tick", zap.Error(err))
		}
		return
	}

	for _, ev := range events {
		d.dispatchOne(ctx, ev)
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ev Event) {
	if d.seen(ev.ID) {
		d.log.Debug("outbox event was recently dispatched, publishing again (broker dedup collapses the duplicate)", zap.String("id", ev.ID))
	}

	_, pubErr := d.publisher.Publish(ev.Subject, ev.Payload, ev.ID)
	dec := decide(ev, pubErr, d.cfg)

	var markErr error
	switch dec.action {
	case actionMarkPublished:
		markErr = d.store.MarkPublished(ctx, ev.ID)
		if d.dispatched != nil {
			d.dispatched.Add(ctx, 1)
		}
	case actionMarkPending:
		markErr = d.store.MarkPending(ctx, ev.ID, dec.retryCount)
		d.log.Warn("outbox publish failed, will retry",
			zap.String("id", ev.ID), zap.String("subject", ev.Subject),
			zap.Int("retry_count", dec.retryCount), zap.Error(pubErr))
	case actionMarkFailed:
		markErr = d.store.MarkFailed(ctx, ev.ID, dec.retryCount)
		d.log.Error("outbox event exceeded max_retries, marked FAILED",
			zap.String("id", ev.ID), zap.String("subject", ev.Subject),
			zap.Int("retry_count", dec.retryCount), zap.Error(pubErr))
		if d.failed != nil {
			d.failed.Add(ctx, 1)
		}
	}
	if markErr != nil {
		if errors.Is(markErr, relayerr.ErrDbFatal) {
			d.log.Error("outbox status update hit a non-retryable database error, row left in its prior state",
				zap.String("id", ev.ID), zap.Error(markErr))
		} else {
			d.log.Warn("outbox status update failed, will be retried next tick",
				zap.String("id", ev.ID), zap.Error(markErr))
		}
	}
}

// action is the outcome of applying the retry policy (spec.md §4.3 step 3)
// to a single publish attempt.
type action int

const (
	actionMarkPublished action = iota
	actionMarkPending
	actionMarkFailed
)

// decision is the pure result of decide: what the Dispatcher should do next,
// with no I/O performed yet. Kept separate from dispatchOne so the retry
// policy can be unit-tested without a database or broker connection,
// mirroring how audit.go separates processEvent from processMessage.
type decision struct {
	action     action
	retryCount int
}

// decide applies the retry policy from spec.md §4.3 step 3: on success mark
// published; on failure, advance retry_count and either keep retrying
// (MaxRetries <= 0, i.e. infinite, or the new count is still within budget)
// or mark the row FAILED once the budget is exhausted.
func decide(ev Event, publishErr error, cfg DispatcherConfig) decision {
	if publishErr == nil {
		return decision{action: actionMarkPublished}
	}
	n := ev.RetryCount + 1
	if cfg.MaxRetries <= 0 || n <= cfg.MaxRetries {
		return decision{action: actionMarkPending, retryCount: n}
	}
	return decision{action: actionMarkFailed, retryCount: n}
}
