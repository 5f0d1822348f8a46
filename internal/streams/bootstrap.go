package streams

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/arc-self/sync-relay/internal/relayerr"
)

// JetStreamManager is the subset of nats.JetStreamContext the bootstrapper
// needs. Narrowed to an interface so tests can fake it without a live broker.
type JetStreamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// Bootstrapper creates and validates the directional streams this node
// owns. It never mutates an existing stream: config drift is destructive,
// and operator intent is required to fix it (spec.md §4.4).
type Bootstrapper struct {
	js              JetStreamManager
	log             *zap.Logger
	failOnMismatch  bool
	streamKeys      map[Key]bool // nil/empty means "owns every stream"

	mu       sync.Mutex
	complete chan struct{}
	once     sync.Once
}

// NewBootstrapper constructs a Bootstrapper. streamKeys, when non-empty,
// restricts bootstrapping to the named logical streams (the stream_keys
// allowlist from spec.md §6).
func NewBootstrapper(js JetStreamManager, log *zap.Logger, failOnMismatch bool, streamKeys []Key) *Bootstrapper {
	allow := make(map[Key]bool, len(streamKeys))
	for _, k := range streamKeys {
		allow[k] = true
	}
	return &Bootstrapper{
		js:             js,
		log:            log,
		failOnMismatch: failOnMismatch,
		streamKeys:     allow,
		complete:       make(chan struct{}),
	}
}

// Complete returns a channel that is closed once Run has verified every
// owned stream. Consumers select over it alongside their own retry ticker;
// per spec.md §9 it is a best-effort optimization, never a hard dependency.
func (b *Bootstrapper) Complete() <-chan struct{} {
	return b.complete
}

func (b *Bootstrapper) owns(key Key) bool {
	if len(b.streamKeys) == 0 {
		return true
	}
	return b.streamKeys[key]
}

// Run creates/validates every stream this node owns and then signals
// BootstrapComplete. In strict mode a single config mismatch aborts the run
// and returns an error wrapping relayerr.ErrStreamConfigMismatch; in
// permissive mode mismatches are logged and bootstrapping continues.
func (b *Bootstrapper) Run(specs []Spec) error {
	for _, spec := range specs {
		if !b.owns(spec.Key) {
			continue
		}
		if err := b.ensure(spec); err != nil {
			return err
		}
	}
	b.once.Do(func() { close(b.complete) })
	return nil
}

func (b *Bootstrapper) ensure(spec Spec) error {
	info, err := b.js.StreamInfo(spec.Name)
	if err == nil {
		return b.validate(spec, info)
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", spec.Name, err)
	}

	cfg := toStreamConfig(spec)
	if _, err := b.js.AddStream(cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", spec.Name, err)
	}
	b.log.Info("stream provisioned",
		zap.String("stream", spec.Name),
		zap.Strings("subjects", spec.SubjectFilters),
		zap.String("retention", string(spec.Retention)),
	)
	return nil
}

// DriftCheck re-verifies every owned stream against specs without ever
// creating or mutating one, for use by a periodic background check
// (internal/driftcheck) independent of the one-shot Run at startup.
// Mismatches are always logged as warnings here regardless of
// failOnMismatch — a drift check firing hours into uptime should alert,
// never crash a healthy running node. It returns the number of streams
// found to have drifted.
func (b *Bootstrapper) DriftCheck(specs []Spec) int {
	drifted := 0
	for _, spec := range specs {
		if !b.owns(spec.Key) {
			continue
		}
		info, err := b.js.StreamInfo(spec.Name)
		if err != nil {
			b.log.Warn("drift check: stream info failed", zap.String("stream", spec.Name), zap.Error(err))
			continue
		}
		mismatches := diffStreamConfig(spec, info.Config)
		if len(mismatches) == 0 {
			continue
		}
		drifted++
		b.log.Warn("drift check: stream config mismatch detected",
			zap.String("stream", spec.Name),
			zap.Strings("mismatches", mismatches),
		)
	}
	return drifted
}

func (b *Bootstrapper) validate(spec Spec, info *nats.StreamInfo) error {
	mismatches := diffStreamConfig(spec, info.Config)
	if len(mismatches) == 0 {
		b.log.Info("stream verified", zap.String("stream", spec.Name))
		return nil
	}

	err := fmt.Errorf("%w: stream %s: %s", relayerr.ErrStreamConfigMismatch, spec.Name, strings.Join(mismatches, "; "))
	if b.failOnMismatch {
		return err
	}
	b.log.Warn("stream config drift detected (permissive mode, not auto-repaired)",
		zap.String("stream", spec.Name),
		zap.Strings("mismatches", mismatches),
	)
	return nil
}

func diffStreamConfig(spec Spec, actual nats.StreamConfig) []string {
	var mismatches []string
	if string(spec.Retention) != retentionString(actual.Retention) {
		mismatches = append(mismatches, fmt.Sprintf("retention: want %s got %s", spec.Retention, retentionString(actual.Retention)))
	}
	if string(spec.Storage) != storageString(actual.Storage) {
		mismatches = append(mismatches, fmt.Sprintf("storage: want %s got %s", spec.Storage, storageString(actual.Storage)))
	}
	if spec.MaxAge != 0 && spec.MaxAge != actual.MaxAge {
		mismatches = append(mismatches, fmt.Sprintf("max_age: want %s got %s", spec.MaxAge, actual.MaxAge))
	}
	if spec.Replicas != 0 && spec.Replicas != actual.Replicas {
		mismatches = append(mismatches, fmt.Sprintf("replicas: want %d got %d", spec.Replicas, actual.Replicas))
	}
	if !sameSubjectSet(spec.SubjectFilters, actual.Subjects) {
		mismatches = append(mismatches, fmt.Sprintf("subjects: want %v got %v", spec.SubjectFilters, actual.Subjects))
	}
	if !sameSubjectSet(spec.PlacementTags, placementTags(actual)) {
		mismatches = append(mismatches, fmt.Sprintf("placement_tags: want %v got %v", spec.PlacementTags, placementTags(actual)))
	}
	return mismatches
}

func placementTags(cfg nats.StreamConfig) []string {
	if cfg.Placement == nil {
		return nil
	}
	return cfg.Placement.Tags
}

func retentionString(r nats.RetentionPolicy) string {
	switch r {
	case nats.WorkQueuePolicy:
		return string(WorkQueue)
	case nats.InterestPolicy:
		return string(Interest)
	default:
		return "limits"
	}
}

func storageString(s nats.StorageType) string {
	switch s {
	case nats.MemoryStorage:
		return string(MemoryStorage)
	default:
		return string(FileStorage)
	}
}

func toStreamConfig(spec Spec) *nats.StreamConfig {
	cfg := &nats.StreamConfig{
		Name:     spec.Name,
		Subjects: spec.SubjectFilters,
		MaxAge:   spec.MaxAge,
		Replicas: spec.Replicas,
	}
	switch spec.Retention {
	case WorkQueue:
		cfg.Retention = nats.WorkQueuePolicy
	case Interest:
		cfg.Retention = nats.InterestPolicy
	default:
		cfg.Retention = nats.LimitsPolicy
	}
	switch spec.Storage {
	case MemoryStorage:
		cfg.Storage = nats.MemoryStorage
	default:
		cfg.Storage = nats.FileStorage
	}
	if len(spec.PlacementTags) > 0 {
		cfg.Placement = &nats.Placement{Tags: spec.PlacementTags}
	}
	if cfg.Replicas == 0 {
		cfg.Replicas = 1
	}
	return cfg
}
