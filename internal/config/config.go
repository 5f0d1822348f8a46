// Package config loads sync-relay's settings the way the rest of the
// fabric does: required topology/identity from environment variables,
// secrets (broker creds, database DSN) from Vault, and the one piece of
// genuinely structured config — the per-stream operational overrides —
// from a YAML file. Adapted from apps/iam-service/cmd/api/main.go's env +
// Vault loading sequence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/arc-self/sync-relay/internal/subject"
)

// BootstrapConfig controls the Stream Bootstrapper (spec.md §4.4).
type BootstrapConfig struct {
	// StreamKeys restricts which of the six fixed streams this node
	// bootstraps. Empty means the node bootstraps all six streams in
	// streams.DefaultSpecs.
	StreamKeys []string
	// FailOnMismatch makes a drifted existing stream fatal at startup
	// instead of a warning (spec.md §4.4 step 3, §7).
	FailOnMismatch bool
}

// RelayConfig controls the Relay Engine (spec.md §4.6).
type RelayConfig struct {
	Enabled         bool
	ZoneHasSubzones bool
	BatchSize       int
	PollIntervalMs  int
	FetchWaitMs     int
}

// OutboxConfig controls the Outbox Dispatcher (spec.md §4.3).
type OutboxConfig struct {
	Enabled        bool
	UseCDC         bool // logical replication instead of polling
	BatchSize      int
	PollIntervalMs int
	MaxRetries     int
}

// Config is the fully resolved configuration for one sync-relay node.
type Config struct {
	Identity Identity

	NatsURL      string
	VaultAddr    string
	VaultToken   string
	SecretPath   string
	OTelEndpoint string
	HealthAddr   string

	Bootstrap BootstrapConfig
	Relay     RelayConfig
	Outbox    OutboxConfig
}

// FromEnv loads the non-secret parts of Config from environment variables,
// following the same os.Getenv-with-default idiom as
// apps/iam-service/cmd/api/main.go. Secrets (Vault address/token aside) are
// loaded separately via SecretManager once the process has this config.
func FromEnv() (Config, error) {
	tier := subject.Tier(getenv("RELAY_TIER", ""))
	zone := getenv("RELAY_ZONE", "")
	node := getenv("RELAY_NODE", "")
	if tier == "" || zone == "" || node == "" {
		return Config{}, fmt.Errorf("config: RELAY_TIER, RELAY_ZONE and RELAY_NODE are required")
	}

	cfg := Config{
		Identity: Identity{
			Tier:    tier,
			Zone:    zone,
			Subzone: getenv("RELAY_SUBZONE", subject.NoSubzone),
			Node:    node,
		},
		NatsURL:      getenv("NATS_URL", "nats://localhost:4222"),
		VaultAddr:    getenv("VAULT_ADDR", "http://localhost:8200"),
		VaultToken:   getenv("VAULT_TOKEN", "root"),
		SecretPath:   getenv("VAULT_SECRET_PATH", "secret/data/arc/sync-relay"),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HealthAddr:   getenv("HEALTH_ADDR", ":8090"),

		Bootstrap: BootstrapConfig{
			FailOnMismatch: getenvBool("BOOTSTRAP_FAIL_ON_MISMATCH", false),
		},
		Relay: RelayConfig{
			Enabled:         getenvBool("RELAY_ENABLED", tier == subject.Subzone || tier == subject.Zone),
			ZoneHasSubzones: getenvBool("RELAY_ZONE_HAS_SUBZONES", false),
			BatchSize:       getenvInt("RELAY_BATCH_SIZE", 50),
			PollIntervalMs:  getenvInt("RELAY_POLL_INTERVAL_MS", 0),
			FetchWaitMs:     getenvInt("RELAY_FETCH_WAIT_MS", 5000),
		},
		Outbox: OutboxConfig{
			Enabled:        getenvBool("OUTBOX_ENABLED", true),
			UseCDC:         getenvBool("OUTBOX_USE_CDC", false),
			BatchSize:      getenvInt("OUTBOX_BATCH_SIZE", 100),
			PollIntervalMs: getenvInt("OUTBOX_POLL_INTERVAL_MS", 1000),
			MaxRetries:     getenvInt("OUTBOX_MAX_RETRIES", 0),
		},
	}

	if raw := os.Getenv("BOOTSTRAP_STREAM_KEYS"); raw != "" {
		cfg.Bootstrap.StreamKeys = splitCSV(raw)
	}

	return cfg, nil
}

// PollInterval returns the outbox poll interval as a time.Duration.
func (c OutboxConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// FetchWait returns the relay link fetch wait as a time.Duration.
func (c RelayConfig) FetchWait() time.Duration {
	return time.Duration(c.FetchWaitMs) * time.Millisecond
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
