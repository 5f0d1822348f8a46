package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-self/sync-relay/internal/subject"
)

func TestFromEnv_RequiresIdentity(t *testing.T) {
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnv_DefaultsAndIdentity(t *testing.T) {
	t.Setenv("RELAY_TIER", "subzone")
	t.Setenv("RELAY_ZONE", "snc")
	t.Setenv("RELAY_SUBZONE", "unit1")
	t.Setenv("RELAY_NODE", "rly1")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, subject.Subzone, cfg.Identity.Tier)
	assert.Equal(t, "snc", cfg.Identity.Zone)
	assert.Equal(t, "unit1", cfg.Identity.Subzone)
	assert.True(t, cfg.Relay.Enabled, "subzone tier runs the relay engine by default")
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 0, cfg.Outbox.MaxRetries, "0 means retry forever by default")
}

func TestFromEnv_SubzoneDefaultsToNoSubzoneToken(t *testing.T) {
	t.Setenv("RELAY_TIER", "zone")
	t.Setenv("RELAY_ZONE", "snc")
	t.Setenv("RELAY_NODE", "rly1")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, subject.NoSubzone, cfg.Identity.Subzone)
	assert.False(t, cfg.Relay.ZoneHasSubzones)
}

func TestFromEnv_StreamKeysCSVParsed(t *testing.T) {
	t.Setenv("RELAY_TIER", "leaf")
	t.Setenv("RELAY_ZONE", "snc")
	t.Setenv("RELAY_NODE", "desk1")
	t.Setenv("BOOTSTRAP_STREAM_KEYS", "UP_LEAF_STREAM,DOWN_SUBZONE_STREAM")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"UP_LEAF_STREAM", "DOWN_SUBZONE_STREAM"}, cfg.Bootstrap.StreamKeys)
}
