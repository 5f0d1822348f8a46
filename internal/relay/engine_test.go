package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/sync-relay/internal/config"
	"github.com/arc-self/sync-relay/internal/publish"
	"github.com/arc-self/sync-relay/internal/streams"
	"github.com/arc-self/sync-relay/internal/subject"
)

// fakePublisher records publish calls and can be configured to fail, used
// to exercise the engine's relay decision logic without a live broker.
type fakePublisher struct {
	calls []publishCall
	err   error
}

type publishCall struct {
	subject   string
	messageID string
}

func (f *fakePublisher) Publish(subj string, data []byte, messageID string) (publish.Ack, error) {
	if f.err != nil {
		return publish.Ack{}, f.err
	}
	f.calls = append(f.calls, publishCall{subject: subj, messageID: messageID})
	return publish.Ack{Stream: "UP_SUBZONE_STREAM", Sequence: uint64(len(f.calls))}, nil
}

func testEngine(t *testing.T, pub publish.Publisher, identity config.Identity) *Engine {
	t.Helper()
	return NewEngine(nil, pub, identity, nil, EngineConfig{}, zaptest.NewLogger(t), nil, nil, nil)
}

func newTestMsg(t *testing.T, subj string) *nats.Msg {
	t.Helper()
	return &nats.Msg{Subject: subj, Data: []byte(`{"k":"v"}`), Header: nats.Header{}}
}

func TestRelayOne_RewritesAndRepublishesOnSuccess(t *testing.T) {
	in, err := subject.Build(subject.Up, subject.Leaf, "snc", "unit1", "desk1", "order", "order", "created")
	require.NoError(t, err)

	pub := &fakePublisher{}
	identity := config.Identity{Tier: subject.Subzone, Zone: "snc", Subzone: "unit1", Node: "rly1"}
	e := testEngine(t, pub, identity)
	link := Link{OutDirection: subject.Up, OutTier: subject.Subzone, OutStream: string(streams.UpSubzone)}

	msg := newTestMsg(t, in)
	msg.Header.Set(nats.MsgIdHdr, "evt-123")

	e.relayOne(context.Background(), link, msg, zaptest.NewLogger(t))

	require.Len(t, pub.calls, 1)
	assert.Equal(t, "evt-123", pub.calls[0].messageID)

	parsed, ok := subject.TryParse(pub.calls[0].subject)
	require.True(t, ok)
	assert.Equal(t, subject.Up, parsed.Direction)
	assert.Equal(t, subject.Subzone, parsed.OriginTier)
	assert.Equal(t, "snc", parsed.Zone)
	assert.Equal(t, "unit1", parsed.Subzone)
	assert.Equal(t, "rly1", parsed.Node)
	assert.Equal(t, "order", parsed.Domain)
	assert.Equal(t, "order", parsed.Entity)
	assert.Equal(t, "created", parsed.Event)
}

func TestRelayOne_NonCanonicalSubjectIsNotPublished(t *testing.T) {
	pub := &fakePublisher{}
	e := testEngine(t, pub, config.Identity{Tier: subject.Subzone, Zone: "snc", Subzone: "unit1", Node: "rly1"})
	link := Link{OutDirection: subject.Up, OutTier: subject.Subzone}

	msg := newTestMsg(t, "not.canonical")
	e.relayOne(context.Background(), link, msg, zaptest.NewLogger(t))

	assert.Empty(t, pub.calls, "a non-canonical subject must never reach the publisher")
}

// TestRelayOne_DownRelayPreservesDestinationScope guards against regressing
// spec.md §4.6 step 3b: a down relay must carry the destination zone/subzone
// parsed from the inbound subject, never this node's own identity. A zone
// node's "down-from-central" link filters on `down.central.<zone>.>` — a
// wildcard spanning every subzone the zone owns — so stamping the node's own
// (empty, in this case) subzone onto every relayed message would misroute
// all down traffic whenever the zone has more than one subzone.
func TestRelayOne_DownRelayPreservesDestinationScope(t *testing.T) {
	in, err := subject.Build(subject.Down, subject.Central, "snc", "unit2", subject.AllNodes, "order", "order", "created")
	require.NoError(t, err)

	pub := &fakePublisher{}
	// A zone node has no subzone of its own; "unit2" must come from the
	// inbound subject, not from identity.Subzone.
	identity := config.Identity{Tier: subject.Zone, Zone: "snc", Subzone: "", Node: "zone-rly1"}
	e := testEngine(t, pub, identity)
	link := Link{OutDirection: subject.Down, OutTier: subject.Zone, OutStream: string(streams.DownZone)}

	msg := newTestMsg(t, in)
	e.relayOne(context.Background(), link, msg, zaptest.NewLogger(t))

	require.Len(t, pub.calls, 1)
	parsed, ok := subject.TryParse(pub.calls[0].subject)
	require.True(t, ok)
	assert.Equal(t, subject.Down, parsed.Direction)
	assert.Equal(t, subject.Zone, parsed.OriginTier)
	assert.Equal(t, "snc", parsed.Zone)
	assert.Equal(t, "unit2", parsed.Subzone, "down relay must preserve the inbound destination subzone")
	assert.Equal(t, "zone-rly1", parsed.Node)
}

func TestRelayOne_PublishFailureIsNotFatal(t *testing.T) {
	in, err := subject.Build(subject.Up, subject.Leaf, "snc", "unit1", "desk1", "order", "order", "created")
	require.NoError(t, err)

	pub := &fakePublisher{err: errors.New("broker unavailable")}
	e := testEngine(t, pub, config.Identity{Tier: subject.Subzone, Zone: "snc", Subzone: "unit1", Node: "rly1"})
	link := Link{OutDirection: subject.Up, OutTier: subject.Subzone}

	msg := newTestMsg(t, in)
	assert.NotPanics(t, func() {
		e.relayOne(context.Background(), link, msg, zaptest.NewLogger(t))
	})
	assert.Empty(t, pub.calls)
}
