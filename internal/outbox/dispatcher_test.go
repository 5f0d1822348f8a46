package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/sync-relay/internal/publish"
)

// fakePublisher is a hand-written test double (no live NATS connection
// needed), mirroring how audit.go's tests keep processEvent reachable
// without a broker.
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failFor   map[string]error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{failFor: map[string]error{}}
}

func (f *fakePublisher) Publish(subject string, data []byte, messageID string) (publish.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[messageID]; ok {
		return publish.Ack{}, err
	}
	f.published = append(f.published, messageID)
	return publish.Ack{Stream: "UP_LEAF_STREAM", Sequence: uint64(len(f.published))}, nil
}

func (f *fakePublisher) wasPublished(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.published {
		if p == id {
			return true
		}
	}
	return false
}

// Tests below exercise the retry-policy decision logic directly (the
// mapping spec.md §4.3 step 3 describes), independent of a live Postgres
// connection — the pgx-backed Store is covered by store_test.go's SQL shape
// assertions.

func TestDispatchDecision_SuccessMarksPublished(t *testing.T) {
	ev := Event{ID: "id-1", Subject: "up.leaf.snc.unit1.desk1.order.order.created", Status: Pending}
	pub := newFakePublisher()

	decision := decide(ev, publishErr(pub, ev), DispatcherConfig{MaxRetries: 3})
	assert.Equal(t, actionMarkPublished, decision.action)
	assert.True(t, pub.wasPublished(ev.ID))
}

func TestDispatchDecision_TransientFailureRetriesUntilMaxRetries(t *testing.T) {
	cfg := DispatcherConfig{MaxRetries: 2}
	ev := Event{ID: "id-2", RetryCount: 1}

	d := decide(ev, errors.New("broker unavailable"), cfg)
	assert.Equal(t, actionMarkPending, d.action)
	assert.Equal(t, 2, d.retryCount)

	ev.RetryCount = 2
	d = decide(ev, errors.New("broker unavailable"), cfg)
	assert.Equal(t, actionMarkFailed, d.action)
	assert.Equal(t, 3, d.retryCount)
}

func TestDispatchDecision_MaxRetriesLessEqualZeroMeansInfinite(t *testing.T) {
	cfg := DispatcherConfig{MaxRetries: 0}
	ev := Event{ID: "id-3", RetryCount: 10_000}
	d := decide(ev, errors.New("still down"), cfg)
	assert.Equal(t, actionMarkPending, d.action)
}

func publishErr(pub *fakePublisher, ev Event) error {
	_, err := pub.Publish(ev.Subject, ev.Payload, ev.ID)
	return err
}

func TestDispatcher_RunStopsOnContextCancel(t *testing.T) {
	store := NewStore(nil) // never used: ticker fires after cancel in this test
	pub := newFakePublisher()
	d := NewDispatcher(store, pub, DispatcherConfig{PollInterval: time.Millisecond}, zaptest.NewLogger(t), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancellation")
	}
}

func TestNewDispatcher_Defaults(t *testing.T) {
	d := NewDispatcher(NewStore(nil), newFakePublisher(), DispatcherConfig{}, zaptest.NewLogger(t), nil, nil, nil)
	require.Equal(t, 100, d.cfg.BatchSize)
	require.Equal(t, time.Second, d.cfg.PollInterval)
}
