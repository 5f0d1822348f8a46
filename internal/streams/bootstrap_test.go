package streams

import (
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/sync-relay/internal/relayerr"
)

type fakeJS struct {
	infos      map[string]*nats.StreamInfo
	created    []string
	addErr     error
	infoErrAll error
}

func newFakeJS() *fakeJS {
	return &fakeJS{infos: map[string]*nats.StreamInfo{}}
}

func (f *fakeJS) StreamInfo(stream string, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.infoErrAll != nil {
		return nil, f.infoErrAll
	}
	if info, ok := f.infos[stream]; ok {
		return info, nil
	}
	return nil, nats.ErrStreamNotFound
}

func (f *fakeJS) AddStream(cfg *nats.StreamConfig, _ ...nats.JSOpt) (*nats.StreamInfo, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.created = append(f.created, cfg.Name)
	info := &nats.StreamInfo{Config: *cfg}
	f.infos[cfg.Name] = info
	return info, nil
}

func TestBootstrapper_CreatesMissingStreams(t *testing.T) {
	js := newFakeJS()
	b := NewBootstrapper(js, zaptest.NewLogger(t), true, nil)

	err := b.Run(DefaultSpecs())
	require.NoError(t, err)
	assert.Len(t, js.created, 6)

	select {
	case <-b.Complete():
	default:
		t.Fatal("expected BootstrapComplete to be signaled")
	}
}

func TestBootstrapper_NeverMutatesExistingStream(t *testing.T) {
	js := newFakeJS()
	spec := DefaultSpecs()[0]
	// pre-existing stream with different max_age than desired
	js.infos[spec.Name] = &nats.StreamInfo{Config: nats.StreamConfig{
		Name:      spec.Name,
		Subjects:  spec.SubjectFilters,
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
		MaxAge:    10 * time.Hour,
	}}
	spec.MaxAge = time.Hour

	b := NewBootstrapper(js, zaptest.NewLogger(t), false, []Key{spec.Key})
	err := b.Run([]Spec{spec})
	require.NoError(t, err) // permissive mode: warn, not fail
	assert.Empty(t, js.created, "bootstrapper must never AddStream over an existing one")
}

func TestBootstrapper_StrictModeFailsOnMismatch(t *testing.T) {
	js := newFakeJS()
	spec := DefaultSpecs()[0]
	js.infos[spec.Name] = &nats.StreamInfo{Config: nats.StreamConfig{
		Name:      spec.Name,
		Subjects:  []string{"totally.different.>"},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	}}

	b := NewBootstrapper(js, zaptest.NewLogger(t), true, []Key{spec.Key})
	err := b.Run([]Spec{spec})
	require.Error(t, err)
	assert.True(t, errors.Is(err, relayerr.ErrStreamConfigMismatch))
}

func TestBootstrapper_StreamKeysAllowlist(t *testing.T) {
	js := newFakeJS()
	b := NewBootstrapper(js, zaptest.NewLogger(t), true, []Key{UpLeaf})

	err := b.Run(DefaultSpecs())
	require.NoError(t, err)
	assert.Equal(t, []string{"UP_LEAF_STREAM"}, js.created)
}

func TestBootstrapper_SubjectSetComparisonIsOrderInsensitive(t *testing.T) {
	assert.True(t, sameSubjectSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameSubjectSet([]string{"a", "b"}, []string{"a", "c"}))
	assert.False(t, sameSubjectSet([]string{"a"}, []string{"a", "b"}))
}

func TestParseRetentionAndStorage_AcceptAliases(t *testing.T) {
	for _, s := range []string{"workqueue", "work_queue", "work-queue", "WorkQueue"} {
		r, err := ParseRetention(s)
		require.NoError(t, err, s)
		assert.Equal(t, WorkQueue, r)
	}
	_, err := ParseRetention("bogus")
	assert.Error(t, err)

	st, err := ParseStorage("FILE")
	require.NoError(t, err)
	assert.Equal(t, FileStorage, st)
}
