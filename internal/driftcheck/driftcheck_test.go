package driftcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/arc-self/sync-relay/internal/streams"
)

type fakeChecker struct {
	drifted int
	calls   int
}

func (f *fakeChecker) DriftCheck(specs []streams.Spec) int {
	f.calls++
	return f.drifted
}

func TestDriftChecker_RunLogsWhenDrifted(t *testing.T) {
	checker := &fakeChecker{drifted: 2}
	dc := NewDriftChecker(checker, streams.DefaultSpecs(), nil, zaptest.NewLogger(t))

	dc.run()

	assert.Equal(t, 1, checker.calls)
}

func TestDriftChecker_RunNoopWhenClean(t *testing.T) {
	checker := &fakeChecker{drifted: 0}
	dc := NewDriftChecker(checker, streams.DefaultSpecs(), nil, zaptest.NewLogger(t))

	assert.NotPanics(t, dc.run)
	assert.Equal(t, 1, checker.calls)
}

func TestDriftChecker_StartSchedulesJob(t *testing.T) {
	checker := &fakeChecker{}
	dc := NewDriftChecker(checker, streams.DefaultSpecs(), nil, zaptest.NewLogger(t))

	assert.NoError(t, dc.Start())
	dc.Stop()
}
