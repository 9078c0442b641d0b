package clusterctx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayTrackerCompletesWhenAllDone(t *testing.T) {
	tr := NewReplayTracker(0, 3)
	go func() {
		tr.Complete(1, nil)
		tr.Complete(2, nil)
		tr.Complete(3, assert.AnError)
	}()

	results := tr.Wait(time.Second)
	require.Len(t, results, 3)
	assert.NoError(t, results[1])
	assert.NoError(t, results[2])
	assert.Error(t, results[3])
}

func TestReplayTrackerForceCompletesOnDeadline(t *testing.T) {
	tr := NewReplayTracker(0, 2)
	tr.Complete(1, nil)
	// fragment 2 never reports.

	results := tr.Wait(10 * time.Millisecond)
	require.Len(t, results, 2)
	assert.NoError(t, results[1])
	assert.ErrorIs(t, results[2], ErrTimeout)
}

func TestReplayTrackerDuplicateCompleteIgnored(t *testing.T) {
	tr := NewReplayTracker(0, 1)
	tr.Complete(1, nil)
	tr.Complete(1, assert.AnError) // ignored, tracker already closed

	results := tr.Wait(time.Second)
	require.Len(t, results, 1)
	assert.NoError(t, results[1])
}

func TestRangeTrackerCompletesWhenAllDone(t *testing.T) {
	tr := NewRangeTracker(0, []rangeKey{"r1", "r2"})
	tr.Complete("r1", nil)
	tr.Complete("r2", nil)

	results := tr.Wait(time.Second)
	assert.Len(t, results, 2)
}

func TestRangeTrackerForceCompletesOnDeadline(t *testing.T) {
	tr := NewRangeTracker(0, []rangeKey{"r1", "r2"})
	tr.Complete("r1", nil)

	results := tr.Wait(10 * time.Millisecond)
	require.Len(t, results, 2)

	var timedOut bool
	for _, r := range results {
		if r.Key == "r2" {
			timedOut = true
			assert.ErrorIs(t, r.Err, ErrTimeout)
		}
	}
	assert.True(t, timedOut)
}

func TestRangeTrackerIgnoresUnexpectedKey(t *testing.T) {
	tr := NewRangeTracker(0, []rangeKey{"r1"})
	tr.Complete("r-unexpected", nil)
	tr.Complete("r1", nil)

	results := tr.Wait(time.Second)
	require.Len(t, results, 1)
	assert.Equal(t, "r1", results[0].Key)
}

func TestTrackerInstallNilPanics(t *testing.T) {
	tt := newTrackers()
	assert.Panics(t, func() { tt.installReplay(1, nil) })
	assert.Panics(t, func() { tt.installPrepare(1, nil) })
	assert.Panics(t, func() { tt.installCommit(1, nil) })
}

func TestTrackerEraseIsIdempotent(t *testing.T) {
	tt := newTrackers()
	tt.eraseReplay(1)
	tt.erasePrepare(1)
	tt.eraseCommit(1)

	tt.installReplay(1, NewReplayTracker(0, 1))
	tt.eraseReplay(1)
	tt.eraseReplay(1)
}
