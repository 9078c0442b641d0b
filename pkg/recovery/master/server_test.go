package master

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

func TestReplayCompleteDispatchesIntoTracker(t *testing.T) {
	cctx := clusterctx.NewContext()
	id := cctx.NewOpID()
	tr := clusterctx.NewReplayTracker(0, 2)
	cctx.InstallReplayTracker(id, tr)

	s := New(cctx)
	_, err := s.ReplayComplete(context.Background(), &rsrpc.ReplayCompleteRequest{
		OpID:    int64(id),
		Attempt: 0,
		Results: []rsrpc.FragmentResult{
			{Fragment: 1, Err: 0},
			{Fragment: 2, Err: 7},
		},
	})
	require.NoError(t, err)

	results := tr.Wait(0)
	require.Len(t, results, 2)
	assert.NoError(t, results[1])
	assert.Error(t, results[2])
}

func TestReplayCompleteUnknownOpIsDropped(t *testing.T) {
	cctx := clusterctx.NewContext()
	s := New(cctx)
	_, err := s.ReplayComplete(context.Background(), &rsrpc.ReplayCompleteRequest{OpID: 999, Attempt: 0})
	assert.NoError(t, err)
}

func TestPhantomPrepareCompleteDispatchesIntoTracker(t *testing.T) {
	cctx := clusterctx.NewContext()
	id := cctx.NewOpID()
	rng := rangekey.Ident{Table: rangekey.Table{ID: "t", Generation: 1}, Start: "a", End: "m"}
	tr := clusterctx.NewRangeTracker(0, []interface{}{rng})
	cctx.InstallPrepareTracker(id, tr)

	s := New(cctx)
	_, err := s.PhantomPrepareComplete(context.Background(), &rsrpc.PhantomPrepareCompleteRequest{
		OpID:    int64(id),
		Attempt: 0,
		Results: []rsrpc.RangeResult{{Range: rng, Err: 0}},
	})
	require.NoError(t, err)

	results := tr.Wait(0)
	require.Len(t, results, 1)
	assert.Equal(t, rng, results[0].Key)
	assert.NoError(t, results[0].Err)
}

func TestPhantomCommitCompleteStaleAttemptIsDropped(t *testing.T) {
	cctx := clusterctx.NewContext()
	id := cctx.NewOpID()
	rng := rangekey.Ident{Table: rangekey.Table{ID: "t", Generation: 1}, Start: "a", End: "m"}
	tr := clusterctx.NewRangeTracker(1, []interface{}{rng})
	cctx.InstallCommitTracker(id, tr)

	s := New(cctx)
	_, err := s.PhantomCommitComplete(context.Background(), &rsrpc.PhantomCommitCompleteRequest{
		OpID:    int64(id),
		Attempt: 0, // stale -- tracker is on attempt 1
		Results: []rsrpc.RangeResult{{Range: rng, Err: 0}},
	})
	require.NoError(t, err)

	results := tr.Wait(0)
	require.Len(t, results, 1)
	assert.Equal(t, clusterctx.ErrTimeout, results[0].Err)
}
