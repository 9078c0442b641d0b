package recoverranges

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// fakeClient is an in-process stand-in for rsrpc.RecoveryClient. Every
// replay-fragments / phantom-prepare-ranges / phantom-commit-ranges call
// immediately turns around and reports success (or an injected error)
// through the shared *clusterctx.Context, the way a real player/receiver
// would via the ReplayComplete/PhantomPrepareComplete/PhantomCommitComplete
// RPCs -- it plays both client and server roles so tests never need a real
// grpc.ClientConn.
type fakeClient struct {
	rsrpc.RecoveryClient // embed to satisfy the interface; only overridden methods are used

	cctx    *clusterctx.Context
	attempt func() int32
	opID    func() clusterctx.OpID

	fail map[string]bool // site -> inject failure
}

func (c *fakeClient) PhantomReceive(ctx context.Context, in *rsrpc.PhantomReceiveRequest, opts ...grpc.CallOption) (*rsrpc.Status, error) {
	return &rsrpc.Status{}, nil
}

func (c *fakeClient) ReplayFragments(ctx context.Context, in *rsrpc.ReplayFragmentsRequest, opts ...grpc.CallOption) (*rsrpc.Status, error) {
	results := make(map[int32]error, len(in.Fragments))
	for _, f := range in.Fragments {
		if c.fail["replay"] {
			results[int32(f)] = assert.AnError
		} else {
			results[int32(f)] = nil
		}
	}
	go c.cctx.ReplayComplete(c.opID(), c.attempt(), results)
	return &rsrpc.Status{}, nil
}

func (c *fakeClient) PhantomPrepareRanges(ctx context.Context, in *rsrpc.PhantomPrepareRangesRequest, opts ...grpc.CallOption) (*rsrpc.Status, error) {
	results := make(map[interface{}]error, len(in.Ranges))
	for _, r := range in.Ranges {
		if c.fail["prepare"] {
			results[r] = assert.AnError
		} else {
			results[r] = nil
		}
	}
	go c.cctx.PrepareComplete(c.opID(), c.attempt(), results)
	return &rsrpc.Status{}, nil
}

func (c *fakeClient) PhantomCommitRanges(ctx context.Context, in *rsrpc.PhantomCommitRangesRequest, opts ...grpc.CallOption) (*rsrpc.Status, error) {
	results := make(map[interface{}]error, len(in.Ranges))
	for _, r := range in.Ranges {
		if c.fail["commit"] {
			results[r] = assert.AnError
		} else {
			results[r] = nil
		}
	}
	go c.cctx.CommitComplete(c.opID(), c.attempt(), results)
	return &rsrpc.Status{}, nil
}

func (c *fakeClient) AcknowledgeLoad(ctx context.Context, in *rsrpc.AcknowledgeLoadRequest, opts ...grpc.CallOption) (*rsrpc.AcknowledgeLoadResponse, error) {
	resp := &rsrpc.AcknowledgeLoadResponse{Results: make([]rsrpc.RangeResult, len(in.Ranges))}
	for i, r := range in.Ranges {
		resp.Results[i] = rsrpc.RangeResult{Range: r}
	}
	return resp, nil
}

// fakeDialer hands out one shared fakeClient per test, regardless of
// location -- good enough to exercise the fan-out and tracker wiring.
type fakeDialer struct {
	op *Operation
	mu sync.Mutex
	cl *fakeClient
}

func (d *fakeDialer) Dial(location string) (rsrpc.RecoveryClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cl, nil
}

// fakeFragSource always reports no fragments -- only exercised by the
// "nil fragments" New() calls, which enumerate exactly once.
type fakeFragSource struct{}

func (fakeFragSource) Fragments(ctx context.Context, location string, group rangekey.Group) ([]rangekey.FragmentID, error) {
	return nil, nil
}

func newTestOperation(t *testing.T, ranges []rangekey.Ident, fragments []rangekey.FragmentID, fail map[string]bool) (*Operation, *clusterctx.Context) {
	t.Helper()

	cctx := clusterctx.NewContext()
	cctx.Servers.AddServer(&clusterctx.Server{Location: "rs-2", Connected: true})
	cctx.Servers.AddServer(&clusterctx.Server{Location: "rs-3", Connected: true})

	op := New("rs-1", rangekey.GroupUser, ranges, fragments, "", cctx, nil, nil, fakeFragSource{}, nil, config.Config{
		RequestTimeout: time.Second,
		ReplayTimeout:  time.Second,
	})

	cl := &fakeClient{
		cctx:    cctx,
		attempt: op.Attempt,
		opID:    func() clusterctx.OpID { return op.opID },
		fail:    fail,
	}
	op.dial = &fakeDialer{op: op, cl: cl}
	return op, cctx
}

func testRange(n int) rangekey.Ident {
	return rangekey.Ident{
		Table: rangekey.Table{ID: rangekey.TableID("t1"), Generation: 1},
		Start: rangekey.Row(fmt.Sprintf("r%02d", n)),
		End:   rangekey.Row(fmt.Sprintf("r%02d", n+1)),
	}
}

func TestRunSucceedsThroughAllPhases(t *testing.T) {
	ranges := []rangekey.Ident{testRange(1), testRange(2)}
	fragments := []rangekey.FragmentID{10, 11}
	op, _ := newTestOperation(t, ranges, fragments, nil)

	var resolved []rangekey.Ident
	var mu sync.Mutex
	op.OnResolved = func(r rangekey.Ident, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		resolved = append(resolved, r)
	}

	err := op.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleteOK, op.State())
	assert.Len(t, resolved, 2)
}

func TestRunWithNoWorkCompletesImmediately(t *testing.T) {
	op, _ := newTestOperation(t, nil, nil, nil)
	err := op.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleteOK, op.State())
}

func TestRunRetriesOnReplayFailure(t *testing.T) {
	ranges := []rangekey.Ident{testRange(1)}
	fragments := []rangekey.FragmentID{10}
	op, _ := newTestOperation(t, ranges, fragments, map[string]bool{"replay": true})
	op.cfg.ReplayTimeout = 20 * time.Millisecond
	op.cfg.RequestTimeout = 20 * time.Millisecond

	// Every replay fails, so the operation keeps cycling INITIAL ->
	// ISSUE_REQUESTS and bumping its attempt counter rather than going
	// FATAL, until the context deadline stops it.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := op.Run(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, op.Attempt(), int32(1))
}

func TestBuildOrRepairPlanAssignsRoundRobin(t *testing.T) {
	ranges := []rangekey.Ident{testRange(1), testRange(2), testRange(3)}
	fragments := []rangekey.FragmentID{1, 2}
	op, _ := newTestOperation(t, ranges, fragments, nil)

	require.NoError(t, op.buildOrRepairPlan(context.Background()))
	assert.Equal(t, 3, op.receiverPlan.Len())
	assert.Equal(t, 2, op.replayPlan.Len())

	for _, r := range ranges {
		loc, ok := op.receiverPlan.Location(r)
		assert.True(t, ok)
		assert.Contains(t, []string{"rs-2", "rs-3"}, loc)
	}
}

func TestBuildOrRepairPlanReassignsDisconnectedLocation(t *testing.T) {
	ranges := []rangekey.Ident{testRange(1)}
	op, cctx := newTestOperation(t, ranges, []rangekey.FragmentID{}, nil)

	require.NoError(t, op.buildOrRepairPlan(context.Background()))
	loc, ok := op.receiverPlan.Location(ranges[0])
	require.True(t, ok)

	cctx.Servers.DisconnectServer(loc)
	require.NoError(t, op.buildOrRepairPlan(context.Background()))

	newLoc, ok := op.receiverPlan.Location(ranges[0])
	require.True(t, ok)
	assert.NotEqual(t, loc, newLoc)
}

func TestValidateFailsWhenReceiverDisconnects(t *testing.T) {
	ranges := []rangekey.Ident{testRange(1)}
	op, cctx := newTestOperation(t, ranges, []rangekey.FragmentID{}, nil)
	require.NoError(t, op.buildOrRepairPlan(context.Background()))

	assert.True(t, op.validate())

	loc, _ := op.receiverPlan.Location(ranges[0])
	cctx.Servers.DisconnectServer(loc)
	assert.False(t, op.validate())
}

func TestDependencyGateBlocksUntilReleased(t *testing.T) {
	gate := clusterctx.NewDependencyGate()

	ranges := []rangekey.Ident{testRange(1)}
	op, _ := newTestOperation(t, ranges, nil, nil)
	op.gate = gate
	op.Dependency = "ROOT"

	done := make(chan error, 1)
	go func() { done <- op.Run(context.Background()) }()

	select {
	case <-done:
		t.Fatal("operation completed before dependency was released")
	case <-time.After(30 * time.Millisecond):
	}

	gate.Release("ROOT")
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("operation never completed after dependency release")
	}
}

func TestDependencyGateWaitRespectsContextCancellation(t *testing.T) {
	gate := clusterctx.NewDependencyGate()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, gate.Wait(ctx, "ROOT"))
}

func TestDependencyGateEmptySentinelNeverBlocks(t *testing.T) {
	gate := clusterctx.NewDependencyGate()
	assert.NoError(t, gate.Wait(context.Background(), ""))
}
