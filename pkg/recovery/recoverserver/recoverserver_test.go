package recoverserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-db/tessellate/pkg/clusterctx"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/metalog"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// fakeRSML returns a fixed set of live ranges for one location.
type fakeRSML struct {
	entries []metalog.RangeEntry
	err     error
}

func (f *fakeRSML) ReadLiveRanges(ctx context.Context, location string) ([]metalog.RangeEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

// fakeRunner records every group it was asked to run and reports a
// per-group outcome from a fixed map. It never actually touches a gate --
// it exercises the server-level sequencing logic, not the per-group state
// machines; gatedRunner below covers the gate itself.
type fakeRunner struct {
	mu   sync.Mutex
	ran  []rangekey.Group
	deps map[rangekey.Group]string

	fail map[rangekey.Group]bool
}

func (f *fakeRunner) Run(ctx context.Context, location string, group rangekey.Group, ranges []rangekey.Ident, dependency string) error {
	f.mu.Lock()
	f.ran = append(f.ran, group)
	if f.deps == nil {
		f.deps = map[rangekey.Group]string{}
	}
	f.deps[group] = dependency
	f.mu.Unlock()

	if f.fail[group] {
		return assert.AnError
	}
	return nil
}

// gatedRunner waits on a real DependencyGate the way liveRangeRunner does,
// recording the order groups actually started in.
type gatedRunner struct {
	gate *clusterctx.DependencyGate

	mu      sync.Mutex
	started []rangekey.Group

	delay map[rangekey.Group]time.Duration
}

func (g *gatedRunner) Run(ctx context.Context, location string, group rangekey.Group, ranges []rangekey.Ident, dependency string) error {
	if err := g.gate.Wait(ctx, dependency); err != nil {
		return err
	}

	g.mu.Lock()
	g.started = append(g.started, group)
	g.mu.Unlock()

	if d := g.delay[group]; d > 0 {
		time.Sleep(d)
	}
	g.gate.Release(rangekey.DependencySentinel(group, location))
	return nil
}

// failFirstGatedRunner fails the first group outright (never releasing its
// sentinel) and waits on the gate for the rest.
type failFirstGatedRunner struct {
	gate *clusterctx.DependencyGate
}

func (f *failFirstGatedRunner) Run(ctx context.Context, location string, group rangekey.Group, ranges []rangekey.Ident, dependency string) error {
	if dependency == "" {
		return assert.AnError
	}
	return f.gate.Wait(ctx, dependency)
}

func rangeFor(n int) rangekey.Ident {
	return rangekey.Ident{
		Table: rangekey.Table{ID: "t", Generation: 1},
		Start: rangekey.Row(string(rune('a' + n))),
		End:   rangekey.Row(string(rune('a' + n + 1))),
	}
}

func newTestOp(t *testing.T, entries []metalog.RangeEntry, runner RangesRunner) (*Operation, *clusterctx.Context) {
	t.Helper()
	cctx := clusterctx.NewContext()
	cctx.Servers.AddServer(&clusterctx.Server{Location: "rs-1", Connected: false})

	op := New("rs-1", nil, cctx, &fakeRSML{entries: entries}, runner, nil, nil, config.Config{
		FailoverGracePeriod: 0,
	})
	return op, cctx
}

func TestRunClassifiesAndSpawnsEachGroup(t *testing.T) {
	entries := []metalog.RangeEntry{
		{Range: rangeFor(1), Group: rangekey.GroupRoot},
		{Range: rangeFor(2), Group: rangekey.GroupUser},
	}
	runner := &fakeRunner{}
	op, _ := newTestOp(t, entries, runner)

	// runInitial acquires a lock via op.locker, which is nil here -- bypass
	// it by driving the phases directly, the way a resumed operation would.
	require.NoError(t, op.classifyOnly(context.Background()))
	require.NoError(t, op.runIssueRequests(context.Background()))

	assert.ElementsMatch(t, []rangekey.Group{rangekey.GroupRoot, rangekey.GroupUser}, runner.ran)
	assert.Equal(t, "", runner.deps[rangekey.GroupRoot])

	// USER's dependency skips over the empty METADATA/SYSTEM groups straight
	// to ROOT, the nearest group that will actually run and release.
	assert.Equal(t, rangekey.DependencySentinel(rangekey.GroupRoot, "rs-1"), runner.deps[rangekey.GroupUser])
}

func TestRunIssueRequestsOrdersGroupsAcrossEmptyOnes(t *testing.T) {
	// One ROOT range and one USER range, METADATA and SYSTEM empty. USER
	// must not start until ROOT has finished, even though the groups between
	// them contribute nothing to the chain.
	entries := []metalog.RangeEntry{
		{Range: rangeFor(1), Group: rangekey.GroupRoot},
		{Range: rangeFor(2), Group: rangekey.GroupUser},
	}
	runner := &gatedRunner{
		gate:  clusterctx.NewDependencyGate(),
		delay: map[rangekey.Group]time.Duration{rangekey.GroupRoot: 30 * time.Millisecond},
	}
	op, _ := newTestOp(t, entries, runner)

	require.NoError(t, op.classifyOnly(context.Background()))
	require.NoError(t, op.runIssueRequests(context.Background()))

	require.Equal(t, []rangekey.Group{rangekey.GroupRoot, rangekey.GroupUser}, runner.started)
}

func TestRunIssueRequestsFailedGroupCancelsWaiters(t *testing.T) {
	// ROOT fails, so its sentinel is never released; USER's wait must be
	// cancelled rather than blocking runIssueRequests forever.
	entries := []metalog.RangeEntry{
		{Range: rangeFor(1), Group: rangekey.GroupRoot},
		{Range: rangeFor(2), Group: rangekey.GroupUser},
	}
	gate := clusterctx.NewDependencyGate()
	runner := &failFirstGatedRunner{gate: gate}
	op, _ := newTestOp(t, entries, runner)

	require.NoError(t, op.classifyOnly(context.Background()))

	done := make(chan error, 1)
	go func() { done <- op.runIssueRequests(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runIssueRequests did not return after a group failure")
	}
}

func TestRunIssueRequestsPropagatesGroupFailure(t *testing.T) {
	entries := []metalog.RangeEntry{
		{Range: rangeFor(1), Group: rangekey.GroupRoot},
	}
	runner := &fakeRunner{fail: map[rangekey.Group]bool{rangekey.GroupRoot: true}}
	op, _ := newTestOp(t, entries, runner)

	require.NoError(t, op.classifyOnly(context.Background()))
	err := op.runIssueRequests(context.Background())
	assert.Error(t, err)
}

func TestRunIssueRequestsSkipsPhantomEntries(t *testing.T) {
	entries := []metalog.RangeEntry{
		{Range: rangeFor(1), Group: rangekey.GroupRoot, Phantom: true},
	}
	runner := &fakeRunner{}
	op, _ := newTestOp(t, entries, runner)

	require.NoError(t, op.classifyOnly(context.Background()))
	require.NoError(t, op.runIssueRequests(context.Background()))
	assert.Empty(t, runner.ran)
}

func TestWaitForReconnectReturnsTrueWhenServerReconnects(t *testing.T) {
	op, cctx := newTestOp(t, nil, &fakeRunner{})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cctx.Servers.ConnectServer("rs-1", "host", "local", "public")
	}()

	reconnected := op.waitForReconnect(context.Background(), 500*time.Millisecond)
	assert.True(t, reconnected)
}

func TestWaitForReconnectTimesOut(t *testing.T) {
	op, _ := newTestOp(t, nil, &fakeRunner{})
	reconnected := op.waitForReconnect(context.Background(), 30*time.Millisecond)
	assert.False(t, reconnected)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "INITIAL", StateInitial.String())
	assert.Equal(t, "ISSUE_REQUESTS", StateIssueRequests.String())
	assert.Equal(t, "FINALIZE", StateFinalize.String())
	assert.Equal(t, "COMPLETE_OK", StateCompleteOK.String())
	assert.Equal(t, "FATAL", StateFatal.String())
}
