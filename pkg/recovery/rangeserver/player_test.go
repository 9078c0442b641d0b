package rangeserver

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/tessellate-db/tessellate/pkg/blockcodec"
	"github.com/tessellate-db/tessellate/pkg/config"
	"github.com/tessellate-db/tessellate/pkg/fragment"
	"github.com/tessellate-db/tessellate/pkg/plan"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/rsrpc"
)

// capturingDialer hands out one fakeReceiver per location, capturing the
// phantom-update calls a player sends it.
type capturingDialer struct {
	mu        sync.Mutex
	receivers map[string]*fakeReceiverClient
}

func newCapturingDialer() *capturingDialer {
	return &capturingDialer{receivers: map[string]*fakeReceiverClient{}}
}

func (d *capturingDialer) Dial(location string) (rsrpc.RecoveryClient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.receivers[location] == nil {
		d.receivers[location] = &fakeReceiverClient{}
	}
	return d.receivers[location], nil
}

type fakeReceiverClient struct {
	rsrpc.RecoveryClient

	mu      sync.Mutex
	updates []*rsrpc.PhantomUpdateRequest
}

func (c *fakeReceiverClient) PhantomUpdate(ctx context.Context, in *rsrpc.PhantomUpdateRequest, opts ...grpc.CallOption) (*rsrpc.PhantomUpdateResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, in)
	return &rsrpc.PhantomUpdateResponse{Range: in.Range, Fragment: in.Fragment}, nil
}

func (c *fakeReceiverClient) finalMessagesFor(fid rangekey.FragmentID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, u := range c.updates {
		if u.Fragment == fid && !u.More {
			n++
		}
	}
	return n
}

func twoRanges() (rangekey.Ident, rangekey.Ident) {
	table := rangekey.Table{ID: "t", Generation: 1}
	return rangekey.Ident{Table: table, Start: "a", End: "m"},
		rangekey.Ident{Table: table, Start: "m", End: "z"}
}

// TestPlayFragmentNotifiesEveryPlanRangeOnCompletion guards against a
// fragment that only ever routes rows into one of two assigned ranges --
// the other range must still receive a final more=false phantom-update for
// that fragment, or its outstanding-fragment counter would never reach
// zero.
func TestPlayFragmentNotifiesEveryPlanRangeOnCompletion(t *testing.T) {
	rangeA, rangeB := twoRanges()

	rplan := plan.NewReceiverPlan()
	rplan.Insert("dest-a", rangeA)
	rplan.Insert("dest-b", rangeB)

	store := fragment.NewMemStore()
	store.Put("failed-server", rangekey.GroupUser, 1, []fragment.Record{
		{Table: rangeA.Table, Row: "c", Revision: 1, Value: []byte("v")},
	})

	dialer := newCapturingDialer()
	svc := &Service{
		Location: "player-1",
		Dial:     dialer,
		Store:    store,
		Codec:    blockcodec.None,
		Cfg:      config.Default(),
	}

	p := newPlayer(svc, rplan)
	err := p.playFragment(context.Background(), "failed-server", rangekey.GroupUser, 1)
	require.NoError(t, err)

	destA, _ := dialer.Dial("dest-a")
	destB, _ := dialer.Dial("dest-b")

	assert.Equal(t, 1, destA.(*fakeReceiverClient).finalMessagesFor(1),
		"range that received rows must still get exactly one final message")
	assert.Equal(t, 1, destB.(*fakeReceiverClient).finalMessagesFor(1),
		"range untouched by this fragment must still get its final message")
}

// A row whose (table, row) misses the receiver plan is silently dropped.
func TestPlayFragmentDropsRowsOutsidePlan(t *testing.T) {
	rangeA, _ := twoRanges()
	otherTable := rangekey.Table{ID: "other", Generation: 1}

	rplan := plan.NewReceiverPlan()
	rplan.Insert("dest-a", rangeA)

	store := fragment.NewMemStore()
	store.Put("failed-server", rangekey.GroupUser, 7, []fragment.Record{
		{Table: otherTable, Row: "x", Revision: 1, Value: []byte("v")},
	})

	dialer := newCapturingDialer()
	svc := &Service{
		Location: "player-1",
		Dial:     dialer,
		Store:    store,
		Codec:    blockcodec.None,
		Cfg:      config.Default(),
	}

	p := newPlayer(svc, rplan)
	err := p.playFragment(context.Background(), "failed-server", rangekey.GroupUser, 7)
	require.NoError(t, err)

	destA, _ := dialer.Dial("dest-a")
	updates := destA.(*fakeReceiverClient).updates
	require.Len(t, updates, 1, "dest-a should still get its final message even though no rows routed to it")
	assert.False(t, updates[0].More)

	block, err := fragment.DecodeBlock(updates[0].Block)
	require.NoError(t, err)
	assert.Empty(t, block)
}
