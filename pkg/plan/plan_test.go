package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

func tbl(id string) rangekey.Table { return rangekey.Table{ID: rangekey.TableID(id), Generation: 1} }

func rng(id, start, end string) rangekey.Ident {
	return rangekey.Ident{Table: tbl(id), Start: rangekey.Row(start), End: rangekey.Row(end)}
}

func TestReceiverPlanInsertAndErase(t *testing.T) {
	p := NewReceiverPlan()
	r1 := rng("t1", "", "m")
	r2 := rng("t1", "m", "")

	p.Insert("rs-a", r1)
	p.Insert("rs-b", r2)
	assert.Equal(t, 2, p.Len())

	loc, ok := p.Location(r1)
	require.True(t, ok)
	assert.Equal(t, "rs-a", loc)

	p.Erase(r1)
	assert.Equal(t, 1, p.Len())
	_, ok = p.Location(r1)
	assert.False(t, ok)

	// Erase is idempotent.
	p.Erase(r1)
	assert.Equal(t, 1, p.Len())
}

func TestReceiverPlanInsertReplaceIsIdempotent(t *testing.T) {
	// plan.insert(L, K); plan.insert(L', K) is equivalent to plan.insert(L', K).
	r := rng("t1", "", "")

	a := NewReceiverPlan()
	a.Insert("rs-a", r)
	a.Insert("rs-b", r)

	b := NewReceiverPlan()
	b.Insert("rs-b", r)

	assert.Equal(t, a.Encode(), b.Encode())
	assert.Equal(t, []string{"rs-b"}, a.GetLocations())
}

func TestReceiverPlanGetLocation(t *testing.T) {
	p := NewReceiverPlan()
	p.Insert("rs-a", rng("t1", "", "m"))
	p.Insert("rs-b", rng("t1", "m", ""))

	loc, ok := p.GetLocation(tbl("t1"), rangekey.Row("apple"))
	require.True(t, ok)
	assert.Equal(t, "rs-a", loc)

	loc, ok = p.GetLocation(tbl("t1"), rangekey.Row("zebra"))
	require.True(t, ok)
	assert.Equal(t, "rs-b", loc)

	// End is inclusive, so the boundary row "m" belongs to the first range.
	loc, ok = p.GetLocation(tbl("t1"), rangekey.Row("m"))
	require.True(t, ok)
	assert.Equal(t, "rs-a", loc)

	_, ok = p.GetLocation(tbl("other"), rangekey.Row("apple"))
	assert.False(t, ok)
}

func TestReceiverPlanGetLocationBoundedStarts(t *testing.T) {
	// All ranges have non-empty starts, so the point query's empty start
	// sorts before every one of them; the lookup must scan past the ranges
	// that don't contain the row rather than give up at the first.
	p := NewReceiverPlan()
	p.Insert("rs-a", rng("t1", "a", "m"))
	p.Insert("rs-b", rng("t1", "m", "z"))
	p.Insert("rs-c", rng("t2", "a", "z"))

	loc, ok := p.GetLocation(tbl("t1"), rangekey.Row("p"))
	require.True(t, ok)
	assert.Equal(t, "rs-b", loc)

	loc, ok = p.GetLocation(tbl("t1"), rangekey.Row("b"))
	require.True(t, ok)
	assert.Equal(t, "rs-a", loc)

	// Start is exclusive: row "a" precedes the first range.
	_, ok = p.GetLocation(tbl("t1"), rangekey.Row("a"))
	assert.False(t, ok)

	// Past the last range of the table.
	_, ok = p.GetLocation(tbl("t1"), rangekey.Row("zz"))
	assert.False(t, ok)

	// A matching row in a different table must not bleed across tables.
	loc, ok = p.GetLocation(tbl("t2"), rangekey.Row("p"))
	require.True(t, ok)
	assert.Equal(t, "rs-c", loc)
}

func TestReceiverPlanStateTransitions(t *testing.T) {
	p := NewReceiverPlan()
	r := rng("t1", "", "")
	p.Insert("rs-a", r)

	state, ok := p.State(r)
	require.True(t, ok)
	assert.Equal(t, RangeAssigned, state)

	p.SetState(r, RangePrepared)
	state, _ = p.State(r)
	assert.Equal(t, RangePrepared, state)

	// No-op on an absent range.
	p.SetState(rng("t2", "", ""), RangeCommitted)
}

func TestReceiverPlanEncodeDecodeRoundTrip(t *testing.T) {
	p := NewReceiverPlan()
	p.Insert("rs-a", rng("t1", "", "m"))
	p.Insert("rs-b", rng("t1", "m", ""))
	p.Insert("rs-a", rng("t2", "", ""))
	p.SetState(rng("t1", "", "m"), RangeCommitted)

	encoded := p.Encode()

	decoded, err := DecodeReceiverPlan(encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, decoded.Encode())
	assert.Equal(t, p.GetKeys(), decoded.GetKeys())
	assert.Equal(t, p.GetLocations(), decoded.GetLocations())

	state, ok := decoded.State(rng("t1", "", "m"))
	require.True(t, ok)
	assert.Equal(t, RangeCommitted, state)
}

func TestDecodeReceiverPlanTruncated(t *testing.T) {
	// n=1 (zigzag-encoded as a single byte) but no entry bytes follow.
	_, err := DecodeReceiverPlan([]byte{2})
	assert.Error(t, err)
}

func TestReplayPlanInsertAndErase(t *testing.T) {
	p := NewReplayPlan()
	p.Insert("rs-a", rangekey.FragmentID(1))
	p.Insert("rs-b", rangekey.FragmentID(2))
	assert.Equal(t, 2, p.Len())

	loc, ok := p.Location(rangekey.FragmentID(1))
	require.True(t, ok)
	assert.Equal(t, "rs-a", loc)

	p.Erase(rangekey.FragmentID(1))
	assert.Equal(t, 1, p.Len())
	p.Erase(rangekey.FragmentID(1))
	assert.Equal(t, 1, p.Len())
}

func TestReplayPlanInsertReplaceIsIdempotent(t *testing.T) {
	a := NewReplayPlan()
	a.Insert("rs-a", rangekey.FragmentID(7))
	a.Insert("rs-b", rangekey.FragmentID(7))

	b := NewReplayPlan()
	b.Insert("rs-b", rangekey.FragmentID(7))

	assert.Equal(t, a.Encode(), b.Encode())
}

func TestReplayPlanEncodeDecodeRoundTrip(t *testing.T) {
	p := NewReplayPlan()
	p.Insert("rs-a", rangekey.FragmentID(1))
	p.Insert("rs-b", rangekey.FragmentID(2))
	p.Insert("rs-a", rangekey.FragmentID(3))

	encoded := p.Encode()
	decoded, err := DecodeReplayPlan(encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, decoded.Encode())
	assert.Equal(t, p.GetKeys(), decoded.GetKeys())
	assert.Equal(t, p.GetLocations(), decoded.GetLocations())
}

func TestDecodeReplayPlanTruncated(t *testing.T) {
	// n=1 (zigzag-encoded as a single byte) but no entry bytes follow.
	_, err := DecodeReplayPlan([]byte{2})
	assert.Error(t, err)
}
