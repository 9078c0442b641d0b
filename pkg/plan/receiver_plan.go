// Package plan implements the Recovery Plan: two
// multi-indexed containers, queryable by either their primary key or by
// location, that together describe one recovery attempt -- which
// range-server is playing which fragment, and which range-server will
// receive which range.
//
// The two-way lookup is a primary map plus an insertion-ordered secondary
// index, not a generic container -- plan sizes (ranges/fragments per
// recovery attempt) never justify anything fancier than a map plus a
// slice.
package plan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// RangeState is the receiver plan's notion of how far a range assignment
// has progressed. It's informational only -- advancing it doesn't gate
// anything; the Recover-Ranges state machine is the source of truth
// for phase transitions.
type RangeState int

const (
	RangeAssigned RangeState = iota
	RangeReceiving
	RangePrepared
	RangeCommitted
)

func (s RangeState) String() string {
	switch s {
	case RangeAssigned:
		return "ASSIGNED"
	case RangeReceiving:
		return "RECEIVING"
	case RangePrepared:
		return "PREPARED"
	case RangeCommitted:
		return "COMMITTED"
	default:
		return "UNKNOWN"
	}
}

type receiverEntry struct {
	location string
	rang     rangekey.Ident
	state    RangeState
}

// ReceiverPlan maps ranges to the destination that will receive them.
type ReceiverPlan struct {
	mu sync.Mutex

	byRange    map[rangekey.Ident]*receiverEntry
	locOrder   []string                    // first-seen order of distinct locations
	seenLoc    map[string]bool             // membership check for locOrder
	byLocation map[string][]rangekey.Ident // insertion order per location
}

func NewReceiverPlan() *ReceiverPlan {
	return &ReceiverPlan{
		byRange:    map[rangekey.Ident]*receiverEntry{},
		seenLoc:    map[string]bool{},
		byLocation: map[string][]rangekey.Ident{},
	}
}

// Insert assigns rang to location, replacing any existing assignment for
// that range. The initial state is RangeAssigned.
func (p *ReceiverPlan) Insert(location string, rang rangekey.Ident) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertLocked(location, rang, RangeAssigned)
}

// SetState updates the state of an existing assignment. It is a no-op if
// the range isn't in the plan.
func (p *ReceiverPlan) SetState(rang rangekey.Ident, state RangeState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.byRange[rang]; ok {
		e.state = state
	}
}

func (p *ReceiverPlan) insertLocked(location string, rang rangekey.Ident, state RangeState) {
	if old, ok := p.byRange[rang]; ok {
		p.removeFromLocationIndex(old.location, rang)
	}

	p.byRange[rang] = &receiverEntry{location: location, rang: rang, state: state}

	if !p.seenLoc[location] {
		p.seenLoc[location] = true
		p.locOrder = append(p.locOrder, location)
	}
	p.byLocation[location] = append(p.byLocation[location], rang)
}

func (p *ReceiverPlan) removeFromLocationIndex(location string, rang rangekey.Ident) {
	keys := p.byLocation[location]
	for i, k := range keys {
		if k == rang {
			p.byLocation[location] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
}

// Erase removes a range's assignment. Idempotent.
func (p *ReceiverPlan) Erase(rang rangekey.Ident) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byRange[rang]
	if !ok {
		return
	}
	p.removeFromLocationIndex(e.location, rang)
	delete(p.byRange, rang)
}

// GetLocations returns every distinct destination in the plan.
func (p *ReceiverPlan) GetLocations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.locOrder))
	for _, l := range p.locOrder {
		if len(p.byLocation[l]) > 0 {
			out = append(out, l)
		}
	}
	return out
}

// GetKeysForLocation enumerates the ranges assigned to location.
func (p *ReceiverPlan) GetKeysForLocation(location string) []rangekey.Ident {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := p.byLocation[location]
	out := make([]rangekey.Ident, len(keys))
	copy(out, keys)
	return out
}

// GetKeys enumerates every range in the plan, in ByLocation iteration
// order -- the order Encode uses.
func (p *ReceiverPlan) GetKeys() []rangekey.Ident {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keysLocked()
}

func (p *ReceiverPlan) keysLocked() []rangekey.Ident {
	out := make([]rangekey.Ident, 0, len(p.byRange))
	for _, l := range p.locOrder {
		out = append(out, p.byLocation[l]...)
	}
	return out
}

// Location returns the destination assigned to rang, or "" if absent.
func (p *ReceiverPlan) Location(rang rangekey.Ident) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byRange[rang]
	if !ok {
		return "", false
	}
	return e.location, true
}

// State returns the recorded state of rang's assignment.
func (p *ReceiverPlan) State(rang rangekey.Ident) (RangeState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byRange[rang]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// GetLocation answers: given (table, row), which destination owns it? It
// finds the entry with the smallest range >= (table, PointQuery(row)) and
// verifies that row actually falls within it.
func (p *ReceiverPlan) GetLocation(table rangekey.Table, row rangekey.Row) (string, bool) {
	loc, _, ok := p.Lookup(table, row)
	return loc, ok
}

// Lookup is GetLocation plus the matched range itself -- the player side of
// the replay protocol needs the range identity, not
// just the destination, to address its phantom-update calls.
func (p *ReceiverPlan) Lookup(table rangekey.Table, row rangekey.Row) (location string, rng rangekey.Ident, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := p.keysLocked()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	point := rangekey.PointQuery(table, row)
	idx := sort.Search(len(keys), func(i int) bool {
		return !keys[i].Less(point)
	})

	// The point's empty start sorts before every bounded start, so idx lands
	// on the table's first range; scan forward until a range contains the
	// row. Once a candidate's start is already >= row, no later range can
	// contain it either (starts are ascending).
	for i := idx; i < len(keys); i++ {
		cand := keys[i]
		if !cand.Table.Equal(table) {
			break
		}
		if cand.Start != "" && row <= cand.Start {
			break
		}
		if cand.Contains(row) {
			return p.byRange[cand].location, cand, true
		}
	}
	return "", rangekey.Ident{}, false
}

// Len returns the number of assignments in the plan.
func (p *ReceiverPlan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byRange)
}

func (p *ReceiverPlan) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("ReceiverPlan{%d ranges, %d locations}", len(p.byRange), len(p.locOrder))
}
