package plan

import (
	"fmt"
	"sync"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// ReplayPlan maps write-ahead log fragments to the player that will read
// and re-route them.
type ReplayPlan struct {
	mu sync.Mutex

	byFragment map[rangekey.FragmentID]string
	locOrder   []string
	seenLoc    map[string]bool
	byLocation map[string][]rangekey.FragmentID
}

func NewReplayPlan() *ReplayPlan {
	return &ReplayPlan{
		byFragment: map[rangekey.FragmentID]string{},
		seenLoc:    map[string]bool{},
		byLocation: map[string][]rangekey.FragmentID{},
	}
}

// Insert assigns fragment to location, replacing any existing assignment.
func (p *ReplayPlan) Insert(location string, fragment rangekey.FragmentID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.byFragment[fragment]; ok {
		p.removeFromLocationIndex(old, fragment)
	}

	p.byFragment[fragment] = location

	if !p.seenLoc[location] {
		p.seenLoc[location] = true
		p.locOrder = append(p.locOrder, location)
	}
	p.byLocation[location] = append(p.byLocation[location], fragment)
}

func (p *ReplayPlan) removeFromLocationIndex(location string, fragment rangekey.FragmentID) {
	keys := p.byLocation[location]
	for i, k := range keys {
		if k == fragment {
			p.byLocation[location] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
}

// Erase removes a fragment's assignment. Idempotent.
func (p *ReplayPlan) Erase(fragment rangekey.FragmentID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc, ok := p.byFragment[fragment]
	if !ok {
		return
	}
	p.removeFromLocationIndex(loc, fragment)
	delete(p.byFragment, fragment)
}

// GetLocations returns every distinct player in the plan.
func (p *ReplayPlan) GetLocations() []string {
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

// GetKeysForLocation enumerates the fragments assigned to location.
func (p *ReplayPlan) GetKeysForLocation(location string) []rangekey.FragmentID {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := p.byLocation[location]
	out := make([]rangekey.FragmentID, len(keys))
	copy(out, keys)
	return out
}

// GetKeys enumerates every fragment in the plan, in ByLocation iteration
// order -- the order Encode uses.
func (p *ReplayPlan) GetKeys() []rangekey.FragmentID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keysLocked()
}

func (p *ReplayPlan) keysLocked() []rangekey.FragmentID {
	out := make([]rangekey.FragmentID, 0, len(p.byFragment))
	for _, l := range p.locOrder {
		out = append(out, p.byLocation[l]...)
	}
	return out
}

// Location returns the player assigned to play fragment, or "" if absent.
func (p *ReplayPlan) Location(fragment rangekey.FragmentID) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	loc, ok := p.byFragment[fragment]
	return loc, ok
}

// Len returns the number of assignments in the plan.
func (p *ReplayPlan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byFragment)
}

func (p *ReplayPlan) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("ReplayPlan{%d fragments, %d locations}", len(p.byFragment), len(p.locOrder))
}
