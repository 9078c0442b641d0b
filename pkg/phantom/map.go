package phantom

import (
	"sync"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// RangeMap is the thread-safe map from qualified range spec to phantom
// range that each destination maintains for the duration of a recovery
// attempt.
type RangeMap struct {
	mu    sync.Mutex
	byKey map[rangekey.Ident]*PhantomRange
}

func NewRangeMap() *RangeMap {
	return &RangeMap{byKey: map[rangekey.Ident]*PhantomRange{}}
}

func (m *RangeMap) Insert(pr *PhantomRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byKey[pr.Range] = pr
}

func (m *RangeMap) Get(rng rangekey.Ident) (*PhantomRange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pr, ok := m.byKey[rng]
	return pr, ok
}

// GetOrCreate returns the existing phantom range for rng, or creates one
// expecting the given fragment set if none exists yet.
func (m *RangeMap) GetOrCreate(rng rangekey.Ident, expected []rangekey.FragmentID) *PhantomRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pr, ok := m.byKey[rng]; ok {
		return pr
	}
	pr := NewPhantomRange(rng, expected)
	m.byKey[rng] = pr
	return pr
}

func (m *RangeMap) Remove(rng rangekey.Ident) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byKey, rng)
}

func (m *RangeMap) GetAll() []*PhantomRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*PhantomRange, 0, len(m.byKey))
	for _, pr := range m.byKey {
		out = append(out, pr)
	}
	return out
}

func (m *RangeMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byKey)
}
