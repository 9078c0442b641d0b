package fragment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// MemStore is an in-memory fragment.Store, the stand-in tests and the
// single-process demo in cmd/rangeserver use in place of a real commit-log
// reader (the on-disk format itself is outside this
// subsystem).
type MemStore struct {
	mu   sync.Mutex
	data map[string]map[rangekey.Group]map[rangekey.FragmentID][]Record
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]map[rangekey.Group]map[rangekey.FragmentID][]Record{}}
}

// Put installs the records for one fragment of one group of one failed
// server, overwriting any prior content.
func (s *MemStore) Put(location string, group rangekey.Group, id rangekey.FragmentID, recs []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[location] == nil {
		s.data[location] = map[rangekey.Group]map[rangekey.FragmentID][]Record{}
	}
	if s.data[location][group] == nil {
		s.data[location][group] = map[rangekey.FragmentID][]Record{}
	}
	s.data[location][group][id] = recs
}

func (s *MemStore) Fragments(ctx context.Context, location string, group rangekey.Group) ([]rangekey.FragmentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.data[location][group]
	out := make([]rangekey.FragmentID, 0, len(byID))
	for id := range byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemStore) Read(ctx context.Context, location string, group rangekey.Group, id rangekey.FragmentID) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.data[location][group][id]
	if !ok {
		return nil, fmt.Errorf("fragment: no such fragment %s/%s/%d", location, group, id)
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, nil
}
