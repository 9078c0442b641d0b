package clusterctx

import (
	"fmt"
	"sync"
	"time"
)

// OpID identifies one in-flight recovery operation's wait on a batch of RPC
// responses.
type OpID int64

// ErrTimeout is the error recorded against every item still outstanding
// when a tracker's deadline elapses.
var ErrTimeout = fmt.Errorf("clusterctx: tracker deadline exceeded")

// ReplayTracker aggregates per-fragment replay-complete notifications for
// one replay-fragments RPC fan-out: an outstanding count, the attempt
// number the tracker was installed for, and a fragment->error map. It's a
// bounded-wait object -- Wait blocks until outstanding reaches zero or the
// deadline elapses, at which point remaining fragments are force-completed
// with ErrTimeout.
type ReplayTracker struct {
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	attempt int32

	outstanding int
	errs        map[int32]error
}

// NewReplayTracker installs a tracker for `total` fragments at the given
// attempt number.
func NewReplayTracker(attempt int32, total int) *ReplayTracker {
	return &ReplayTracker{
		done:        make(chan struct{}),
		attempt:     attempt,
		outstanding: total,
		errs:        make(map[int32]error, total),
	}
}

// Attempt returns the attempt number this tracker was installed for, used
// by replay_complete to discard notifications from a stale attempt.
func (t *ReplayTracker) Attempt() int32 {
	return t.attempt
}

// Complete records the result for one fragment. If this was the last
// outstanding fragment, the tracker is closed and any Wait returns.
func (t *ReplayTracker) Complete(fragment int32, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if _, seen := t.errs[fragment]; seen {
		return
	}
	t.errs[fragment] = err
	t.outstanding--
	if t.outstanding <= 0 {
		t.closeLocked()
	}
}

func (t *ReplayTracker) closeLocked() {
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

// Wait blocks until every fragment has completed or deadline elapses,
// force-completing any stragglers with ErrTimeout. Returns the full
// fragment->error map.
func (t *ReplayTracker) Wait(deadline time.Duration) map[int32]error {
	select {
	case <-t.done:
	case <-time.After(deadline):
		t.mu.Lock()
		t.closeLocked()
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int32]error, len(t.errs))
	for k, v := range t.errs {
		out[k] = v
	}
	return out
}

// RangeResult pairs a range with the error (nil on success) its destination
// reported back for it.
type RangeResult struct {
	Key rangeKey
	Err error
}

// rangeKey is kept unexported and opaque here so this package doesn't need
// to import pkg/rangekey just to key a map -- callers pass whatever
// comparable value they use to identify a range (typically rangekey.Ident).
type rangeKey = interface{}

// RangeTracker aggregates per-range completion for a prepare/commit fan-out:
// an attempt number, a set of outstanding ranges, and the accumulated
// (range, error) results. Bounded-wait, same shape as ReplayTracker.
type RangeTracker struct {
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	attempt int32

	outstanding map[rangeKey]bool
	results     []RangeResult
}

func NewRangeTracker(attempt int32, keys []rangeKey) *RangeTracker {
	outstanding := make(map[rangeKey]bool, len(keys))
	for _, k := range keys {
		outstanding[k] = true
	}
	return &RangeTracker{
		done:        make(chan struct{}),
		attempt:     attempt,
		outstanding: outstanding,
		results:     make([]RangeResult, 0, len(keys)),
	}
}

func (t *RangeTracker) Attempt() int32 {
	return t.attempt
}

// Complete records the result for one range. A range not in the original
// outstanding set (a duplicate or unexpected notification) is ignored.
func (t *RangeTracker) Complete(key rangeKey, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.outstanding[key] {
		return
	}
	delete(t.outstanding, key)
	t.results = append(t.results, RangeResult{Key: key, Err: err})
	if len(t.outstanding) == 0 {
		t.closeLocked()
	}
}

func (t *RangeTracker) closeLocked() {
	if !t.closed {
		t.closed = true
		close(t.done)
	}
}

// Wait blocks until every range has completed or deadline elapses,
// force-completing stragglers with ErrTimeout.
func (t *RangeTracker) Wait(deadline time.Duration) []RangeResult {
	select {
	case <-t.done:
	case <-time.After(deadline):
		t.mu.Lock()
		for k := range t.outstanding {
			t.results = append(t.results, RangeResult{Key: k, Err: ErrTimeout})
		}
		t.outstanding = map[rangeKey]bool{}
		t.closeLocked()
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RangeResult, len(t.results))
	copy(out, t.results)
	return out
}

// trackers is the three-parallel-map tracker registry:
// replay, prepare and commit trackers installed and erased by operation id.
// Install rejects a nil tracker and overwrites any existing entry for the
// same id; Erase is idempotent.
type trackers struct {
	mu      sync.Mutex
	replay  map[OpID]*ReplayTracker
	prepare map[OpID]*RangeTracker
	commit  map[OpID]*RangeTracker
}

func newTrackers() *trackers {
	return &trackers{
		replay:  map[OpID]*ReplayTracker{},
		prepare: map[OpID]*RangeTracker{},
		commit:  map[OpID]*RangeTracker{},
	}
}

func (t *trackers) installReplay(id OpID, tr *ReplayTracker) {
	if tr == nil {
		panic("clusterctx: installReplay with nil tracker")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replay[id] = tr
}

func (t *trackers) eraseReplay(id OpID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.replay, id)
}

func (t *trackers) installPrepare(id OpID, tr *RangeTracker) {
	if tr == nil {
		panic("clusterctx: installPrepare with nil tracker")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prepare[id] = tr
}

func (t *trackers) erasePrepare(id OpID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.prepare, id)
}

func (t *trackers) installCommit(id OpID, tr *RangeTracker) {
	if tr == nil {
		panic("clusterctx: installCommit with nil tracker")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commit[id] = tr
}

func (t *trackers) eraseCommit(id OpID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.commit, id)
}
