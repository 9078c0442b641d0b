package phantom

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tessellate-db/tessellate/pkg/fragment"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/wire"
)

// LogDirFunc names the phantom commit-log directory for a range, given its
// table and end row. Production code passes the real filesystem clock and
// collision check (see populate_range_and_log); tests can stub it out.
type LogDirFunc func(logDir string, table rangekey.Table, endRow rangekey.Row) (string, error)

// PhantomRange is one destination's in-progress receipt of one range during
// a recovery attempt. It owns the per-fragment buffers, the outstanding
// fragment counter, and (once created) the live range's phantom commit-log
// directory.
type PhantomRange struct {
	mu sync.Mutex

	Range       rangekey.Ident
	state       State
	fragments   map[rangekey.FragmentID]*FragmentData
	outstanding int

	// cells is the range's in-memory cell store, built by
	// PopulateRangeAndLog: one winning record per row, chosen by highest
	// revision across every buffered fragment.
	cells map[rangekey.Row]fragment.Record

	logDir string
}

// NewPhantomRange creates a phantom range expecting exactly the fragments
// in expected.
func NewPhantomRange(rng rangekey.Ident, expected []rangekey.FragmentID) *PhantomRange {
	fragments := make(map[rangekey.FragmentID]*FragmentData, len(expected))
	for _, f := range expected {
		fragments[f] = &FragmentData{}
	}
	return &PhantomRange{
		Range:       rng,
		state:       StateInit,
		fragments:   fragments,
		outstanding: len(expected),
	}
}

func (p *PhantomRange) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Add appends one event's payload to fragment's buffer. The fragment must
// be in the range's expected set -- any other id is a fatal programmer
// error, since the coordinator is supposed to have only ever told this
// destination about fragments it assigned. If the fragment already
// completed, this is a late duplicate and is dropped (returns false). When
// more is false this was the fragment's final event: the fragment is
// marked done and the outstanding counter decrements; reaching zero moves
// the range to FINISHED_REPLAY.
func (p *PhantomRange) Add(fragment rangekey.FragmentID, more bool, event []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fd, ok := p.fragments[fragment]
	if !ok {
		panic(errUnexpectedFragment(p.Range, fragment))
	}
	if fd.done {
		return false
	}

	if len(event) > 0 {
		fd.Events = append(fd.Events, event)
	}
	if !more {
		fd.done = true
		p.outstanding--
		if p.outstanding == 0 {
			p.state = StateFinishedReplay
		}
	}
	return true
}

// CreateRange builds the live in-memory range object for this phantom,
// idempotently: calling it again after the range has already been created
// is a no-op (logged by the caller as a warning, not treated as an error
// here -- this package has no logger dependency of its own).
func (p *PhantomRange) CreateRange() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateInit || p.state == StateFinishedReplay {
		p.state = StateRangeCreated
	}
}

// DefaultLogDir is the production LogDirFunc: real filesystem existence
// checks, real sleeps, real clock. Production code passes this to
// PopulateRangeAndLog; tests pass defaultLogDir's own fakeable form.
func DefaultLogDir() LogDirFunc {
	return defaultLogDir(
		func(path string) bool { _, err := os.Stat(path); return err == nil },
		time.Sleep,
		func() int64 { return time.Now().Unix() },
	)
}

// defaultLogDir implements the naming and collision-retry rule:
// <log_dir>/<table_id>/<first-16-hex-of-md5(end_row)>-<unix_seconds>,
// retried with a fresh timestamp on collision.
func defaultLogDir(exists func(string) bool, sleep func(time.Duration), now func() int64) LogDirFunc {
	return func(logDir string, table rangekey.Table, endRow rangekey.Row) (string, error) {
		sum := md5.Sum([]byte(endRow))
		prefix := hex.EncodeToString(sum[:])[:16]

		for {
			candidate := fmt.Sprintf("%s/%s/%s-%d", logDir, table.ID, prefix, now())
			if !exists(candidate) {
				return candidate, nil
			}
			sleep(1200 * time.Millisecond)
		}
	}
}

// PopulateRangeAndLog allocates this range's phantom commit-log directory
// (via mkLogDir) and, under the range's lock, merges every buffered
// fragment's events into the range's in-memory cell store, resolving
// conflicting writes to the same row by highest revision. Fragments carry
// no order relative to each other; the revision on each record is the only
// tie-breaker. The returned payload is the raw blocks (prefixed by the
// wire-encoded table id) for appending to the phantom commit-log,
// fragment-ordered so replaying it is deterministic. Moves the range to
// RANGE_PREPARED. isEmpty reports whether any fragment actually
// contributed data.
func (p *PhantomRange) PopulateRangeAndLog(logDir string, mkLogDir LogDirFunc) (payload []byte, isEmpty bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dir, err := mkLogDir(logDir, p.Range.Table, p.Range.End)
	if err != nil {
		return nil, true, err
	}
	p.logDir = dir

	w := wire.NewWriter()
	w.PutVstr(string(p.Range.Table.ID))

	ids := make([]rangekey.FragmentID, 0, len(p.fragments))
	for id := range p.fragments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	isEmpty = true
	cells := map[rangekey.Row]fragment.Record{}
	for _, id := range ids {
		for _, block := range p.fragments[id].Events {
			recs, derr := fragment.DecodeBlock(block)
			if derr != nil {
				return nil, true, fmt.Errorf("phantom: decode block of fragment %d for range %s: %w", id, p.Range, derr)
			}
			if len(recs) == 0 {
				continue
			}
			isEmpty = false
			w.PutBytes(block)
			for _, rec := range recs {
				if cur, ok := cells[rec.Row]; !ok || rec.Revision > cur.Revision {
					cells[rec.Row] = rec
				}
			}
		}
	}
	p.cells = cells

	p.state = StateRangePrepared
	return w.Bytes(), isEmpty, nil
}

// Cells returns the merged cell store built by PopulateRangeAndLog: the
// winning record per row, in row order. Nil before the range is prepared.
func (p *PhantomRange) Cells() []fragment.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cells == nil {
		return nil
	}
	out := make([]fragment.Record, 0, len(p.cells))
	for _, rec := range p.cells {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

// LogDir returns the phantom commit-log directory allocated by
// PopulateRangeAndLog, or "" if it hasn't run yet.
func (p *PhantomRange) LogDir() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logDir
}

// Commit transitions a prepared range to LIVE.
func (p *PhantomRange) Commit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateRangePrepared {
		p.state = StateLive
	}
}

// ClearFragment frees a completed fragment's buffered events. Clearing an
// incomplete fragment is a fatal programmer error (see FragmentData.clear).
func (p *PhantomRange) ClearFragment(fragment rangekey.FragmentID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fd, ok := p.fragments[fragment]
	if !ok {
		panic(errUnexpectedFragment(p.Range, fragment))
	}
	fd.clear()
}
