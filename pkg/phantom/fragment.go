// Package phantom implements the Phantom-Range Engine: the
// receiving side of a recovery attempt, which buffers replayed fragment
// data per range until every expected fragment has arrived, then flips the
// range live.
package phantom

import (
	"fmt"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// FragmentData holds the events received for one fragment of one phantom
// range: a list of raw event payloads (each a phantom-update's key/value
// block) and whether the fragment has been fully delivered. Blocks keep
// their boundaries -- each one is independently compressed, so they can
// only be decoded whole.
type FragmentData struct {
	Events [][]byte // raw block payloads, in arrival order
	done   bool
}

// Done reports whether this fragment has seen its final phantom-update
// (more=false).
func (f *FragmentData) Done() bool { return f.done }

// clear frees a completed fragment's buffered events. Calling it on an
// incomplete fragment is a programmer error -- the owning phantom range is
// supposed to have already verified completeness.
func (f *FragmentData) clear() {
	if !f.done {
		panic("phantom: clear() on incomplete fragment")
	}
	f.Events = nil
}

// State is a phantom range's position in its lifecycle.
type State int

const (
	StateInit State = iota
	StateFinishedReplay
	StateRangeCreated
	StateRangePrepared
	StateLive
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateFinishedReplay:
		return "FINISHED_REPLAY"
	case StateRangeCreated:
		return "RANGE_CREATED"
	case StateRangePrepared:
		return "RANGE_PREPARED"
	case StateLive:
		return "LIVE"
	default:
		return "UNKNOWN"
	}
}

// errUnexpectedFragment is returned when an operation is attempted against
// a fragment id that was never part of the range's expected set.
func errUnexpectedFragment(rng rangekey.Ident, fragment rangekey.FragmentID) error {
	return fmt.Errorf("phantom: fragment %d not expected for range %s", fragment, rng)
}
