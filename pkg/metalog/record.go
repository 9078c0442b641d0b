// Package metalog implements the two durable append-only meta-logs of the
// recovery subsystem: the master meta-log (MML), which records every Recover-Server
// and Recover-Ranges state transition, and the per-range-server meta-log
// (RSML), which records a server's live ranges and their states. Both are
// the same underlying format -- a named, ordered stream of length-framed,
// checksummed, type-tagged records -- so this package implements them with
// one type, Log, opened under different names.
//
// Entries are reopened on restart: replaying a log in order reconstructs the
// live entity set, and the owning operation resumes each entity from its
// last recorded state.
package metalog

import (
	"fmt"

	"github.com/tessellate-db/tessellate/pkg/wire"
)

// EntityType distinguishes the two kinds of state machine that append to a
// meta-log: the per-failed-server Recover-Server operation and the
// per-group Recover-Ranges operation.
type EntityType int32

const (
	EntityUnknown EntityType = iota
	EntityRecoverServer
	EntityRecoverRanges
	// EntityLiveRange tags an RSML row: one range a server believes it
	// owns. It never appears in the MML.
	EntityLiveRange
)

func (t EntityType) String() string {
	switch t {
	case EntityRecoverServer:
		return "RECOVER_SERVER"
	case EntityRecoverRanges:
		return "RECOVER_RANGES"
	case EntityLiveRange:
		return "LIVE_RANGE"
	default:
		return "UNKNOWN"
	}
}

// Record is one meta-log entry: `(vstr location, i32 type, i32 attempt,
// plan-encoded)`. State is the owning state machine's current
// state, encoded as a plain i32 so this package never needs to import the
// recovery packages (which in turn depend on metalog for durability).
// Payload carries the state machine's plan-encoded body -- a recovery plan
// for Recover-Ranges, or nothing for Recover-Server states that don't
// carry one.
type Record struct {
	Location string
	Type     EntityType
	Attempt  int32
	State    int32
	Payload  []byte
}

// Encode serializes the record body. The caller frames it (see wire.EncodeFrame)
// before appending it to the log, which is what supplies the checksum and
// length prefix every meta-log entry carries.
func (r Record) Encode() []byte {
	w := wire.NewWriter()
	w.PutVstr(r.Location)
	w.PutVi32(int32(r.Type))
	w.PutVi32(r.Attempt)
	w.PutVi32(r.State)
	w.PutBytes(r.Payload)
	return w.Bytes()
}

// DecodeRecord parses the output of Record.Encode.
func DecodeRecord(buf []byte) (Record, error) {
	r := wire.NewReader(buf)
	rec := Record{
		Location: r.Vstr(),
		Type:     EntityType(r.Vi32()),
		Attempt:  r.Vi32(),
		State:    r.Vi32(),
		Payload:  r.Bytes(),
	}
	if r.Err() != nil {
		return Record{}, fmt.Errorf("metalog: decode record: %w", r.Err())
	}
	if len(rec.Payload) == 0 {
		rec.Payload = nil
	}
	return rec, nil
}
