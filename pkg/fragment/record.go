// Package fragment implements the (serialized_key, value) pairs a write-
// ahead log fragment is made of: each tagged by a 64-bit
// revision, the tie-breaker a receiver uses when two players deliver
// conflicting values for the same cell. A Batch is the unit a player reads
// off a fragment and a destination receives in a phantom-update block,
// optionally block-compressed per pkg/blockcodec.
package fragment

import (
	"context"
	"fmt"

	"github.com/tessellate-db/tessellate/pkg/blockcodec"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/wire"
)

// Record is one key/value pair read from a fragment: which table and row it
// belongs to (routing is by (table, row), not by range -- the fragment
// itself has no notion of range boundaries), the revision that
// tie-breaks conflicting writes to the same cell, and the opaque value.
type Record struct {
	Table    rangekey.Table
	Row      rangekey.Row
	Revision int64
	Value    []byte
}

// EncodeBatch serializes a sequence of records as a length-prefixed list,
// the payload a player buffers per receiver-per-range before flushing it in
// a phantom-update block.
func EncodeBatch(recs []Record) []byte {
	w := wire.NewWriter()
	w.PutVi32(int32(len(recs)))
	for _, rec := range recs {
		w.PutVstr(string(rec.Table.ID))
		w.PutVi32(rec.Table.Generation)
		w.PutVstr(string(rec.Row))
		w.PutVi64(rec.Revision)
		w.PutBytes(rec.Value)
	}
	return w.Bytes()
}

// DecodeBatch parses the output of EncodeBatch.
func DecodeBatch(buf []byte) ([]Record, error) {
	r := wire.NewReader(buf)
	n := r.Vi32()
	if n < 0 {
		return nil, fmt.Errorf("fragment: negative record count %d", n)
	}
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{
			Table: rangekey.Table{
				ID:         rangekey.TableID(r.Vstr()),
				Generation: r.Vi32(),
			},
			Row:      rangekey.Row(r.Vstr()),
			Revision: r.Vi64(),
			Value:    r.Bytes(),
		}
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("fragment: decode batch: %w", r.Err())
	}
	return out, nil
}

// Size estimates the on-wire size of one record, used by the player's flush
// thresholds: the per-range and aggregate byte
// counters both accumulate this rather than re-encoding on every record.
func (r Record) Size() int {
	return len(r.Table.ID) + len(r.Row) + len(r.Value) + 16
}

// EncodeBlock compresses an encoded batch with codec id and prepends its
// one-byte header, the form a phantom-update's Block field travels in.
func EncodeBlock(id blockcodec.ID, recs []Record) ([]byte, error) {
	return blockcodec.EncodeBlock(id, EncodeBatch(recs))
}

// DecodeBlock reverses EncodeBlock.
func DecodeBlock(block []byte) ([]Record, error) {
	raw, err := blockcodec.DecodeBlock(block)
	if err != nil {
		return nil, err
	}
	return DecodeBatch(raw)
}

// Store enumerates and reads a failed server's on-disk write-ahead log
// fragments. On-disk block format details are outside this
// subsystem, so Store is the narrow seam recovery needs: production code
// backs it with the real commit-log reader; tests substitute an in-memory
// fake.
type Store interface {
	// Fragments enumerates the fragment ids present in location's on-disk
	// log for group, used only when a fresh Recover-Ranges plan has no
	// fragment list supplied. This signature is exactly
	// recoverranges.FragmentSource, so a Store can be passed directly
	// wherever that interface is expected.
	Fragments(ctx context.Context, location string, group rangekey.Group) ([]rangekey.FragmentID, error)

	// Read returns every record in one fragment, in on-log order -- the
	// order a single player must preserve when delivering them.
	Read(ctx context.Context, location string, group rangekey.Group, id rangekey.FragmentID) ([]Record, error)
}
