package metalog

import (
	"fmt"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
	"github.com/tessellate-db/tessellate/pkg/wire"
)

// RangeEntry is one row of a range-server meta-log (RSML): one range the
// server believes it owns, which group it falls into, and whether the
// entry is itself a phantom range. The RSML
// is just a Log opened under the server's own name holding a stream of
// these, re-derived from scratch each time the server's live set changes.
// Recovery reads it wholesale rather than diffing.
type RangeEntry struct {
	Range   rangekey.Ident
	Group   rangekey.Group
	Phantom bool // true for an entry that is itself mid-recovery; recovery skips these
}

func (e RangeEntry) Encode() []byte {
	w := wire.NewWriter()
	w.PutRangeSpec(e.Range)
	w.PutVi32(int32(e.Group))
	w.PutBool(e.Phantom)
	return w.Bytes()
}

func DecodeRangeEntry(buf []byte) (RangeEntry, error) {
	r := wire.NewReader(buf)
	e := RangeEntry{
		Range:   r.RangeSpec(),
		Group:   rangekey.Group(r.Vi32()),
		Phantom: r.Bool(),
	}
	if r.Err() != nil {
		return RangeEntry{}, fmt.Errorf("metalog: decode range entry: %w", r.Err())
	}
	return e, nil
}
