// Package rangekey holds the data model shared by every recovery
// component: range identity, ordering, and the four priority groups
// ranges are binned into during recovery.
package rangekey

import (
	"fmt"
)

// TableID identifies a table. Tables are equal iff both ID and
// Generation match -- see Table.Equal.
type TableID string

// Row is a single row key. The zero value ("") is the sentinel used for an
// unbounded row: as a start it means "before everything", as an end it
// means "after everything".
type Row string

// Table pairs a table id with the generation it was at when the range was
// created. Two ranges with the same (table, start, end) but different
// generations never overlap -- the generation changed because the table's
// schema changed underneath it.
type Table struct {
	ID         TableID
	Generation int32
}

func (t Table) Equal(o Table) bool {
	return t.ID == o.ID && t.Generation == o.Generation
}

func (t Table) String() string {
	return fmt.Sprintf("%s/%d", t.ID, t.Generation)
}

// Ident names a range: (table_id, generation, start_row, end_row). start_row
// is exclusive, end_row is inclusive. Equality and ordering are
// lexicographic on this tuple.
//
// This is the Go analog of the wire QualifiedRangeSpec.
type Ident struct {
	Table Table
	Start Row // exclusive
	End   Row // inclusive
}

func (id Ident) String() string {
	s, e := string(id.Start), string(id.End)
	if s == "" {
		s = "-inf"
	}
	if e == "" {
		e = "+inf"
	}
	return fmt.Sprintf("%s(%s,%s]", id.Table, s, e)
}

// Less implements the tuple ordering: table id, then generation, then
// start row, then end row, all byte-lexicographic.
func (id Ident) Less(o Ident) bool {
	return id.Compare(o) < 0
}

// Compare returns -1, 0 or 1, ordering first by table (id then generation),
// then by start row, then by end row. The empty row sorts before every
// other row when used as a start, and after every other row when used as
// an end; callers that need single-direction comparisons should use
// Contains instead.
func (id Ident) Compare(o Ident) int {
	if id.Table.ID != o.Table.ID {
		return cmpStr(string(id.Table.ID), string(o.Table.ID))
	}
	if id.Table.Generation != o.Table.Generation {
		if id.Table.Generation < o.Table.Generation {
			return -1
		}
		return 1
	}
	if c := cmpRowAsStart(id.Start, o.Start); c != 0 {
		return c
	}
	return cmpRowAsEnd(id.End, o.End)
}

func cmpStr(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// cmpRowAsStart orders "" (unbounded) before every other row.
func cmpRowAsStart(a, b Row) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	return cmpStr(string(a), string(b))
}

// cmpRowAsEnd orders "" (unbounded) after every other row.
func cmpRowAsEnd(a, b Row) int {
	if a == b {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}
	return cmpStr(string(a), string(b))
}

// Contains reports whether row falls within (start, end], treating an
// empty Start as -infinity and an empty End as +infinity. This is how a
// single-point lookup ("", row) is evaluated against a stored range.
func (id Ident) Contains(row Row) bool {
	if id.Start != "" && row <= id.Start {
		return false
	}
	if id.End != "" && row > id.End {
		return false
	}
	return true
}

// PointQuery builds the single-point interval ("", row] used to look a row
// up in an index ordered by Ident. Its empty start sorts before every range
// of the same table that has a bounded start, so a search for it lands at
// or before the range containing row, and the caller scans forward from
// there with Contains.
func PointQuery(table Table, row Row) Ident {
	return Ident{Table: table, Start: "", End: row}
}
