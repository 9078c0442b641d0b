// Package wire implements the primitive encodings the recovery wire format
// is built from: vi32/vi64 variable-length integers, vstr length-prefixed strings, and the
// QualifiedRangeSpec tuple built from them. These are shared by the
// meta-log record format (pkg/metalog), the recovery plan's durable
// encoding (pkg/plan), and the recovery RPC payloads (pkg/rsrpc).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

// Writer accumulates an encoded payload. It never returns an error.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutVi32(v int32) {
	var tmp [binary.MaxVarintLen32]byte
	n := binary.PutVarint(tmp[:], int64(v))
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *Writer) PutVi64(v int64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	w.buf = append(w.buf, tmp[:n]...)
}

func (w *Writer) PutBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PutVstr(s string) {
	w.PutVi32(int32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *Writer) PutBytes(b []byte) {
	w.PutVi32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) PutRangeSpec(id rangekey.Ident) {
	w.PutVstr(string(id.Table.ID))
	w.PutVi32(id.Table.Generation)
	w.PutVstr(string(id.Start))
	w.PutVstr(string(id.End))
}

// Reader consumes a payload produced by Writer, left to right. The first
// error encountered sticks; subsequent calls become no-ops that return the
// zero value, so callers can decode a whole message and check Err() once.
type Reader struct {
	buf []byte
	pos int
	err error
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Err() error { return r.err }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) Vi32() int32 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.fail(fmt.Errorf("wire: truncated vi32 at offset %d", r.pos))
		return 0
	}
	r.pos += n
	return int32(v)
}

func (r *Reader) Vi64() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf[r.pos:])
	if n <= 0 {
		r.fail(fmt.Errorf("wire: truncated vi64 at offset %d", r.pos))
		return 0
	}
	r.pos += n
	return v
}

func (r *Reader) Bool() bool {
	if r.err != nil {
		return false
	}
	if r.pos >= len(r.buf) {
		r.fail(io.ErrUnexpectedEOF)
		return false
	}
	v := r.buf[r.pos] != 0
	r.pos++
	return v
}

func (r *Reader) Vstr() string {
	b := r.Bytes()
	return string(b)
}

func (r *Reader) Bytes() []byte {
	n := r.Vi32()
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+int(n) > len(r.buf) {
		r.fail(fmt.Errorf("wire: vstr length %d exceeds remaining buffer", n))
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out
}

func (r *Reader) RangeSpec() rangekey.Ident {
	tableID := r.Vstr()
	gen := r.Vi32()
	start := r.Vstr()
	end := r.Vstr()
	return rangekey.Ident{
		Table: rangekey.Table{ID: rangekey.TableID(tableID), Generation: gen},
		Start: rangekey.Row(start),
		End:   rangekey.Row(end),
	}
}

// Remaining returns the unconsumed tail of the buffer, useful for a final
// raw payload field (e.g. the key/value block in phantom-update).
func (r *Reader) Remaining() []byte {
	if r.err != nil || r.pos > len(r.buf) {
		return nil
	}
	return r.buf[r.pos:]
}
