package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

func TestVarintRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutVi32(-42)
	w.PutVi64(1 << 40)
	w.PutBool(true)
	w.PutVstr("hello")
	w.PutBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	assert.Equal(t, int32(-42), r.Vi32())
	assert.Equal(t, int64(1<<40), r.Vi64())
	assert.Equal(t, true, r.Bool())
	assert.Equal(t, "hello", r.Vstr())
	assert.Equal(t, []byte{1, 2, 3}, r.Bytes())
	require.NoError(t, r.Err())
}

func TestRangeSpecRoundTrip(t *testing.T) {
	id := rangekey.Ident{
		Table: rangekey.Table{ID: "t7", Generation: 1},
		Start: "a",
		End:   "m",
	}

	w := NewWriter()
	w.PutRangeSpec(id)

	r := NewReader(w.Bytes())
	got := r.RangeSpec()
	require.NoError(t, r.Err())
	assert.Equal(t, id, got)
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{0xFF})
	_ = r.Vi64()
	assert.Error(t, r.Err())
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("some fragment bytes")
	framed := EncodeFrame(payload)

	got, err := DecodeFrame(framed)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFrameChecksumMismatch(t *testing.T) {
	framed := EncodeFrame([]byte("payload"))
	framed[len(framed)-1] ^= 0xFF

	_, err := DecodeFrame(framed)
	assert.Error(t, err)
}
