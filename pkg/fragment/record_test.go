package fragment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessellate-db/tessellate/pkg/blockcodec"
	"github.com/tessellate-db/tessellate/pkg/rangekey"
)

func TestEncodeDecodeBatchRoundTrip(t *testing.T) {
	recs := []Record{
		{Table: rangekey.Table{ID: "t", Generation: 1}, Row: "a", Revision: 1, Value: []byte("v1")},
		{Table: rangekey.Table{ID: "t", Generation: 1}, Row: "b", Revision: 2, Value: []byte("v2")},
	}
	got, err := DecodeBatch(EncodeBatch(recs))
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestEncodeDecodeBlockRoundTrip(t *testing.T) {
	recs := []Record{{Table: rangekey.Table{ID: "t"}, Row: "a", Revision: 1, Value: []byte("hello")}}
	for _, id := range []blockcodec.ID{blockcodec.None, blockcodec.Snappy, blockcodec.Zstd} {
		block, err := EncodeBlock(id, recs)
		require.NoError(t, err)
		got, err := DecodeBlock(block)
		require.NoError(t, err)
		assert.Equal(t, recs, got)
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	recs := []Record{{Table: rangekey.Table{ID: "t"}, Row: "a", Revision: 1, Value: []byte("v")}}
	s.Put("rs1", rangekey.GroupUser, 42, recs)

	ids, err := s.Fragments(context.Background(), "rs1", rangekey.GroupUser)
	require.NoError(t, err)
	assert.Equal(t, []rangekey.FragmentID{42}, ids)

	got, err := s.Read(context.Background(), "rs1", rangekey.GroupUser, 42)
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	_, err = s.Read(context.Background(), "rs1", rangekey.GroupUser, 99)
	assert.Error(t, err)
}
