package metalog_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/tessellate-db/tessellate/pkg/metalog"
)

func freshTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenEmptyLogReplaysNothing(t *testing.T) {
	db := freshTestDB(t)
	l, err := metalog.Open(db, "mml")
	require.NoError(t, err)

	got, err := l.Replay(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendThenReplayPreservesOrder(t *testing.T) {
	db := freshTestDB(t)
	l, err := metalog.Open(db, "mml")
	require.NoError(t, err)

	ctx := context.Background()
	recs := []metalog.Record{
		{Location: "rs-1", Type: metalog.EntityRecoverServer, Attempt: 0, State: 0},
		{Location: "rs-1", Type: metalog.EntityRecoverServer, Attempt: 0, State: 1},
		{Location: "rs-1", Type: metalog.EntityRecoverServer, Attempt: 1, State: 0},
	}
	for _, r := range recs {
		require.NoError(t, l.Append(ctx, r))
	}

	got, err := l.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range recs {
		assert.Equal(t, r, got[i])
	}
}

func TestAppendBatchIsAtomic(t *testing.T) {
	db := freshTestDB(t)
	l, err := metalog.Open(db, "mml")
	require.NoError(t, err)

	ctx := context.Background()
	batch := []metalog.Record{
		{Location: "rs-1", Type: metalog.EntityRecoverRanges, Attempt: 0, State: 0},
		{Location: "rs-2", Type: metalog.EntityRecoverRanges, Attempt: 0, State: 0},
	}
	require.NoError(t, l.AppendBatch(ctx, batch))

	got, err := l.Replay(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReset(t *testing.T) {
	db := freshTestDB(t)
	l, err := metalog.Open(db, "rsml-a")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Append(ctx, metalog.Record{Location: "t1", Type: metalog.EntityRecoverRanges}))

	got, err := l.Replay(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, l.Reset(ctx))

	got, err = l.Replay(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLogsWithDifferentNamesAreIndependent(t *testing.T) {
	db := freshTestDB(t)
	mml, err := metalog.Open(db, "mml")
	require.NoError(t, err)
	rsml, err := metalog.Open(db, "rsml-a")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mml.Append(ctx, metalog.Record{Location: "rs-1", Type: metalog.EntityRecoverServer}))
	require.NoError(t, rsml.Append(ctx, metalog.Record{Location: "t1", Type: metalog.EntityRecoverRanges}))

	mmlRecs, err := mml.Replay(ctx)
	require.NoError(t, err)
	assert.Len(t, mmlRecs, 1)

	rsmlRecs, err := rsml.Replay(ctx)
	require.NoError(t, err)
	assert.Len(t, rsmlRecs, 1)
}

func TestLatestByLocation(t *testing.T) {
	recs := []metalog.Record{
		{Location: "rs-1", State: 0},
		{Location: "rs-2", State: 0},
		{Location: "rs-1", State: 1},
	}
	latest := metalog.LatestByLocation(recs)
	assert.Equal(t, int32(1), latest["rs-1"].State)
	assert.Equal(t, int32(0), latest["rs-2"].State)
}
