package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indlink/internal/model"
)

func openTemp(t *testing.T, keep int) *Journal {
	t.Helper()
	j, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "exports.db"), Keep: keep}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndList(t *testing.T) {
	j := openTemp(t, 0)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordExport(model.ExportRecord{
		SessionID: "s1", Instrument: "eurusd", Path: "data/collected0.csv",
		Rows: 10, Columns: 7, WrittenAt: at,
	}))
	require.NoError(t, j.RecordExport(model.ExportRecord{
		SessionID: "s1", Instrument: "usdjpy", Path: "data/collected1.csv",
		Rows: 3, Columns: 7, WrittenAt: at.Add(time.Second),
	}))

	recs, err := j.RecentExports(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "data/collected1.csv", recs[0].Path)
	assert.Equal(t, "usdjpy", recs[0].Instrument)
	assert.Equal(t, "data/collected0.csv", recs[1].Path)
	assert.Equal(t, 10, recs[1].Rows)
	assert.Equal(t, 7, recs[1].Columns)
	assert.True(t, at.Equal(recs[1].WrittenAt))

	recs, err = j.RecentExports(1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestJournal_Prunes(t *testing.T) {
	j := openTemp(t, 2)
	for i := 0; i < 5; i++ {
		require.NoError(t, j.RecordExport(model.ExportRecord{SessionID: "s", Instrument: "x", Path: "p", Rows: i}))
	}

	recs, err := j.RecentExports(0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 4, recs[0].Rows)
	assert.Equal(t, 3, recs[1].Rows)
	assert.False(t, recs[0].WrittenAt.IsZero())
}

func TestJournal_Empty(t *testing.T) {
	j := openTemp(t, 0)
	recs, err := j.RecentExports(5)
	require.NoError(t, err)
	assert.Empty(t, recs)
	require.NoError(t, j.DB().Ping())
}
