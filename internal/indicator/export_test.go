package indicator

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indlink/internal/rowstore"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
}

func TestNextFile(t *testing.T) {
	t.Run("empty dir", func(t *testing.T) {
		dir := t.TempDir()
		got, err := NextFile(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "collected0.csv"), got)
	})

	t.Run("max plus one", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "collected0.csv")
		touch(t, dir, "collected3.csv")
		touch(t, dir, "other.csv")
		touch(t, dir, "collected7.txt")
		got, err := NextFile(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "collected4.csv"), got)
	})

	t.Run("non numeric sequence aborts", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "collected1.csv")
		touch(t, dir, "collectedX.csv")
		_, err := NextFile(dir)
		assert.ErrorIs(t, err, ErrBadRolloverName)
	})

	t.Run("missing dir", func(t *testing.T) {
		_, err := NextFile(filepath.Join(t.TempDir(), "nope"))
		assert.Error(t, err)
	})
}

func TestExport_WritesHeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	schema := MustSchema("CLOSE[1]", "SMA(10)[2]")
	store := rowstore.New(schema.Width())

	store.Record("eurusd", 2000, 0, "1.2")
	store.Record("eurusd", 2000, 1, "1.1")
	store.Record("eurusd", 2000, 2, "1.0")
	store.Record("eurusd", 1000, 2, "0.9") // partial row
	store.Record("eurusd", 1000, 0, "1.05")

	res, err := Export(dir, schema, store, "eurusd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "collected0.csv"), res.Path)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 3, res.Columns)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	want := `"WHEN","CLOSE","SMA(10)-b0","SMA(10)-b1"` + "\n" +
		"1000,1.05,,0.9\n" +
		"2000,1.2,1.1,1.0\n"
	assert.Equal(t, want, string(data))
}

func TestExport_RollsOver(t *testing.T) {
	dir := t.TempDir()
	schema := MustSchema("CLOSE")
	store := rowstore.New(1)
	store.Record("x", 1, 0, "5")

	first, err := Export(dir, schema, store, "x")
	require.NoError(t, err)
	second, err := Export(dir, schema, store, "x")
	require.NoError(t, err)

	assert.Equal(t, "collected0.csv", filepath.Base(first.Path))
	assert.Equal(t, "collected1.csv", filepath.Base(second.Path))
}

func TestExport_HeaderOnly(t *testing.T) {
	dir := t.TempDir()
	schema := MustSchema("CLOSE")

	res, err := Export(dir, schema, nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "\"WHEN\",\"CLOSE\"\n", string(data))
}

func TestExport_BadRolloverNameWritesNothing(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "collectedabc.csv")

	_, err := Export(dir, MustSchema("CLOSE"), rowstore.New(1), "x")
	assert.ErrorIs(t, err, ErrBadRolloverName)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExport_CreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	res, err := Export(dir, MustSchema("CLOSE"), rowstore.New(1), "")
	require.NoError(t, err)
	assert.FileExists(t, res.Path)
}

func TestExport_UnwritableDirWrapsErrExport(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	// A regular file where the directory should be.
	_, err := Export(file, MustSchema("CLOSE"), rowstore.New(1), "")
	assert.ErrorIs(t, err, ErrExport)
	assert.ErrorIs(t, err, syscall.ENOTDIR)
}
