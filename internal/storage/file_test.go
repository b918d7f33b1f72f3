package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	id1, err := st.Insert(ctx, sampleRecord("r", 1, "keep"))
	require.NoError(t, err)
	id2, err := st.Insert(ctx, sampleRecord("r", 1, "drop"))
	require.NoError(t, err)
	_, err = Merge(ctx, st, id1, Patch{PendingDelete: Bool(true)})
	require.NoError(t, err)
	require.NoError(t, st.Delete(ctx, id2))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	rec, ok, err := st.Get(ctx, id1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, rec.PendingDelete)
	_, ok, err = st.Get(ctx, id2)
	require.NoError(t, err)
	require.False(t, ok)

	id3, err := st.Insert(ctx, sampleRecord("r", 1, "new"))
	require.NoError(t, err)
	require.Greater(t, id3, id2, "deleted max id must not be reused after restart")
}

func TestFileStoreCompaction(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.db")

	st, err := Open(Config{Driver: "file", Path: path, CompactEvery: 3}, logx.Nop())
	require.NoError(t, err)
	var last int64
	for i := 0; i < 7; i++ {
		last, err = st.Insert(ctx, sampleRecord("r", 1, "x"))
		require.NoError(t, err)
	}
	require.NoError(t, st.Delete(ctx, last))
	require.NoError(t, st.(Maintainer).Maintain(ctx))

	fi, err := os.Stat(filepath.Join(dir, "alerts.journal.jsonl"))
	require.NoError(t, err)
	require.Zero(t, fi.Size())
	_, err = os.Stat(filepath.Join(dir, "alerts.snapshot.json"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	all, err := st.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 6)
	id, err := st.Insert(ctx, sampleRecord("r", 1, "y"))
	require.NoError(t, err)
	require.Equal(t, last+1, id)
}

func TestFileStoreSkipsTornJournalLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "alerts.db")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	id, err := st.Insert(ctx, sampleRecord("r", 1, "x"))
	require.NoError(t, err)
	require.NoError(t, st.Close())

	f, err := os.OpenFile(filepath.Join(dir, "alerts.journal.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"put","id":`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	rec, ok, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alert.Owner{Realm: "r", ID: 1}, rec.Owner)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts.sqlite")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	id, err := st.Insert(ctx, sampleRecord("r", 1, "x"))
	require.NoError(t, err)
	require.NoError(t, st.(Maintainer).Maintain(ctx))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	rec, ok, err := st.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", rec.Payload.Title)
}
