package jobs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHistoryStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "history.json")

	store, err := NewFileHistoryStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())

	entries, err := store.Load()
	require.NoError(t, err, "missing file is not an error")
	assert.Empty(t, entries)

	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	want := []HistoryEntry{{
		ID:        "b",
		FileName:  "paper.pdf",
		Kind:      KindTranslate,
		Status:    HistorySuccess,
		StartTime: start,
		EndTime:   start.Add(time.Minute),
		FileList:  []string{"paper-mono.pdf", "paper-dual.pdf"},
	}, {
		ID:     "a",
		Kind:   KindCrop,
		Status: HistoryFailed,
		Error:  "boom",
	}}
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.True(t, start.Equal(got[0].StartTime))
	assert.Equal(t, want[0].FileList, got[0].FileList)
	assert.Equal(t, "boom", got[1].Error)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestFileHistoryStore_Errors(t *testing.T) {
	_, err := NewFileHistoryStore("")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	store, err := NewFileHistoryStore(path)
	require.NoError(t, err)
	_, err = store.Load()
	assert.Error(t, err)
}

func TestHistoryEntry(t *testing.T) {
	now := time.Now()
	j := Job{
		ID:        "x",
		Kind:      KindCropCompare,
		Payload:   Payload{FileName: "in.pdf"},
		Status:    StatusCompleted,
		Result:    []string{"in-crop-compare.pdf"},
		CreatedAt: now.Add(-time.Second),
		UpdatedAt: now,
	}
	e := historyEntry(j)
	assert.Equal(t, HistorySuccess, e.Status)
	assert.Equal(t, "in.pdf", e.FileName)
	assert.Equal(t, j.Result, e.FileList)
	assert.Empty(t, e.Error)

	j.Status, j.Error = StatusFailed, "bad"
	e = historyEntry(j)
	assert.Equal(t, HistoryFailed, e.Status)
	assert.Equal(t, "bad", e.Error)
	assert.Empty(t, e.FileList)
}
