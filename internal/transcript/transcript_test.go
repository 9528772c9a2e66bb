package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	if !mtime.IsZero() {
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
}

func TestRead_JSONL(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "s1.jsonl")
	writeFile(t, path, "{\"eventName\":\"a\"}\n\n{\"eventName\":\"b\"}\n", time.Time{})

	records, err := Read(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"eventName":"b"}`, string(records[1]))
}

func TestRead_JSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "s1.json")
	writeFile(t, path, `[{"eventName":"a"},{"eventName":"b"},{"eventName":"c"}]`, time.Time{})

	records, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, err := Read(filepath.Join(dir, "s1.txt"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Read(filepath.Join(dir, "missing.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.jsonl")
	writeFile(t, bad, "{\"ok\":true}\n{not json\n", time.Time{})
	_, err = Read(bad)
	assert.ErrorContains(t, err, "line 2")
}

func TestPaths(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	old := time.Now().Add(-time.Hour)
	recent := time.Now()

	writeFile(t, filepath.Join(root, "projA", "s1.jsonl"), "{}\n", old)
	writeFile(t, filepath.Join(root, "projB", "s1.jsonl"), "{}\n", recent)
	writeFile(t, filepath.Join(root, "projA", "s1.json"), "[]", recent)
	writeFile(t, filepath.Join(root, "legacy", "s2.json"), "[]", time.Time{})
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored", time.Time{})

	paths, err := Paths(root)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"s1": filepath.Join(root, "projB", "s1.jsonl"),
		"s2": filepath.Join(root, "legacy", "s2.json"),
	}, paths)
}

func TestPaths_MissingRoot(t *testing.T) {
	t.Parallel()
	_, err := Paths(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLogStore_SaveAndLoad(t *testing.T) {
	t.Parallel()
	logDir := t.TempDir()
	store, err := NewLogStore(filepath.Join(logDir, "proj"), logDir, LogStoreOptions{})
	require.NoError(t, err)

	records := []json.RawMessage{
		json.RawMessage(`{"eventName": "system-initialize",  "currentDoc": "Hi"}`),
		json.RawMessage(`{"eventName":"text-insert"}`),
	}
	path, err := store.Save("s1", records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(logDir, "proj", "s1.jsonl"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"{\"eventName\":\"system-initialize\",\"currentDoc\":\"Hi\"}\n{\"eventName\":\"text-insert\"}\n",
		string(data))

	gotPath, got, err := store.Load("s1")
	require.NoError(t, err)
	assert.Equal(t, path, gotPath)
	require.Len(t, got, 2)
	assert.JSONEq(t, string(records[0]), string(got[0]))
}

func TestLogStore_SaveOverwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewLogStore(dir, dir, LogStoreOptions{})
	require.NoError(t, err)

	_, err = store.Save("s1", []json.RawMessage{json.RawMessage(`{"n":1}`), json.RawMessage(`{"n":2}`)})
	require.NoError(t, err)
	_, err = store.Save("s1", []json.RawMessage{json.RawMessage(`{"n":3}`)})
	require.NoError(t, err)

	_, got, err := store.Load("s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"n":3}`, string(got[0]))
}

func TestLogStore_SaveRejectsInvalidInput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewLogStore(dir, dir, LogStoreOptions{})
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../escape", `a\b`} {
		_, err := store.Save(id, nil)
		assert.ErrorIs(t, err, ErrInvalidID, "id %q", id)
	}

	_, err = store.Save("s1", []json.RawMessage{json.RawMessage(`{broken`)})
	assert.Error(t, err)
}

func TestLogStore_FindMissing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewLogStore(dir, dir, LogStoreOptions{})
	require.NoError(t, err)

	_, err = store.Find("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogStore_CachedIndex(t *testing.T) {
	t.Parallel()
	replay := t.TempDir()
	store, err := NewLogStore(filepath.Join(replay, "proj"), replay, LogStoreOptions{IndexTTL: time.Hour})
	require.NoError(t, err)

	_, err = store.Find("s1")
	require.ErrorIs(t, err, ErrNotFound)

	// Written behind the store's back: the stale index is refreshed on a miss.
	writeFile(t, filepath.Join(replay, "other", "s1.jsonl"), "{}\n", time.Time{})
	path, err := store.Find("s1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(replay, "other", "s1.jsonl"), path)

	// Save invalidates the index so the newer file is picked up.
	saved, err := store.Save("s1", []json.RawMessage{json.RawMessage(`{}`)})
	require.NoError(t, err)
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(saved, future, future))

	path, err = store.Find("s1")
	require.NoError(t, err)
	assert.Equal(t, saved, path)
}
