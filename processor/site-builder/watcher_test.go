package sitebuilder

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func startWatcher(t *testing.T, cfg WatcherConfig) *Watcher {
	t.Helper()
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 50 * time.Millisecond
	}

	w, err := NewWatcher(cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	// Give watcher time to set up
	time.Sleep(100 * time.Millisecond)
	return w
}

func nextBatch(t *testing.T, w *Watcher) Batch {
	t.Helper()
	select {
	case batch, ok := <-w.Batches():
		require.True(t, ok, "batch channel closed")
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for change batch")
		return Batch{}
	}
}

func expectNoBatch(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case batch := <-w.Batches():
		t.Errorf("unexpected batch: %+v", batch)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNewWatcher(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{
		DocsDir:        t.TempDir(),
		FileExtensions: []string{"md", ".TXT"},
		ExcludeDirs:    []string{"node_modules"},
	}, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.extensions[".md"])
	assert.True(t, w.extensions[".txt"])
	assert.True(t, w.excludes["node_modules"])
	assert.Equal(t, defaultDebounceDelay, w.config.DebounceDelay)
}

func TestNewWatcher_DefaultExtensions(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{DocsDir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer w.Stop()

	assert.True(t, w.extensions[".md"])
	assert.True(t, w.extensions[".markdown"])
	assert.False(t, w.extensions[".txt"])
}

func TestWatcher_FileCreation(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, WatcherConfig{DocsDir: dir})

	writeFile(t, dir, "blog/post.md", "# Post\n")

	// The new directory is picked up along with the file inside it.
	batch := nextBatch(t, w)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, WatchEvent{Path: "blog/post.md", Operation: WatchOpCreate}, batch.Events[0])
	assert.False(t, batch.ConfigChanged)
}

func TestWatcher_FileModification(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "post.md", "# Initial\n")
	w := startWatcher(t, WatcherConfig{DocsDir: dir})

	_, seeded := w.GetHash("post.md")
	assert.True(t, seeded, "existing documents are hashed on start")

	writeFile(t, dir, "post.md", "# Modified\n")

	batch := nextBatch(t, w)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, WatchEvent{Path: "post.md", Operation: WatchOpModify}, batch.Events[0])
}

func TestWatcher_UnchangedContentIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "post.md", "# Same\n")
	w := startWatcher(t, WatcherConfig{DocsDir: dir})

	writeFile(t, dir, "post.md", "# Same\n")

	expectNoBatch(t, w)
}

func TestWatcher_FileDeletion(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "post.md", "# Doomed\n")
	w := startWatcher(t, WatcherConfig{DocsDir: dir})

	require.NoError(t, os.Remove(filepath.Join(dir, "post.md")))

	batch := nextBatch(t, w)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, WatchEvent{Path: "post.md", Operation: WatchOpDelete}, batch.Events[0])

	_, tracked := w.GetHash("post.md")
	assert.False(t, tracked)
}

func TestWatcher_IgnoresNonWatchedExtensions(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, WatcherConfig{DocsDir: dir})

	writeFile(t, dir, "main.go", "package main\n")

	expectNoBatch(t, w)
}

func TestWatcher_IgnoresExcludedDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0755))
	w := startWatcher(t, WatcherConfig{DocsDir: dir, ExcludeDirs: []string{"node_modules"}})

	writeFile(t, dir, "node_modules/readme.md", "# Vendored\n")
	writeFile(t, dir, ".git/notes.md", "# Hidden\n")

	expectNoBatch(t, w)
}

func TestWatcher_IgnoresOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "public")
	require.NoError(t, os.MkdirAll(out, 0755))
	w := startWatcher(t, WatcherConfig{DocsDir: dir, IgnoreDir: out})

	writeFile(t, out, "post.md", "# Built\n")

	expectNoBatch(t, w)
}

func TestWatcher_ConfigChange(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	cfgPath := filepath.Join(root, "semsimilar.yaml")
	writeFile(t, root, "semsimilar.yaml", "similar:\n  title: Before\n")

	w := startWatcher(t, WatcherConfig{DocsDir: docs, ConfigPath: cfgPath})

	writeFile(t, root, "semsimilar.yaml", "similar:\n  title: After\n")

	batch := nextBatch(t, w)
	assert.True(t, batch.ConfigChanged)
	assert.Empty(t, batch.Events)
}

func TestWatcher_StopClosesBatches(t *testing.T) {
	w := startWatcher(t, WatcherConfig{DocsDir: t.TempDir()})
	require.NoError(t, w.Stop())

	select {
	case _, ok := <-w.Batches():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("batch channel not closed after stop")
	}
}
