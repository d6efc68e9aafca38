package sitebuilder

import (
	"context"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/semsimilar/source/parser"
)

const (
	// batchChannelBuffer is the size of the change batch channel.
	batchChannelBuffer = 16

	defaultDebounceDelay = 500 * time.Millisecond
)

// WatcherConfig configures document tree watching.
type WatcherConfig struct {
	// DocsDir is the root of the watched tree.
	DocsDir string

	// ConfigPath, when set, is watched too; changes to it are flagged on
	// the batch so the caller can reload configuration.
	ConfigPath string

	// IgnoreDir is skipped entirely, typically the output directory.
	IgnoreDir string

	// DebounceDelay is how long to collect changes before emitting a batch.
	DebounceDelay time.Duration

	// FileExtensions lists the watched document extensions.
	FileExtensions []string

	// ExcludeDirs lists directory names to skip.
	ExcludeDirs []string
}

// WatchOperation indicates the type of file operation.
type WatchOperation string

// WatchOpCreate, WatchOpModify, and WatchOpDelete enumerate the file watch operation types.
const (
	WatchOpCreate WatchOperation = "create"
	WatchOpModify WatchOperation = "modify"
	WatchOpDelete WatchOperation = "delete"
)

// WatchEvent represents a document file change.
type WatchEvent struct {
	// Path is the file path relative to the docs directory.
	Path string

	// Operation is the type of change.
	Operation WatchOperation
}

// Batch is the set of changes collected during one debounce window.
type Batch struct {
	Events        []WatchEvent
	ConfigChanged bool
}

// Watcher watches the docs tree and the config file and emits debounced
// change batches.
type Watcher struct {
	config     WatcherConfig
	docsDir    string
	configPath string
	ignoreDir  string
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	extensions map[string]bool
	excludes   map[string]bool

	// Debouncing: collect changes before emitting
	pendingMu     sync.Mutex
	pending       map[string]fsnotify.Op
	configPending bool

	// Hash-based change detection
	hashMu sync.RWMutex
	hashes map[string]string

	batches chan Batch

	droppedBatches atomic.Int64
}

// NewWatcher creates a new watcher. Nothing is watched until Start.
func NewWatcher(config WatcherConfig, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = defaultDebounceDelay
	}

	extensions := make(map[string]bool)
	if len(config.FileExtensions) == 0 {
		extensions[".md"] = true
		extensions[".markdown"] = true
	} else {
		for _, ext := range config.FileExtensions {
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			extensions[strings.ToLower(ext)] = true
		}
	}

	excludes := make(map[string]bool, len(config.ExcludeDirs))
	for _, dir := range config.ExcludeDirs {
		excludes[dir] = true
	}

	w := &Watcher{
		config:     config,
		watcher:    fsw,
		logger:     logger,
		extensions: extensions,
		excludes:   excludes,
		pending:    make(map[string]fsnotify.Op),
		hashes:     make(map[string]string),
		batches:    make(chan Batch, batchChannelBuffer),
	}

	w.docsDir = absOrSelf(config.DocsDir)
	if config.ConfigPath != "" {
		w.configPath = absOrSelf(config.ConfigPath)
	}
	if config.IgnoreDir != "" {
		w.ignoreDir = absOrSelf(config.IgnoreDir)
	}

	return w, nil
}

// Batches returns the channel of change batches. It is closed when the
// watcher stops.
func (w *Watcher) Batches() <-chan Batch {
	return w.batches
}

// Start adds the watches and begins processing events.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.docsDir); err != nil {
		return err
	}

	if w.configPath != "" {
		// Editors replace files on save, so watch the directory.
		dir := filepath.Dir(w.configPath)
		if err := w.watcher.Add(dir); err != nil {
			w.logger.Warn("Failed to watch config directory", "path", dir, "error", err)
		}
	}

	go w.processEvents(ctx)

	w.logger.Info("Watcher started",
		"docs_dir", w.docsDir,
		"config", w.configPath,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop stops the watcher.
// The batch channel is closed by processEvents when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// SetHash records the content hash for a document path.
func (w *Watcher) SetHash(path, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = hash
}

// GetHash returns the recorded hash for a document path.
func (w *Watcher) GetHash(path string) (string, bool) {
	w.hashMu.RLock()
	defer w.hashMu.RUnlock()
	hash, ok := w.hashes[path]
	return hash, ok
}

// DroppedBatches returns the number of batches dropped due to channel overflow.
func (w *Watcher) DroppedBatches() int64 {
	return w.droppedBatches.Load()
}

// addWatchesRecursive watches every directory below root and records the
// hashes of the documents already there.
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			if w.isDocument(p) {
				if content, err := os.ReadFile(p); err == nil {
					w.SetHash(w.rel(p), parser.ContentHash(content))
				}
			}
			return nil
		}

		if p != root && w.skipDir(p) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", p,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", p)
		}

		return nil
	})
}

func (w *Watcher) skipDir(dir string) bool {
	base := filepath.Base(dir)
	if w.excludes[base] || strings.HasPrefix(base, ".") {
		return true
	}
	return w.ignoreDir != "" && dir == w.ignoreDir
}

func (w *Watcher) isDocument(p string) bool {
	return w.extensions[strings.ToLower(filepath.Ext(p))]
}

// inTree reports whether p is a watched document location below the docs dir.
func (w *Watcher) inTree(p string) bool {
	rel, err := filepath.Rel(w.docsDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if w.ignoreDir != "" && (p == w.ignoreDir || strings.HasPrefix(p, w.ignoreDir+string(filepath.Separator))) {
		return false
	}

	dirs := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range dirs[:len(dirs)-1] {
		if w.excludes[dir] || strings.HasPrefix(dir, ".") {
			return false
		}
	}
	return true
}

func (w *Watcher) rel(p string) string {
	rel, err := filepath.Rel(w.docsDir, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// processEvents handles fsnotify events with debouncing.
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.batches)
	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushPending(ctx)
		}
	}
}

// handleFSEvent processes a single fsnotify event.
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	p := absOrSelf(event.Name)

	if w.configPath != "" && p == w.configPath {
		w.pendingMu.Lock()
		w.configPending = true
		w.pendingMu.Unlock()
		w.logger.Debug("Config change detected", "path", p, "op", event.Op.String())
		return
	}

	if !w.inTree(p) {
		return
	}

	if !w.isDocument(p) {
		// New directories need their own watch.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				w.handleNewDirectory(p)
			}
		}
		return
	}

	w.pendingMu.Lock()
	w.pending[p] = w.pending[p] | event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("Document change detected",
		"path", w.rel(p),
		"op", event.Op.String())
}

// handleNewDirectory watches a newly created directory and anything already
// written into it.
func (w *Watcher) handleNewDirectory(dir string) {
	if w.skipDir(dir) {
		return
	}

	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			if w.isDocument(p) {
				w.pendingMu.Lock()
				w.pending[p] = w.pending[p] | fsnotify.Create
				w.pendingMu.Unlock()
			}
			return nil
		}
		if p != dir && w.skipDir(p) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			w.logger.Warn("Failed to watch new directory", "path", p, "error", err)
		} else {
			w.logger.Debug("Added watch for new directory", "path", p)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("Failed to scan new directory", "path", dir, "error", err)
	}
}

// flushPending turns accumulated changes into a batch. Documents whose
// content hash is unchanged are left out; a batch with no document change
// and no config change is not sent.
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 && !w.configPending {
		w.pendingMu.Unlock()
		return
	}

	toProcess := w.pending
	configChanged := w.configPending
	w.pending = make(map[string]fsnotify.Op)
	w.configPending = false
	w.pendingMu.Unlock()

	batch := Batch{ConfigChanged: configChanged}

	for p, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath := w.rel(p)
		content, err := os.ReadFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				w.logger.Warn("Failed to read file for hash check",
					"path", relPath,
					"error", err)
				continue
			}

			w.hashMu.Lock()
			_, tracked := w.hashes[relPath]
			delete(w.hashes, relPath)
			w.hashMu.Unlock()

			if tracked || op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
				batch.Events = append(batch.Events, WatchEvent{Path: relPath, Operation: WatchOpDelete})
			}
			continue
		}

		newHash := parser.ContentHash(content)
		oldHash, hadHash := w.GetHash(relPath)
		if hadHash && oldHash == newHash {
			continue
		}
		w.SetHash(relPath, newHash)

		operation := WatchOpModify
		if !hadHash {
			operation = WatchOpCreate
		}
		batch.Events = append(batch.Events, WatchEvent{Path: relPath, Operation: operation})
	}

	if len(batch.Events) == 0 && !batch.ConfigChanged {
		return
	}

	sort.Slice(batch.Events, func(i, j int) bool {
		return batch.Events[i].Path < batch.Events[j].Path
	})

	w.sendBatch(batch)
}

// sendBatch sends a batch to the output channel.
func (w *Watcher) sendBatch(batch Batch) {
	select {
	case w.batches <- batch:
		w.logger.Debug("Sent change batch",
			"events", len(batch.Events),
			"config_changed", batch.ConfigChanged)
	default:
		dropped := w.droppedBatches.Add(1)
		w.logger.Warn("Batch channel full, dropping batch",
			"events", len(batch.Events),
			"total_dropped", dropped)
	}
}

// WatchExtensions derives the document extensions to watch from include
// patterns such as "**/*.md". Patterns without a literal extension are
// ignored; the result falls back to markdown when none remain.
func WatchExtensions(patterns []string) []string {
	seen := make(map[string]bool)
	var exts []string
	for _, pattern := range patterns {
		ext := strings.ToLower(path.Ext(filepath.ToSlash(pattern)))
		if ext == "" || strings.ContainsAny(ext, "*?[]{}") || seen[ext] {
			continue
		}
		seen[ext] = true
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return []string{".md", ".markdown"}
	}
	return exts
}

func absOrSelf(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
