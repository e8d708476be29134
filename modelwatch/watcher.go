// Package modelwatch ingests bulk model files dropped into a directory.
//
// Files matching the pattern are ingested once they have been quiet for the
// debounce delay. A file whose content has not changed since its last
// ingestion is skipped. Removing a file does not remove its model.
package modelwatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/semtypes/catalog"
)

// DefaultPattern matches model files at any depth.
const DefaultPattern = "**/*.json"

// Ingester stores a bulk model body.
type Ingester interface {
	IngestModel(ctx context.Context, body []byte) (catalog.IngestResult, error)
}

// Config configures the watcher
type Config struct {
	// Dir is the directory to watch
	Dir string

	// Pattern selects model files by their slash-separated path relative to
	// Dir (default: **/*.json)
	Pattern string

	// DebounceDelay is how long to wait for more changes before ingesting
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Operation indicates why a file was ingested
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
)

// Event reports one ingestion attempt
type Event struct {
	// Path is the file path relative to Dir
	Path string

	Operation Operation

	// Result counts what the ingestion created and reused
	Result catalog.IngestResult

	// Error if reading or ingesting failed
	Error error
}

// Watcher watches a directory and ingests model files
type Watcher struct {
	config   Config
	ingester Ingester
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	// Debouncing: collect changes before processing
	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op // path → most recent operation

	// Content hashes of ingested files, keyed by relative path
	hashMu sync.RWMutex
	hashes map[string]string

	events chan Event
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

// NewWatcher creates a new model watcher
func NewWatcher(config Config, ingester Ingester) (*Watcher, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	if config.Pattern == "" {
		config.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(config.Pattern) {
		return nil, fmt.Errorf("invalid pattern %q", config.Pattern)
	}
	if config.DebounceDelay <= 0 {
		config.DebounceDelay = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:   config,
		ingester: ingester,
		watcher:  fsw,
		logger:   config.Logger,
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, 100),
	}, nil
}

// Events returns the channel of ingestion events. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching the directory for changes
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatchesRecursive(w.config.Dir); err != nil {
		return err
	}

	w.done = make(chan struct{})
	go w.processEvents(ctx)

	w.logger.Info("Model watcher started",
		"dir", w.config.Dir,
		"pattern", w.config.Pattern,
		"debounce", w.config.DebounceDelay)

	return nil
}

// Stop stops the watcher and waits for in-flight ingestion to finish. Calls
// after the first return its result.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		w.stopErr = w.watcher.Close()
		if w.done != nil {
			<-w.done
		} else {
			close(w.events)
		}
	})
	return w.stopErr
}

// IngestExisting ingests every matching file already in the directory and
// records its hash, so the watcher skips it until it changes.
func (w *Watcher) IngestExisting(ctx context.Context) ([]Event, error) {
	matches, err := doublestar.Glob(os.DirFS(w.config.Dir), w.config.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", w.config.Pattern, err)
	}

	var events []Event
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		if hiddenPath(rel) {
			continue
		}
		event, changed := w.ingest(ctx, filepath.Join(w.config.Dir, filepath.FromSlash(rel)), OpCreate)
		if changed {
			events = append(events, event)
		}
	}
	return events, nil
}

// addWatchesRecursive adds watches to all directories
func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Only watch directories
		if !d.IsDir() {
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory",
				"path", path,
				"error", err)
		} else {
			w.logger.Debug("Watching directory", "path", path)
		}

		return nil
	})
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	defer close(w.events)

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

// handleFSEvent records a change to a matching file
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
	}

	rel, ok := w.match(path)
	if !ok {
		return
	}

	w.pendingMu.Lock()
	w.pending[path] = event.Op
	w.pendingMu.Unlock()

	w.logger.Debug("Model file change detected",
		"path", rel,
		"op", event.Op.String())
}

// match reports whether path is a model file and returns its relative form.
func (w *Watcher) match(path string) (string, bool) {
	rel, err := filepath.Rel(w.config.Dir, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if hiddenPath(rel) {
		return "", false
	}
	matched, err := doublestar.Match(w.config.Pattern, rel)
	return rel, err == nil && matched
}

// handleNewDirectory watches a newly created directory and picks up files
// written into it before the watch was added.
func (w *Watcher) handleNewDirectory(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	if err := w.addWatchesRecursive(path); err != nil {
		w.logger.Warn("Failed to watch new directory",
			"path", path,
			"error", err)
		return
	}

	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if _, ok := w.match(p); ok {
			w.pendingMu.Lock()
			w.pending[p] = fsnotify.Create
			w.pendingMu.Unlock()
		}
		return nil
	})
}

// flushPending ingests accumulated changes
func (w *Watcher) flushPending(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	toProcess := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path, op := range toProcess {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				rel, _ := w.match(path)
				w.forget(rel)
				w.logger.Debug("Model file removed, stored model kept", "path", rel)
				continue
			}
		}

		operation := OpModify
		if op.Has(fsnotify.Create) {
			operation = OpCreate
		}
		if event, changed := w.ingest(ctx, path, operation); changed {
			w.sendEvent(event)
		}
	}
}

// ingest reads and ingests path. It reports false when the content matches
// the last ingested version.
func (w *Watcher) ingest(ctx context.Context, path string, op Operation) (Event, bool) {
	rel, _ := filepath.Rel(w.config.Dir, path)
	rel = filepath.ToSlash(rel)
	event := Event{Path: rel, Operation: op}

	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return event, false
		}
		event.Error = err
		return event, true
	}
	// A file is often seen between create and first write.
	if len(body) == 0 {
		return event, false
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	w.hashMu.RLock()
	old, had := w.hashes[rel]
	w.hashMu.RUnlock()
	if had && old == hash {
		return event, false
	}
	if !had {
		event.Operation = OpCreate
	}

	// Record the hash even on failure so a bad file is not retried until it
	// changes.
	w.hashMu.Lock()
	w.hashes[rel] = hash
	w.hashMu.Unlock()

	event.Result, event.Error = w.ingester.IngestModel(ctx, body)
	return event, true
}

func (w *Watcher) forget(rel string) {
	w.hashMu.Lock()
	delete(w.hashes, rel)
	w.hashMu.Unlock()
}

// sendEvent sends an event to the output channel
func (w *Watcher) sendEvent(event Event) {
	select {
	case w.events <- event:
		w.logger.Debug("Sent model event",
			"path", event.Path,
			"op", event.Operation)
	default:
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path)
	}
}

// hiddenPath reports whether any segment of a slash-separated path is hidden.
func hiddenPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
