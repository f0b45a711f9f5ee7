package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/poiesic/dataroom/core"
)

// DefaultDebounce is how long a file must stay quiet before it is ingested.
const DefaultDebounce = 500 * time.Millisecond

// IngestHook observes every file the watcher attempts to ingest.
type IngestHook func(path string, result *Result, err error)

// Watcher ingests text files appearing in a directory into one task.
// A changed file or sidecar replaces the document previously ingested from
// the same path.
type Watcher struct {
	pipeline *Pipeline
	taskID   string
	dir      string
	debounce time.Duration
	hook     IngestHook
	logger   *slog.Logger

	mu      sync.Mutex
	current map[string]string // path -> document ID last ingested from it
	timers  map[string]*time.Timer
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long writes to a file must settle before ingestion.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIngestHook registers a callback for every ingestion attempt.
func WithIngestHook(hook IngestHook) WatcherOption {
	return func(w *Watcher) {
		w.hook = hook
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher feeding files under dir into taskID.
func NewWatcher(pipeline *Pipeline, taskID, dir string, opts ...WatcherOption) (*Watcher, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	w := &Watcher{
		pipeline: pipeline,
		taskID:   taskID,
		dir:      dir,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		current:  make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "watcher", "task", taskID, "dir", dir)
	return w, nil
}

// DocumentID derives a stable document ID from a file's task, path, content
// and sidecar fields. Rewriting either file with new content yields a new
// document. An empty sidecar is the same as none.
func DocumentID(taskID, path string, content, fields []byte) string {
	name := fmt.Sprintf("%s\x00%s\x00%016x", taskID, filepath.Clean(path), uint64(core.IDFromContent(string(content))))
	if len(fields) > 0 {
		name += fmt.Sprintf("\x00%016x", uint64(core.IDFromContent(string(fields))))
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Scan ingests every eligible file already present in the directory.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// Run scans the directory and then ingests new or changed files until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(w.dir); err != nil {
		return err
	}
	if err := w.Scan(ctx); err != nil {
		return err
	}

	ready := make(chan string, 16)
	defer w.stopTimers()

	w.logger.Info("watching for documents")
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event, ready)
		case path := <-ready:
			w.ingestFile(ctx, path)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event, ready chan<- string) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	// A sidecar change re-ingests its text file.
	if strings.HasSuffix(path, FieldsSuffix) {
		path = w.textFileFor(path)
		if path == "" {
			return
		}
	}
	if !IsIngestible(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

// textFileFor finds the text file a sidecar belongs to.
func (w *Watcher) textFileFor(sidecar string) string {
	stem := strings.TrimSuffix(sidecar, FieldsSuffix)
	for ext := range ingestibleExtensions {
		if info, err := os.Stat(stem + ext); err == nil && !info.IsDir() {
			return stem + ext
		}
	}
	return ""
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || !IsIngestible(path) {
		return
	}

	content, err := os.ReadFile(path)
	if err != nil {
		w.report(path, nil, err)
		return
	}
	fields, err := os.ReadFile(FieldsPath(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		w.report(path, nil, err)
		return
	}
	docID := DocumentID(w.taskID, path, content, fields)

	w.mu.Lock()
	if w.current[path] == docID {
		w.mu.Unlock()
		return
	}
	w.current[path] = docID
	w.mu.Unlock()

	doc, err := DocumentFromFile(w.taskID, docID, path)
	if err != nil {
		w.forget(path, docID)
		w.report(path, nil, err)
		return
	}
	result, err := w.pipeline.Ingest(ctx, doc)
	switch {
	case errors.Is(err, ErrDocumentExists):
		w.logger.Debug("document already ingested", "path", path, "doc", docID)
	case err != nil:
		w.forget(path, docID)
		w.report(path, nil, err)
		return
	}
	w.retire(ctx, path, docID)
	if result != nil {
		w.report(path, result, nil)
	}
}

// retire removes every document previously ingested from path other than docID.
func (w *Watcher) retire(ctx context.Context, path, docID string) {
	for _, old := range w.pipeline.registry.Documents(w.taskID, core.MetadataPath, path) {
		if old == docID {
			continue
		}
		removed, err := w.pipeline.Remove(ctx, w.taskID, old)
		if err != nil {
			w.logger.Error("failed to remove replaced document", "path", path, "doc", old, "err", err)
			continue
		}
		w.logger.Info("replaced document", "path", path, "doc", old, "chunks", removed)
	}
}

// forget lets a failed ingestion be retried by the next event for path.
func (w *Watcher) forget(path, docID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current[path] == docID {
		delete(w.current, path)
	}
}

func (w *Watcher) report(path string, result *Result, err error) {
	if err != nil {
		w.logger.Error("failed to ingest file", "path", path, "err", err)
	}
	if w.hook != nil {
		w.hook(path, result, err)
	}
}
