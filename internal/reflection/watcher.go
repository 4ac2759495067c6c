package reflection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/ralph-memory/internal/episodic"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// transcriptExts are the file extensions the watcher treats as transcripts.
var transcriptExts = map[string]bool{".jsonl": true, ".txt": true}

// WatchResult is emitted once per settled transcript.
type WatchResult struct {
	Path     string
	Episode  *episodic.Episode
	Patterns *PatternRun
	Err      error
}

// Watcher runs the cold path over transcripts written to a directory.
//
// A transcript is processed once it has not been written for the settle
// interval, so a file still being appended to is extracted only after the
// session goes quiet. Each further burst of writes extracts it again.
type Watcher struct {
	exec    *Executor
	dir     string
	project string
	settle  time.Duration
	logger  *zap.Logger

	watcher *fsnotify.Watcher
	results chan WatchResult
	stop    chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewWatcher creates a watcher over dir. project may be empty, in which
// case each transcript's parent directory name is used.
func NewWatcher(exec *Executor, dir, project string) (*Watcher, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	settle := exec.cfg.ColdPath.WatchSettle.Duration()
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		exec:    exec,
		dir:     dir,
		project: project,
		settle:  settle,
		logger:  exec.logger.Named("watcher"),
		watcher: fw,
		results: make(chan WatchResult, 16),
		stop:    make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Processing happens in background goroutines until
// Stop is called or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching transcripts",
		zap.String("dir", w.dir),
		zap.Duration("settle", w.settle))

	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and cancels pending extractions.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}

	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
}

// Results returns the channel of processed transcripts.
func (w *Watcher) Results() <-chan WatchResult {
	return w.results
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !transcriptExts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule (re)arms the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() { w.process(ctx, path) })
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	select {
	case <-w.stop:
		return
	default:
	}

	project := w.project
	if project == "" {
		project = filepath.Base(filepath.Dir(path))
	}

	res := WatchResult{Path: path}
	res.Episode, res.Err = w.exec.Extract(ctx, path, project, "")
	if res.Err == nil {
		res.Patterns, res.Err = w.exec.RunPatterns(ctx)
	}
	if res.Err != nil {
		w.logger.Warn("transcript processing failed", zap.String("path", path), zap.Error(res.Err))
	}

	select {
	case w.results <- res:
	case <-w.stop:
	case <-ctx.Done():
	}
}
