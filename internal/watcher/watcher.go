package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
)

// DefaultDebounce is how long a file must be quiet before it is re-linted.
const DefaultDebounce = 300 * time.Millisecond

// Event is the result of re-reading one changed formula file.
type Event struct {
	Path       string
	Removed    bool
	Descriptor *formula.Descriptor
	Issues     []lint.Issue
	Err        error
}

// Handler receives events. Calls are serialized.
type Handler func(Event)

// Watcher re-lints formula files in a directory as they change.
type Watcher struct {
	dir      string
	linter   *lint.Linter
	handler  Handler
	logger   zerolog.Logger
	Debounce time.Duration

	fsw     *fsnotify.Watcher
	ready   chan string
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a Watcher for dir.
func New(dir string, linter *lint.Linter, handler Handler, logger zerolog.Logger) (*Watcher, error) {
	if linter == nil {
		return nil, fmt.Errorf("linter cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	return &Watcher{
		dir:      dir,
		linter:   linter,
		handler:  handler,
		logger:   logger,
		Debounce: DefaultDebounce,
		ready:    make(chan string, 64),
		stopCh:   make(chan struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start subscribes to the directory and begins delivering events.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop()

	w.logger.Info().Str("dir", w.dir).Msg("watching formulae")
	return nil
}

// Stop unsubscribes and waits for the event loop to exit. Pending
// debounced files are dropped.
func (w *Watcher) Stop() error {
	close(w.stopCh)

	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	return err
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isFormula(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ev.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("watch error")

		case path := <-w.ready:
			w.handler(w.process(path))

		case <-w.stopCh:
			return
		}
	}
}

// schedule (re)starts the quiet timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(w.Debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-w.stopCh:
		}
	})
}

func (w *Watcher) process(path string) Event {
	ev := Event{Path: path}

	d, err := formula.ParseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			ev.Removed = true
			w.logger.Debug().Str("file", path).Msg("formula removed")
			return ev
		}
		ev.Err = err
		return ev
	}

	ev.Descriptor = d
	ev.Issues = w.linter.Descriptor(d)
	w.logger.Debug().
		Str("file", path).
		Int("issues", len(ev.Issues)).
		Msg("formula re-linted")
	return ev
}

func isFormula(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".rb") && !strings.HasPrefix(base, ".")
}
