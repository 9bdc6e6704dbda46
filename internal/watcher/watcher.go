// Package watcher triggers rebuilds when bookmarklet script assets change.
// Rapid bursts of filesystem events are debounced into a single batch so one
// editor save does not cause several rebuild cycles.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeEvent is one debounced file change.
type ChangeEvent struct {
	Type EventType
	Path string
}

// EventType classifies a file change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType.
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// Filter reports whether a changed path is interesting. All filters must
// accept a path for it to reach handlers.
type Filter func(path string) bool

// Handler receives one debounced batch of changes.
type Handler func(events []ChangeEvent) error

// SuffixFilter accepts files ending in the given suffix pattern.
func SuffixFilter(suffix string) Filter {
	return func(path string) bool {
		return strings.HasSuffix(path, suffix)
	}
}

// NoHiddenFilter rejects paths with a dot-prefixed element, which covers
// .git, .marklet output, and editor swap directories.
func NoHiddenFilter(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return false
		}
	}
	return true
}

// NoNodeModulesFilter rejects anything under node_modules.
func NoNodeModulesFilter(path string) bool {
	return !strings.Contains(filepath.ToSlash(path), "/node_modules/")
}

// FileWatcher watches asset directories and delivers debounced change
// batches to registered handlers.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	delay    time.Duration
	filters  []Filter
	handlers []Handler
	mutex    sync.RWMutex

	pending    []ChangeEvent
	pendingMu  sync.Mutex
	timer      *time.Timer
	batches    chan []ChangeEvent
	errHandler func(error)
}

// New creates a file watcher with the given debounce delay.
func New(debounceDelay time.Duration) (*FileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: fsWatcher,
		delay:   debounceDelay,
		batches: make(chan []ChangeEvent, 10),
	}, nil
}

// AddFilter adds a path filter.
func (fw *FileWatcher) AddFilter(filter Filter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler.
func (fw *FileWatcher) AddHandler(handler Handler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// OnError registers a callback for watch errors. Watch errors never stop the
// watcher.
func (fw *FileWatcher) OnError(fn func(error)) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.errHandler = fn
}

// AddRecursive watches root and all its subdirectories.
func (fw *FileWatcher) AddRecursive(root string) error {
	cleanRoot := filepath.Clean(root)
	if strings.Contains(cleanRoot, "..") {
		return fmt.Errorf("path contains directory traversal: %s", root)
	}

	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fw.watcher.Add(path)
		}
		return nil
	})
}

// Start launches the watch loop and the handler dispatcher. Both exit when
// ctx is canceled.
func (fw *FileWatcher) Start(ctx context.Context) {
	go fw.watchLoop(ctx)
	go fw.dispatch(ctx)
}

// Stop closes the underlying watcher and stops any pending debounce timer.
func (fw *FileWatcher) Stop() error {
	fw.pendingMu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.pendingMu.Unlock()

	return fw.watcher.Close()
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.mutex.RLock()
			errHandler := fw.errHandler
			fw.mutex.RUnlock()
			if errHandler != nil {
				errHandler(err)
			}
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var eventType EventType
	switch {
	case event.Op.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Op.Has(fsnotify.Write):
		eventType = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		eventType = EventTypeDeleted
	case event.Op.Has(fsnotify.Rename):
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	fw.pendingMu.Lock()
	defer fw.pendingMu.Unlock()

	fw.pending = append(fw.pending, ChangeEvent{Type: eventType, Path: event.Name})
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.delay, fw.flush)
}

func (fw *FileWatcher) flush() {
	fw.pendingMu.Lock()
	batch := fw.pending
	fw.pending = nil
	fw.pendingMu.Unlock()

	if len(batch) == 0 {
		return
	}

	select {
	case fw.batches <- batch:
	default:
		// Dispatcher is behind; the next flush carries fresh state anyway.
	}
}

func (fw *FileWatcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-fw.batches:
			fw.mutex.RLock()
			handlers := fw.handlers
			errHandler := fw.errHandler
			fw.mutex.RUnlock()

			for _, handler := range handlers {
				if err := handler(batch); err != nil && errHandler != nil {
					errHandler(err)
				}
			}
		}
	}
}
