package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpWrite indicates a file was created or modified.
	OpWrite EventOp = iota
	// OpRemove indicates a file was deleted or renamed away.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// FileKind tells which configuration file changed.
type FileKind int

const (
	// KindSettings is config.yaml.
	KindSettings FileKind = iota
	// KindEndpoint is the endpoint override file.
	KindEndpoint
)

// String returns a human-readable representation of the file kind.
func (k FileKind) String() string {
	switch k {
	case KindSettings:
		return "settings"
	case KindEndpoint:
		return "endpoint"
	default:
		return "unknown"
	}
}

// Event is a change to one of the configuration files.
type Event struct {
	Path string
	Kind FileKind
	Op   EventOp
}

// Watcher watches the configuration directory for changes to config.yaml
// and the endpoint override. The directory is watched rather than the
// files so that editors replacing a file by rename are noticed.
type Watcher struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	dir     string
}

// NewWatcher creates a new Watcher. It emits nothing until Start.
func NewWatcher() (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		watcher: watcher,
		events:  make(chan Event, 16),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching dir.
func (w *Watcher) Start(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve config directory %s: %w", dir, err)
	}
	if err := w.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	w.dir = abs
	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	return nil
}

// Stop stops watching and blocks until the event loop has exited. The
// Events and Errors channels are closed afterwards.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.wg.Wait()

	close(w.events)
	close(w.errors)

	return nil
}

// Events returns the channel of configuration changes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// IsRunning returns true if the watcher is currently running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := w.convertEvent(event); ok {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			case <-w.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event to an Event. Files other than the
// two configuration files, and chmod events, are ignored.
func (w *Watcher) convertEvent(event fsnotify.Event) (Event, bool) {
	if filepath.Dir(event.Name) != w.dir {
		return Event{}, false
	}

	var kind FileKind
	switch filepath.Base(event.Name) {
	case configFileExt:
		kind = KindSettings
	case EndpointFile:
		kind = KindEndpoint
	default:
		return Event{}, false
	}

	var op EventOp
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		op = OpWrite
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpRemove
	default:
		return Event{}, false
	}

	return Event{Path: event.Name, Kind: kind, Op: op}, true
}
