package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/state"
)

// BridgeConfig holds configuration for the change-to-sync bridge.
type BridgeConfig struct {
	// Debounce is how long the bridge waits after the last local change
	// before writing (default: 1s)
	Debounce time.Duration

	// WriteTimeout bounds one batch of writes; a batch that does not
	// finish in time turns the status to ERROR and its unfinished
	// sections stay pending (default: 15s)
	WriteTimeout time.Duration

	// Role decides which sections this session may write (default: admin)
	Role Role

	// Logger for write activity
	Logger *log.Logger
}

// DefaultBridgeConfig returns sensible defaults.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		Debounce:     time.Second,
		WriteTimeout: 15 * time.Second,
		Role:         RoleAdmin,
		Logger:       log.New(os.Stderr, "[bridge] ", log.LstdFlags),
	}
}

// Bridge forwards local container changes to the remote store.
type Bridge struct {
	store     remote.Store
	container *state.Container
	session   *Session
	config    *BridgeConfig

	debouncer *Debouncer

	mu      sync.Mutex
	dirty   map[string]bool
	armed   bool
	stop    func()
	lastErr error

	// writeMu keeps batches from overlapping.
	writeMu sync.Mutex

	dropped atomic.Int64
	written atomic.Int64
}

// NewBridge creates a bridge. It observes nothing until Arm.
func NewBridge(store remote.Store, container *state.Container, session *Session, config *BridgeConfig) *Bridge {
	def := DefaultBridgeConfig()
	if config == nil {
		config = def
	}
	cfg := *config
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Role == "" {
		cfg.Role = def.Role
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}

	b := &Bridge{
		store:     store,
		container: container,
		session:   session,
		config:    &cfg,
		dirty:     make(map[string]bool),
	}
	b.debouncer = NewDebouncer(cfg.Debounce, b.writeDirty)
	return b
}

// Arm starts observing the container. Values already in the container,
// including anything the coordinator hydrated, are not written. Calling
// Arm again has no effect.
func (b *Bridge) Arm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.armed {
		return
	}
	b.armed = true
	b.stop = b.container.Observe(b.observe)
}

// observe applies the write guards to one change.
func (b *Bridge) observe(change state.Change) {
	if change.Origin != state.OriginLocal {
		return
	}
	if !b.session.IsLoaded() || !b.store.IsConfigured() || !b.config.Role.CanWrite(change.Section) {
		b.dropped.Add(1)
		return
	}

	b.mu.Lock()
	b.dirty[change.Section] = true
	b.mu.Unlock()
	b.debouncer.Arm()
}

// Pending returns the sections waiting for the debounce timer, in
// canonical order.
func (b *Bridge) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, k := range document.Keys() {
		if b.dirty[k] {
			out = append(out, k)
		}
	}
	return out
}

// Dropped returns the number of local changes the guards discarded.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Written returns the number of sections written successfully.
func (b *Bridge) Written() int64 {
	return b.written.Load()
}

// Flush writes pending sections now instead of waiting for the timer,
// waits for any batch already in flight, and returns the error of the
// last batch.
func (b *Bridge) Flush() error {
	b.debouncer.Flush()
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

// Close stops observing, then flushes what is pending.
func (b *Bridge) Close() error {
	b.mu.Lock()
	stop := b.stop
	b.stop = nil
	b.mu.Unlock()
	if stop != nil {
		stop()
	}
	return b.Flush()
}

// writeDirty writes every dirty section with its current value. It runs
// on the debounce timer or from Flush.
func (b *Bridge) writeDirty() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.mu.Lock()
	var sections []string
	for _, k := range document.Keys() {
		if b.dirty[k] {
			sections = append(sections, k)
		}
	}
	b.dirty = make(map[string]bool)
	b.mu.Unlock()

	if len(sections) == 0 {
		return
	}

	b.session.setStatus(StatusSyncing, nil)

	ctx, cancel := context.WithTimeout(context.Background(), b.config.WriteTimeout)
	defer cancel()

	// Sections are independent: one failed write does not cancel the others.
	var (
		g        errgroup.Group
		failedMu sync.Mutex
		failed   []string
	)
	for _, key := range sections {
		value, ok := b.container.Section(key)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := b.store.Save(ctx, key, value); err != nil {
				failedMu.Lock()
				failed = append(failed, key)
				failedMu.Unlock()
				return fmt.Errorf("write %s: %w", key, err)
			}
			b.written.Add(1)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		// Saves still running would race the next batch; wait them out.
		<-done
		err = fmt.Errorf("write timed out after %s: %w", b.config.WriteTimeout, ctx.Err())
	}

	// Failed sections stay pending so the next batch writes their
	// current value again.
	b.mu.Lock()
	b.lastErr = err
	for _, key := range failed {
		b.dirty[key] = true
	}
	b.mu.Unlock()

	if err != nil {
		b.config.Logger.Printf("Sync failed for %v: %v", sections, err)
		b.session.setStatus(StatusError, err)
		return
	}
	b.config.Logger.Printf("Synced %v", sections)
	b.session.setStatus(StatusConnected, nil)
}
