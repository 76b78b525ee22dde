package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/state"
)

// ErrEmptyRemote marks a load that reached the remote but found no
// document. Local values are kept.
var ErrEmptyRemote = errors.New("remote document is empty")

// CoordinatorConfig holds configuration for the load coordinator.
type CoordinatorConfig struct {
	// Subscribe makes a push-capable store deliver the initial load and
	// every later change through a subscription instead of a one-shot
	// fetch.
	Subscribe bool

	// Logger for load activity
	Logger *log.Logger
}

// DefaultCoordinatorConfig returns sensible defaults.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		Subscribe: true,
		Logger:    log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// Coordinator hydrates the container from the remote store once per
// session, and afterwards applies pushed or polled remote changes.
type Coordinator struct {
	store     remote.Store
	container *state.Container
	session   *Session
	config    *CoordinatorConfig

	once      sync.Once
	firstOnce sync.Once
	firstDone chan struct{}

	mu          sync.Mutex
	unsubscribe func()
}

// NewCoordinator creates a coordinator. A nil config uses the defaults.
func NewCoordinator(store remote.Store, container *state.Container, session *Session, config *CoordinatorConfig) *Coordinator {
	if config == nil {
		config = DefaultCoordinatorConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultCoordinatorConfig().Logger
	}
	return &Coordinator{
		store:     store,
		container: container,
		session:   session,
		config:    config,
		firstDone: make(chan struct{}),
	}
}

// Load runs the load attempt. Only the first call does any work; later
// calls return the phase the first one reached. Failures are recorded in
// the session, never returned: every terminal phase permits the user to
// continue.
//
// When the store pushes changes and subscriptions are enabled, Load
// returns after the first callback (or when ctx ends), and the
// subscription keeps applying remote changes until Close.
func (c *Coordinator) Load(ctx context.Context) Phase {
	c.once.Do(func() { c.load(ctx) })
	return c.session.Phase()
}

func (c *Coordinator) load(ctx context.Context) {
	if !c.store.IsConfigured() {
		c.session.beginLoad(false)
		c.session.finishLoad(PhaseReadyLocal, StatusDisconnected, nil)
		c.config.Logger.Println("No remote store configured, running local-only")
		return
	}

	c.session.beginLoad(true)

	if sub, ok := c.store.(remote.Subscriber); ok && c.config.Subscribe {
		c.loadSubscribed(ctx, sub)
		return
	}

	c.config.Logger.Println("Fetching remote document")
	doc, err := c.store.FetchAll(ctx)
	c.finishFirst(doc, err)
}

func (c *Coordinator) loadSubscribed(ctx context.Context, sub remote.Subscriber) {
	c.config.Logger.Println("Subscribing to remote document")
	unsubscribe := sub.Subscribe(context.WithoutCancel(ctx), func(doc document.Document, err error) {
		first := false
		c.firstOnce.Do(func() {
			first = true
			c.finishFirst(doc, err)
		})
		if !first {
			c.applyLive(doc, err)
		}
	})

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	select {
	case <-c.firstDone:
	case <-ctx.Done():
		c.firstOnce.Do(func() {
			c.finishFirst(nil, fmt.Errorf("waiting for first snapshot: %w", ctx.Err()))
		})
	}
}

// finishFirst ends the load attempt with the outcome of the first fetch
// or subscription callback.
func (c *Coordinator) finishFirst(doc document.Document, err error) {
	defer close(c.firstDone)

	switch {
	case err != nil:
		c.config.Logger.Printf("Load failed, keeping local values: %v", err)
		c.session.finishLoad(PhaseReadyError, StatusError, err)
	case doc == nil:
		c.config.Logger.Println("Remote document is empty, keeping local values")
		c.session.finishLoad(PhaseReadyError, StatusError, ErrEmptyRemote)
	default:
		replaced := c.container.Hydrate(doc)
		c.config.Logger.Printf("Loaded %d sections from remote", len(replaced))
		c.session.finishLoad(PhaseReadySynced, StatusConnected, nil)
	}
}

// applyLive re-applies a remote change after the load finished. A nil
// document carries nothing to apply.
func (c *Coordinator) applyLive(doc document.Document, err error) {
	if err != nil {
		c.config.Logger.Printf("Remote update failed: %v", err)
		c.session.setStatus(StatusError, err)
		return
	}
	if doc != nil {
		if replaced := c.container.Hydrate(doc); len(replaced) > 0 {
			c.config.Logger.Printf("Applied remote update: %v", replaced)
		}
	}
	c.session.setStatus(StatusConnected, nil)
}

// Refresh fetches the remote document again and applies it like a pushed
// update. It is how poll-only stores pick up changes made elsewhere.
func (c *Coordinator) Refresh(ctx context.Context) error {
	if !c.session.IsLoaded() {
		return fmt.Errorf("refresh before load")
	}
	configured := c.store.IsConfigured()
	c.session.beginRefresh(configured)
	if !configured {
		return remote.ErrNotConfigured
	}

	doc, err := c.store.FetchAll(ctx)
	c.applyLive(doc, err)
	return err
}

// Poll calls Refresh every interval until ctx ends. A non-positive
// interval polls every 30 seconds.
func (c *Coordinator) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Refresh(ctx)
		}
	}
}

// Subscribed reports whether remote changes arrive through a subscription.
func (c *Coordinator) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribe != nil
}

// Close ends the subscription, if any. It is safe to call more than once.
func (c *Coordinator) Close() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
