// Package realtime implements the push backend: a websocket connection to
// a hub that answers requests and broadcasts every section another client
// saves.
//
// Requests (fetch, save, export_tables) carry an id that the hub echoes in
// its reply. Frames with id 0 are pushed updates and go to subscribers.
// The connection is dialed lazily on first use and redialed after a drop
// while subscribers are registered.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// ReadLimit bounds one websocket frame. A whole document travels in a
// single snapshot frame.
const ReadLimit = 16 << 20

// Config holds configuration for the websocket backend.
type Config struct {
	// Endpoint yields the hub URL (http, https, ws or wss). The websocket
	// path /ws is appended unless the URL already names it.
	Endpoint remote.EndpointSource

	// DialTimeout bounds connection setup (default: 10s)
	DialTimeout time.Duration

	// MaxReconnect bounds how long a dropped subscription keeps redialing
	// (default: 5m)
	MaxReconnect time.Duration

	// Attempts bounds FetchAll retries (default: 3)
	Attempts uint

	// RetryDelay is the fixed pause between attempts (default: 1.5s)
	RetryDelay time.Duration

	// Logger for connection activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for endpoint.
func DefaultConfig(endpoint remote.EndpointSource) *Config {
	return &Config{
		Endpoint:     endpoint,
		DialTimeout:  10 * time.Second,
		MaxReconnect: 5 * time.Minute,
		Attempts:     3,
		RetryDelay:   1500 * time.Millisecond,
		Logger:       log.New(os.Stderr, "[realtime] ", log.LstdFlags),
	}
}

// Client is a websocket connection to a hub.
type Client struct {
	cfg Config

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	nextID  uint64
	pending map[uint64]chan remote.Frame

	subMu   sync.Mutex
	subs    map[int]remote.UpdateFunc
	nextSub int

	reconnecting bool
}

var (
	_ remote.Store      = (*Client)(nil)
	_ remote.Subscriber = (*Client)(nil)
)

// New creates a Client. No connection is made until the first request.
func New(cfg *Config) *Client {
	def := DefaultConfig(nil)
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Endpoint == nil {
		c.Endpoint = remote.StaticEndpoint("")
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.MaxReconnect <= 0 {
		c.MaxReconnect = def.MaxReconnect
	}
	if c.Attempts == 0 {
		c.Attempts = def.Attempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:     c,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]chan remote.Frame),
		subs:    make(map[int]remote.UpdateFunc),
	}
}

// SocketURL converts a hub URL into its websocket URL. It returns "" for
// anything that is not an absolute http(s) or ws(s) URL.
func SocketURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return ""
	}
	if !strings.HasSuffix(u.Path, "/ws") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	}
	u.RawQuery = ""
	return u.String()
}

// IsConfigured implements remote.Store.
func (c *Client) IsConfigured() bool {
	return SocketURL(c.cfg.Endpoint.Endpoint()) != ""
}

// FetchAll implements remote.Store. Transport failures, including a hub
// that refuses the upgrade, are retried up to Attempts times with a fixed
// delay.
func (c *Client) FetchAll(ctx context.Context) (document.Document, error) {
	attempt := 0
	operation := func() (document.Document, error) {
		attempt++
		doc, err := c.fetchOnce(ctx)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, remote.ErrTransport) || ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		c.cfg.Logger.Printf("Fetch attempt %d/%d failed: %v", attempt, c.cfg.Attempts, err)
		return nil, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryDelay)),
		backoff.WithMaxTries(c.cfg.Attempts),
	)
}

func (c *Client) fetchOnce(ctx context.Context) (document.Document, error) {
	reply, err := c.request(ctx, remote.Frame{Type: remote.FrameFetch})
	if err != nil {
		return nil, err
	}
	if reply.Type != remote.FrameSnapshot {
		return nil, fmt.Errorf("%w: expected snapshot, got %q", remote.ErrMalformedResponse, reply.Type)
	}
	doc, err := remote.DecodeDocument(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remote.ErrMalformedResponse, err)
	}
	return doc, nil
}

// Save implements remote.Store.
func (c *Client) Save(ctx context.Context, key string, value json.RawMessage) error {
	if _, err := c.request(ctx, remote.Frame{Type: remote.FrameSave, Key: key, Value: value}); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// ExportTables implements remote.Store.
func (c *Client) ExportTables(ctx context.Context, tables remote.Tables) error {
	data, err := json.Marshal(tables)
	if err != nil {
		return fmt.Errorf("failed to encode tables: %w", err)
	}
	if _, err := c.request(ctx, remote.Frame{Type: remote.FrameExport, Data: data}); err != nil {
		return fmt.Errorf("export tables: %w", err)
	}
	return nil
}

// Subscribe implements remote.Subscriber. The initial snapshot is fetched
// in the background and handed to fn like any later update. When that
// fetch fails on the transport, fn gets the error and the client keeps
// redialing like after a drop.
func (c *Client) Subscribe(ctx context.Context, fn remote.UpdateFunc) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	go func() {
		doc, err := c.FetchAll(ctx)
		if !c.subscribed(id) {
			return
		}
		fn(doc, err)
		if errors.Is(err, remote.ErrTransport) && ctx.Err() == nil {
			c.reconnect()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, id)
			c.subMu.Unlock()
		})
	}
}

// Close drops the connection. Pending requests fail with remote.ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	c.cancel()
	c.cfg.Logger.Println("Connection closed")
	return nil
}

func (c *Client) subscribed(id int) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	_, ok := c.subs[id]
	return ok
}

func (c *Client) subscribers() []remote.UpdateFunc {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	fns := make([]remote.UpdateFunc, 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return fns
}

// request sends f with a fresh id and waits for the matching reply.
func (c *Client) request(ctx context.Context, f remote.Frame) (remote.Frame, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return remote.Frame{}, err
	}

	c.mu.Lock()
	c.nextID++
	f.ID = c.nextID
	ch := make(chan remote.Frame, 1)
	c.pending[f.ID] = ch
	c.mu.Unlock()

	if err := wsjson.Write(ctx, conn, f); err != nil {
		c.forget(f.ID)
		if ctx.Err() != nil {
			return remote.Frame{}, ctx.Err()
		}
		c.drop(conn, err)
		return remote.Frame{}, fmt.Errorf("%w: %v", remote.ErrTransport, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			if c.isClosed() {
				return remote.Frame{}, remote.ErrClosed
			}
			return remote.Frame{}, fmt.Errorf("%w: connection lost", remote.ErrTransport)
		}
		if reply.Type == remote.FrameError {
			return remote.Frame{}, fmt.Errorf("%w: hub rejected request: %s", remote.ErrTransport, reply.Error)
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(f.ID)
		return remote.Frame{}, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// connect returns the live connection, dialing one if needed.
func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, remote.ErrClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	wsURL := SocketURL(c.cfg.Endpoint.Endpoint())
	if wsURL == "" {
		return nil, remote.ErrNotConfigured
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: dial %s: %v", remote.ErrTransport, wsURL, err)
	}
	conn.SetReadLimit(ReadLimit)
	c.conn = conn
	c.cfg.Logger.Printf("Connected to %s", wsURL)

	go c.readLoop(conn)
	return conn, nil
}

// readLoop routes replies to their waiting request and pushed updates to
// subscribers until the connection fails.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var f remote.Frame
		if err := wsjson.Read(c.ctx, conn, &f); err != nil {
			c.drop(conn, err)
			return
		}

		if f.ID != 0 {
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
			continue
		}

		if f.Type != remote.FrameUpdate {
			c.cfg.Logger.Printf("Ignoring unsolicited %q frame", f.Type)
			continue
		}
		doc, err := remote.DecodeDocument(f.Data)
		if err != nil {
			c.cfg.Logger.Printf("Dropping malformed update: %v", err)
			continue
		}
		for _, fn := range c.subscribers() {
			fn(doc.Clone(), nil)
		}
	}
}

// drop discards conn after a failure, fails every pending request, and
// tells subscribers the connection was lost.
func (c *Client) drop(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closed := c.closed
	c.failPendingLocked()
	c.mu.Unlock()

	_ = conn.CloseNow()
	if closed || errors.Is(cause, context.Canceled) {
		return
	}

	c.cfg.Logger.Printf("Connection lost: %v", cause)
	subs := c.subscribers()
	if len(subs) == 0 {
		return
	}
	err := fmt.Errorf("%w: connection lost: %v", remote.ErrTransport, cause)
	for _, fn := range subs {
		fn(nil, err)
	}
	c.reconnect()
}

func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// reconnect redials in the background with exponential backoff and hands
// subscribers a fresh snapshot once the hub answers again.
func (c *Client) reconnect() {
	c.subMu.Lock()
	if c.reconnecting {
		c.subMu.Unlock()
		return
	}
	c.reconnecting = true
	c.subMu.Unlock()

	go func() {
		defer func() {
			c.subMu.Lock()
			c.reconnecting = false
			c.subMu.Unlock()
		}()

		doc, err := backoff.Retry(c.ctx, func() (document.Document, error) {
			if c.isClosed() {
				return nil, backoff.Permanent(remote.ErrClosed)
			}
			return c.fetchOnce(c.ctx)
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxElapsedTime(c.cfg.MaxReconnect),
		)
		if err != nil {
			if !c.isClosed() {
				c.cfg.Logger.Printf("Giving up reconnecting: %v", err)
			}
			return
		}
		c.cfg.Logger.Printf("Reconnected")
		for _, fn := range c.subscribers() {
			fn(doc.Clone(), nil)
		}
	}()
}
