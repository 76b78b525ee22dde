// Package hub provides a self-hostable remote store for the school document.
//
// The hub speaks both remote shapes the client understands. Over plain HTTP
// it behaves like the spreadsheet web app: GET / returns the whole document
// and POST / accepts one section or a table export. Over /ws it is the push
// backend: clients fetch a snapshot, save sections, and receive every
// section another client saves.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// MaxBody bounds a POST body and a websocket frame.
const MaxBody = 16 << 20

var (
	// ErrUnknownSection is returned for a save naming no known section.
	ErrUnknownSection = errors.New("unknown section")

	// ErrInvalidValue is returned for a save whose value is not JSON.
	ErrInvalidValue = errors.New("section value is not valid JSON")
)

// Persister stores what the hub accepts. *cache.Cache implements it.
type Persister interface {
	Load(ctx context.Context) (document.Document, error)
	SaveSection(ctx context.Context, key string, raw json.RawMessage) error
	SaveTables(ctx context.Context, tables remote.Tables) error
	LoadTables(ctx context.Context) (remote.Tables, error)
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// Store persists accepted saves (default: memory only)
	Store Persister

	// Registry receives the hub metrics (default: a private registry)
	Registry *prometheus.Registry

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.New(os.Stderr, "[hub] ", log.LstdFlags),
	}
}

// Server holds the document and the connected websocket clients.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	store Persister

	// mu orders every change to doc with the frames it produces, so each
	// client sees snapshots and updates in the order they were applied.
	mu     sync.RWMutex
	doc    document.Document
	tables remote.Tables

	clients   map[*client]bool
	clientsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	registry *prometheus.Registry
	metrics  *metrics
	logger   *log.Logger
}

// NewServer creates a hub. Call Load to restore persisted state before
// serving.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = DefaultConfig().Logger
	}
	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:     fmt.Sprintf(":%d", config.Port),
		store:    config.Store,
		doc:      document.Document{},
		tables:   remote.Tables{},
		clients:  make(map[*client]bool),
		ctx:      ctx,
		cancel:   cancel,
		registry: registry,
		metrics:  newMetrics(registry),
		logger:   logger,
	}
}

// Load restores the document and export tables from the store.
func (s *Server) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	doc, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	tables, err := s.store.LoadTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to load export tables: %w", err)
	}

	s.mu.Lock()
	s.doc = document.Document{}
	s.doc.Merge(doc)
	s.tables = tables
	s.mu.Unlock()

	s.logger.Printf("Loaded %d sections and %d tables", len(s.doc.Present()), len(tables))
	return nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleFetch)
	r.Post("/", s.handlePost)
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Get("/tables/{name}", s.handleTable)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return r
}

// Start begins serving on the configured port.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Hub listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Println("Stopping hub")

	s.cancel()

	s.clientsMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
		delete(s.clients, c)
	}
	s.clientsMu.Unlock()
	for _, c := range clients {
		c.close("Server shutting down")
	}
	s.metrics.clients.Set(0)

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Hub stopped")
	return nil
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Snapshot returns a copy of the current document.
func (s *Server) Snapshot() document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Save applies one section and pushes it to every websocket client.
func (s *Server) Save(ctx context.Context, key string, value json.RawMessage) error {
	return s.save(ctx, nil, key, value, 0)
}

// save applies one section and pushes it to every websocket client except
// from, which gets an ack for request id instead.
func (s *Server) save(ctx context.Context, from *client, key string, value json.RawMessage, id uint64) error {
	if !document.IsSection(key) {
		s.metrics.rejected.Inc()
		return fmt.Errorf("%w: %q", ErrUnknownSection, key)
	}
	if !json.Valid(value) {
		s.metrics.rejected.Inc()
		return fmt.Errorf("%w: %s", ErrInvalidValue, key)
	}

	update, err := json.Marshal(document.Document{key: value})
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveSection(ctx, key, value); err != nil {
			return fmt.Errorf("failed to persist section %s: %w", key, err)
		}
	}
	s.doc.Set(key, value)
	s.metrics.saves.WithLabelValues(key).Inc()

	for _, c := range s.clientList() {
		if c != from {
			c.enqueue(remote.Frame{Type: remote.FrameUpdate, Data: update})
		}
	}
	if from != nil {
		from.enqueue(remote.Frame{Type: remote.FrameAck, ID: id})
	}
	s.logger.Printf("Section %s saved (%d bytes)", key, len(value))
	return nil
}

// Export stores denormalized tables, replacing tables of the same name.
func (s *Server) Export(ctx context.Context, tables remote.Tables) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveTables(ctx, tables); err != nil {
			return fmt.Errorf("failed to persist tables: %w", err)
		}
	}
	for name, rows := range tables {
		s.tables[name] = rows
	}
	s.metrics.exports.Inc()
	s.logger.Printf("Exported %d tables", len(tables))
	return nil
}

// Table returns the rows of an exported table.
func (s *Server) Table(name string) ([]remote.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.tables[name]
	return rows, ok
}

// encodeDocLocked returns the document as JSON, or null when it holds no
// sections. Callers hold s.mu.
func (s *Server) encodeDocLocked() (json.RawMessage, error) {
	if len(s.doc.Present()) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(s.doc)
}

func (s *Server) clientList() []*client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}
