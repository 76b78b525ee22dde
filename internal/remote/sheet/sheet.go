// Package sheet implements the polling HTTP backend: a spreadsheet web app
// (or a hub) that returns the whole document on GET and accepts one
// section per POST.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// Config holds configuration for the HTTP backend.
type Config struct {
	// Endpoint yields the web app URL. It is consulted on every call, so
	// a runtime override takes effect without rebuilding the client.
	Endpoint remote.EndpointSource

	// Client performs the requests (default: 30s timeout client)
	Client *http.Client

	// Attempts bounds FetchAll retries (default: 3)
	Attempts uint

	// RetryDelay is the fixed pause between attempts (default: 1.5s)
	RetryDelay time.Duration

	// Logger for backend activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults for endpoint.
func DefaultConfig(endpoint remote.EndpointSource) *Config {
	return &Config{
		Endpoint:   endpoint,
		Client:     &http.Client{Timeout: 30 * time.Second},
		Attempts:   3,
		RetryDelay: 1500 * time.Millisecond,
		Logger:     log.New(os.Stderr, "[sheet] ", log.LstdFlags),
	}
}

// Client talks to the HTTP endpoint.
type Client struct {
	cfg Config
	now func() time.Time
}

var _ remote.Store = (*Client)(nil)

// New creates a Client. Zero fields of cfg take their defaults.
func New(cfg *Config) *Client {
	def := DefaultConfig(nil)
	if cfg == nil {
		cfg = def
	}
	c := *cfg
	if c.Endpoint == nil {
		c.Endpoint = remote.StaticEndpoint("")
	}
	if c.Client == nil {
		c.Client = def.Client
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
	return &Client{cfg: c, now: time.Now}
}

// ValidEndpoint reports whether raw is an absolute http(s) URL with a host.
func ValidEndpoint(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "https" || u.Scheme == "http") && u.Host != ""
}

// IsConfigured implements remote.Store.
func (c *Client) IsConfigured() bool {
	return ValidEndpoint(c.cfg.Endpoint.Endpoint())
}

// FetchAll implements remote.Store. Transport failures and 5xx statuses
// are retried up to Attempts times with a fixed delay; an HTML page or an
// unparsable body fails immediately with remote.ErrMalformedResponse.
func (c *Client) FetchAll(ctx context.Context) (document.Document, error) {
	endpoint := c.cfg.Endpoint.Endpoint()
	if !ValidEndpoint(endpoint) {
		return nil, remote.ErrNotConfigured
	}

	attempt := 0
	operation := func() (document.Document, error) {
		attempt++
		doc, err := c.fetchOnce(ctx, endpoint)
		if err != nil && !errors.Is(err, remote.ErrMalformedResponse) && ctx.Err() == nil {
			c.cfg.Logger.Printf("Fetch attempt %d/%d failed: %v", attempt, c.cfg.Attempts, err)
		}
		return doc, err
	}

	c.cfg.Logger.Printf("Fetching document from %s", redact(endpoint))
	doc, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryDelay)),
		backoff.WithMaxTries(c.cfg.Attempts),
	)
	if err != nil {
		return nil, err
	}
	c.cfg.Logger.Printf("Fetched document (%d sections)", len(doc.Present()))
	return doc, nil
}

func (c *Client) fetchOnce(ctx context.Context, endpoint string) (document.Document, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", remote.ErrNotConfigured, err))
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", remote.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %v", remote.ErrTransport, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", remote.ErrTransport, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("%w: status %d", remote.ErrTransport, resp.StatusCode))
	}

	return parseDocument(body)
}

// parseDocument validates a fetch body. The web app answers a missing
// deployment permission with an HTML login page and status 200.
func parseDocument(body []byte) (document.Document, error) {
	text := strings.TrimSpace(string(body))
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") {
		return nil, backoff.Permanent(fmt.Errorf("%w: received an HTML page; the web app may require login", remote.ErrMalformedResponse))
	}
	if text == "" || text == "null" {
		return nil, nil
	}
	if !gjson.Valid(text) {
		return nil, backoff.Permanent(fmt.Errorf("%w: invalid JSON (%s)", remote.ErrMalformedResponse, preview(text)))
	}
	if !gjson.Parse(text).IsObject() {
		return nil, backoff.Permanent(fmt.Errorf("%w: expected a JSON object (%s)", remote.ErrMalformedResponse, preview(text)))
	}
	doc, err := remote.DecodeDocument([]byte(text))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", remote.ErrMalformedResponse, err))
	}
	return doc, nil
}

// Save implements remote.Store.
func (c *Client) Save(ctx context.Context, key string, value json.RawMessage) error {
	if err := c.post(ctx, remote.SaveRequest{Key: key, Value: value}); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	c.cfg.Logger.Printf("Section %s sent", key)
	return nil
}

// ExportTables implements remote.Store.
func (c *Client) ExportTables(ctx context.Context, tables remote.Tables) error {
	if err := c.post(ctx, remote.ExportRequest{Type: remote.ExportRequestType, Data: tables}); err != nil {
		return fmt.Errorf("export tables: %w", err)
	}
	c.cfg.Logger.Printf("Exported %d tables", len(tables))
	return nil
}

func (c *Client) post(ctx context.Context, payload any) error {
	endpoint := c.cfg.Endpoint.Endpoint()
	if !ValidEndpoint(endpoint) {
		return remote.ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	// text/plain keeps the web app from requiring a CORS preflight.
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", remote.ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: status %d", remote.ErrTransport, resp.StatusCode)
	}
	return nil
}

func preview(s string) string {
	if len(s) <= 100 {
		return s
	}
	cut := 100
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// redact drops the query string, which may carry access keys.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "<invalid>"
	}
	u.RawQuery = ""
	return u.String()
}
