// Package remote defines the contract every remote document store
// implements, plus the wire types shared by the backends and the hub.
//
// Two backends exist:
//   - sheet: an HTTP endpoint polled on demand (a spreadsheet web app or
//     a hub). Fetch is a GET, every save is a POST.
//   - realtime: a websocket connection to a hub that pushes every change
//     to subscribed clients.
//
// The rest of the program only sees Store (and Subscriber for backends
// that push), so the backend is chosen by configuration at startup.
package remote

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/smpn3pacet/jadwal/internal/document"
)

var (
	// ErrNotConfigured is returned when no usable endpoint is declared.
	// It marks local-only mode, not a fault.
	ErrNotConfigured = errors.New("remote store not configured")

	// ErrMalformedResponse is returned when the remote answers with
	// something other than a JSON document, such as an HTML login page.
	ErrMalformedResponse = errors.New("malformed remote response")

	// ErrTransport wraps network failures and unexpected HTTP statuses.
	ErrTransport = errors.New("remote transport failure")

	// ErrClosed is returned by a backend used after Close.
	ErrClosed = errors.New("remote store closed")
)

// Store is a remote key-value document store.
type Store interface {
	// IsConfigured reports whether a usable endpoint is declared.
	// It is cheap and never touches the network.
	IsConfigured() bool

	// FetchAll retrieves the whole remote document in one round trip.
	// A nil document with a nil error means the remote is empty.
	FetchAll(ctx context.Context) (document.Document, error)

	// Save replaces one section on the remote side.
	Save(ctx context.Context, key string, value json.RawMessage) error

	// ExportTables writes denormalized tables for human consumption.
	// It is independent of the section key-value path.
	ExportTables(ctx context.Context, tables Tables) error
}

// UpdateFunc receives pushed documents. doc is nil when the remote is
// empty; err is non-nil when the subscription lost its connection.
type UpdateFunc func(doc document.Document, err error)

// Subscriber is implemented by backends that push changes.
type Subscriber interface {
	// Subscribe registers fn. fn is called once with the current snapshot
	// after the connection is established, then for every remote change.
	// The returned function is safe to call repeatedly and after the
	// backend is closed.
	Subscribe(ctx context.Context, fn UpdateFunc) (unsubscribe func())
}

// EndpointSource yields the current endpoint URL. An empty string means
// no endpoint.
type EndpointSource interface {
	Endpoint() string
}

// StaticEndpoint is an EndpointSource with a fixed value.
type StaticEndpoint string

// Endpoint implements EndpointSource.
func (s StaticEndpoint) Endpoint() string { return string(s) }

// SaveRequest is the POST body for a section save.
type SaveRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ExportRequestType is the type field of an export POST body.
const ExportRequestType = "export_tables"

// ExportRequest is the POST body for a table export.
type ExportRequest struct {
	Type string `json:"type"`
	Data Tables `json:"data"`
}

// Frame types exchanged over the realtime websocket.
const (
	FrameFetch    = "fetch"
	FrameSave     = "save"
	FrameExport   = "export_tables"
	FrameSnapshot = "snapshot"
	FrameUpdate   = "update"
	FrameAck      = "ack"
	FrameError    = "error"
)

// Frame is one websocket message. Requests carry a non-zero ID that the
// response echoes; pushed updates carry ID 0.
type Frame struct {
	Type  string          `json:"type"`
	ID    uint64          `json:"id,omitempty"`
	Key   string          `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// DecodeDocument parses a JSON object into a Document. JSON null and empty
// input decode to a nil Document.
func DecodeDocument(data []byte) (document.Document, error) {
	var doc document.Document
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
