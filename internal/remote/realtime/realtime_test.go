package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/hub"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

func startHub(t *testing.T) (*hub.Server, *httptest.Server) {
	t.Helper()
	h := hub.NewServer(&hub.Config{Logger: log.New(io.Discard, "", 0)})
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		_ = h.Stop()
		srv.Close()
	})
	return h, srv
}

func newClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c := New(&Config{
		Endpoint:     remote.StaticEndpoint(endpoint),
		MaxReconnect: time.Second,
		Logger:       log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type updates struct {
	mu   sync.Mutex
	docs []document.Document
	errs []error
}

func (u *updates) fn(doc document.Document, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err != nil {
		u.errs = append(u.errs, err)
		return
	}
	u.docs = append(u.docs, doc)
}

func (u *updates) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.docs)
}

func (u *updates) last() document.Document {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.docs) == 0 {
		return nil
	}
	return u.docs[len(u.docs)-1]
}

func (u *updates) errCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.errs)
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"ftp://host", ""},
		{"http://", ""},
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://hub.example.sch.id/", "wss://hub.example.sch.id/ws"},
		{"ws://localhost:8080/ws", "ws://localhost:8080/ws"},
		{"http://localhost:8080/?t=1", "ws://localhost:8080/ws"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SocketURL(tt.in), "SocketURL(%q)", tt.in)
	}
}

func TestNotConfigured(t *testing.T) {
	c := newClient(t, "")
	assert.False(t, c.IsConfigured())

	_, err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrNotConfigured)
}

func TestFetchAndSave(t *testing.T) {
	h, srv := startHub(t)
	c := newClient(t, srv.URL)
	ctx := context.Background()

	doc, err := c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Nil(t, doc, "empty hub yields no document")

	require.NoError(t, c.Save(ctx, document.Students, json.RawMessage(`[{"id":"s1","name":"Ani","className":"VII A"}]`)))

	doc, err = c.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{document.Students}, doc.Present())
	assert.Equal(t, []string{document.Students}, h.Snapshot().Present())
}

func TestSave_Rejected(t *testing.T) {
	_, srv := startHub(t)
	c := newClient(t, srv.URL)

	err := c.Save(context.Background(), "unknown", json.RawMessage(`[]`))
	assert.ErrorIs(t, err, remote.ErrTransport)
}

func TestExportTables(t *testing.T) {
	h, srv := startHub(t)
	c := newClient(t, srv.URL)

	tables := remote.Tables{"Ijin Guru": {remote.NewRow().Set("Tanggal", "2025-07-14").Set("Nama Guru", "Budi")}}
	require.NoError(t, c.ExportTables(context.Background(), tables))

	rows, ok := h.Table("Ijin Guru")
	require.True(t, ok)
	assert.Equal(t, []string{"Tanggal", "Nama Guru"}, rows[0].Columns())
}

func TestSubscribe_SnapshotThenUpdates(t *testing.T) {
	h, srv := startHub(t)
	require.NoError(t, h.Save(context.Background(), document.AppSettings, json.RawMessage(`{"academicYear":"2025/2026"}`)))

	c := newClient(t, srv.URL)
	var got updates
	unsubscribe := c.Subscribe(context.Background(), got.fn)
	defer unsubscribe()

	assert.Eventually(t, func() bool { return got.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{document.AppSettings}, got.last().Present())

	// A save from another client is pushed.
	other := newClient(t, srv.URL)
	require.NoError(t, other.Save(context.Background(), document.Students, json.RawMessage(`[]`)))

	assert.Eventually(t, func() bool { return got.count() == 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{document.Students}, got.last().Present(), "updates carry only the saved section")
}

func TestSubscribe_NoEchoOfOwnSave(t *testing.T) {
	_, srv := startHub(t)
	c := newClient(t, srv.URL)

	var got updates
	unsubscribe := c.Subscribe(context.Background(), got.fn)
	defer unsubscribe()
	assert.Eventually(t, func() bool { return got.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Save(context.Background(), document.Students, json.RawMessage(`[]`)))
	// A fetch round trip guarantees any echo would already have arrived.
	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.count())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	_, srv := startHub(t)
	c := newClient(t, srv.URL)

	var got updates
	unsubscribe := c.Subscribe(context.Background(), got.fn)
	assert.Eventually(t, func() bool { return got.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	require.NoError(t, c.Close())
	unsubscribe()

	_, err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrClosed)
}

func TestConnectionLossNotifiesSubscribers(t *testing.T) {
	h, srv := startHub(t)
	c := newClient(t, srv.URL)

	var got updates
	unsubscribe := c.Subscribe(context.Background(), got.fn)
	defer unsubscribe()
	assert.Eventually(t, func() bool { return got.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, h.Stop())
	assert.Eventually(t, func() bool { return got.errCount() >= 1 }, 5*time.Second, 10*time.Millisecond)
}

// startFlakyHub serves a hub that refuses the first reject requests with
// 503 before answering normally. It returns the hub, the server and the
// number of requests seen.
func startFlakyHub(t *testing.T, reject int32) (*hub.Server, *httptest.Server, *atomic.Int32) {
	t.Helper()
	h := hub.NewServer(&hub.Config{Logger: log.New(io.Discard, "", 0)})
	handler := h.Handler()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= reject {
			http.Error(w, "hub starting", http.StatusServiceUnavailable)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		_ = h.Stop()
		srv.Close()
	})
	return h, srv, &hits
}

func TestFetchAll_RetriesRefusedUpgrade(t *testing.T) {
	h, srv, hits := startFlakyHub(t, 1)
	require.NoError(t, h.Save(context.Background(), document.Students, json.RawMessage(`[]`)))

	c := New(&Config{
		Endpoint:   remote.StaticEndpoint(srv.URL),
		Attempts:   3,
		RetryDelay: 10 * time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { _ = c.Close() })

	doc, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{document.Students}, doc.Present())
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchAll_GivesUpAfterAttempts(t *testing.T) {
	_, srv, hits := startFlakyHub(t, 100)
	c := New(&Config{
		Endpoint:   remote.StaticEndpoint(srv.URL),
		Attempts:   2,
		RetryDelay: 10 * time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSubscribe_InitialFailureReconnects(t *testing.T) {
	h, srv, _ := startFlakyHub(t, 1)
	require.NoError(t, h.Save(context.Background(), document.AppSettings, json.RawMessage(`{"academicYear":"2025/2026"}`)))

	c := New(&Config{
		Endpoint:     remote.StaticEndpoint(srv.URL),
		Attempts:     1,
		MaxReconnect: 5 * time.Second,
		Logger:       log.New(io.Discard, "", 0),
	})
	t.Cleanup(func() { _ = c.Close() })

	var got updates
	unsubscribe := c.Subscribe(context.Background(), got.fn)
	defer unsubscribe()

	assert.Eventually(t, func() bool { return got.errCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return got.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{document.AppSettings}, got.last().Present())

	// The redialed connection also carries pushed updates.
	other := newClient(t, srv.URL)
	require.NoError(t, other.Save(context.Background(), document.Students, json.RawMessage(`[]`)))
	assert.Eventually(t, func() bool { return got.count() == 2 }, 5*time.Second, 10*time.Millisecond)
}
