package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

func newTestClient(endpoint string) *Client {
	return New(&Config{
		Endpoint:   remote.StaticEndpoint(endpoint),
		Attempts:   3,
		RetryDelay: time.Millisecond,
		Logger:     log.New(io.Discard, "", 0),
	})
}

func TestValidEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"not a url", false},
		{"ftp://example.com", false},
		{"https://", false},
		{"https://script.google.com/macros/s/abc/exec", true},
		{"http://localhost:8080/", true},
	}
	for _, tt := range tests {
		if got := ValidEndpoint(tt.in); got != tt.want {
			t.Errorf("ValidEndpoint(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFetchAll_Success(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("t")
		_, _ = w.Write([]byte(`{"teacherData":[{"id":1,"name":"Budi"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	require.True(t, c.IsConfigured())

	doc, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, gotQuery, "cache buster should be sent")

	raw, ok := doc.Get(document.TeacherData)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":1,"name":"Budi"}]`, string(raw))
}

func TestFetchAll_EmptyRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer srv.Close()

	doc, err := newTestClient(srv.URL).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestFetchAll_HTMLIsMalformedAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>Sign in</body></html>"))
	}))
	defer srv.Close()

	doc, err := newTestClient(srv.URL).FetchAll(context.Background())
	assert.Nil(t, doc)
	assert.True(t, errors.Is(err, remote.ErrMalformedResponse), "got %v", err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchAll_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"students": [`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrMalformedResponse)
}

func TestFetchAll_NonObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[1,2,3]`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrMalformedResponse)
}

func TestFetchAll_ErrorKeepsMultibyteText(t *testing.T) {
	body := `["a` + strings.Repeat("é", 60) + `"]`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background())
	require.ErrorIs(t, err, remote.ErrMalformedResponse)
	assert.True(t, utf8.ValidString(err.Error()), "error text is cut inside a character: %q", err.Error())
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "abc", "abc"},
		{"ascii", strings.Repeat("x", 120), strings.Repeat("x", 100) + "..."},
		{"multibyte at the cut", strings.Repeat("a", 99) + strings.Repeat("é", 10), strings.Repeat("a", 99) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preview(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestFetchAll_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"students":[]}`))
	}))
	defer srv.Close()

	doc, err := newTestClient(srv.URL).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{document.Students}, doc.Present())
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchAll_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchAll_NotConfigured(t *testing.T) {
	c := newTestClient("")
	assert.False(t, c.IsConfigured())

	_, err := c.FetchAll(context.Background())
	assert.ErrorIs(t, err, remote.ErrNotConfigured)
	assert.ErrorIs(t, c.Save(context.Background(), document.Students, json.RawMessage(`[]`)), remote.ErrNotConfigured)
}

func TestSave_PostsKeyValue(t *testing.T) {
	var got remote.SaveRequest
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Save(context.Background(), document.Students, json.RawMessage(`[{"id":"1"}]`))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", contentType)
	assert.Equal(t, document.Students, got.Key)
	assert.JSONEq(t, `[{"id":"1"}]`, string(got.Value))
}

func TestSave_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Save(context.Background(), document.Students, json.RawMessage(`[]`))
	assert.ErrorIs(t, err, remote.ErrTransport)
}

func TestExportTables(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	tables := remote.Tables{"Kalender": {remote.NewRow().Set("Tanggal", "2025-08-17").Set("Keterangan", "HUT RI")}}
	require.NoError(t, newTestClient(srv.URL).ExportTables(context.Background(), tables))
	assert.Equal(t, remote.ExportRequestType, body["type"])
	assert.Contains(t, body["data"], "Kalender")
}

func TestEndpointIsReadPerCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	endpoint := &switchable{}
	c := New(&Config{Endpoint: endpoint, Logger: log.New(io.Discard, "", 0)})
	assert.False(t, c.IsConfigured())

	endpoint.v.Store(srv.URL)
	assert.True(t, c.IsConfigured())
	_, err := c.FetchAll(context.Background())
	assert.NoError(t, err)
}

type switchable struct{ v atomic.Value }

func (s *switchable) Endpoint() string {
	v, _ := s.v.Load().(string)
	return v
}
