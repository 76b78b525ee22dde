package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/smpn3pacet/jadwal/internal/remote"
)

// sendBuffer is the number of frames queued per client before it is
// considered too slow and dropped.
const sendBuffer = 64

// client is one websocket connection. Frames go through send so that a
// single writer goroutine keeps them in order.
type client struct {
	conn *websocket.Conn
	send chan remote.Frame
	done chan struct{}
	once sync.Once
}

// enqueue queues f without blocking. A full queue closes the client.
func (c *client) enqueue(f remote.Frame) {
	select {
	case <-c.done:
	case c.send <- f:
	default:
		go c.close("Client too slow")
	}
}

func (c *client) close(reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(websocket.StatusGoingAway, reason)
	})
}

// handleFetch returns the whole document, like the spreadsheet web app.
// The t query parameter is a cache buster and is ignored.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	s.metrics.fetches.WithLabelValues("http").Inc()

	s.mu.RLock()
	data, err := s.encodeDocLocked()
	s.mu.RUnlock()
	if err != nil {
		s.logger.Printf("Failed to encode document: %v", err)
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// handlePost accepts a section save or a table export. Clients send the
// body as text/plain, so the content type is not checked.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	if !gjson.ValidBytes(body) {
		s.metrics.rejected.Inc()
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: "body is not valid JSON"})
		return
	}

	if gjson.GetBytes(body, "type").String() == remote.ExportRequestType {
		var req remote.ExportRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.metrics.rejected.Inc()
			writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
			return
		}
		if err := s.Export(r.Context(), req.Data); err != nil {
			writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
		return
	}

	var req remote.SaveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.metrics.rejected.Inc()
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	if err := s.Save(r.Context(), req.Key, req.Value); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownSection) || errors.Is(err, ErrInvalidValue) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, statusResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// handleTable returns the rows of one exported table.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	rows, ok := s.Table(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "error", Message: "no such table: " + name})
		return
	}
	if rows == nil {
		rows = []remote.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	sections := len(s.doc.Present())
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"clients":  s.ClientCount(),
		"sections": sections,
	})
}

// handleWebSocket upgrades the connection and serves frames until the
// client leaves or the hub stops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(MaxBody)

	c := &client{
		conn: conn,
		send: make(chan remote.Frame, sendBuffer),
		done: make(chan struct{}),
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()
	s.metrics.clients.Set(float64(clientCount))
	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.writeLoop(c)
	s.readLoop(c)
}

// readLoop dispatches request frames until the connection fails.
func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)

	for {
		var f remote.Frame
		if err := wsjson.Read(s.ctx, c.conn, &f); err != nil {
			return
		}
		s.handleFrame(c, f)
	}
}

func (s *Server) handleFrame(c *client, f remote.Frame) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	switch f.Type {
	case remote.FrameFetch:
		s.metrics.fetches.WithLabelValues("websocket").Inc()
		s.mu.RLock()
		data, err := s.encodeDocLocked()
		if err == nil {
			c.enqueue(remote.Frame{Type: remote.FrameSnapshot, ID: f.ID, Data: data})
		}
		s.mu.RUnlock()
		if err != nil {
			c.enqueue(errorFrame(f.ID, err))
		}

	case remote.FrameSave:
		if err := s.save(ctx, c, f.Key, f.Value, f.ID); err != nil {
			c.enqueue(errorFrame(f.ID, err))
		}

	case remote.FrameExport:
		var tables remote.Tables
		if err := json.Unmarshal(f.Data, &tables); err != nil {
			s.metrics.rejected.Inc()
			c.enqueue(errorFrame(f.ID, err))
			return
		}
		if err := s.Export(ctx, tables); err != nil {
			c.enqueue(errorFrame(f.ID, err))
			return
		}
		c.enqueue(remote.Frame{Type: remote.FrameAck, ID: f.ID})

	default:
		c.enqueue(remote.Frame{Type: remote.FrameError, ID: f.ID, Error: "unknown frame type " + f.Type})
	}
}

// writeLoop sends queued frames in order.
func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := wsjson.Write(ctx, c.conn, f)
			cancel()
			if err != nil {
				s.logger.Printf("Failed to send to client: %v", err)
				s.removeClient(c)
				return
			}
		}
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	if _, exists := s.clients[c]; !exists {
		s.clientsMu.Unlock()
		c.close("")
		return
	}
	delete(s.clients, c)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	c.close("")
	s.metrics.clients.Set(float64(clientCount))
	s.logger.Printf("Client disconnected (total: %d)", clientCount)
}

func errorFrame(id uint64, err error) remote.Frame {
	return remote.Frame{Type: remote.FrameError, ID: id, Error: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
