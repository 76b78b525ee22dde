// Package remotetest provides an in-memory remote.Store for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// SaveCall records one Save.
type SaveCall struct {
	Key   string
	Value json.RawMessage
}

// Store is a fake remote store that keeps the document in memory and
// records every call. The exported fields may be set before use; the
// mutex guards them once the store is shared.
type Store struct {
	mu sync.Mutex

	// Configured is reported by IsConfigured.
	Configured bool

	// Doc is returned by FetchAll and updated by Save.
	Doc document.Document

	// FetchErr and SaveErr, when set, are returned instead of doing the work.
	FetchErr error
	SaveErr  error

	// FetchGate, when non-nil, blocks FetchAll until it receives or closes.
	FetchGate chan struct{}

	// SaveGate, when non-nil, blocks Save until it receives or closes.
	SaveGate chan struct{}

	// SaveHold makes every Save take this long regardless of its context,
	// like a backend that does not honor cancellation.
	SaveHold time.Duration

	saveErrs map[string]error
	inFlight atomic.Int32

	fetches int
	saves   []SaveCall
	exports []remote.Tables

	nextSub int
	subs    map[int]remote.UpdateFunc
}

var (
	_ remote.Store      = (*Store)(nil)
	_ remote.Subscriber = (*Store)(nil)
)

// New returns a configured fake holding doc.
func New(doc document.Document) *Store {
	return &Store{Configured: true, Doc: doc.Clone()}
}

// IsConfigured implements remote.Store.
func (s *Store) IsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Configured
}

// FetchAll implements remote.Store.
func (s *Store) FetchAll(ctx context.Context) (document.Document, error) {
	s.mu.Lock()
	s.fetches++
	gate := s.FetchGate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Configured {
		return nil, remote.ErrNotConfigured
	}
	if s.FetchErr != nil {
		return nil, s.FetchErr
	}
	return s.Doc.Clone(), nil
}

// Save implements remote.Store.
func (s *Store) Save(ctx context.Context, key string, value json.RawMessage) error {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	s.mu.Lock()
	gate := s.SaveGate
	hold := s.SaveHold
	s.mu.Unlock()

	if hold > 0 {
		time.Sleep(hold)
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Configured {
		return remote.ErrNotConfigured
	}
	s.saves = append(s.saves, SaveCall{Key: key, Value: append(json.RawMessage(nil), value...)})
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if err := s.saveErrs[key]; err != nil {
		return err
	}
	if s.Doc == nil {
		s.Doc = document.Document{}
	}
	s.Doc.Set(key, value)
	return nil
}

// ExportTables implements remote.Store.
func (s *Store) ExportTables(ctx context.Context, tables remote.Tables) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Configured {
		return remote.ErrNotConfigured
	}
	s.exports = append(s.exports, tables)
	return nil
}

// Subscribe implements remote.Subscriber. The initial snapshot is
// delivered from a new goroutine, like the websocket backend does.
func (s *Store) Subscribe(ctx context.Context, fn remote.UpdateFunc) func() {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[int]remote.UpdateFunc)
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	go func() {
		doc, err := s.FetchAll(ctx)
		s.mu.Lock()
		_, active := s.subs[id]
		s.mu.Unlock()
		if active {
			fn(doc, err)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Push stores doc as the remote state and delivers it to every subscriber.
func (s *Store) Push(doc document.Document) {
	s.mu.Lock()
	s.Doc = doc.Clone()
	subs := make([]remote.UpdateFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(doc.Clone(), nil)
	}
}

// Fail delivers err to every subscriber.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	subs := make([]remote.UpdateFunc, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(nil, err)
	}
}

// SetConfigured replaces Configured under the lock.
func (s *Store) SetConfigured(configured bool) {
	s.mu.Lock()
	s.Configured = configured
	s.mu.Unlock()
}

// SetFetchErr replaces FetchErr under the lock.
func (s *Store) SetFetchErr(err error) {
	s.mu.Lock()
	s.FetchErr = err
	s.mu.Unlock()
}

// SetSaveErr replaces SaveErr under the lock.
func (s *Store) SetSaveErr(err error) {
	s.mu.Lock()
	s.SaveErr = err
	s.mu.Unlock()
}

// SetSaveErrFor makes Save fail with err for one section key only. A nil
// err clears it.
func (s *Store) SetSaveErrFor(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErrs == nil {
		s.saveErrs = make(map[string]error)
	}
	if err == nil {
		delete(s.saveErrs, key)
		return
	}
	s.saveErrs[key] = err
}

// InFlight returns the number of Save calls that have not returned.
func (s *Store) InFlight() int {
	return int(s.inFlight.Load())
}

// Section returns the stored value of one section.
func (s *Store) Section(key string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.Doc.Get(key)
	return append(json.RawMessage(nil), raw...), ok
}

// Fetches returns the number of FetchAll calls.
func (s *Store) Fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// Saves returns a copy of the recorded Save calls.
func (s *Store) Saves() []SaveCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SaveCall(nil), s.saves...)
}

// SavedKeys returns the keys of the recorded Save calls, in call order.
func (s *Store) SavedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, len(s.saves))
	for i, c := range s.saves {
		keys[i] = c.Key
	}
	return keys
}

// Exports returns the recorded ExportTables calls.
func (s *Store) Exports() []remote.Tables {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Tables(nil), s.exports...)
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
