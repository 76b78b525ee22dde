// Package state owns the in-memory school document for one session.
//
// The Container is the single owner of section values. UI code and CLI
// commands read sections through typed accessors and change them only via
// named mutation intents (AddTeacher, DeleteStudent, ...). Every change is
// announced to observers together with its origin, which is how the sync
// bridge tells a user edit apart from a remote hydration.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/smpn3pacet/jadwal/internal/document"
)

// ErrNotFound is returned by edit and delete intents for an unknown id.
var ErrNotFound = errors.New("record not found")

// Origin tells observers where a change came from.
type Origin int

const (
	// OriginLocal is a mutation intent issued by the user.
	OriginLocal Origin = iota
	// OriginRemote is a section replaced from remote data.
	OriginRemote
)

// String returns a human-readable representation of the origin.
func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Change describes one section replacement.
type Change struct {
	Section string
	Origin  Origin
}

// Observer is called after a section changes, outside the container lock.
type Observer func(Change)

// Container holds the document sections and the registered observers.
type Container struct {
	mu  sync.RWMutex
	doc document.Document

	obsMu     sync.Mutex
	observers map[int]Observer
	nextObs   int

	newID func() string
}

// New creates a container seeded with a copy of initial.
// A nil initial starts from the embedded defaults.
func New(initial document.Document) *Container {
	if initial == nil {
		initial = document.MustDefaults()
	}
	return &Container{
		doc:       initial.Clone(),
		observers: make(map[int]Observer),
		newID:     uuid.NewString,
	}
}

// Observe registers fn for every subsequent change. The returned function
// removes the registration and may be called more than once.
func (c *Container) Observe(fn Observer) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

func (c *Container) notify(origin Origin, sections []string) {
	if len(sections) == 0 {
		return
	}
	c.obsMu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.obsMu.Unlock()

	for _, section := range sections {
		for _, fn := range observers {
			fn(Change{Section: section, Origin: origin})
		}
	}
}

// Snapshot returns a deep copy of the whole document.
func (c *Container) Snapshot() document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc.Clone()
}

// Section returns a copy of one section's raw value.
func (c *Container) Section(key string) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.doc.Get(key)
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

// Hydrate replaces every section that partial defines with the remote
// value and returns the replaced keys. Absent sections keep their value.
// Observers see the changes with OriginRemote.
func (c *Container) Hydrate(partial document.Document) []string {
	c.mu.Lock()
	replaced := c.doc.Merge(partial)
	c.mu.Unlock()

	c.notify(OriginRemote, replaced)
	return replaced
}

// Restore replaces every section that doc defines as a local change, so
// the restored values are written to the remote store like any other edit.
func (c *Container) Restore(doc document.Document) []string {
	c.mu.Lock()
	replaced := c.doc.Merge(doc)
	c.mu.Unlock()

	c.notify(OriginLocal, replaced)
	return replaced
}

// ReplaceSection sets a known section to raw, which must be valid JSON.
func (c *Container) ReplaceSection(key string, raw json.RawMessage) error {
	if !document.IsSection(key) {
		return fmt.Errorf("unknown section %q", key)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("section %s: value is not valid JSON", key)
	}
	c.mu.Lock()
	c.doc.Set(key, raw)
	c.mu.Unlock()

	c.notify(OriginLocal, []string{key})
	return nil
}

// update decodes section key into a fresh T, lets fn change it, and stores
// the result as a local change. Object members T does not model are kept.
// fn returning an error aborts the update.
func update[T any](c *Container, key string, fn func(*T) error) error {
	c.mu.Lock()
	var value T
	raw, ok := c.doc.Get(key)
	if ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to decode section %s: %w", key, err)
		}
	}
	if err := fn(&value); err != nil {
		c.mu.Unlock()
		return err
	}
	data, err := preserve(raw, value)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to encode section %s: %w", key, err)
	}
	c.doc.Set(key, data)
	c.mu.Unlock()

	c.notify(OriginLocal, []string{key})
	return nil
}

// read decodes section key into a T. A missing section yields the zero T.
func read[T any](c *Container, key string) (T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var value T
	raw, ok := c.doc.Get(key)
	if !ok {
		return value, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, fmt.Errorf("failed to decode section %s: %w", key, err)
	}
	return value, nil
}
