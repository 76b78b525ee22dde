package state

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordList is a list section held as its raw elements next to their
// decoded form. Elements that are not replaced keep their exact bytes, so
// fields the schema types do not model survive local edits.
type recordList[T any] struct {
	raw  []json.RawMessage
	recs []T
}

// Len returns the number of records.
func (l *recordList[T]) Len() int { return len(l.recs) }

// Records returns a copy of the decoded records.
func (l *recordList[T]) Records() []T { return append([]T(nil), l.recs...) }

// Find returns the index of the first record match accepts, or -1.
func (l *recordList[T]) Find(match func(T) bool) int {
	for i, rec := range l.recs {
		if match(rec) {
			return i
		}
	}
	return -1
}

// Append adds rec at the end.
func (l *recordList[T]) Append(rec T) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.raw = append(l.raw, raw)
	l.recs = append(l.recs, rec)
	return nil
}

// Replace sets the record at i to rec, keeping the fields of the stored
// element that T does not model.
func (l *recordList[T]) Replace(i int, rec T) error {
	raw, err := preserve(l.raw[i], rec)
	if err != nil {
		return err
	}
	l.raw[i] = raw
	l.recs[i] = rec
	return nil
}

// Remove drops the record at i.
func (l *recordList[T]) Remove(i int) {
	l.raw = append(l.raw[:i:i], l.raw[i+1:]...)
	l.recs = append(l.recs[:i:i], l.recs[i+1:]...)
}

func decodeList[T any](key string, data json.RawMessage) (*recordList[T], error) {
	l := &recordList[T]{raw: []json.RawMessage{}}
	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.raw); err != nil {
		return nil, fmt.Errorf("failed to decode section %s: %w", key, err)
	}
	if l.raw == nil {
		l.raw = []json.RawMessage{}
	}
	l.recs = make([]T, len(l.raw))
	for i, raw := range l.raw {
		if err := json.Unmarshal(raw, &l.recs[i]); err != nil {
			return nil, fmt.Errorf("failed to decode section %s item %d: %w", key, i+1, err)
		}
	}
	return l, nil
}

// updateList lets fn edit list section key and stores the result as a
// local change. fn returning an error aborts the update.
func updateList[T any](c *Container, key string, fn func(l *recordList[T]) error) error {
	c.mu.Lock()
	raw, _ := c.doc.Get(key)
	l, err := decodeList[T](key, raw)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := fn(l); err != nil {
		c.mu.Unlock()
		return err
	}
	data, err := json.Marshal(l.raw)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to encode section %s: %w", key, err)
	}
	c.doc.Set(key, data)
	c.mu.Unlock()

	c.notify(OriginLocal, []string{key})
	return nil
}

// preserve encodes v over orig. When both are JSON objects, members of
// orig that v's type does not produce are kept; members it models are
// taken from v, or removed when v omits them. Otherwise v's encoding is
// returned as is.
func preserve[T any](orig json.RawMessage, v T) (json.RawMessage, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var members map[string]json.RawMessage
	if len(orig) == 0 || json.Unmarshal(orig, &members) != nil || members == nil {
		return encoded, nil
	}
	var next map[string]json.RawMessage
	if json.Unmarshal(encoded, &next) != nil || next == nil {
		return encoded, nil
	}

	// The members orig has that T models are those that survive a
	// decode and re-encode through T.
	var modeled T
	if err := json.Unmarshal(orig, &modeled); err == nil {
		if rt, err := json.Marshal(modeled); err == nil {
			var known map[string]json.RawMessage
			if json.Unmarshal(rt, &known) == nil {
				for k := range known {
					delete(members, k)
				}
			}
		}
	}
	for k, v := range next {
		members[k] = v
	}
	return json.Marshal(members)
}
