package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Tables maps a sheet name to its rows.
type Tables map[string][]Row

// Row is a flat record whose columns keep their insertion order when
// serialized, so spreadsheet headers come out in the order they were built.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow creates an empty row.
func NewRow() Row {
	return Row{values: make(map[string]any)}
}

// Set assigns a column, appending it when new. It returns the row to allow
// chaining.
func (r Row) Set(key string, value any) Row {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
	return r
}

// Get returns a column value.
func (r Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Columns returns the column names in order.
func (r Row) Columns() []string {
	return append([]string(nil), r.keys...)
}

// MarshalJSON writes the row as an object with columns in order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the column order of the input.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object")
	}
	*r = NewRow()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row key must be a string")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		*r = r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
