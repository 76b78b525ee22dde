// Package document defines the aggregate that the sync layer moves between
// local state and the remote store.
//
// A Document is a set of named sections. Each section is an opaque JSON
// value that is replaced wholesale; the sync layer never merges fields
// inside a section.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Section keys, in the order they are listed, saved and exported.
const (
	AppSettings            = "appSettings"
	AuthSettings           = "authSettings"
	TeacherData            = "teacherData"
	ScheduleMap            = "scheduleMap"
	UnavailableConstraints = "unavailableConstraints"
	CalendarEvents         = "calendarEvents"
	TeacherLeaves          = "teacherLeaves"
	Students               = "students"
	TeachingMaterials      = "teachingMaterials"
	TeachingJournals       = "teachingJournals"
	StudentGrades          = "studentGrades"
	HomeroomRecords        = "homeroomRecords"
	AttitudeRecords        = "attitudeRecords"
	TeacherAgendas         = "teacherAgendas"
)

var sectionKeys = []string{
	AppSettings,
	AuthSettings,
	TeacherData,
	ScheduleMap,
	UnavailableConstraints,
	CalendarEvents,
	TeacherLeaves,
	Students,
	TeachingMaterials,
	TeachingJournals,
	StudentGrades,
	HomeroomRecords,
	AttitudeRecords,
	TeacherAgendas,
}

// Keys returns every known section key in canonical order.
func Keys() []string {
	return append([]string(nil), sectionKeys...)
}

// IsSection reports whether key names a known section.
func IsSection(key string) bool {
	for _, k := range sectionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Document maps section keys to their raw JSON values.
//
// Unknown keys are carried but ignored by Merge; a nil Document is a valid
// empty document.
type Document map[string]json.RawMessage

// Get returns the raw value of a section and whether it is present.
// A section holding JSON null counts as absent.
func (d Document) Get(key string) (json.RawMessage, bool) {
	raw, ok := d[key]
	if !ok || isNull(raw) {
		return nil, false
	}
	return raw, true
}

// Set stores a copy of raw under key.
func (d Document) Set(key string, raw json.RawMessage) {
	d[key] = append(json.RawMessage(nil), raw...)
}

// Decode unmarshals section key into v.
func (d Document) Decode(key string, v any) error {
	raw, ok := d.Get(key)
	if !ok {
		return fmt.Errorf("section %s not present", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode section %s: %w", key, err)
	}
	return nil
}

// Encode marshals v and stores it as section key.
func (d Document) Encode(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode section %s: %w", key, err)
	}
	d[key] = raw
	return nil
}

// Present returns the known section keys present in d, in canonical order.
func (d Document) Present() []string {
	var keys []string
	for _, k := range sectionKeys {
		if _, ok := d.Get(k); ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Merge replaces every known section of d that partial defines and returns
// the keys it replaced. Sections absent from partial (or null in it) keep
// their current value.
func (d Document) Merge(partial Document) []string {
	var replaced []string
	for _, k := range sectionKeys {
		raw, ok := partial.Get(k)
		if !ok {
			continue
		}
		d.Set(k, raw)
		replaced = append(replaced, k)
	}
	return replaced
}

// Equal reports whether a and b hold semantically equal JSON for every
// known section. Formatting and object key order are ignored.
func Equal(a, b Document) bool {
	for _, k := range sectionKeys {
		ra, okA := a.Get(k)
		rb, okB := b.Get(k)
		if okA != okB {
			return false
		}
		if okA && !RawEqual(ra, rb) {
			return false
		}
	}
	return true
}

// RawEqual compares two JSON values semantically.
func RawEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// Diff returns the known sections whose values differ between a and b.
func Diff(a, b Document) []string {
	var changed []string
	for _, k := range sectionKeys {
		ra, okA := a.Get(k)
		rb, okB := b.Get(k)
		if okA != okB || (okA && !RawEqual(ra, rb)) {
			changed = append(changed, k)
		}
	}
	return changed
}

// Extra returns keys in d that are not known sections, sorted.
func (d Document) Extra() []string {
	var extra []string
	for k := range d {
		if !IsSection(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
