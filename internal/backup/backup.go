// Package backup writes the whole document to a portable JSON file and
// restores it again.
//
// A backup file is one JSON object holding every section by key plus a
// backupDate timestamp. Restore replaces the sections the file defines and
// leaves the others untouched, the same partial replace the load uses.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/state"
)

// DateKey is the timestamp field added to every backup.
const DateKey = "backupDate"

var (
	// ErrInvalidDocument is returned for input that is not a usable backup.
	// Nothing is applied when it is returned.
	ErrInvalidDocument = errors.New("invalid backup document")

	// ErrNotConfirmed is returned when the user declines a restore.
	ErrNotConfirmed = errors.New("restore not confirmed")
)

// objectSections hold a JSON object; every other section holds an array.
var objectSections = map[string]bool{
	document.AppSettings:            true,
	document.AuthSettings:           true,
	document.ScheduleMap:            true,
	document.UnavailableConstraints: true,
}

// Filename returns the conventional backup file name for day t.
func Filename(t time.Time) string {
	return fmt.Sprintf("Backup_Sistem_Guru_%s.json", t.UTC().Format("2006-01-02"))
}

// Marshal serializes every present section of doc plus the backup date.
func Marshal(doc document.Document, at time.Time) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(document.Keys())+1)
	for _, key := range doc.Present() {
		raw, _ := doc.Get(key)
		out[key] = raw
	}
	date, err := json.Marshal(at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to encode backup date: %w", err)
	}
	out[DateKey] = date

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal backup: %w", err)
	}
	return data, nil
}

// Write marshals doc into dir under Filename(at) and returns the path.
func Write(dir string, doc document.Document, at time.Time) (string, error) {
	return writeTo(filepath.Join(dir, Filename(at)), doc, at)
}

// writeTo marshals doc to path atomically via a temp file.
func writeTo(path string, doc document.Document, at time.Time) (string, error) {
	data, err := Marshal(doc, at)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return path, nil
}

// Parsed is a validated backup ready to apply.
type Parsed struct {
	Doc      document.Document
	Sections []string  // known sections the backup defines, canonical order
	Ignored  []string  // unknown keys, sorted
	Date     time.Time // zero when the backup carries no usable date
}

// Parse validates data as a backup. Malformed JSON, a non-object top
// level, a section of the wrong shape or a backup with no known sections
// yield ErrInvalidDocument.
func Parse(data []byte) (*Parsed, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidDocument)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidDocument)
	}

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	for _, key := range doc.Present() {
		value := gjson.ParseBytes(bytes.TrimSpace(doc[key]))
		if objectSections[key] && !value.IsObject() {
			return nil, fmt.Errorf("%w: section %s must be an object", ErrInvalidDocument, key)
		}
		if !objectSections[key] && !value.IsArray() {
			return nil, fmt.Errorf("%w: section %s must be an array", ErrInvalidDocument, key)
		}
	}

	p := &Parsed{Doc: doc, Sections: doc.Present()}
	if len(p.Sections) == 0 {
		return nil, fmt.Errorf("%w: no known sections", ErrInvalidDocument)
	}
	for _, k := range doc.Extra() {
		if k != DateKey {
			p.Ignored = append(p.Ignored, k)
		}
	}
	if date := root.Get(DateKey); date.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, date.String()); err == nil {
			p.Date = t
		}
	}
	return p, nil
}

// ConfirmFunc asks the user to approve applying p. Returning false aborts
// the restore with ErrNotConfirmed.
type ConfirmFunc func(p *Parsed) (bool, error)

// RestoreOptions contains configuration for a restore.
type RestoreOptions struct {
	Data      []byte      // backup file contents
	Confirm   ConfirmFunc // required; nil is treated as a refusal
	BackupDir string      // when set, the current document is saved here first
	DryRun    bool        // validate and confirm without applying
	Now       func() time.Time
}

// RestoreResult describes a finished restore.
type RestoreResult struct {
	Parsed        *Parsed
	Replaced      []string
	BackupCreated string
}

// Restore validates opts.Data, asks for confirmation and replaces the
// container sections the backup defines. Replaced sections are local
// changes, so an armed bridge writes them to the remote store. Nothing is
// applied on any error.
func Restore(c *state.Container, opts RestoreOptions) (*RestoreResult, error) {
	parsed, err := Parse(opts.Data)
	if err != nil {
		return nil, err
	}
	result := &RestoreResult{Parsed: parsed}

	if opts.Confirm == nil {
		return result, ErrNotConfirmed
	}
	ok, err := opts.Confirm(parsed)
	if err != nil {
		return result, fmt.Errorf("failed to confirm restore: %w", err)
	}
	if !ok {
		return result, ErrNotConfirmed
	}
	if opts.DryRun {
		return result, nil
	}

	if opts.BackupDir != "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		at := now()
		name := "Backup_Sistem_Guru_pre-restore_" + at.UTC().Format("20060102-150405") + ".json"
		path, err := writeTo(filepath.Join(opts.BackupDir, name), c.Snapshot(), at)
		if err != nil {
			return result, fmt.Errorf("failed to back up current data: %w", err)
		}
		result.BackupCreated = path
	}

	result.Replaced = c.Restore(parsed.Doc)
	return result, nil
}
