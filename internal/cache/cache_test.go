package cache

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
)

// openTestCache opens a cache in a temporary directory
func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", FileName))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpen_CreatesTables(t *testing.T) {
	c := openTestCache(t)

	for _, table := range []string{"sections", "sync_log", "export_tables"} {
		var count int
		err := c.conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestLoad_EmptyCache(t *testing.T) {
	c := openTestCache(t)

	doc, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if doc != nil {
		t.Errorf("Load() = %v, want nil", doc)
	}
}

func TestSaveSection_RoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	if err := c.SaveSection(ctx, document.Students, json.RawMessage(`[{"id":"1","name":"Ani"}]`)); err != nil {
		t.Fatalf("SaveSection() failed: %v", err)
	}
	if err := c.SaveSection(ctx, document.Students, json.RawMessage(`[]`)); err != nil {
		t.Fatalf("SaveSection() overwrite failed: %v", err)
	}

	doc, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	raw, ok := doc.Get(document.Students)
	if !ok {
		t.Fatal("students section missing")
	}
	if string(raw) != `[]` {
		t.Errorf("students = %s, want []", raw)
	}
}

func TestSaveSection_Rejects(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	tests := []struct {
		name string
		key  string
		raw  string
	}{
		{"unknown key", "bogus", `[]`},
		{"invalid json", document.Students, `[{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.SaveSection(ctx, tt.key, json.RawMessage(tt.raw)); err == nil {
				t.Error("SaveSection() succeeded, want error")
			}
		})
	}
}

func TestSaveDocument(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	want := document.MustDefaults()
	if err := c.SaveDocument(ctx, want); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}

	got, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !document.Equal(want, got) {
		t.Errorf("Load() differs in sections %v", document.Diff(want, got))
	}
}

func TestSaveDocument_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	doc := document.Document{document.CalendarEvents: json.RawMessage(`[{"id":"e1","date":"2025-08-17","description":"HUT RI"}]`)}
	if err := c.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer c.Close()

	got, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if !document.Equal(doc, got) {
		t.Errorf("reopened cache differs: %v", document.Diff(doc, got))
	}
}

func TestTables_RoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	tables := remote.Tables{
		"Siswa": {
			remote.NewRow().Set("No", 1).Set("Nama Siswa", "Ani").Set("Kelas", "VII A"),
		},
		"Kalender": nil,
	}
	if err := c.SaveTables(ctx, tables); err != nil {
		t.Fatalf("SaveTables() failed: %v", err)
	}

	got, err := c.LoadTables(ctx)
	if err != nil {
		t.Fatalf("LoadTables() failed: %v", err)
	}
	if len(got["Siswa"]) != 1 {
		t.Fatalf("Siswa rows = %d, want 1", len(got["Siswa"]))
	}
	if cols := got["Siswa"][0].Columns(); len(cols) != 3 || cols[0] != "No" || cols[2] != "Kelas" {
		t.Errorf("column order = %v", cols)
	}
	if rows, ok := got["Kalender"]; !ok || len(rows) != 0 {
		t.Errorf("Kalender = %v, %v; want empty table", rows, ok)
	}
}

func TestSyncLog(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	base := time.Date(2025, 7, 14, 8, 0, 0, 0, time.UTC)
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	if _, ok, err := c.LastSync(ctx); err != nil || ok {
		t.Fatalf("LastSync() on empty log = %v, %v", ok, err)
	}

	if err := c.RecordSync(ctx, "SYNCED", nil); err != nil {
		t.Fatalf("RecordSync() failed: %v", err)
	}
	if err := c.RecordSync(ctx, "ERROR", errors.New("dial tcp: refused")); err != nil {
		t.Fatalf("RecordSync() failed: %v", err)
	}

	rec, ok, err := c.LastSync(ctx)
	if err != nil || !ok {
		t.Fatalf("LastSync() = %v, %v", ok, err)
	}
	if rec.Status != "ERROR" || rec.Error != "dial tcp: refused" {
		t.Errorf("LastSync() = %+v", rec)
	}
	if !rec.At.Equal(base.Add(2 * time.Second)) {
		t.Errorf("At = %v, want %v", rec.At, base.Add(2*time.Second))
	}
}
