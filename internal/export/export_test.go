package export

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/remote/remotetest"
	"github.com/smpn3pacet/jadwal/internal/schema"
)

func TestTeacherRows_Columns(t *testing.T) {
	rows := TeacherRows([]schema.Teacher{{
		No:              1,
		Name:            "Budi",
		Subject:         "IPA",
		Code:            "B1",
		Rank:            "Penata",
		HoursVII:        schema.ClassHours{A: 4, C: 2},
		HoursIX:         schema.ClassHours{B: 5},
		AdditionalHours: 2,
		TotalHours:      13,
	}})
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}

	want := []string{
		"NO", "NAMA GURU", "PANGKAT/GOL", "MATA PEL", "KODE",
		"VII A", "VII B", "VII C", "VIII A", "VIII B", "VIII C", "IX A", "IX B", "IX C",
		"TUGAS TAMBAHAN", "JAM TAMBAHAN", "TOTAL JAM",
	}
	if got := rows[0].Columns(); !reflect.DeepEqual(got, want) {
		t.Errorf("Columns() = %v\nwant %v", got, want)
	}

	checks := map[string]any{
		"PANGKAT/GOL":    "Penata / -",
		"VII A":          4,
		"VII B":          0,
		"VII C":          2,
		"IX B":           5,
		"TUGAS TAMBAHAN": "-",
		"TOTAL JAM":      13,
	}
	for col, want := range checks {
		if got, _ := rows[0].Get(col); got != want {
			t.Errorf("%s = %v, want %v", col, got, want)
		}
	}
}

func TestStudentRows_SortedByClass(t *testing.T) {
	rows := StudentRows([]schema.Student{
		{Name: "Cahyo", ClassName: "VIII A"},
		{Name: "Ani", ClassName: "VII B"},
		{Name: "Dewi", ClassName: "VIII A"},
		{Name: "Bunga", ClassName: "IX C"},
	})

	type got struct {
		no   any
		name any
	}
	var out []got
	for _, r := range rows {
		no, _ := r.Get("No")
		name, _ := r.Get("Nama Siswa")
		out = append(out, got{no, name})
	}
	want := []got{{4, "Bunga"}, {2, "Ani"}, {1, "Cahyo"}, {3, "Dewi"}}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("rows = %v, want %v", out, want)
	}
}

func TestLeaveAndCalendarRows(t *testing.T) {
	leaves := LeaveRows([]schema.TeacherLeave{{Date: "2025-07-14", TeacherName: "Budi", Type: schema.LeaveSick}})
	data, err := json.Marshal(leaves[0])
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"Tanggal":"2025-07-14","Nama Guru":"Budi","Jenis Ijin":"SAKIT","Keterangan":"-"}` {
		t.Errorf("leave row = %s", data)
	}

	events := CalendarRows([]schema.CalendarEvent{{Date: "2025-08-17", Description: "HUT RI"}})
	data, _ = json.Marshal(events[0])
	if string(data) != `{"Tanggal":"2025-08-17","Keterangan":"HUT RI"}` {
		t.Errorf("calendar row = %s", data)
	}
}

func TestBuild_Defaults(t *testing.T) {
	doc := document.MustDefaults()
	tables, err := Build(doc)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, name := range Names() {
		if _, ok := tables[name]; !ok {
			t.Errorf("table %s missing", name)
		}
	}

	var teachers []schema.Teacher
	if err := doc.Decode(document.TeacherData, &teachers); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got := len(tables[TableTeachers]); got != len(teachers) {
		t.Errorf("Guru rows = %d, want %d", got, len(teachers))
	}
}

func TestBuild_MissingSections(t *testing.T) {
	tables, err := Build(document.Document{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for name, n := range Count(tables) {
		if n != 0 {
			t.Errorf("%s has %d rows, want 0", name, n)
		}
	}
}

func TestBuild_BadSection(t *testing.T) {
	_, err := Build(document.Document{document.Students: json.RawMessage(`{"not":"a list"}`)})
	if err == nil {
		t.Fatal("expected error for a malformed section")
	}
}

func TestSend(t *testing.T) {
	store := remotetest.New(nil)
	summary, err := Send(context.Background(), store, document.MustDefaults())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(store.Exports()) != 1 {
		t.Fatalf("exports = %d, want 1", len(store.Exports()))
	}
	if summary[TableTeachers] == 0 {
		t.Error("summary reports no teachers")
	}

	store.Configured = false
	if _, err := Send(context.Background(), store, document.MustDefaults()); !errors.Is(err, remote.ErrNotConfigured) {
		t.Errorf("Send() unconfigured error = %v", err)
	}
}
