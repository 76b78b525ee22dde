// Package export builds the spreadsheet tables sent by a manual migration.
//
// The tables are flat, denormalized views of the document meant for people
// reading the spreadsheet. They are a one-way copy; the sync layer never
// reads them back.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/schema"
)

// Table names, in the order they are built.
const (
	TableTeachers = "Guru"
	TableStudents = "Siswa"
	TableLeaves   = "Ijin Guru"
	TableCalendar = "Kalender"
)

// Names returns every table name in build order.
func Names() []string {
	return []string{TableTeachers, TableStudents, TableLeaves, TableCalendar}
}

// Summary counts the rows of each table.
type Summary map[string]int

func decodeList[T any](doc document.Document, key string) ([]T, error) {
	var out []T
	if _, ok := doc.Get(key); !ok {
		return out, nil
	}
	if err := doc.Decode(key, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// TeacherRows builds the Guru table: one row per teacher with the hours
// for every class.
func TeacherRows(teachers []schema.Teacher) []remote.Row {
	rows := make([]remote.Row, 0, len(teachers))
	for _, t := range teachers {
		row := remote.NewRow().
			Set("NO", t.No).
			Set("NAMA GURU", t.Name).
			Set("PANGKAT/GOL", fmt.Sprintf("%s / %s", dash(t.Rank), dash(t.Gol))).
			Set("MATA PEL", t.Subject).
			Set("KODE", t.Code)
		for _, class := range schema.Classes() {
			row = row.Set(class, t.HoursFor(class))
		}
		row = row.
			Set("TUGAS TAMBAHAN", dash(t.AdditionalTask)).
			Set("JAM TAMBAHAN", t.AdditionalHours).
			Set("TOTAL JAM", t.TotalHours)
		rows = append(rows, row)
	}
	return rows
}

// StudentRows builds the Siswa table. Rows are numbered in roster order
// and then sorted by class, keeping roster order within a class.
func StudentRows(students []schema.Student) []remote.Row {
	type numbered struct {
		no int
		s  schema.Student
	}
	list := make([]numbered, len(students))
	for i, s := range students {
		list[i] = numbered{no: i + 1, s: s}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].s.ClassName < list[j].s.ClassName
	})

	rows := make([]remote.Row, 0, len(list))
	for _, n := range list {
		rows = append(rows, remote.NewRow().
			Set("No", n.no).
			Set("Nama Siswa", n.s.Name).
			Set("Kelas", n.s.ClassName))
	}
	return rows
}

// LeaveRows builds the Ijin Guru table.
func LeaveRows(leaves []schema.TeacherLeave) []remote.Row {
	rows := make([]remote.Row, 0, len(leaves))
	for _, l := range leaves {
		rows = append(rows, remote.NewRow().
			Set("Tanggal", l.Date).
			Set("Nama Guru", l.TeacherName).
			Set("Jenis Ijin", string(l.Type)).
			Set("Keterangan", dash(l.Description)))
	}
	return rows
}

// CalendarRows builds the Kalender table.
func CalendarRows(events []schema.CalendarEvent) []remote.Row {
	rows := make([]remote.Row, 0, len(events))
	for _, e := range events {
		rows = append(rows, remote.NewRow().
			Set("Tanggal", e.Date).
			Set("Keterangan", e.Description))
	}
	return rows
}

// Build converts doc into the four migration tables. Missing sections
// produce empty tables.
func Build(doc document.Document) (remote.Tables, error) {
	teachers, err := decodeList[schema.Teacher](doc, document.TeacherData)
	if err != nil {
		return nil, err
	}
	students, err := decodeList[schema.Student](doc, document.Students)
	if err != nil {
		return nil, err
	}
	leaves, err := decodeList[schema.TeacherLeave](doc, document.TeacherLeaves)
	if err != nil {
		return nil, err
	}
	events, err := decodeList[schema.CalendarEvent](doc, document.CalendarEvents)
	if err != nil {
		return nil, err
	}

	return remote.Tables{
		TableTeachers: TeacherRows(teachers),
		TableStudents: StudentRows(students),
		TableLeaves:   LeaveRows(leaves),
		TableCalendar: CalendarRows(events),
	}, nil
}

// Count returns the row count of every table.
func Count(tables remote.Tables) Summary {
	out := make(Summary, len(tables))
	for name, rows := range tables {
		out[name] = len(rows)
	}
	return out
}

// Send builds the tables from doc and sends them through store. An
// unconfigured store yields remote.ErrNotConfigured without building.
func Send(ctx context.Context, store remote.Store, doc document.Document) (Summary, error) {
	if !store.IsConfigured() {
		return nil, remote.ErrNotConfigured
	}
	tables, err := Build(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to build tables: %w", err)
	}
	if err := store.ExportTables(ctx, tables); err != nil {
		return nil, fmt.Errorf("failed to export tables: %w", err)
	}
	return Count(tables), nil
}
