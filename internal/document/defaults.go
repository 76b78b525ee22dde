package document

import (
	_ "embed"
	"fmt"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/smpn3pacet/jadwal/internal/schema"
)

//go:embed defaults.toml
var defaultsTOML string

type seedTeacher struct {
	Name            string `toml:"name"`
	Code            string `toml:"code"`
	Subject         string `toml:"subject"`
	Rank            string `toml:"rank"`
	Gol             string `toml:"gol"`
	HoursVII        []int  `toml:"hours_vii"`
	HoursVIII       []int  `toml:"hours_viii"`
	HoursIX         []int  `toml:"hours_ix"`
	AdditionalTask  string `toml:"additional_task"`
	AdditionalHours int    `toml:"additional_hours"`
}

type seedStudent struct {
	Name  string `toml:"name"`
	Class string `toml:"class"`
}

type seedFile struct {
	AppSettings schema.AppSettings `toml:"app_settings"`
	Teachers    []seedTeacher      `toml:"teachers"`
	Students    []seedStudent      `toml:"students"`
	Schedule    map[string]string  `toml:"schedule"`
}

func classHours(h []int) schema.ClassHours {
	var out schema.ClassHours
	if len(h) > 0 {
		out.A = h[0]
	}
	if len(h) > 1 {
		out.B = h[1]
	}
	if len(h) > 2 {
		out.C = h[2]
	}
	return out
}

// Defaults returns the document a fresh session starts with: the embedded
// seed values for settings, teachers, students and schedule, and empty
// values for every other section.
func Defaults() (Document, error) {
	var seed seedFile
	if _, err := toml.Decode(defaultsTOML, &seed); err != nil {
		return nil, fmt.Errorf("failed to decode embedded defaults: %w", err)
	}

	teachers := make([]schema.Teacher, 0, len(seed.Teachers))
	for i, st := range seed.Teachers {
		t := schema.Teacher{
			ID:              i + 1,
			No:              i + 1,
			Name:            st.Name,
			Code:            st.Code,
			Subject:         st.Subject,
			Rank:            st.Rank,
			Gol:             st.Gol,
			HoursVII:        classHours(st.HoursVII),
			HoursVIII:       classHours(st.HoursVIII),
			HoursIX:         classHours(st.HoursIX),
			AdditionalTask:  st.AdditionalTask,
			AdditionalHours: st.AdditionalHours,
		}
		t.TotalHours = t.ComputeTotal()
		teachers = append(teachers, t)
	}

	students := make([]schema.Student, 0, len(seed.Students))
	for i, ss := range seed.Students {
		students = append(students, schema.Student{
			ID:        "seed-" + strconv.Itoa(i+1),
			Name:      ss.Name,
			ClassName: ss.Class,
		})
	}

	schedule := schema.ScheduleMap(seed.Schedule)
	if schedule == nil {
		schedule = schema.ScheduleMap{}
	}
	auth := schema.AuthSettings{}
	auth.Normalize()

	doc := Document{}
	values := map[string]any{
		AppSettings:            seed.AppSettings,
		AuthSettings:           auth,
		TeacherData:            teachers,
		ScheduleMap:            schedule,
		UnavailableConstraints: schema.UnavailableConstraints{},
		CalendarEvents:         []schema.CalendarEvent{},
		TeacherLeaves:          []schema.TeacherLeave{},
		Students:               students,
		TeachingMaterials:      []schema.TeachingMaterial{},
		TeachingJournals:       []schema.TeachingJournal{},
		StudentGrades:          []schema.GradeRecord{},
		HomeroomRecords:        []schema.HomeroomRecord{},
		AttitudeRecords:        []schema.AttitudeRecord{},
		TeacherAgendas:         []schema.TeacherAgenda{},
	}
	for _, k := range sectionKeys {
		if err := doc.Encode(k, values[k]); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// MustDefaults is Defaults for callers that treat a broken embedded file
// as a programming error.
func MustDefaults() Document {
	doc, err := Defaults()
	if err != nil {
		panic(err)
	}
	return doc
}
