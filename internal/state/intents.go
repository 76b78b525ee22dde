package state

import (
	"encoding/json"
	"fmt"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/schema"
)

func addRecord[T schema.Record](c *Container, key string, rec T) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return updateList(c, key, func(l *recordList[T]) error {
		if l.Find(sameID[T](rec.RecordID())) >= 0 {
			return fmt.Errorf("record %s already exists in %s", rec.RecordID(), key)
		}
		return l.Append(rec)
	})
}

func editRecord[T schema.Record](c *Container, key string, rec T) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}
	return updateList(c, key, func(l *recordList[T]) error {
		i := l.Find(sameID[T](rec.RecordID()))
		if i < 0 {
			return fmt.Errorf("%s %s: %w", key, rec.RecordID(), ErrNotFound)
		}
		return l.Replace(i, rec)
	})
}

func deleteRecord[T schema.Record](c *Container, key, id string) error {
	return updateList(c, key, func(l *recordList[T]) error {
		i := l.Find(sameID[T](id))
		if i < 0 {
			return fmt.Errorf("%s %s: %w", key, id, ErrNotFound)
		}
		l.Remove(i)
		return nil
	})
}

func sameID[T schema.Record](id string) func(T) bool {
	return func(rec T) bool { return rec.RecordID() == id }
}

func teacherID(id int) func(schema.Teacher) bool {
	return func(t schema.Teacher) bool { return t.ID == id }
}

func (c *Container) ensureID(id *string) {
	if *id == "" {
		*id = c.newID()
	}
}

// ===== Settings =====

// AppSettings returns the appSettings section.
func (c *Container) AppSettings() (schema.AppSettings, error) {
	return read[schema.AppSettings](c, document.AppSettings)
}

// SetAppSettings validates and replaces the appSettings section.
func (c *Container) SetAppSettings(s schema.AppSettings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return update(c, document.AppSettings, func(v *schema.AppSettings) error {
		*v = s
		return nil
	})
}

// AuthSettings returns the authSettings section.
func (c *Container) AuthSettings() (schema.AuthSettings, error) {
	a, err := read[schema.AuthSettings](c, document.AuthSettings)
	a.Normalize()
	return a, err
}

// SetAuthSettings replaces the authSettings section.
func (c *Container) SetAuthSettings(a schema.AuthSettings) error {
	a.Normalize()
	return update(c, document.AuthSettings, func(v *schema.AuthSettings) error {
		*v = a
		return nil
	})
}

// ===== Teachers =====

// Teachers returns the teacherData section.
func (c *Container) Teachers() ([]schema.Teacher, error) {
	return read[[]schema.Teacher](c, document.TeacherData)
}

// AddTeacher appends t, assigning the next free id and row number when
// unset and recomputing the total hours. It returns the stored teacher.
func (c *Container) AddTeacher(t schema.Teacher) (schema.Teacher, error) {
	err := updateList(c, document.TeacherData, func(l *recordList[schema.Teacher]) error {
		if t.ID == 0 {
			t.ID = schema.NextTeacherID(l.Records())
		}
		if t.No == 0 {
			t.No = l.Len() + 1
		}
		t.TotalHours = t.ComputeTotal()
		if err := t.Validate(); err != nil {
			return fmt.Errorf("invalid teacher: %w", err)
		}
		if l.Find(teacherID(t.ID)) >= 0 {
			return fmt.Errorf("teacher %d already exists", t.ID)
		}
		return l.Append(t)
	})
	return t, err
}

// EditTeacher replaces the teacher with the same id.
func (c *Container) EditTeacher(t schema.Teacher) error {
	t.TotalHours = t.ComputeTotal()
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid teacher: %w", err)
	}
	return updateList(c, document.TeacherData, func(l *recordList[schema.Teacher]) error {
		i := l.Find(teacherID(t.ID))
		if i < 0 {
			return fmt.Errorf("teacher %d: %w", t.ID, ErrNotFound)
		}
		return l.Replace(i, t)
	})
}

// DeleteTeacher removes the teacher with the given id.
func (c *Container) DeleteTeacher(id int) error {
	return updateList(c, document.TeacherData, func(l *recordList[schema.Teacher]) error {
		i := l.Find(teacherID(id))
		if i < 0 {
			return fmt.Errorf("teacher %d: %w", id, ErrNotFound)
		}
		l.Remove(i)
		return nil
	})
}

// ===== Schedule =====

// Schedule returns the scheduleMap section.
func (c *Container) Schedule() (schema.ScheduleMap, error) {
	return read[schema.ScheduleMap](c, document.ScheduleMap)
}

// SetScheduleSlot assigns a teacher code to a slot; an empty code clears it.
func (c *Container) SetScheduleSlot(className, day string, period int, code string) error {
	if !schema.IsClass(className) {
		return fmt.Errorf("unknown class %q", className)
	}
	key := schema.SlotKey(className, day, period)
	return update(c, document.ScheduleMap, func(m *schema.ScheduleMap) error {
		if *m == nil {
			*m = schema.ScheduleMap{}
		}
		if code == "" {
			delete(*m, key)
		} else {
			(*m)[key] = code
		}
		return nil
	})
}

// Constraints returns the unavailableConstraints section.
func (c *Container) Constraints() (schema.UnavailableConstraints, error) {
	return read[schema.UnavailableConstraints](c, document.UnavailableConstraints)
}

// ToggleConstraint marks or unmarks day as unavailable for a teacher code.
func (c *Container) ToggleConstraint(code, day string) error {
	return update(c, document.UnavailableConstraints, func(u *schema.UnavailableConstraints) error {
		if *u == nil {
			*u = schema.UnavailableConstraints{}
		}
		u.Toggle(code, day)
		return nil
	})
}

// ===== Calendar & leaves =====

// Calendar returns the calendarEvents section.
func (c *Container) Calendar() ([]schema.CalendarEvent, error) {
	return read[[]schema.CalendarEvent](c, document.CalendarEvents)
}

// SetCalendar replaces the whole calendarEvents section.
func (c *Container) SetCalendar(events []schema.CalendarEvent) error {
	for i := range events {
		c.ensureID(&events[i].ID)
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("invalid calendar event: %w", err)
		}
	}
	// Events that keep their id keep the members the schema does not model.
	return updateList(c, document.CalendarEvents, func(l *recordList[schema.CalendarEvent]) error {
		next := &recordList[schema.CalendarEvent]{raw: []json.RawMessage{}}
		for _, e := range events {
			if i := l.Find(sameID[schema.CalendarEvent](e.ID)); i >= 0 {
				raw, err := preserve(l.raw[i], e)
				if err != nil {
					return err
				}
				next.raw = append(next.raw, raw)
				next.recs = append(next.recs, e)
				continue
			}
			if err := next.Append(e); err != nil {
				return err
			}
		}
		*l = *next
		return nil
	})
}

// AddCalendarEvent appends one event.
func (c *Container) AddCalendarEvent(e schema.CalendarEvent) (schema.CalendarEvent, error) {
	c.ensureID(&e.ID)
	return e, addRecord(c, document.CalendarEvents, e)
}

// Leaves returns the teacherLeaves section.
func (c *Container) Leaves() ([]schema.TeacherLeave, error) {
	return read[[]schema.TeacherLeave](c, document.TeacherLeaves)
}

// AddLeave appends a leave, filling the teacher name from teacherData.
func (c *Container) AddLeave(l schema.TeacherLeave) (schema.TeacherLeave, error) {
	c.ensureID(&l.ID)
	if l.TeacherName == "" {
		teachers, err := c.Teachers()
		if err != nil {
			return l, err
		}
		for _, t := range teachers {
			if t.ID == l.TeacherID {
				l.TeacherName = t.Name
				break
			}
		}
		if l.TeacherName == "" {
			return l, fmt.Errorf("teacher %d: %w", l.TeacherID, ErrNotFound)
		}
	}
	return l, addRecord(c, document.TeacherLeaves, l)
}

// EditLeave replaces the leave with the same id.
func (c *Container) EditLeave(l schema.TeacherLeave) error {
	return editRecord(c, document.TeacherLeaves, l)
}

// DeleteLeave removes the leave with the given id.
func (c *Container) DeleteLeave(id string) error {
	return deleteRecord[schema.TeacherLeave](c, document.TeacherLeaves, id)
}

// ===== Students =====

// Students returns the students section.
func (c *Container) Students() ([]schema.Student, error) {
	return read[[]schema.Student](c, document.Students)
}

// AddStudent appends a student.
func (c *Container) AddStudent(s schema.Student) (schema.Student, error) {
	c.ensureID(&s.ID)
	return s, addRecord(c, document.Students, s)
}

// EditStudent replaces the student with the same id.
func (c *Container) EditStudent(s schema.Student) error {
	return editRecord(c, document.Students, s)
}

// DeleteStudent removes the student with the given id.
func (c *Container) DeleteStudent(id string) error {
	return deleteRecord[schema.Student](c, document.Students, id)
}

// BulkAddStudents appends every student in one section change.
func (c *Container) BulkAddStudents(students []schema.Student) ([]schema.Student, error) {
	added := make([]schema.Student, len(students))
	for i, s := range students {
		c.ensureID(&s.ID)
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("student %d (%s): %w", i+1, s.Name, err)
		}
		added[i] = s
	}
	err := updateList(c, document.Students, func(l *recordList[schema.Student]) error {
		for _, s := range added {
			if l.Find(sameID[schema.Student](s.ID)) >= 0 {
				return fmt.Errorf("record %s already exists in %s", s.ID, document.Students)
			}
			if err := l.Append(s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// ===== Teaching records =====

// Materials returns the teachingMaterials section.
func (c *Container) Materials() ([]schema.TeachingMaterial, error) {
	return read[[]schema.TeachingMaterial](c, document.TeachingMaterials)
}

// AddMaterial appends a teaching material.
func (c *Container) AddMaterial(m schema.TeachingMaterial) (schema.TeachingMaterial, error) {
	c.ensureID(&m.ID)
	return m, addRecord(c, document.TeachingMaterials, m)
}

// EditMaterial replaces the material with the same id.
func (c *Container) EditMaterial(m schema.TeachingMaterial) error {
	return editRecord(c, document.TeachingMaterials, m)
}

// DeleteMaterial removes the material with the given id.
func (c *Container) DeleteMaterial(id string) error {
	return deleteRecord[schema.TeachingMaterial](c, document.TeachingMaterials, id)
}

// Journals returns the teachingJournals section.
func (c *Container) Journals() ([]schema.TeachingJournal, error) {
	return read[[]schema.TeachingJournal](c, document.TeachingJournals)
}

// AddJournal appends a journal entry.
func (c *Container) AddJournal(j schema.TeachingJournal) (schema.TeachingJournal, error) {
	c.ensureID(&j.ID)
	return j, addRecord(c, document.TeachingJournals, j)
}

// EditJournal replaces the journal entry with the same id.
func (c *Container) EditJournal(j schema.TeachingJournal) error {
	return editRecord(c, document.TeachingJournals, j)
}

// DeleteJournal removes the journal entry with the given id.
func (c *Container) DeleteJournal(id string) error {
	return deleteRecord[schema.TeachingJournal](c, document.TeachingJournals, id)
}

// Grades returns the studentGrades section.
func (c *Container) Grades() ([]schema.GradeRecord, error) {
	return read[[]schema.GradeRecord](c, document.StudentGrades)
}

// UpsertGrade replaces the grade with the same id or appends it.
func (c *Container) UpsertGrade(g schema.GradeRecord) (schema.GradeRecord, error) {
	c.ensureID(&g.ID)
	if err := g.Validate(); err != nil {
		return g, fmt.Errorf("invalid record: %w", err)
	}
	err := updateList(c, document.StudentGrades, func(l *recordList[schema.GradeRecord]) error {
		if i := l.Find(sameID[schema.GradeRecord](g.ID)); i >= 0 {
			return l.Replace(i, g)
		}
		return l.Append(g)
	})
	return g, err
}

// HomeroomRecords returns the homeroomRecords section.
func (c *Container) HomeroomRecords() ([]schema.HomeroomRecord, error) {
	return read[[]schema.HomeroomRecord](c, document.HomeroomRecords)
}

// AddHomeroomRecord appends a homeroom note.
func (c *Container) AddHomeroomRecord(r schema.HomeroomRecord) (schema.HomeroomRecord, error) {
	c.ensureID(&r.ID)
	return r, addRecord(c, document.HomeroomRecords, r)
}

// EditHomeroomRecord replaces the homeroom note with the same id.
func (c *Container) EditHomeroomRecord(r schema.HomeroomRecord) error {
	return editRecord(c, document.HomeroomRecords, r)
}

// DeleteHomeroomRecord removes the homeroom note with the given id.
func (c *Container) DeleteHomeroomRecord(id string) error {
	return deleteRecord[schema.HomeroomRecord](c, document.HomeroomRecords, id)
}

// AttitudeRecords returns the attitudeRecords section.
func (c *Container) AttitudeRecords() ([]schema.AttitudeRecord, error) {
	return read[[]schema.AttitudeRecord](c, document.AttitudeRecords)
}

// AddAttitudeRecord appends an attitude observation.
func (c *Container) AddAttitudeRecord(r schema.AttitudeRecord) (schema.AttitudeRecord, error) {
	c.ensureID(&r.ID)
	return r, addRecord(c, document.AttitudeRecords, r)
}

// EditAttitudeRecord replaces the observation with the same id.
func (c *Container) EditAttitudeRecord(r schema.AttitudeRecord) error {
	return editRecord(c, document.AttitudeRecords, r)
}

// DeleteAttitudeRecord removes the observation with the given id.
func (c *Container) DeleteAttitudeRecord(id string) error {
	return deleteRecord[schema.AttitudeRecord](c, document.AttitudeRecords, id)
}

// Agendas returns the teacherAgendas section.
func (c *Container) Agendas() ([]schema.TeacherAgenda, error) {
	return read[[]schema.TeacherAgenda](c, document.TeacherAgendas)
}

// AddAgenda appends an agenda entry.
func (c *Container) AddAgenda(a schema.TeacherAgenda) (schema.TeacherAgenda, error) {
	c.ensureID(&a.ID)
	return a, addRecord(c, document.TeacherAgendas, a)
}

// EditAgenda replaces the agenda entry with the same id.
func (c *Container) EditAgenda(a schema.TeacherAgenda) error {
	return editRecord(c, document.TeacherAgendas, a)
}

// DeleteAgenda removes the agenda entry with the given id.
func (c *Container) DeleteAgenda(id string) error {
	return deleteRecord[schema.TeacherAgenda](c, document.TeacherAgendas, id)
}
