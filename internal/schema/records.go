package schema

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by every dated record.
const DateLayout = "2006-01-02"

// Record is implemented by every list record keyed by a string id.
type Record interface {
	RecordID() string
	Validate() error
}

func validateDate(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return fmt.Errorf("%s must be YYYY-MM-DD (got %q)", field, value)
	}
	return nil
}

func validateClass(value string) error {
	if !IsClass(value) {
		return fmt.Errorf("unknown class %q", value)
	}
	return nil
}

// Student is one entry of the student roster.
type Student struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ClassName string `json:"className"`
}

func (s Student) RecordID() string { return s.ID }

// Validate checks if the Student has valid field values.
func (s Student) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return validateClass(s.ClassName)
}

// LeaveType classifies a teacher absence.
type LeaveType string

const (
	LeaveSick     LeaveType = "SAKIT"
	LeavePermit   LeaveType = "IZIN"
	LeaveOfficial LeaveType = "DINAS_LUAR"
)

// ParseLeaveType accepts the stored value case-insensitively.
func ParseLeaveType(s string) (LeaveType, error) {
	switch LeaveType(strings.ToUpper(strings.TrimSpace(s))) {
	case LeaveSick:
		return LeaveSick, nil
	case LeavePermit:
		return LeavePermit, nil
	case LeaveOfficial, "DINAS":
		return LeaveOfficial, nil
	}
	return "", fmt.Errorf("unknown leave type %q (want SAKIT, IZIN or DINAS_LUAR)", s)
}

// TeacherLeave records one day a teacher is absent.
type TeacherLeave struct {
	ID          string    `json:"id"`
	TeacherID   int       `json:"teacherId"`
	TeacherName string    `json:"teacherName"`
	Date        string    `json:"date"`
	Type        LeaveType `json:"type"`
	Description string    `json:"description,omitempty"`
}

func (l TeacherLeave) RecordID() string { return l.ID }

// Validate checks if the TeacherLeave has valid field values.
func (l TeacherLeave) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.TeacherID <= 0 {
		return fmt.Errorf("teacherId is required")
	}
	if _, err := ParseLeaveType(string(l.Type)); err != nil {
		return err
	}
	return validateDate("date", l.Date)
}

// CalendarEvent marks a holiday or school event.
type CalendarEvent struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

func (c CalendarEvent) RecordID() string { return c.ID }

// Validate checks if the CalendarEvent has valid field values.
func (c CalendarEvent) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("description is required")
	}
	return validateDate("date", c.Date)
}

// TeachingMaterial is a lesson plan entry for a class and subject.
type TeachingMaterial struct {
	ID          string `json:"id"`
	TeacherName string `json:"teacherName"`
	Subject     string `json:"subject"`
	ClassName   string `json:"className"`
	Semester    string `json:"semester,omitempty"`
	Topic       string `json:"topic"`
	Description string `json:"description,omitempty"`
}

func (m TeachingMaterial) RecordID() string { return m.ID }

// Validate checks if the TeachingMaterial has valid field values.
func (m TeachingMaterial) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if m.TeacherName == "" {
		return fmt.Errorf("teacherName is required")
	}
	if strings.TrimSpace(m.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	return validateClass(m.ClassName)
}

// Attendance marks for a student in a journal entry.
const (
	AttendancePresent = "H"
	AttendanceSick    = "S"
	AttendancePermit  = "I"
	AttendanceAbsent  = "A"
)

// TeachingJournal is one taught lesson, including the attendance taken.
//
// Attendance maps student id to one of the Attendance* marks; students
// without an entry are present.
type TeachingJournal struct {
	ID          string            `json:"id"`
	Date        string            `json:"date"`
	TeacherName string            `json:"teacherName"`
	ClassName   string            `json:"className"`
	Subject     string            `json:"subject"`
	Period      string            `json:"jamKe,omitempty"`
	Topic       string            `json:"topic"`
	Notes       string            `json:"notes,omitempty"`
	Attendance  map[string]string `json:"attendance,omitempty"`
}

func (j TeachingJournal) RecordID() string { return j.ID }

// Validate checks if the TeachingJournal has valid field values.
func (j TeachingJournal) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("id is required")
	}
	if j.TeacherName == "" {
		return fmt.Errorf("teacherName is required")
	}
	if err := validateClass(j.ClassName); err != nil {
		return err
	}
	for studentID, mark := range j.Attendance {
		switch mark {
		case AttendancePresent, AttendanceSick, AttendancePermit, AttendanceAbsent:
		default:
			return fmt.Errorf("invalid attendance mark %q for student %s", mark, studentID)
		}
	}
	return validateDate("date", j.Date)
}

// GradeRecord holds one student's scores for a subject.
type GradeRecord struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"studentId"`
	TeacherName string  `json:"teacherName"`
	Subject     string  `json:"subject"`
	ClassName   string  `json:"className"`
	Semester    string  `json:"semester,omitempty"`
	Daily       float64 `json:"daily"`
	Midterm     float64 `json:"midterm"`
	Final       float64 `json:"final"`
}

func (g GradeRecord) RecordID() string { return g.ID }

// Average returns the mean of the three scores.
func (g GradeRecord) Average() float64 {
	return (g.Daily + g.Midterm + g.Final) / 3
}

// Validate checks if the GradeRecord has valid field values.
func (g GradeRecord) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if g.StudentID == "" {
		return fmt.Errorf("studentId is required")
	}
	for name, v := range map[string]float64{"daily": g.Daily, "midterm": g.Midterm, "final": g.Final} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s score must be between 0 and 100 (got %v)", name, v)
		}
	}
	return nil
}

// HomeroomRecord is a homeroom teacher's note about a student.
type HomeroomRecord struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	TeacherName string `json:"teacherName"`
	ClassName   string `json:"className"`
	StudentID   string `json:"studentId,omitempty"`
	Category    string `json:"category,omitempty"`
	Note        string `json:"note"`
	FollowUp    string `json:"followUp,omitempty"`
}

func (h HomeroomRecord) RecordID() string { return h.ID }

// Validate checks if the HomeroomRecord has valid field values.
func (h HomeroomRecord) Validate() error {
	if h.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(h.Note) == "" {
		return fmt.Errorf("note is required")
	}
	if err := validateClass(h.ClassName); err != nil {
		return err
	}
	return validateDate("date", h.Date)
}

// AttitudeRecord is an observation of student behaviour.
type AttitudeRecord struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	TeacherName string `json:"teacherName"`
	StudentID   string `json:"studentId"`
	ClassName   string `json:"className"`
	Aspect      string `json:"aspect"`
	Grade       string `json:"grade"`
	Note        string `json:"note,omitempty"`
}

func (a AttitudeRecord) RecordID() string { return a.ID }

// Validate checks if the AttitudeRecord has valid field values.
func (a AttitudeRecord) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.StudentID == "" {
		return fmt.Errorf("studentId is required")
	}
	switch a.Grade {
	case "A", "B", "C", "D":
	default:
		return fmt.Errorf("attitude grade must be A-D (got %q)", a.Grade)
	}
	return validateDate("date", a.Date)
}

// TeacherAgenda is a teacher's non-teaching activity.
type TeacherAgenda struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	TeacherName string `json:"teacherName"`
	Activity    string `json:"activity"`
	Location    string `json:"location,omitempty"`
	Result      string `json:"result,omitempty"`
}

func (a TeacherAgenda) RecordID() string { return a.ID }

// Validate checks if the TeacherAgenda has valid field values.
func (a TeacherAgenda) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.TrimSpace(a.Activity) == "" {
		return fmt.Errorf("activity is required")
	}
	return validateDate("date", a.Date)
}
