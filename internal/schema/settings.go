package schema

import (
	"fmt"
	"regexp"
)

// AppSettings holds the school-wide header values shown on every table.
type AppSettings struct {
	AcademicYear  string `json:"academicYear" toml:"academic_year"`
	Semester      string `json:"semester" toml:"semester"`
	LastUpdated   string `json:"lastUpdated" toml:"last_updated"`
	LogoURL       string `json:"logoUrl" toml:"logo_url"`
	Headmaster    string `json:"headmaster" toml:"headmaster"`
	HeadmasterNIP string `json:"headmasterNip" toml:"headmaster_nip"`
}

var academicYearPattern = regexp.MustCompile(`^\d{4}/\d{4}$`)

// Semester values.
const (
	SemesterGanjil = "Ganjil"
	SemesterGenap  = "Genap"
)

// Validate checks the academic year format and semester name.
func (s *AppSettings) Validate() error {
	if !academicYearPattern.MatchString(s.AcademicYear) {
		return fmt.Errorf("academic year must look like 2025/2026 (got %q)", s.AcademicYear)
	}
	if s.Semester != SemesterGanjil && s.Semester != SemesterGenap {
		return fmt.Errorf("semester must be %s or %s (got %q)", SemesterGanjil, SemesterGenap, s.Semester)
	}
	return nil
}

// AuthSettings holds the login secrets for each role.
//
// TeacherPasswords is keyed by teacher name, ClassPasswords by class name.
type AuthSettings struct {
	AdminPassword    string            `json:"adminPassword"`
	TeacherPasswords map[string]string `json:"teacherPasswords"`
	ClassPasswords   map[string]string `json:"classPasswords"`
}

// Normalize replaces nil maps with empty ones so the section always
// serializes as objects, never null.
func (a *AuthSettings) Normalize() {
	if a.TeacherPasswords == nil {
		a.TeacherPasswords = map[string]string{}
	}
	if a.ClassPasswords == nil {
		a.ClassPasswords = map[string]string{}
	}
}

// ScheduleMap maps a slot key (class-day-period, e.g. "VII A-Senin-1") to a
// teacher code.
type ScheduleMap map[string]string

// SlotKey builds the key used by ScheduleMap.
func SlotKey(className, day string, period int) string {
	return fmt.Sprintf("%s-%s-%d", className, day, period)
}

// UnavailableConstraints maps a teacher code to the days that teacher
// cannot be scheduled.
type UnavailableConstraints map[string][]string

// Toggle adds day to code's list, or removes it when already present.
// It returns the new list for code.
func (u UnavailableConstraints) Toggle(code, day string) []string {
	days := u[code]
	for i, d := range days {
		if d == day {
			next := make([]string, 0, len(days)-1)
			next = append(next, days[:i]...)
			next = append(next, days[i+1:]...)
			u[code] = next
			return next
		}
	}
	next := append(append([]string(nil), days...), day)
	u[code] = next
	return next
}

// Days of the school week, as used in schedule slot keys.
var Days = []string{"Senin", "Selasa", "Rabu", "Kamis", "Jumat", "Sabtu"}
