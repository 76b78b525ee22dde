package syncer

import (
	"fmt"
	"strings"

	"github.com/smpn3pacet/jadwal/internal/document"
)

// Role is the write privilege of a session.
type Role string

const (
	// RoleAdmin may write every section.
	RoleAdmin Role = "admin"
	// RoleTeacher may write only the sections holding a teacher's own
	// classroom records.
	RoleTeacher Role = "teacher"
	// RoleNone never writes.
	RoleNone Role = "none"
)

var teacherSections = map[string]bool{
	document.TeachingMaterials: true,
	document.TeachingJournals:  true,
	document.StudentGrades:     true,
	document.HomeroomRecords:   true,
	document.AttitudeRecords:   true,
	document.TeacherAgendas:    true,
}

// ParseRole parses a role name. The empty string is RoleNone.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleNone, "":
		return RoleNone, nil
	}
	return RoleNone, fmt.Errorf("unknown role %q (want admin, teacher or none)", s)
}

// CanWrite reports whether the role may write section.
func (r Role) CanWrite(section string) bool {
	switch r {
	case RoleAdmin:
		return document.IsSection(section)
	case RoleTeacher:
		return teacherSections[section]
	default:
		return false
	}
}

// Writable returns the sections the role may write, in canonical order.
func (r Role) Writable() []string {
	var out []string
	for _, k := range document.Keys() {
		if r.CanWrite(k) {
			out = append(out, k)
		}
	}
	return out
}
