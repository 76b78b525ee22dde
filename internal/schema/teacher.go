package schema

import (
	"fmt"
	"strings"
)

// Grade levels and class letters used for teaching hours.
var (
	Grades  = []string{"VII", "VIII", "IX"}
	Letters = []string{"A", "B", "C"}
)

// Classes returns every class name, e.g. "VII A", in display order.
func Classes() []string {
	classes := make([]string, 0, len(Grades)*len(Letters))
	for _, g := range Grades {
		for _, l := range Letters {
			classes = append(classes, g+" "+l)
		}
	}
	return classes
}

// IsClass reports whether name is one of Classes().
func IsClass(name string) bool {
	for _, c := range Classes() {
		if c == name {
			return true
		}
	}
	return false
}

// ClassHours holds weekly teaching hours per class letter within one grade.
type ClassHours struct {
	A int `json:"A"`
	B int `json:"B"`
	C int `json:"C"`
}

// Get returns the hours for a class letter.
func (h ClassHours) Get(letter string) int {
	switch letter {
	case "A":
		return h.A
	case "B":
		return h.B
	case "C":
		return h.C
	}
	return 0
}

// Sum returns the hours across all letters.
func (h ClassHours) Sum() int {
	return h.A + h.B + h.C
}

// Teacher is one row of the teacher workload table (teacherData section).
type Teacher struct {
	// ===== Identification =====
	ID   int    `json:"id"`
	No   int    `json:"no"`
	Name string `json:"name"`
	Code string `json:"code"`

	// ===== Civil service rank =====
	Rank string `json:"rank,omitempty"`
	Gol  string `json:"gol,omitempty"`

	// ===== Teaching load =====
	Subject         string     `json:"subject"`
	HoursVII        ClassHours `json:"hoursVII"`
	HoursVIII       ClassHours `json:"hoursVIII"`
	HoursIX         ClassHours `json:"hoursIX"`
	AdditionalTask  string     `json:"additionalTask,omitempty"`
	AdditionalHours int        `json:"additionalHours,omitempty"`
	TotalHours      int        `json:"totalHours"`
}

// Hours returns the hours block for a grade level.
func (t *Teacher) Hours(grade string) ClassHours {
	switch grade {
	case "VII":
		return t.HoursVII
	case "VIII":
		return t.HoursVIII
	case "IX":
		return t.HoursIX
	}
	return ClassHours{}
}

// HoursFor returns the hours for a class name such as "VIII B".
func (t *Teacher) HoursFor(className string) int {
	grade, letter, ok := strings.Cut(className, " ")
	if !ok {
		return 0
	}
	return t.Hours(grade).Get(letter)
}

// ComputeTotal sums every class block plus additional hours.
func (t *Teacher) ComputeTotal() int {
	return t.HoursVII.Sum() + t.HoursVIII.Sum() + t.HoursIX.Sum() + t.AdditionalHours
}

// Validate checks if the Teacher has valid field values.
func (t *Teacher) Validate() error {
	if t.ID <= 0 {
		return fmt.Errorf("id must be positive (got %d)", t.ID)
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	for _, g := range Grades {
		h := t.Hours(g)
		if h.A < 0 || h.B < 0 || h.C < 0 {
			return fmt.Errorf("hours for grade %s cannot be negative", g)
		}
	}
	if t.AdditionalHours < 0 {
		return fmt.Errorf("additional hours cannot be negative (got %d)", t.AdditionalHours)
	}
	return nil
}

// NextTeacherID returns one more than the largest id in teachers.
func NextTeacherID(teachers []Teacher) int {
	next := 1
	for _, t := range teachers {
		if t.ID >= next {
			next = t.ID + 1
		}
	}
	return next
}
