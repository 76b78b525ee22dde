package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTeacher_Validate(t *testing.T) {
	tests := []struct {
		name    string
		teacher Teacher
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid teacher",
			teacher: Teacher{ID: 1, Name: "Budi", Subject: "IPA", HoursVII: ClassHours{A: 4}},
			wantErr: false,
		},
		{
			name:    "subject is optional",
			teacher: Teacher{ID: 2, Name: "Siti"},
			wantErr: false,
		},
		{
			name:    "missing id",
			teacher: Teacher{Name: "Budi", Subject: "IPA"},
			wantErr: true,
			errMsg:  "id must be positive",
		},
		{
			name:    "blank name",
			teacher: Teacher{ID: 1, Name: "  ", Subject: "IPA"},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "negative hours",
			teacher: Teacher{ID: 1, Name: "Budi", Subject: "IPA", HoursIX: ClassHours{C: -1}},
			wantErr: true,
			errMsg:  "hours for grade IX cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.teacher.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want error containing %q", err.Error(), tt.errMsg)
				}
			} else if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestTeacher_ComputeTotal(t *testing.T) {
	teacher := Teacher{
		HoursVII:        ClassHours{A: 4, B: 4, C: 4},
		HoursVIII:       ClassHours{A: 2},
		HoursIX:         ClassHours{B: 3},
		AdditionalHours: 6,
	}
	if got := teacher.ComputeTotal(); got != 23 {
		t.Errorf("ComputeTotal() = %d, want 23", got)
	}
	if got := teacher.HoursFor("VIII A"); got != 2 {
		t.Errorf("HoursFor(VIII A) = %d, want 2", got)
	}
	if got := teacher.HoursFor("X A"); got != 0 {
		t.Errorf("HoursFor(X A) = %d, want 0", got)
	}
}

func TestTeacher_JSONFieldNames(t *testing.T) {
	data := []byte(`{"id":1,"no":1,"name":"Budi","code":"B1","subject":"IPA","hoursVII":{"A":4,"B":0,"C":2},"totalHours":6}`)

	var teacher Teacher
	if err := json.Unmarshal(data, &teacher); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if teacher.HoursVII.A != 4 || teacher.HoursVII.C != 2 {
		t.Errorf("HoursVII = %+v, want A=4 C=2", teacher.HoursVII)
	}
	if teacher.TotalHours != 6 {
		t.Errorf("TotalHours = %d, want 6", teacher.TotalHours)
	}
}

func TestNextTeacherID(t *testing.T) {
	if got := NextTeacherID(nil); got != 1 {
		t.Errorf("NextTeacherID(nil) = %d, want 1", got)
	}
	teachers := []Teacher{{ID: 3}, {ID: 7}, {ID: 2}}
	if got := NextTeacherID(teachers); got != 8 {
		t.Errorf("NextTeacherID() = %d, want 8", got)
	}
}

func TestRecords_Validate(t *testing.T) {
	tests := []struct {
		name    string
		record  Record
		wantErr string
	}{
		{"valid student", Student{ID: "s1", Name: "Ani", ClassName: "VII A"}, ""},
		{"student unknown class", Student{ID: "s1", Name: "Ani", ClassName: "X Z"}, "unknown class"},
		{"valid leave", TeacherLeave{ID: "l1", TeacherID: 1, Date: "2025-02-03", Type: LeaveSick}, ""},
		{"leave bad date", TeacherLeave{ID: "l1", TeacherID: 1, Date: "03/02/2025", Type: LeaveSick}, "date must be YYYY-MM-DD"},
		{"leave bad type", TeacherLeave{ID: "l1", TeacherID: 1, Date: "2025-02-03", Type: "LIBUR"}, "unknown leave type"},
		{"valid calendar", CalendarEvent{ID: "c1", Date: "2025-08-17", Description: "HUT RI"}, ""},
		{"journal bad mark", TeachingJournal{ID: "j1", TeacherName: "Budi", ClassName: "VII A", Date: "2025-02-03", Attendance: map[string]string{"s1": "X"}}, "invalid attendance mark"},
		{"grade out of range", GradeRecord{ID: "g1", StudentID: "s1", Final: 101}, "between 0 and 100"},
		{"attitude bad grade", AttitudeRecord{ID: "a1", StudentID: "s1", Date: "2025-02-03", Grade: "E"}, "attitude grade must be A-D"},
		{"agenda missing activity", TeacherAgenda{ID: "a1", Date: "2025-02-03"}, "activity is required"},
		{"homeroom valid", HomeroomRecord{ID: "h1", Date: "2025-02-03", ClassName: "IX C", Note: "Rapat orang tua"}, ""},
		{"material missing topic", TeachingMaterial{ID: "m1", TeacherName: "Budi", ClassName: "VII A"}, "topic is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLeaveType(t *testing.T) {
	for input, want := range map[string]LeaveType{"sakit": LeaveSick, " IZIN ": LeavePermit, "dinas": LeaveOfficial} {
		got, err := ParseLeaveType(input)
		if err != nil {
			t.Errorf("ParseLeaveType(%q) error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseLeaveType(%q) = %s, want %s", input, got, want)
		}
	}
}

func TestUnavailableConstraints_Toggle(t *testing.T) {
	u := UnavailableConstraints{}
	u.Toggle("B1", "Senin")
	u.Toggle("B1", "Rabu")
	if got := u["B1"]; len(got) != 2 {
		t.Fatalf("after two toggles got %v", got)
	}
	u.Toggle("B1", "Senin")
	if got := u["B1"]; len(got) != 1 || got[0] != "Rabu" {
		t.Errorf("after removing Senin got %v, want [Rabu]", got)
	}
}

func TestClasses(t *testing.T) {
	classes := Classes()
	if len(classes) != 9 {
		t.Fatalf("Classes() returned %d entries, want 9", len(classes))
	}
	if classes[0] != "VII A" || classes[8] != "IX C" {
		t.Errorf("Classes() = %v", classes)
	}
	if got := SlotKey("VII A", "Senin", 1); got != "VII A-Senin-1" {
		t.Errorf("SlotKey() = %q", got)
	}
}
