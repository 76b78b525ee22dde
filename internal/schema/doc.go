// Package schema defines the records stored in each section of the school
// document.
//
// Records are plain JSON structures. Field names follow the camelCase keys
// the remote spreadsheet store already holds (teacherId, className,
// hoursVII, ...), so a document fetched from an existing deployment decodes
// without translation.
//
// The sync layer never interprets these records; it moves whole sections.
// Validation here exists for the mutation intents in package state, which
// refuse to put an obviously broken record into a section.
//
// Section shapes:
//
//	appSettings             AppSettings (object)
//	authSettings            AuthSettings (object)
//	teacherData             []Teacher
//	scheduleMap             ScheduleMap (slot key -> teacher code)
//	students                []Student
//	teacherLeaves           []TeacherLeave
//	calendarEvents          []CalendarEvent
//	unavailableConstraints  UnavailableConstraints (teacher code -> days)
//	teachingMaterials       []TeachingMaterial
//	teachingJournals        []TeachingJournal
//	studentGrades           []GradeRecord
//	homeroomRecords         []HomeroomRecord
//	attitudeRecords         []AttitudeRecord
//	teacherAgendas          []TeacherAgenda
package schema
