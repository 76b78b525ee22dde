package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/remote/remotetest"
	"github.com/smpn3pacet/jadwal/internal/schema"
	"github.com/smpn3pacet/jadwal/internal/state"
)

const testDebounce = 30 * time.Millisecond

// harness wires a fake store, a container, a session, a coordinator and a
// bridge the way the command line does.
type harness struct {
	store     *remotetest.Store
	container *state.Container
	session   *Session
	coord     *Coordinator
	bridge    *Bridge
}

func newHarness(t *testing.T, remoteDoc document.Document, role Role) *harness {
	t.Helper()
	h := &harness{
		store:     remotetest.New(remoteDoc),
		container: state.New(nil),
		session:   NewSession(),
	}
	h.coord = newCoordinator(fetchOnly{h.store}, h.container, h.session, false)
	h.bridge = NewBridge(fetchOnly{h.store}, h.container, h.session, &BridgeConfig{
		Debounce:     testDebounce,
		WriteTimeout: time.Second,
		Role:         role,
		Logger:       quiet,
	})
	t.Cleanup(func() { _ = h.bridge.Close() })
	return h
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	h.coord.Load(context.Background())
	h.bridge.Arm()
}

// settle waits well past the debounce window.
func settle() {
	time.Sleep(4 * testDebounce)
}

func addStudent(t *testing.T, c *state.Container, name string) {
	t.Helper()
	_, err := c.AddStudent(schema.Student{Name: name, ClassName: "VII A"})
	require.NoError(t, err)
}

func TestBridge_NoClobberBeforeLoad(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[{"id":"r1","name":"Rina","className":"IX C"}]`)}, RoleAdmin)
	h.store.FetchGate = make(chan struct{})
	h.bridge.Arm()

	loaded := make(chan struct{})
	go func() {
		h.coord.Load(context.Background())
		close(loaded)
	}()
	assert.Eventually(t, func() bool { return h.store.Fetches() == 1 }, time.Second, time.Millisecond)

	// Edits while the fetch is outstanding are never written.
	addStudent(t, h.container, "Early")
	require.NoError(t, h.container.SetCalendar(nil))
	settle()
	assert.Empty(t, h.store.Saves())
	assert.Empty(t, h.bridge.Pending())

	close(h.store.FetchGate)
	<-loaded
	settle()
	assert.Empty(t, h.store.Saves(), "hydration is not written back")
	assert.Equal(t, int64(2), h.bridge.Dropped())
}

func TestBridge_CoalescesSameSection(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.load(t)

	for i := 1; i <= 5; i++ {
		addStudent(t, h.container, fmt.Sprintf("Siswa %d", i))
	}

	assert.Eventually(t, func() bool { return len(h.store.Saves()) == 1 }, time.Second, 5*time.Millisecond)
	settle()
	saves := h.store.Saves()
	require.Len(t, saves, 1, "N edits in one window produce one write")
	assert.Equal(t, document.Students, saves[0].Key)

	var written []schema.Student
	require.NoError(t, json.Unmarshal(saves[0].Value, &written))
	require.Len(t, written, 5)
	assert.Equal(t, "Siswa 5", written[4].Name, "the write carries the value after the last edit")
}

func TestBridge_OneWritePerSection(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.load(t)

	addStudent(t, h.container, "Ani")
	_, err := h.container.AddCalendarEvent(schema.CalendarEvent{Date: "2025-08-17", Description: "HUT RI"})
	require.NoError(t, err)
	addStudent(t, h.container, "Budi")

	assert.Eventually(t, func() bool { return len(h.store.Saves()) == 2 }, time.Second, 5*time.Millisecond)
	settle()
	assert.ElementsMatch(t, []string{document.Students, document.CalendarEvents}, h.store.SavedKeys())

	for _, save := range h.store.Saves() {
		current, ok := h.container.Section(save.Key)
		require.True(t, ok)
		assert.True(t, document.RawEqual(current, save.Value), "%s written with its latest value", save.Key)
	}
}

func TestBridge_RoleGating(t *testing.T) {
	tests := []struct {
		role      Role
		wantSaves []string
	}{
		{RoleAdmin, []string{document.Students, document.TeachingJournals}},
		{RoleTeacher, []string{document.TeachingJournals}},
		{RoleNone, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, tt.role)
			h.load(t)

			addStudent(t, h.container, "Ani")
			_, err := h.container.AddJournal(schema.TeachingJournal{
				Date:        "2025-07-14",
				TeacherName: "Budi",
				ClassName:   "VII A",
				Subject:     "IPA",
				Topic:       "Sel",
			})
			require.NoError(t, err)

			require.NoError(t, h.bridge.Flush())
			assert.ElementsMatch(t, tt.wantSaves, h.store.SavedKeys())

			// Local state updates even when the write is dropped.
			students, _ := h.container.Students()
			assert.Len(t, students, 1)
		})
	}
}

func TestBridge_ReplaceSectionWritesExactValue(t *testing.T) {
	h := newHarness(t, document.Document{document.TeacherData: json.RawMessage(`[{"id":1,"name":"Budi"}]`)}, RoleAdmin)
	h.load(t)

	raw, _ := h.container.Section(document.TeacherData)
	assert.JSONEq(t, `[{"id":1,"name":"Budi"}]`, string(raw))

	require.NoError(t, h.container.ReplaceSection(document.TeacherData, json.RawMessage(`[{"id":1,"name":"Budi"},{"id":2,"name":"Siti"}]`)))
	assert.Empty(t, h.store.Saves(), "nothing is written before the debounce delay")

	assert.Eventually(t, func() bool { return len(h.store.Saves()) == 1 }, time.Second, 5*time.Millisecond)
	settle()
	saves := h.store.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, document.TeacherData, saves[0].Key)
	assert.JSONEq(t, `[{"id":1,"name":"Budi"},{"id":2,"name":"Siti"}]`, string(saves[0].Value))
}

func TestBridge_AddTeacherWritesOnlyTeacherData(t *testing.T) {
	h := newHarness(t, document.Document{document.TeacherData: json.RawMessage(`[{"id":1,"name":"Budi","subject":"IPA"}]`)}, RoleAdmin)
	h.load(t)

	added, err := h.container.AddTeacher(schema.Teacher{Name: "Siti", Subject: "Matematika"})
	require.NoError(t, err)
	assert.Equal(t, 2, added.ID)

	require.NoError(t, h.bridge.Flush())
	saves := h.store.Saves()
	require.Len(t, saves, 1)

	var teachers []schema.Teacher
	require.NoError(t, json.Unmarshal(saves[0].Value, &teachers))
	require.Len(t, teachers, 2)
	assert.Equal(t, "Budi", teachers[0].Name)
	assert.Equal(t, "Siti", teachers[1].Name)
}

func TestBridge_FailedLoadStillWrites(t *testing.T) {
	h := newHarness(t, nil, RoleAdmin)
	h.store.FetchErr = fmt.Errorf("%w: received an HTML page", remote.ErrMalformedResponse)
	h.load(t)

	require.Equal(t, StatusError, h.session.Status())
	require.True(t, h.session.IsLoaded())
	assert.True(t, document.Equal(document.MustDefaults(), h.container.Snapshot()))

	addStudent(t, h.container, "Ani")
	require.NoError(t, h.bridge.Flush())

	assert.Equal(t, []string{document.Students}, h.store.SavedKeys())
	assert.Equal(t, StatusConnected, h.session.Status())
}

func TestBridge_NotConfigured(t *testing.T) {
	h := newHarness(t, nil, RoleAdmin)
	h.store.Configured = false
	h.load(t)

	require.Equal(t, StatusDisconnected, h.session.Status())
	addStudent(t, h.container, "Ani")
	require.NoError(t, h.bridge.Flush())

	assert.Empty(t, h.store.Saves())
	assert.Equal(t, 0, h.store.Fetches())
	assert.Equal(t, StatusDisconnected, h.session.Status())
}

func TestBridge_WriteFailureKeepsLocalState(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.load(t)
	h.store.SetSaveErr(fmt.Errorf("%w: status 500", remote.ErrTransport))

	addStudent(t, h.container, "Ani")
	err := h.bridge.Flush()
	assert.ErrorIs(t, err, remote.ErrTransport)
	assert.Equal(t, StatusError, h.session.Status())
	assert.ErrorIs(t, h.session.LastError(), remote.ErrTransport)

	students, _ := h.container.Students()
	assert.Len(t, students, 1, "remote failure never rolls back the edit")

	// The next successful write recovers the status.
	h.store.SetSaveErr(nil)
	addStudent(t, h.container, "Budi")
	require.NoError(t, h.bridge.Flush())
	assert.Equal(t, StatusConnected, h.session.Status())
}

func TestBridge_SyncingWhileWriteOutstanding(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.load(t)
	h.store.SaveGate = make(chan struct{})

	addStudent(t, h.container, "Ani")
	assert.Eventually(t, func() bool { return h.session.Status() == StatusSyncing }, time.Second, 5*time.Millisecond)

	// Editing continues while the write is in flight.
	addStudent(t, h.container, "Budi")
	students, _ := h.container.Students()
	assert.Len(t, students, 2)

	close(h.store.SaveGate)
	require.NoError(t, h.bridge.Flush())
	assert.Equal(t, StatusConnected, h.session.Status())
}

func TestBridge_WriteTimeout(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.bridge.config.WriteTimeout = 50 * time.Millisecond
	h.load(t)
	h.store.SaveGate = make(chan struct{})
	defer close(h.store.SaveGate)

	addStudent(t, h.container, "Ani")
	err := h.bridge.Flush()
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, StatusError, h.session.Status())
}

func TestBridge_RemoteChangesIgnored(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.load(t)

	h.container.Hydrate(document.Document{document.Students: json.RawMessage(`[{"id":"r","name":"Remote","className":"VII A"}]`)})
	settle()
	assert.Empty(t, h.store.Saves())
	assert.Equal(t, int64(0), h.bridge.Dropped())
}

func TestBridge_RestoreIsWritten(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.load(t)

	h.container.Restore(document.Document{
		document.Students:       json.RawMessage(`[]`),
		document.CalendarEvents: json.RawMessage(`[]`),
	})
	require.NoError(t, h.bridge.Flush())
	assert.ElementsMatch(t, []string{document.Students, document.CalendarEvents}, h.store.SavedKeys())
}

func TestBridge_CloseFlushesPending(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.bridge.config.Debounce = time.Hour
	h.bridge.debouncer = NewDebouncer(time.Hour, h.bridge.writeDirty)
	h.load(t)

	addStudent(t, h.container, "Ani")
	assert.Equal(t, []string{document.Students}, h.bridge.Pending())

	require.NoError(t, h.bridge.Close())
	assert.Equal(t, []string{document.Students}, h.store.SavedKeys())

	// Closed bridges no longer observe.
	addStudent(t, h.container, "Budi")
	require.NoError(t, h.bridge.Flush())
	assert.Len(t, h.store.Saves(), 1)
}

func TestBridge_AddTeacherKeepsRemoteRecord(t *testing.T) {
	h := newHarness(t, document.Document{document.TeacherData: json.RawMessage(`[{"id":1,"name":"Budi"}]`)}, RoleAdmin)
	h.load(t)

	_, err := h.container.AddTeacher(schema.Teacher{ID: 2, Name: "Siti"})
	require.NoError(t, err)
	assert.Empty(t, h.store.Saves(), "nothing is written before the debounce delay")

	assert.Eventually(t, func() bool { return len(h.store.Saves()) == 1 }, time.Second, 5*time.Millisecond)
	settle()
	saves := h.store.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, document.TeacherData, saves[0].Key)

	var list []json.RawMessage
	require.NoError(t, json.Unmarshal(saves[0].Value, &list))
	require.Len(t, list, 2)
	assert.JSONEq(t, `{"id":1,"name":"Budi"}`, string(list[0]))

	var siti schema.Teacher
	require.NoError(t, json.Unmarshal(list[1], &siti))
	assert.Equal(t, 2, siti.ID)
	assert.Equal(t, "Siti", siti.Name)
}

func TestBridge_FailedSectionRetriedWithNextBatch(t *testing.T) {
	h := newHarness(t, document.Document{
		document.Students:       json.RawMessage(`[]`),
		document.CalendarEvents: json.RawMessage(`[]`),
	}, RoleAdmin)
	h.load(t)
	h.store.SetSaveErrFor(document.Students, fmt.Errorf("%w: status 500", remote.ErrTransport))

	addStudent(t, h.container, "Ani")
	assert.ErrorIs(t, h.bridge.Flush(), remote.ErrTransport)
	assert.Equal(t, []string{document.Students}, h.bridge.Pending(), "the failed section stays pending")

	h.store.SetSaveErrFor(document.Students, nil)
	_, err := h.container.AddCalendarEvent(schema.CalendarEvent{Date: "2025-08-17", Description: "HUT RI"})
	require.NoError(t, err)
	require.NoError(t, h.bridge.Flush())
	assert.Empty(t, h.bridge.Pending())

	raw, ok := h.store.Section(document.Students)
	require.True(t, ok)
	var students []schema.Student
	require.NoError(t, json.Unmarshal(raw, &students))
	require.Len(t, students, 1)
	assert.Equal(t, "Ani", students[0].Name)
	assert.Equal(t, StatusConnected, h.session.Status())
}

func TestBridge_FlushAfterTimeoutWaitsForSaves(t *testing.T) {
	h := newHarness(t, document.Document{document.Students: json.RawMessage(`[]`)}, RoleAdmin)
	h.bridge.config.WriteTimeout = 20 * time.Millisecond
	h.load(t)
	h.store.SaveHold = 150 * time.Millisecond

	addStudent(t, h.container, "Ani")
	err := h.bridge.Flush()
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, h.store.InFlight(), "no save runs once Flush returns")
	assert.Len(t, h.store.Saves(), 1)
	assert.Equal(t, StatusError, h.session.Status())
}
