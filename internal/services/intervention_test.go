package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervention-engine/internal/metrics"
	"intervention-engine/internal/models"
)

type serviceFixture struct {
	store       *memStore
	broadcaster *recordingBroadcaster
	notifier    *recordingNotifier
	svc         *InterventionService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := newMemStore()
	b := &recordingBroadcaster{store: store}
	n := &recordingNotifier{}
	svc := NewInterventionService(store, b, n, metrics.New(), nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return &serviceFixture{store: store, broadcaster: b, notifier: n, svc: svc}
}

func TestCheckin_SuccessEndToEnd(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusOnTrack)

	resp, err := f.svc.Checkin(context.Background(), id, 9, 90)
	require.NoError(t, err)
	assert.Equal(t, "On Track", resp.Status)

	assert.Equal(t, models.StatusOnTrack, f.store.student(id).Status)
	logs := f.store.logsFor(id)
	require.Len(t, logs, 1)
	assert.Equal(t, 9, logs[0].QuizScore)
	assert.Equal(t, 90, logs[0].FocusMinutes)
	assert.Equal(t, models.CheckinSuccess, logs[0].ResultStatus)

	assert.Empty(t, f.notifier.calls)
	sent := f.broadcaster.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.Event{Event: models.EventStatusChanged, Status: models.StatusOnTrack}, sent[0].event)
}

func TestCheckin_FailureEndToEnd(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Grace", models.StatusOnTrack)

	resp, err := f.svc.Checkin(context.Background(), id, 5, 30)
	require.NoError(t, err)
	assert.Equal(t, "Pending Mentor Review", resp.Status)

	assert.Equal(t, models.StatusNeedsIntervention, f.store.student(id).Status)
	logs := f.store.logsFor(id)
	require.Len(t, logs, 1)
	assert.Equal(t, models.CheckinFailure, logs[0].ResultStatus)

	require.Len(t, f.notifier.calls, 1)
	assert.Equal(t, failureCall{studentID: id, name: "Grace", quizScore: 5, focusMinutes: 30}, f.notifier.calls[0])

	sent := f.broadcaster.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.StatusNeedsIntervention, sent[0].event.Status)
	assert.Equal(t, "Analysis in progress. Waiting for Mentor...", sent[0].event.Message)
}

func TestCheckin_WorkflowFailureDoesNotChangeOutcome(t *testing.T) {
	f := newServiceFixture(t)
	f.notifier.err = errWorkflowDown
	id := f.store.addStudent("Linus", models.StatusOnTrack)

	resp, err := f.svc.Checkin(context.Background(), id, 7, 60)
	require.NoError(t, err)
	assert.Equal(t, "Pending Mentor Review", resp.Status)
	assert.Equal(t, models.StatusNeedsIntervention, f.store.student(id).Status)
	assert.Len(t, f.store.logsFor(id), 1)
	assert.Len(t, f.broadcaster.sent(), 1)
}

func TestCheckin_ThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		quiz, focus int
		expected    string
	}{
		{"both at threshold", 7, 60, "Pending Mentor Review"},
		{"both just above", 8, 61, "On Track"},
		{"quiz at threshold", 7, 61, "Pending Mentor Review"},
		{"focus at threshold", 8, 60, "Pending Mentor Review"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(t)
			id := f.store.addStudent("Student", models.StatusOnTrack)

			resp, err := f.svc.Checkin(context.Background(), id, tc.quiz, tc.focus)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, resp.Status)
		})
	}
}

func TestCheckin_BroadcastAfterCommit(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusOnTrack)

	_, err := f.svc.Checkin(context.Background(), id, 3, 10)
	require.NoError(t, err)

	sent := f.broadcaster.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, sent[0].event.Status, sent[0].storedStatus)
}

func TestMutations_UnknownStudent(t *testing.T) {
	ops := map[string]func(svc *InterventionService, id uuid.UUID) error{
		"checkin": func(svc *InterventionService, id uuid.UUID) error {
			_, err := svc.Checkin(context.Background(), id, 9, 90)
			return err
		},
		"assign": func(svc *InterventionService, id uuid.UUID) error {
			_, err := svc.Assign(context.Background(), id, "Read Chapter 4")
			return err
		},
		"auto-unlock": func(svc *InterventionService, id uuid.UUID) error {
			_, err := svc.Assign(context.Background(), id, AutoUnlockTask)
			return err
		},
		"mark complete": func(svc *InterventionService, id uuid.UUID) error {
			_, err := svc.MarkComplete(context.Background(), id)
			return err
		},
		"status": func(svc *InterventionService, id uuid.UUID) error {
			_, err := svc.Status(context.Background(), id)
			return err
		},
		"history": func(svc *InterventionService, id uuid.UUID) error {
			_, err := svc.History(context.Background(), id)
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.store.addStudent("Someone else", models.StatusOnTrack)

			err := op(f.svc, uuid.New())

			var nf *NotFoundError
			require.ErrorAs(t, err, &nf)
			assert.Equal(t, "Student not found", nf.Message)
			assert.Empty(t, f.store.logs)
			assert.Empty(t, f.store.interventions)
			assert.Empty(t, f.broadcaster.sent())
			assert.Empty(t, f.notifier.calls)
		})
	}
}

func TestMutations_CommitFailureSendsNothing(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusOnTrack)
	f.store.commitErr = errors.New("connection reset")

	_, err := f.svc.Checkin(context.Background(), id, 1, 1)
	require.Error(t, err)
	_, err = f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.Error(t, err)
	_, err = f.svc.MarkComplete(context.Background(), id)
	require.Error(t, err)

	assert.Equal(t, models.StatusOnTrack, f.store.student(id).Status)
	assert.Empty(t, f.store.logs)
	assert.Empty(t, f.store.interventions)
	assert.Empty(t, f.broadcaster.sent())
	assert.Empty(t, f.notifier.calls)
}

func TestAssign_CreatesPendingIntervention(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)

	resp, err := f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.NoError(t, err)
	assert.Equal(t, "Intervention assigned", resp.Message)

	assert.Equal(t, models.StatusAssignedTask, f.store.student(id).Status)
	pending := f.store.interventionsFor(id, models.InterventionPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "Read Chapter 4", pending[0].Task)
	assert.Equal(t, models.AssignedByMentor, pending[0].AssignedBy)
	assert.Nil(t, pending[0].CompletedAt)

	sent := f.broadcaster.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.EventInterventionAssigned, sent[0].event.Event)
	assert.Equal(t, models.StatusAssignedTask, sent[0].event.Status)
	require.NotNil(t, sent[0].event.Task)
	assert.Equal(t, "Read Chapter 4", *sent[0].event.Task)
}

func TestAssign_NewTaskSupersedesPending(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)

	_, err := f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.NoError(t, err)
	_, err = f.svc.Assign(context.Background(), id, "Watch lecture 2")
	require.NoError(t, err)

	pending := f.store.interventionsFor(id, models.InterventionPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "Watch lecture 2", pending[0].Task)

	abandoned := f.store.interventionsFor(id, models.InterventionAbandoned)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "Read Chapter 4", abandoned[0].Task)
	assert.NotNil(t, abandoned[0].CompletedAt)
}

func TestAssign_AutoUnlock(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)

	resp, err := f.svc.Assign(context.Background(), id, AutoUnlockTask)
	require.NoError(t, err)
	assert.Equal(t, "Student auto-unlocked", resp.Message)

	assert.Equal(t, models.StatusOnTrack, f.store.student(id).Status)
	assert.Empty(t, f.store.interventions)

	sent := f.broadcaster.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, models.Event{Event: models.EventStatusChanged, Status: models.StatusOnTrack}, sent[0].event)
}

func TestAssign_AutoUnlockLeavesPendingAlone(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)
	_, err := f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.NoError(t, err)

	_, err = f.svc.Assign(context.Background(), id, AutoUnlockTask)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOnTrack, f.store.student(id).Status)
	assert.Len(t, f.store.interventionsFor(id, models.InterventionPending), 1)
}

func TestAssign_EmptyTask(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)

	_, err := f.svc.Assign(context.Background(), id, "   ")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "task")
	assert.Equal(t, models.StatusNeedsIntervention, f.store.student(id).Status)
	assert.Empty(t, f.broadcaster.sent())
}

func TestMarkComplete_CompletesPending(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)
	_, err := f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.NoError(t, err)

	resp, err := f.svc.MarkComplete(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Task completed, back to normal state", resp.Message)

	assert.Equal(t, models.StatusOnTrack, f.store.student(id).Status)
	assert.Empty(t, f.store.interventionsFor(id, models.InterventionPending))
	done := f.store.interventionsFor(id, models.InterventionCompleted)
	require.Len(t, done, 1)
	require.NotNil(t, done[0].CompletedAt)
	assert.Equal(t, f.svc.now(), *done[0].CompletedAt)

	sent := f.broadcaster.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, models.Event{Event: models.EventStatusChanged, Status: models.StatusOnTrack}, sent[1].event)
}

func TestMarkComplete_WithoutPending(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)

	_, err := f.svc.MarkComplete(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, models.StatusOnTrack, f.store.student(id).Status)
	assert.Empty(t, f.store.interventions)
	assert.Len(t, f.broadcaster.sent(), 1)
}

func TestMarkComplete_PicksMostRecentPending(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusAssignedTask)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.store.addIntervention(models.Intervention{StudentID: id, Task: "older", Status: models.InterventionPending, AssignedAt: base})
	f.store.addIntervention(models.Intervention{StudentID: id, Task: "newer", Status: models.InterventionPending, AssignedAt: base.Add(time.Hour)})

	_, err := f.svc.MarkComplete(context.Background(), id)
	require.NoError(t, err)

	done := f.store.interventionsFor(id, models.InterventionCompleted)
	require.Len(t, done, 1)
	assert.Equal(t, "newer", done[0].Task)
	pending := f.store.interventionsFor(id, models.InterventionPending)
	require.Len(t, pending, 1)
	assert.Equal(t, "older", pending[0].Task)
}

func TestStatus_CurrentTask(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusNeedsIntervention)

	resp, err := f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, resp.StudentID)
	assert.Equal(t, models.StatusNeedsIntervention, resp.Status)
	assert.Nil(t, resp.CurrentTask)

	_, err = f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.NoError(t, err)

	resp, err = f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssignedTask, resp.Status)
	require.NotNil(t, resp.CurrentTask)
	assert.Equal(t, "Read Chapter 4", *resp.CurrentTask)

	_, err = f.svc.MarkComplete(context.Background(), id)
	require.NoError(t, err)

	resp, err = f.svc.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnTrack, resp.Status)
	assert.Nil(t, resp.CurrentTask)
}

func TestHistory(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusOnTrack)

	_, err := f.svc.Checkin(context.Background(), id, 5, 30)
	require.NoError(t, err)
	_, err = f.svc.Assign(context.Background(), id, "Read Chapter 4")
	require.NoError(t, err)

	h, err := f.svc.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, h.DailyLogs, 1)
	require.Len(t, h.Interventions, 1)
	assert.Equal(t, "Read Chapter 4", h.Interventions[0].Task)
}

func TestCreateStudent(t *testing.T) {
	f := newServiceFixture(t)

	st, err := f.svc.CreateStudent(context.Background(), "  Ada Lovelace ")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, st.ID)
	assert.Equal(t, "Ada Lovelace", st.Name)
	assert.Equal(t, models.StatusOnTrack, st.Status)
	assert.Equal(t, models.StatusOnTrack, f.store.student(st.ID).Status)

	_, err = f.svc.CreateStudent(context.Background(), "")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "name")
}

func TestAutoUnlockIfStale(t *testing.T) {
	f := newServiceFixture(t)
	waiting := f.store.addStudent("Waiting", models.StatusNeedsIntervention)
	assigned := f.store.addStudent("Assigned", models.StatusAssignedTask)

	cutoff := f.store.clock.Add(time.Minute)

	ok, err := f.svc.AutoUnlockIfStale(context.Background(), waiting, cutoff)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StatusOnTrack, f.store.student(waiting).Status)

	ok, err = f.svc.AutoUnlockIfStale(context.Background(), assigned, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.StatusAssignedTask, f.store.student(assigned).Status)

	sent := f.broadcaster.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, waiting, sent[0].studentID)
}

func TestAutoUnlockIfStale_RecentChangeWins(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusOnTrack)
	cutoff := f.store.clock

	// Status changes after the cutoff
	_, err := f.svc.Checkin(context.Background(), id, 1, 1)
	require.NoError(t, err)

	ok, err := f.svc.AutoUnlockIfStale(context.Background(), id, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.StatusNeedsIntervention, f.store.student(id).Status)
}

func TestCheckin_ConcurrentSameStudent(t *testing.T) {
	f := newServiceFixture(t)
	id := f.store.addStudent("Ada", models.StatusOnTrack)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			quiz := 1
			if i%2 == 0 {
				quiz = 10
			}
			_, err := f.svc.Checkin(context.Background(), id, quiz, 90)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.store.logsFor(id), 20)
	sent := f.broadcaster.sent()
	require.Len(t, sent, 20)
	// The final broadcast matches the final committed state
	assert.Equal(t, f.store.student(id).Status, sent[len(sent)-1].event.Status)
	for _, s := range sent {
		assert.Equal(t, s.event.Status, s.storedStatus)
	}
	assert.Equal(t, 0, f.svc.locks.size())
}
