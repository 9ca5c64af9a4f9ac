package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"intervention-engine/internal/models"
	"intervention-engine/internal/repository"
)

// memStore stages writes per transaction and applies them only on commit.
type memStore struct {
	mu            sync.Mutex
	students      map[uuid.UUID]models.Student
	logs          []models.DailyLog
	interventions []models.Intervention
	nextID        int64
	clock         time.Time
	commitErr     error
	commits       int
}

func newMemStore() *memStore {
	return &memStore{
		students: make(map[uuid.UUID]models.Student),
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) addStudent(name string, status models.StudentStatus) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.students[id] = models.Student{ID: id, Name: name, Status: status, CreatedAt: m.clock, UpdatedAt: m.clock}
	return id
}

func (m *memStore) addIntervention(iv models.Intervention) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	iv.ID = m.nextID
	m.interventions = append(m.interventions, iv)
}

func (m *memStore) student(id uuid.UUID) models.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.students[id]
}

func (m *memStore) logsFor(id uuid.UUID) []models.DailyLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyLog
	for _, l := range m.logs {
		if l.StudentID == id {
			out = append(out, l)
		}
	}
	return out
}

func (m *memStore) interventionsFor(id uuid.UUID, status models.InterventionStatus) []models.Intervention {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Intervention
	for _, iv := range m.interventions {
		if iv.StudentID == id && (status == "" || iv.Status == status) {
			out = append(out, iv)
		}
	}
	return out
}

func (m *memStore) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		students:      make(map[uuid.UUID]models.Student, len(m.students)),
		logs:          append([]models.DailyLog(nil), m.logs...),
		interventions: append([]models.Intervention(nil), m.interventions...),
		nextID:        m.nextID,
		clock:         m.clock,
	}
	for k, v := range m.students {
		tx.students[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	if m.commitErr != nil {
		return m.commitErr
	}

	m.students, m.logs, m.interventions = tx.students, tx.logs, tx.interventions
	m.nextID, m.clock = tx.nextID, tx.clock
	m.commits++
	return nil
}

func (m *memStore) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (m *memStore) LatestPendingIntervention(ctx context.Context, studentID uuid.UUID) (*models.Intervention, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return latestPending(m.interventions, studentID), nil
}

func (m *memStore) CreateStudent(ctx context.Context, s *models.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt, s.UpdatedAt = m.clock, m.clock
	m.students[s.ID] = *s
	return nil
}

func (m *memStore) ListDailyLogs(ctx context.Context, studentID uuid.UUID, limit int) ([]models.DailyLog, error) {
	logs := m.logsFor(studentID)
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return logs, nil
}

func (m *memStore) ListInterventions(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Intervention, error) {
	items := m.interventionsFor(studentID, "")
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

type memTx struct {
	students      map[uuid.UUID]models.Student
	logs          []models.DailyLog
	interventions []models.Intervention
	nextID        int64
	clock         time.Time
}

func (t *memTx) tick() time.Time {
	t.clock = t.clock.Add(time.Second)
	return t.clock
}

func (t *memTx) LoadStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	st, ok := t.students[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (t *memTx) LatestPendingIntervention(ctx context.Context, studentID uuid.UUID) (*models.Intervention, error) {
	return latestPending(t.interventions, studentID), nil
}

func (t *memTx) SaveStudent(ctx context.Context, s *models.Student) error {
	if _, ok := t.students[s.ID]; !ok {
		return repository.ErrNotFound
	}
	s.UpdatedAt = t.tick()
	t.students[s.ID] = *s
	return nil
}

func (t *memTx) SaveDailyLog(ctx context.Context, l *models.DailyLog) error {
	t.nextID++
	l.ID = t.nextID
	l.Timestamp = t.tick()
	t.logs = append(t.logs, *l)
	return nil
}

func (t *memTx) SaveIntervention(ctx context.Context, iv *models.Intervention) error {
	if iv.ID == 0 {
		t.nextID++
		iv.ID = t.nextID
		iv.AssignedAt = t.tick()
		t.interventions = append(t.interventions, *iv)
		return nil
	}
	for i := range t.interventions {
		if t.interventions[i].ID == iv.ID {
			t.interventions[i] = *iv
			return nil
		}
	}
	return repository.ErrNotFound
}

func latestPending(items []models.Intervention, studentID uuid.UUID) *models.Intervention {
	var pending []models.Intervention
	for _, iv := range items {
		if iv.StudentID == studentID && iv.Status == models.InterventionPending {
			pending = append(pending, iv)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].AssignedAt.After(pending[j].AssignedAt) })
	latest := pending[0]
	return &latest
}

type sentEvent struct {
	studentID uuid.UUID
	event     models.Event
	// status as committed in the store when the event went out
	storedStatus models.StudentStatus
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	store  *memStore
	events []sentEvent
}

func (b *recordingBroadcaster) SendToStudent(ctx context.Context, studentID uuid.UUID, event models.Event) {
	stored := b.store.student(studentID).Status
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{studentID: studentID, event: event, storedStatus: stored})
}

func (b *recordingBroadcaster) sent() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEvent(nil), b.events...)
}

type failureCall struct {
	studentID    uuid.UUID
	name         string
	quizScore    int
	focusMinutes int
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []failureCall
	err   error
}

func (n *recordingNotifier) NotifyFailure(ctx context.Context, studentID uuid.UUID, studentName string, quizScore, focusMinutes int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, failureCall{studentID, studentName, quizScore, focusMinutes})
	return n.err
}

var errWorkflowDown = errors.New("workflow unreachable")
