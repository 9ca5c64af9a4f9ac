package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intervention-engine/internal/metrics"
	"intervention-engine/internal/models"
	"intervention-engine/internal/repository"
)

const historyLimit = 30

type Store interface {
	WithTx(ctx context.Context, fn func(tx repository.Tx) error) error
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	LatestPendingIntervention(ctx context.Context, studentID uuid.UUID) (*models.Intervention, error)
	CreateStudent(ctx context.Context, s *models.Student) error
	ListDailyLogs(ctx context.Context, studentID uuid.UUID, limit int) ([]models.DailyLog, error)
	ListInterventions(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Intervention, error)
}

// Broadcaster pushes an event to whoever is watching a student. Delivery is
// best-effort and never reports back.
type Broadcaster interface {
	SendToStudent(ctx context.Context, studentID uuid.UUID, event models.Event)
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, studentID uuid.UUID, studentName string, quizScore, focusMinutes int) error
}

// InterventionService applies check-ins and mentor actions to a student.
// Every mutation commits before its event is broadcast, and nothing is
// broadcast when the commit fails.
type InterventionService struct {
	store       Store
	broadcaster Broadcaster
	notifier    FailureNotifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	locks       *studentLocks
	now         func() time.Time
}

func NewInterventionService(store Store, broadcaster Broadcaster, notifier FailureNotifier, m *metrics.Metrics, logger *zap.Logger) *InterventionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionService{
		store:       store,
		broadcaster: broadcaster,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		locks:       newStudentLocks(),
		now:         time.Now,
	}
}

func (s *InterventionService) Checkin(ctx context.Context, studentID uuid.UUID, quizScore, focusMinutes int) (*models.CheckinResponse, error) {
	unlock := s.locks.lock(studentID)
	defer unlock()

	t := EvaluateCheckin(quizScore, focusMinutes)

	var student models.Student
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		st, err := loadStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}

		entry := &models.DailyLog{
			StudentID:    studentID,
			QuizScore:    quizScore,
			FocusMinutes: focusMinutes,
			ResultStatus: t.CheckinResult,
		}
		if err := tx.SaveDailyLog(ctx, entry); err != nil {
			return err
		}

		st.Status = t.Status
		if err := tx.SaveStudent(ctx, st); err != nil {
			return err
		}
		student = *st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Checkin(string(t.CheckinResult))
	s.committed(t, studentID)

	if t.NotifyWorkflow {
		s.notifyFailure(ctx, student, quizScore, focusMinutes)
	}
	s.broadcast(ctx, studentID, t)

	return &models.CheckinResponse{Status: checkinResponseText(t.Status)}, nil
}

// Assign gives the student a mentor task, or releases them when task is
// AutoUnlockTask. A new task supersedes any pending one.
func (s *InterventionService) Assign(ctx context.Context, studentID uuid.UUID, task string) (*models.MessageResponse, error) {
	if strings.TrimSpace(task) == "" {
		return nil, &ValidationError{Fields: map[string]string{"task": "Task is required"}}
	}

	unlock := s.locks.lock(studentID)
	defer unlock()

	t := EvaluateAssign(task)
	if _, err := s.apply(ctx, studentID, t, nil); err != nil {
		return nil, err
	}

	if t.CreateIntervention {
		return &models.MessageResponse{Message: "Intervention assigned"}, nil
	}
	return &models.MessageResponse{Message: "Student auto-unlocked"}, nil
}

// AutoUnlockIfStale releases a student still waiting for review whose status
// has not changed since before. It reports whether the student was released.
func (s *InterventionService) AutoUnlockIfStale(ctx context.Context, studentID uuid.UUID, before time.Time) (bool, error) {
	unlock := s.locks.lock(studentID)
	defer unlock()

	stale := func(st *models.Student) bool {
		return st.Status == models.StatusNeedsIntervention && st.UpdatedAt.Before(before)
	}
	return s.apply(ctx, studentID, EvaluateAssign(AutoUnlockTask), stale)
}

func (s *InterventionService) MarkComplete(ctx context.Context, studentID uuid.UUID) (*models.MessageResponse, error) {
	unlock := s.locks.lock(studentID)
	defer unlock()

	if _, err := s.apply(ctx, studentID, EvaluateMarkComplete(), nil); err != nil {
		return nil, err
	}
	return &models.MessageResponse{Message: "Task completed, back to normal state"}, nil
}

// apply commits t for the student and broadcasts it. When guard is set and
// rejects the loaded student, nothing is written or sent.
func (s *InterventionService) apply(ctx context.Context, studentID uuid.UUID, t Transition, guard func(*models.Student) bool) (bool, error) {
	skipped := false
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		st, err := loadStudent(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if guard != nil && !guard(st) {
			skipped = true
			return nil
		}

		if t.CompletePending || t.CreateIntervention {
			pending, err := tx.LatestPendingIntervention(ctx, studentID)
			if err != nil {
				return err
			}
			if pending != nil {
				now := s.now()
				pending.CompletedAt = &now
				pending.Status = models.InterventionCompleted
				if t.CreateIntervention {
					pending.Status = models.InterventionAbandoned
				}
				if err := tx.SaveIntervention(ctx, pending); err != nil {
					return err
				}
			}
		}

		if t.CreateIntervention {
			iv := &models.Intervention{
				StudentID:  studentID,
				Task:       *t.Task,
				AssignedBy: models.AssignedByMentor,
				Status:     models.InterventionPending,
			}
			if err := tx.SaveIntervention(ctx, iv); err != nil {
				return err
			}
		}

		st.Status = t.Status
		return tx.SaveStudent(ctx, st)
	})
	if err != nil {
		return false, err
	}
	if skipped {
		return false, nil
	}

	s.committed(t, studentID)
	s.broadcast(ctx, studentID, t)
	return true, nil
}

func (s *InterventionService) Status(ctx context.Context, studentID uuid.UUID) (*models.StatusResponse, error) {
	st, err := s.store.GetStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err)
	}

	pending, err := s.store.LatestPendingIntervention(ctx, studentID)
	if err != nil {
		return nil, err
	}

	resp := &models.StatusResponse{StudentID: st.ID, Status: st.Status}
	if pending != nil {
		task := pending.Task
		resp.CurrentTask = &task
	}
	return resp, nil
}

func (s *InterventionService) History(ctx context.Context, studentID uuid.UUID) (*models.HistoryResponse, error) {
	if _, err := s.store.GetStudent(ctx, studentID); err != nil {
		return nil, storeError(err)
	}

	logs, err := s.store.ListDailyLogs(ctx, studentID, historyLimit)
	if err != nil {
		return nil, err
	}
	interventions, err := s.store.ListInterventions(ctx, studentID, historyLimit)
	if err != nil {
		return nil, err
	}
	return &models.HistoryResponse{DailyLogs: logs, Interventions: interventions}, nil
}

func (s *InterventionService) CreateStudent(ctx context.Context, name string) (*models.Student, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Fields: map[string]string{"name": "Name is required"}}
	}

	st := &models.Student{Name: name, Status: models.StatusOnTrack}
	if err := s.store.CreateStudent(ctx, st); err != nil {
		return nil, fmt.Errorf("failed to create student: %w", err)
	}
	s.logger.Info("student created", zap.String("student_id", st.ID.String()))
	return st, nil
}

func (s *InterventionService) committed(t Transition, studentID uuid.UUID) {
	s.metrics.Transition(string(t.Trigger), string(t.Status))
	s.logger.Info("status transition committed",
		zap.String("student_id", studentID.String()),
		zap.String("trigger", string(t.Trigger)),
		zap.String("status", string(t.Status)),
	)
}

// notifyFailure is best-effort: the mutation is already committed and the
// caller's response does not depend on the outcome.
func (s *InterventionService) notifyFailure(ctx context.Context, st models.Student, quizScore, focusMinutes int) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyFailure(context.WithoutCancel(ctx), st.ID, st.Name, quizScore, focusMinutes); err != nil {
		s.logger.Warn("workflow notification failed",
			zap.String("student_id", st.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *InterventionService) broadcast(ctx context.Context, studentID uuid.UUID, t Transition) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.SendToStudent(context.WithoutCancel(ctx), studentID, t.Event())
}

func loadStudent(ctx context.Context, tx repository.Tx, id uuid.UUID) (*models.Student, error) {
	st, err := tx.LoadStudent(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return st, nil
}

func storeError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errStudentNotFound
	}
	return err
}
