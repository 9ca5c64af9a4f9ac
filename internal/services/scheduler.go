package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"intervention-engine/internal/models"
)

const sweepTimeout = 2 * time.Minute

type staleStudentLister interface {
	ListStudentsInStatusSince(ctx context.Context, status models.StudentStatus, before time.Time) ([]uuid.UUID, error)
}

type staleUnlocker interface {
	AutoUnlockIfStale(ctx context.Context, studentID uuid.UUID, before time.Time) (bool, error)
}

// AutoUnlockScheduler releases students left waiting for a mentor longer than
// the configured grace period, the same way an "Auto-unlock" assignment does.
type AutoUnlockScheduler struct {
	cronEngine *cron.Cron
	schedule   string
	after      time.Duration
	lister     staleStudentLister
	unlocker   staleUnlocker
	logger     *zap.Logger
	now        func() time.Time
}

func NewAutoUnlockScheduler(schedule string, after time.Duration, lister staleStudentLister, unlocker staleUnlocker, logger *zap.Logger) *AutoUnlockScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutoUnlockScheduler{
		cronEngine: cron.New(cron.WithLocation(time.UTC)),
		schedule:   schedule,
		after:      after,
		lister:     lister,
		unlocker:   unlocker,
		logger:     logger,
		now:        time.Now,
	}
}

// Start registers the sweep. An empty schedule leaves the scheduler disabled.
func (s *AutoUnlockScheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("auto-unlock sweep disabled")
		return nil
	}

	_, err := s.cronEngine.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.cronEngine.Start()
	s.logger.Info("auto-unlock sweep scheduled", zap.String("schedule", s.schedule), zap.Duration("after", s.after))
	return nil
}

// Stop waits for a running sweep to finish.
func (s *AutoUnlockScheduler) Stop() {
	<-s.cronEngine.Stop().Done()
}

// RunOnce performs one sweep and returns how many students were released.
// A failure for one student does not stop the rest.
func (s *AutoUnlockScheduler) RunOnce(ctx context.Context) int {
	before := s.now().Add(-s.after)

	ids, err := s.lister.ListStudentsInStatusSince(ctx, models.StatusNeedsIntervention, before)
	if err != nil {
		s.logger.Error("auto-unlock: failed to list students", zap.Error(err))
		return 0
	}

	released := 0
	for _, id := range ids {
		ok, err := s.unlocker.AutoUnlockIfStale(ctx, id, before)
		if err != nil {
			s.logger.Warn("auto-unlock: failed to release student",
				zap.String("student_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		s.logger.Info("auto-unlock sweep finished", zap.Int("released", released))
	}
	return released
}
