package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"intervention-engine/internal/models"
)

var ErrNotFound = errors.New("not found")

// Tx is the set of reads and writes that commit together.
type Tx interface {
	LoadStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
	LatestPendingIntervention(ctx context.Context, studentID uuid.UUID) (*models.Intervention, error)
	SaveStudent(ctx context.Context, s *models.Student) error
	SaveDailyLog(ctx context.Context, l *models.DailyLog) error
	SaveIntervention(ctx context.Context, i *models.Intervention) error
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	q    *queries
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: &queries{db: pool}}
}

// WithTx runs fn in one transaction and commits only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx, forUpdate: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	return s.q.LoadStudent(ctx, id)
}

func (s *Store) LatestPendingIntervention(ctx context.Context, studentID uuid.UUID) (*models.Intervention, error) {
	return s.q.LatestPendingIntervention(ctx, studentID)
}

func (s *Store) CreateStudent(ctx context.Context, st *models.Student) error {
	if st.Status == "" {
		st.Status = models.StatusOnTrack
	}
	query := `INSERT INTO students (name, status) VALUES ($1, $2)
		RETURNING id, created_at, updated_at`

	return s.pool.QueryRow(ctx, query, st.Name, st.Status).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
}

// ListStudentsInStatusSince returns ids of students whose status is status
// and has not changed since before.
func (s *Store) ListStudentsInStatusSince(ctx context.Context, status models.StudentStatus, before time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM students WHERE status = $1 AND updated_at < $2 ORDER BY updated_at`,
		status, before,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ListDailyLogs(ctx context.Context, studentID uuid.UUID, limit int) ([]models.DailyLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, quiz_score, focus_minutes, result_status, timestamp
		FROM daily_logs
		WHERE student_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily logs: %w", err)
	}
	defer rows.Close()

	logs := []models.DailyLog{}
	for rows.Next() {
		var l models.DailyLog
		if err := rows.Scan(&l.ID, &l.StudentID, &l.QuizScore, &l.FocusMinutes, &l.ResultStatus, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *Store) ListInterventions(ctx context.Context, studentID uuid.UUID, limit int) ([]models.Intervention, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, task, assigned_by, status, assigned_at, completed_at
		FROM interventions
		WHERE student_id = $1
		ORDER BY assigned_at DESC, id DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interventions: %w", err)
	}
	defer rows.Close()

	items := []models.Intervention{}
	for rows.Next() {
		var i models.Intervention
		if err := rows.Scan(&i.ID, &i.StudentID, &i.Task, &i.AssignedBy, &i.Status, &i.AssignedAt, &i.CompletedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
