package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"intervention-engine/internal/models"
)

type queries struct {
	db dbtx
	// forUpdate locks the student row for the rest of the transaction.
	forUpdate bool
}

func (q *queries) LoadStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	query := `SELECT id, name, status, created_at, updated_at FROM students WHERE id = $1`
	if q.forUpdate {
		query += " FOR UPDATE"
	}

	s := &models.Student{}
	err := q.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load student: %w", err)
	}
	return s, nil
}

// LatestPendingIntervention returns nil, nil when the student has no pending task.
func (q *queries) LatestPendingIntervention(ctx context.Context, studentID uuid.UUID) (*models.Intervention, error) {
	i := &models.Intervention{}
	err := q.db.QueryRow(ctx, `
		SELECT id, student_id, task, assigned_by, status, assigned_at, completed_at
		FROM interventions
		WHERE student_id = $1 AND status = $2
		ORDER BY assigned_at DESC, id DESC
		LIMIT 1
	`, studentID, models.InterventionPending).Scan(
		&i.ID, &i.StudentID, &i.Task, &i.AssignedBy, &i.Status, &i.AssignedAt, &i.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending intervention: %w", err)
	}
	return i, nil
}

func (q *queries) SaveStudent(ctx context.Context, s *models.Student) error {
	err := q.db.QueryRow(ctx,
		`UPDATE students SET name = $1, status = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at`,
		s.Name, s.Status, s.ID,
	).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (q *queries) SaveDailyLog(ctx context.Context, l *models.DailyLog) error {
	if l.ID != 0 {
		return errors.New("daily logs are append-only")
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO daily_logs (student_id, quiz_score, focus_minutes, result_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, timestamp
	`, l.StudentID, l.QuizScore, l.FocusMinutes, l.ResultStatus).Scan(&l.ID, &l.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save daily log: %w", err)
	}
	return nil
}

// SaveIntervention inserts when ID is zero, updates status and completion otherwise.
func (q *queries) SaveIntervention(ctx context.Context, i *models.Intervention) error {
	if i.ID == 0 {
		err := q.db.QueryRow(ctx, `
			INSERT INTO interventions (student_id, task, assigned_by, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, assigned_at
		`, i.StudentID, i.Task, i.AssignedBy, i.Status).Scan(&i.ID, &i.AssignedAt)
		if err != nil {
			return fmt.Errorf("failed to create intervention: %w", err)
		}
		return nil
	}

	tag, err := q.db.Exec(ctx,
		`UPDATE interventions SET status = $1, completed_at = $2 WHERE id = $3`,
		i.Status, i.CompletedAt, i.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update intervention: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var (
	_ Tx   = (*queries)(nil)
	_ dbtx = (pgx.Tx)(nil)
)
