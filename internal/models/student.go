package models

import (
	"time"

	"github.com/google/uuid"
)

type StudentStatus string

const (
	StatusOnTrack           StudentStatus = "ON_TRACK"
	StatusNeedsIntervention StudentStatus = "NEEDS_INTERVENTION"
	StatusAssignedTask      StudentStatus = "ASSIGNED_TASK"
)

type Student struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Status    StudentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type CheckinResult string

const (
	CheckinSuccess CheckinResult = "SUCCESS"
	CheckinFailure CheckinResult = "FAILURE"
)

// DailyLog is append-only.
type DailyLog struct {
	ID           int64         `json:"id"`
	StudentID    uuid.UUID     `json:"student_id"`
	QuizScore    int           `json:"quiz_score"`
	FocusMinutes int           `json:"focus_minutes"`
	ResultStatus CheckinResult `json:"result_status"`
	Timestamp    time.Time     `json:"timestamp"`
}
