package models

import (
	"time"

	"github.com/google/uuid"
)

type InterventionStatus string

const (
	InterventionPending   InterventionStatus = "PENDING"
	InterventionCompleted InterventionStatus = "COMPLETED"
	// InterventionAbandoned marks a pending task replaced by a newer assignment.
	InterventionAbandoned InterventionStatus = "ABANDONED"
)

const AssignedByMentor = "mentor"

type Intervention struct {
	ID          int64              `json:"id"`
	StudentID   uuid.UUID          `json:"student_id"`
	Task        string             `json:"task"`
	AssignedBy  string             `json:"assigned_by"`
	Status      InterventionStatus `json:"status"`
	AssignedAt  time.Time          `json:"assigned_at"`
	CompletedAt *time.Time         `json:"completed_at"`
}
