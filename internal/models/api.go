package models

import "github.com/google/uuid"

type CheckinRequest struct {
	StudentID    string `json:"student_id" validate:"required,uuid"`
	QuizScore    *int   `json:"quiz_score" validate:"required"`
	FocusMinutes *int   `json:"focus_minutes" validate:"required"`
}

type AssignRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Task      string `json:"task" validate:"required"` // "Auto-unlock" releases the student
}

type MarkCompleteRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}

type CreateStudentRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type CheckinResponse struct {
	Status string `json:"status"` // "On Track" | "Pending Mentor Review"
}

type MessageResponse struct {
	Message string `json:"message"`
}

type StatusResponse struct {
	StudentID   uuid.UUID     `json:"student_id"`
	Status      StudentStatus `json:"status"`
	CurrentTask *string       `json:"current_task"`
}

type HistoryResponse struct {
	DailyLogs     []DailyLog     `json:"daily_logs"`
	Interventions []Intervention `json:"interventions"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
