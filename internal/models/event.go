package models

type EventKind string

const (
	EventStatusChanged        EventKind = "STATUS_CHANGED"
	EventInterventionAssigned EventKind = "INTERVENTION_ASSIGNED"
)

// Event is the frame pushed to every channel watching a student.
// Task is always present on the wire, null when there is no task.
type Event struct {
	Event   EventKind     `json:"event"`
	Status  StudentStatus `json:"status"`
	Task    *string       `json:"task"`
	Message string        `json:"message,omitempty"`
}
