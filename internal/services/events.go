package services

import "intervention-engine/internal/models"

// BuildEvent shapes the frame broadcast for a committed transition. The task
// is copied so the event never aliases caller state.
func BuildEvent(kind models.EventKind, status models.StudentStatus, task *string, message string) models.Event {
	var t *string
	if task != nil {
		v := *task
		t = &v
	}
	return models.Event{
		Event:   kind,
		Status:  status,
		Task:    t,
		Message: message,
	}
}
