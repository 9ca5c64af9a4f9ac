package services

import "intervention-engine/internal/models"

// AutoUnlockTask is the reserved task text that releases a student without
// creating an intervention.
const AutoUnlockTask = "Auto-unlock"

// A check-in succeeds only when both values are strictly above these.
const (
	QuizScoreThreshold    = 7
	FocusMinutesThreshold = 60
)

const reviewMessage = "Analysis in progress. Waiting for Mentor..."

type Trigger string

const (
	TriggerCheckin      Trigger = "checkin"
	TriggerAssign       Trigger = "assign"
	TriggerAutoUnlock   Trigger = "auto_unlock"
	TriggerMarkComplete Trigger = "mark_complete"
)

// Transition is the decision for one trigger: the new status plus the side
// effects the caller must carry out. It holds no I/O.
type Transition struct {
	Trigger Trigger
	Status  models.StudentStatus

	// Check-in only
	CheckinResult  models.CheckinResult
	NotifyWorkflow bool

	// CreateIntervention adds a PENDING row for Task, superseding any pending one.
	CreateIntervention bool
	// CompletePending marks the latest PENDING row COMPLETED when one exists.
	CompletePending bool

	EventKind models.EventKind
	Task      *string
	Message   string
}

func CheckinSucceeded(quizScore, focusMinutes int) bool {
	return quizScore > QuizScoreThreshold && focusMinutes > FocusMinutesThreshold
}

func EvaluateCheckin(quizScore, focusMinutes int) Transition {
	if CheckinSucceeded(quizScore, focusMinutes) {
		return Transition{
			Trigger:       TriggerCheckin,
			Status:        models.StatusOnTrack,
			CheckinResult: models.CheckinSuccess,
			EventKind:     models.EventStatusChanged,
		}
	}
	return Transition{
		Trigger:        TriggerCheckin,
		Status:         models.StatusNeedsIntervention,
		CheckinResult:  models.CheckinFailure,
		NotifyWorkflow: true,
		EventKind:      models.EventStatusChanged,
		Message:        reviewMessage,
	}
}

func EvaluateAssign(task string) Transition {
	if task == AutoUnlockTask {
		return Transition{
			Trigger:   TriggerAutoUnlock,
			Status:    models.StatusOnTrack,
			EventKind: models.EventStatusChanged,
		}
	}
	return Transition{
		Trigger:            TriggerAssign,
		Status:             models.StatusAssignedTask,
		CreateIntervention: true,
		EventKind:          models.EventInterventionAssigned,
		Task:               &task,
	}
}

// EvaluateMarkComplete always lands on ON_TRACK. A student without a pending
// intervention is reset all the same.
func EvaluateMarkComplete() Transition {
	return Transition{
		Trigger:         TriggerMarkComplete,
		Status:          models.StatusOnTrack,
		CompletePending: true,
		EventKind:       models.EventStatusChanged,
	}
}

func (t Transition) Event() models.Event {
	return BuildEvent(t.EventKind, t.Status, t.Task, t.Message)
}

func checkinResponseText(status models.StudentStatus) string {
	if status == models.StatusOnTrack {
		return "On Track"
	}
	return "Pending Mentor Review"
}
