package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"intervention-engine/internal/middleware"
	"intervention-engine/internal/models"
)

type interventionService interface {
	Checkin(ctx context.Context, studentID uuid.UUID, quizScore, focusMinutes int) (*models.CheckinResponse, error)
	Assign(ctx context.Context, studentID uuid.UUID, task string) (*models.MessageResponse, error)
	MarkComplete(ctx context.Context, studentID uuid.UUID) (*models.MessageResponse, error)
	Status(ctx context.Context, studentID uuid.UUID) (*models.StatusResponse, error)
	History(ctx context.Context, studentID uuid.UUID) (*models.HistoryResponse, error)
	CreateStudent(ctx context.Context, name string) (*models.Student, error)
}

type InterventionHandler struct {
	svc      interventionService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewInterventionHandler(svc interventionService, logger *zap.Logger) *InterventionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionHandler{svc: svc, validate: newValidator(), logger: logger}
}

// DailyCheckin handles POST /daily-checkin.
func (h *InterventionHandler) DailyCheckin(w http.ResponseWriter, r *http.Request) {
	var req models.CheckinRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	resp, err := h.svc.Checkin(r.Context(), uuid.MustParse(req.StudentID), *req.QuizScore, *req.FocusMinutes)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// AssignIntervention handles POST /assign-intervention.
func (h *InterventionHandler) AssignIntervention(w http.ResponseWriter, r *http.Request) {
	var req models.AssignRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	studentID := uuid.MustParse(req.StudentID)
	resp, err := h.svc.Assign(r.Context(), studentID, req.Task)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	h.logger.Info("intervention assigned",
		zap.String("student_id", studentID.String()),
		zap.String("task", req.Task),
		zap.String("mentor_id", middleware.GetMentorID(r.Context())),
	)
	writeJSON(w, http.StatusOK, resp)
}

// MarkComplete handles POST /mark-complete.
func (h *InterventionHandler) MarkComplete(w http.ResponseWriter, r *http.Request) {
	var req models.MarkCompleteRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	resp, err := h.svc.MarkComplete(r.Context(), uuid.MustParse(req.StudentID))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Status handles GET /student/{student_id}/status.
func (h *InterventionHandler) Status(w http.ResponseWriter, r *http.Request) {
	studentID, ok := studentIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.Status(r.Context(), studentID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /student/{student_id}/history.
func (h *InterventionHandler) History(w http.ResponseWriter, r *http.Request) {
	studentID, ok := studentIDParam(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.History(r.Context(), studentID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateStudent handles POST /students.
func (h *InterventionHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStudentRequest
	if !decode(w, r, h.validate, &req) {
		return
	}

	st, err := h.svc.CreateStudent(r.Context(), req.Name)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, st)
}

func studentIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "student_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed",
			map[string]string{"student_id": "Must be a valid UUID"}, r))
		return uuid.Nil, false
	}
	return id, true
}
