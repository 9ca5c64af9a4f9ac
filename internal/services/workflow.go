package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intervention-engine/internal/metrics"
)

type failurePayload struct {
	StudentID    string `json:"student_id"`
	StudentName  string `json:"student_name"`
	QuizScore    int    `json:"quiz_score"`
	FocusMinutes int    `json:"focus_minutes"`
}

// WorkflowNotifier tells the external automation that a check-in failed.
type WorkflowNotifier struct {
	url     string
	client  *http.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewWorkflowNotifier(url string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *WorkflowNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if url == "" {
		logger.Warn("workflow webhook URL not set, failure notifications disabled")
	}
	return &WorkflowNotifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		metrics: m,
		logger:  logger,
	}
}

// NotifyFailure makes one POST attempt bounded by the client timeout.
// It is a no-op when no URL is configured.
func (n *WorkflowNotifier) NotifyFailure(ctx context.Context, studentID uuid.UUID, studentName string, quizScore, focusMinutes int) error {
	if n.url == "" {
		n.metrics.WorkflowCall("skipped")
		return nil
	}

	err := n.post(ctx, failurePayload{
		StudentID:    studentID.String(),
		StudentName:  studentName,
		QuizScore:    quizScore,
		FocusMinutes: focusMinutes,
	})
	if err != nil {
		n.metrics.WorkflowCall("failed")
		return err
	}
	n.metrics.WorkflowCall("ok")
	return nil
}

func (n *WorkflowNotifier) post(ctx context.Context, payload failurePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode workflow payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build workflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("workflow request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("workflow returned status %d", resp.StatusCode)
	}
	return nil
}
