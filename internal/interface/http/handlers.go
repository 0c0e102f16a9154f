package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/eduhub/assessment-engine/internal/application/command"
	"github.com/eduhub/assessment-engine/internal/application/query"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/internal/interface/http/handlers"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	// ServeMux routes every unmatched path here, not just "/".
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	info := map[string]interface{}{
		"name":        "Assessment Engine API",
		"version":     "v1",
		"description": "Assessment windows and completion tracking for scheduled lessons",
		"endpoints": map[string]string{
			"health":   "/health",
			"schedule": "/api/v1/students/{id}/schedule",
			"stats":    "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE PROJECTION HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSchedule handles GET /api/v1/students/{id}/schedule
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.GetScheduleHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Schedule handler not configured")
		return
	}

	q := query.GetStudentScheduleQuery{
		StudentID: studentID,
		From:      getQueryParamDate(r, "from"),
		To:        getQueryParamDate(r, "to"),
		SkipCache: getQueryParamBool(r, "skip_cache"),
	}

	result, err := s.deps.GetScheduleHandler.Handle(r.Context(), q)
	if err != nil {
		if isValidationError(err) {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Error("failed to get schedule", logger.Err(err), logger.StudentID(studentID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get schedule")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/stats
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetStatsHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Stats handler not configured")
		return
	}

	result, err := s.deps.GetStatsHandler.Handle(r.Context())
	if err != nil {
		s.logger.Error("failed to get progress stats", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get stats")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATIVE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRelinkStudent handles POST /api/v1/students/{id}/relink
//
// Re-runs submission linking for one student. Used when a support case
// reveals submissions that never matched their scheduled periods.
func (s *Server) handleRelinkStudent(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("id")
	if studentID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Student ID is required")
		return
	}

	if s.deps.RelinkHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Relink handler not configured")
		return
	}

	limit := getQueryParamInt(r, "limit", command.DefaultLinkBatchLimit)

	result, err := s.deps.RelinkHandler.HandleForStudent(r.Context(), shared.StudentID(studentID), limit)
	if err != nil {
		s.logger.Error("relink failed", logger.Err(err), logger.StudentID(studentID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Relink failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleExpireRecord handles POST /api/v1/records/{id}/expire
func (s *Server) handleExpireRecord(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")
	if recordID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Record ID is required")
		return
	}

	if s.deps.ExpireHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Expire handler not configured")
		return
	}

	err := s.deps.ExpireHandler.Handle(r.Context(), command.ExpireRecordCommand{
		RecordID:      recordID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrRecordNotFound):
			writeJSONError(w, http.StatusNotFound, "not_found", "Record not found")
		case errors.Is(err, progress.ErrAlreadyCompleted):
			writeJSONError(w, http.StatusConflict, "already_completed", "Record is already completed")
		case errors.Is(err, progress.ErrAlreadyMissed):
			writeJSONError(w, http.StatusConflict, "already_missed", "Record is already missed")
		case isValidationError(err):
			writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		default:
			s.logger.Error("manual expiry failed", logger.Err(err), logger.ProgressID(recordID))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to expire record")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"record_id": recordID, "status": "missed"})
}

// handleSweepNow handles POST /api/v1/admin/sweep
//
// Runs one expiry sweep pass outside the scheduled cadence.
func (s *Server) handleSweepNow(w http.ResponseWriter, r *http.Request) {
	if s.deps.SweepHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Sweep handler not configured")
		return
	}

	limit := getQueryParamInt(r, "limit", command.DefaultSweepBatchLimit)

	result, err := s.deps.SweepHandler.Handle(r.Context(), command.SweepExpiredCommand{Limit: limit})
	if err != nil {
		s.logger.Error("manual sweep failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// webhookEnvelope is the outer wrapper of platform webhook requests.
type webhookEnvelope struct {
	EventType string          `json:"event_type"`
	Payload   jsonRawOrInline `json:"payload"`
}

// jsonRawOrInline keeps the payload bytes verbatim for the processor.
type jsonRawOrInline []byte

func (j *jsonRawOrInline) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// handlePlatformWebhook handles POST /webhook/platform
func (s *Server) handlePlatformWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		s.logger.Error("failed to read webhook body", logger.Err(err))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}

	// The signature covers the raw body, so verify before parsing.
	if s.config.WebhookSecret != "" {
		signature := r.Header.Get("X-Signature-256")
		if !handlers.VerifySignature(s.config.WebhookSecret, body, signature) {
			s.logger.Warn("webhook signature mismatch", logger.String("ip", getClientIP(r)))
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid webhook signature")
			return
		}
	}

	envelope, err := parseWebhookEnvelope(r, body)
	if err != nil {
		s.logger.Error("failed to parse webhook envelope", logger.Err(err))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
		return
	}

	s.logger.Info("received platform webhook",
		logger.String("event_type", envelope.EventType),
		logger.Int("payload_bytes", len(envelope.Payload)),
	)

	if s.deps.WebhookHandler != nil {
		if err := s.deps.WebhookHandler.HandleEvent(r.Context(), envelope.EventType, envelope.Payload); err != nil {
			// The platform retries on non-2xx and both event kinds are
			// covered by periodic jobs, so processing errors are logged
			// and acknowledged instead of bounced back.
			s.logger.Error("failed to handle webhook event",
				logger.Err(err),
				logger.String("event_type", envelope.EventType),
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// parseWebhookEnvelope extracts the event type and inner payload. The
// platform sends an {event_type, payload} envelope; older senders put
// the type in X-Event-Type with the payload as the whole body.
func parseWebhookEnvelope(r *http.Request, body []byte) (webhookEnvelope, error) {
	if headerType := r.Header.Get("X-Event-Type"); headerType != "" {
		return webhookEnvelope{EventType: headerType, Payload: body}, nil
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return webhookEnvelope{}, err
	}
	return envelope, nil
}

// isValidationError reports whether the error came from command/query
// input validation rather than from infrastructure.
func isValidationError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "is required") ||
		strings.Contains(msg, "must be") ||
		strings.Contains(msg, "invalid")
}
