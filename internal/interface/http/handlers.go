package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/makerhub/reputation-engine/internal/application/command"
	"github.com/makerhub/reputation-engine/internal/application/query"
	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot returns basic service information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Endpoint not found")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"service": "reputation-engine",
		"status":  "running",
		"uptime":  s.Uptime().String(),
	})
}

// handleHealth probes every registered dependency.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.HealthCheckers))
	healthy := true
	for name, check := range s.deps.HealthCheckers {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	writeJSON(w, r, status, map[string]interface{}{
		"status": state,
		"checks": checks,
		"uptime": s.Uptime().String(),
	})
}

// handleReady reports readiness. The engine is ready once its dependencies
// respond; there is no warm-up phase.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

// handleLive reports liveness.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// INBOUND EVENT HANDLERS (write side)
// ══════════════════════════════════════════════════════════════════════════════

// recordEventRequest is the wire shape of one inbound engagement event.
type recordEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// handleRecordEvent runs one inbound event through the award pipeline.
//
// POST /api/v1/events
func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req recordEventRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.RecordEventHandler.Handle(r.Context(), command.RecordEventCommand{
		EventType:     activity.Type(req.EventType),
		Payload:       req.Payload,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"event_type":    result.EventType.String(),
		"actor_id":      result.ActorID.String(),
		"decisions":     result.Decisions,
		"applied":       len(result.Applied),
		"duplicates":    result.Duplicates,
		"alerts_raised": result.AlertsRaised,
		"newly_flagged": result.NewlyFlagged,
		"no_op":         result.WasNoOp(),
		"recorded_at":   result.RecordedAt,
	})
}

// backfillRequest is a batch of events to replay.
type backfillRequest struct {
	Events          []recordEventRequest `json:"events"`
	ContinueOnError bool                 `json:"continue_on_error"`
}

// handleBackfill replays a batch of events. Dedup keys make replay safe.
//
// POST /api/v1/events/backfill
func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if len(req.Events) == 0 {
		writeJSONError(w, http.StatusBadRequest, "validation_error", "events list cannot be empty")
		return
	}

	events := make([]command.RecordEventCommand, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, command.RecordEventCommand{
			EventType: activity.Type(e.EventType),
			Payload:   e.Payload,
		})
	}

	result, err := s.deps.BackfillHandler.Handle(r.Context(), command.BackfillCommand{
		Events:          events,
		CorrelationID:   getRequestID(r.Context()),
		ContinueOnError: req.ContinueOnError,
	})

	// A partially failed batch still reports what landed.
	status := http.StatusOK
	if err != nil {
		status = http.StatusUnprocessableEntity
	}

	failures := make(map[int]string, len(result.Errors))
	for i, ferr := range result.Errors {
		failures[i] = ferr.Error()
	}

	writeJSON(w, r, status, map[string]interface{}{
		"total":      result.TotalCount,
		"succeeded":  result.SuccessCount,
		"failed":     result.FailedCount,
		"applied":    result.AppliedCount,
		"duplicates": result.DuplicateCount,
		"failures":   failures,
	})
}

// provisionActorRequest mirrors a profile into the engine.
type provisionActorRequest struct {
	ActorID  string    `json:"actor_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// handleProvisionActor registers a profile so its events stop bouncing off
// the unknown-actor check.
//
// POST /api/v1/actors
func (s *Server) handleProvisionActor(w http.ResponseWriter, r *http.Request) {
	var req provisionActorRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, err := s.deps.ProvisionActorHandler.Handle(r.Context(), command.ProvisionActorCommand{
		ActorID:  req.ActorID,
		JoinedAt: req.JoinedAt,
	})
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.AlreadyExisted {
		status = http.StatusOK
	}
	writeJSON(w, r, status, map[string]interface{}{
		"actor_id":        result.ActorID.String(),
		"already_existed": result.AlreadyExisted,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard returns a page of the current standings.
//
// GET /api/v1/leaderboard?page=1&page_size=20
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), query.GetLeaderboardQuery{
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 20),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetActorStanding returns one actor's full reputation standing.
//
// GET /api/v1/actors/{id}
func (s *Server) handleGetActorStanding(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetActorStandingHandler.Handle(r.Context(), query.GetActorStandingQuery{
		ActorID: r.PathValue("id"),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetXPHistory pages through one actor's ledger, newest first.
//
// GET /api/v1/actors/{id}/transactions?page=1&page_size=20
func (s *Server) handleGetXPHistory(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetXPHistoryHandler.Handle(r.Context(), query.GetXPHistoryQuery{
		ActorID:  r.PathValue("id"),
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 20),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetActorAlerts lists one actor's bot alerts.
//
// GET /api/v1/actors/{id}/alerts?page=1&page_size=20
func (s *Server) handleGetActorAlerts(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListBotAlertsHandler.Handle(r.Context(), query.ListBotAlertsQuery{
		ActorID:  r.PathValue("id"),
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 20),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ALERT REVIEW HANDLERS (administrative)
// ══════════════════════════════════════════════════════════════════════════════

// handleListUnreviewedAlerts lists the unreviewed alert queue.
//
// GET /api/v1/alerts?page=1&page_size=20
func (s *Server) handleListUnreviewedAlerts(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListBotAlertsHandler.Handle(r.Context(), query.ListBotAlertsQuery{
		Page:     getQueryParamInt(r, "page", 1),
		PageSize: getQueryParamInt(r, "page_size", 20),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleReviewAlert marks an alert as reviewed.
//
// POST /api/v1/alerts/{id}/review
func (s *Server) handleReviewAlert(w http.ResponseWriter, r *http.Request) {
	err := s.deps.ReviewAlertHandler.HandleReview(r.Context(), command.ReviewAlertCommand{
		AlertID: r.PathValue("id"),
	})
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"reviewed": true})
}

// disputeAlertRequest carries an actor's dispute message.
type disputeAlertRequest struct {
	Message string `json:"message"`
}

// handleDisputeAlert attaches a dispute message to an alert. Flags stay
// monotonic; the dispute is an annotation for human review.
//
// POST /api/v1/alerts/{id}/dispute
func (s *Server) handleDisputeAlert(w http.ResponseWriter, r *http.Request) {
	var req disputeAlertRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	err := s.deps.ReviewAlertHandler.HandleDispute(r.Context(), command.DisputeAlertCommand{
		AlertID: r.PathValue("id"),
		Message: req.Message,
	})
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"disputed": true})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody decodes a JSON request body with a size cap. Returns false after
// writing the error response.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dest); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed_body", "Request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

// writeCommandError maps a write-side error to an HTTP status. The mapping
// follows the engine's error taxonomy: malformed input is rejected at the
// boundary, an unknown actor is unprocessable, and exhausted retries surface
// as unavailability.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := getRequestID(r.Context())

	switch {
	case errors.Is(err, shared.ErrActorNotFound):
		// Logged as fatal by the pipeline; the caller gets a stable code
		// so the producer can reconcile its actor feed.
		writeJSONError(w, http.StatusUnprocessableEntity, "unknown_actor", "Event references an actor the engine has never seen")

	case errors.Is(err, activity.ErrMalformedPayload),
		errors.Is(err, activity.ErrUnknownType),
		shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())

	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())

	case shared.IsAlreadyExists(err):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())

	case shared.IsRetryable(err):
		s.logger.Error("storage unavailable", "error", err, "request_id", requestID)
		writeJSONError(w, http.StatusServiceUnavailable, "storage_unavailable", "The engine could not reach its storage, retry later")

	default:
		s.logger.Error("command failed", "error", err, "request_id", requestID)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// writeQueryError maps a read-side error to an HTTP status.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())

	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())

	default:
		s.logger.Error("query failed", "error", err, "request_id", getRequestID(r.Context()))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
