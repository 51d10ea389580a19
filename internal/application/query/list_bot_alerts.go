package query

import (
	"context"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/botwatch"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST BOT ALERTS QUERY
// The administrative review surface: either one actor's alert history or the
// unreviewed queue across all actors.
// ══════════════════════════════════════════════════════════════════════════════

// ListBotAlertsQuery contains the alert listing parameters. An empty ActorID
// lists the unreviewed queue across all actors.
type ListBotAlertsQuery struct {
	ActorID  string
	Page     int
	PageSize int
}

// AlertDTO is one bot alert on the wire.
type AlertDTO struct {
	ID             string                 `json:"id"`
	ActorID        string                 `json:"actor_id"`
	AlertType      string                 `json:"alert_type"`
	Severity       string                 `json:"severity"`
	Evidence       map[string]interface{} `json:"evidence"`
	ScoreIncrease  int                    `json:"score_increase"`
	IsReviewed     bool                   `json:"is_reviewed"`
	DisputeMessage string                 `json:"dispute_message,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// ListBotAlertsResult is a page of alerts.
type ListBotAlertsResult struct {
	Alerts   []AlertDTO `json:"alerts"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

// ListBotAlertsHandler handles the ListBotAlertsQuery.
type ListBotAlertsHandler struct {
	alertRepo botwatch.Repository
}

// NewListBotAlertsHandler creates a new ListBotAlertsHandler.
func NewListBotAlertsHandler(alertRepo botwatch.Repository) *ListBotAlertsHandler {
	return &ListBotAlertsHandler{alertRepo: alertRepo}
}

// Handle executes the alert listing query.
func (h *ListBotAlertsHandler) Handle(ctx context.Context, query ListBotAlertsQuery) (*ListBotAlertsResult, error) {
	page := shared.NewPagination(query.Page, query.PageSize)

	var (
		alerts []*botwatch.Alert
		err    error
	)
	if query.ActorID == "" {
		alerts, err = h.alertRepo.ListUnreviewed(ctx, page)
	} else {
		var actorID shared.ActorID
		actorID, err = shared.NewActorID(query.ActorID)
		if err != nil {
			return nil, err
		}
		alerts, err = h.alertRepo.ListByActor(ctx, actorID, page)
	}
	if err != nil {
		return nil, shared.WrapError("query", "ListBotAlerts", shared.ErrStorageUnavailable, "failed to list alerts", err)
	}

	dtos := make([]AlertDTO, 0, len(alerts))
	for _, alert := range alerts {
		dtos = append(dtos, AlertDTO{
			ID:             alert.ID,
			ActorID:        alert.ActorID.String(),
			AlertType:      alert.AlertType.String(),
			Severity:       alert.Severity.String(),
			Evidence:       alert.Evidence,
			ScoreIncrease:  alert.ScoreIncrease,
			IsReviewed:     alert.IsReviewed,
			DisputeMessage: alert.DisputeMessage,
			CreatedAt:      alert.CreatedAt,
		})
	}

	return &ListBotAlertsResult{
		Alerts:   dtos,
		Page:     page.Page,
		PageSize: page.PageSize,
	}, nil
}
