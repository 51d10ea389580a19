package query

import (
	"context"
	"errors"
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET XP HISTORY QUERY
// Pages through an actor's ledger, newest first. The ledger is append-only,
// so this view doubles as the audit trail for disputed awards.
// ══════════════════════════════════════════════════════════════════════════════

// GetXPHistoryQuery contains the actor and page to read.
type GetXPHistoryQuery struct {
	ActorID  string
	Page     int
	PageSize int
}

// Validate checks and normalizes the query parameters.
func (q *GetXPHistoryQuery) Validate() error {
	if q.ActorID == "" {
		return errors.New("actor_id is required")
	}
	normalized := shared.NewPagination(q.Page, q.PageSize)
	q.Page = normalized.Page
	q.PageSize = normalized.PageSize
	return nil
}

// TransactionDTO is one ledger entry on the wire.
type TransactionDTO struct {
	ID           string    `json:"id"`
	Amount       int64     `json:"amount"`
	Reason       string    `json:"reason"`
	TargetRefs   []string  `json:"target_refs"`
	IsRevocation bool      `json:"is_revocation"`
	CreatedAt    time.Time `json:"created_at"`
}

// GetXPHistoryResult is a page of an actor's ledger.
type GetXPHistoryResult struct {
	ActorID      string           `json:"actor_id"`
	Transactions []TransactionDTO `json:"transactions"`
	Page         int              `json:"page"`
	PageSize     int              `json:"page_size"`
}

// GetXPHistoryHandler handles the GetXPHistoryQuery.
type GetXPHistoryHandler struct {
	ledgerRepo ledger.Repository
}

// NewGetXPHistoryHandler creates a new GetXPHistoryHandler.
func NewGetXPHistoryHandler(ledgerRepo ledger.Repository) *GetXPHistoryHandler {
	return &GetXPHistoryHandler{ledgerRepo: ledgerRepo}
}

// Handle executes the XP history query.
func (h *GetXPHistoryHandler) Handle(ctx context.Context, query GetXPHistoryQuery) (*GetXPHistoryResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetXPHistory", shared.ErrValidation, err.Error(), err)
	}

	actorID, err := shared.NewActorID(query.ActorID)
	if err != nil {
		return nil, err
	}

	page := shared.NewPagination(query.Page, query.PageSize)
	transactions, err := h.ledgerRepo.ListByActor(ctx, actorID, page)
	if err != nil {
		return nil, shared.WrapError("query", "GetXPHistory", shared.ErrStorageUnavailable, "failed to list transactions", err)
	}

	dtos := make([]TransactionDTO, 0, len(transactions))
	for _, tx := range transactions {
		refs := make([]string, 0, len(tx.TargetRefs))
		for _, ref := range tx.TargetRefs {
			refs = append(refs, ref.String())
		}
		dtos = append(dtos, TransactionDTO{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Reason:       tx.Reason.String(),
			TargetRefs:   refs,
			IsRevocation: tx.IsRevocation(),
			CreatedAt:    tx.CreatedAt,
		})
	}

	return &GetXPHistoryResult{
		ActorID:      actorID.String(),
		Transactions: dtos,
		Page:         query.Page,
		PageSize:     query.PageSize,
	}, nil
}
