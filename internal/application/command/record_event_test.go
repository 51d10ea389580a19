package command

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/actor"
	"github.com/makerhub/reputation-engine/internal/domain/award"
	"github.com/makerhub/reputation-engine/internal/domain/botwatch"
	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

const testActorID = shared.ActorID("11111111-1111-1111-1111-111111111111")

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY FAKES
// One store backs all three repositories so the aggregate bookkeeping the
// real persistence layer does atomically stays consistent in tests.
// ══════════════════════════════════════════════════════════════════════════════

type fakeStore struct {
	actors map[shared.ActorID]*actor.Actor
	txs    []*ledger.Transaction
	byKey  map[string]*ledger.Transaction
	alerts []*botwatch.Alert

	// appendFailures makes the next N Append calls fail transiently.
	appendFailures int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		actors: make(map[shared.ActorID]*actor.Actor),
		byKey:  make(map[string]*ledger.Transaction),
	}
}

func (s *fakeStore) addActor(t *testing.T, id shared.ActorID) *actor.Actor {
	t.Helper()
	a, err := actor.NewActor(id, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	s.actors[id] = a
	return a
}

// seedTransaction backfills a ledger row without going through the pipeline.
func (s *fakeStore) seedTransaction(t *testing.T, actorID shared.ActorID, amount int64, reason ledger.Reason, refs []shared.TargetRef, dedupKey string, createdAt time.Time) {
	t.Helper()
	tx, err := ledger.NewTransaction(actorID, amount, reason, refs, dedupKey)
	require.NoError(t, err)
	tx.CreatedAt = createdAt
	s.txs = append(s.txs, tx)
	s.byKey[dedupKey] = tx
	s.actors[actorID].ApplyAmount(amount, createdAt)
}

// ─── actor.Repository ───

func (s *fakeStore) Create(_ context.Context, a *actor.Actor) error {
	if _, ok := s.actors[a.ID]; ok {
		return shared.ErrActorAlreadyExists
	}
	s.actors[a.ID] = a
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id shared.ActorID) (*actor.Actor, error) {
	a, ok := s.actors[id]
	if !ok {
		return nil, shared.ErrActorNotFound
	}
	return a, nil
}

func (s *fakeStore) GetByIDs(_ context.Context, ids []shared.ActorID) ([]*actor.Actor, error) {
	var out []*actor.Actor
	for _, id := range ids {
		if a, ok := s.actors[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) Exists(_ context.Context, id shared.ActorID) (bool, error) {
	_, ok := s.actors[id]
	return ok, nil
}

func (s *fakeStore) List(_ context.Context, _ shared.Pagination) ([]*actor.Actor, error) {
	return nil, nil
}

func (s *fakeStore) Count(_ context.Context) (int, error) {
	return len(s.actors), nil
}

// ─── ledger.Repository ───

func (s *fakeStore) Append(_ context.Context, tx *ledger.Transaction) (bool, error) {
	if s.appendFailures > 0 {
		s.appendFailures--
		return false, shared.ErrStorageUnavailable
	}
	if _, ok := s.byKey[tx.DedupKey]; ok {
		return false, nil
	}
	a, ok := s.actors[tx.ActorID]
	if !ok {
		return false, shared.ErrActorNotFound
	}
	s.txs = append(s.txs, tx)
	s.byKey[tx.DedupKey] = tx
	a.ApplyAmount(tx.Amount, tx.CreatedAt)
	return true, nil
}

func (s *fakeStore) GetByDedupKey(_ context.Context, dedupKey string) (*ledger.Transaction, error) {
	tx, ok := s.byKey[dedupKey]
	if !ok {
		return nil, shared.ErrTransactionNotFound
	}
	return tx, nil
}

func (s *fakeStore) ExistsDedupKey(_ context.Context, dedupKey string) (bool, error) {
	_, ok := s.byKey[dedupKey]
	return ok, nil
}

func (s *fakeStore) GrantStateFor(_ context.Context, reason ledger.Reason, target shared.TargetRef) (ledger.GrantState, error) {
	var state ledger.GrantState
	for _, tx := range s.txs {
		if tx.Reason != reason || !tx.HasTarget(target) {
			continue
		}
		if tx.IsRevocation() {
			state.Revokes++
		} else {
			state.Grants++
		}
	}
	return state, nil
}

func (s *fakeStore) SumByActor(_ context.Context, actorID shared.ActorID) (int64, error) {
	var sum int64
	for _, tx := range s.txs {
		if tx.ActorID == actorID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (s *fakeStore) ListByActor(_ context.Context, actorID shared.ActorID, _ shared.Pagination) ([]*ledger.Transaction, error) {
	var out []*ledger.Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].ActorID == actorID {
			out = append(out, s.txs[i])
		}
	}
	return out, nil
}

func (s *fakeStore) CountByActorReasonSince(_ context.Context, actorID shared.ActorID, reason ledger.Reason, since time.Time) (int, error) {
	count := 0
	for _, tx := range s.txs {
		if tx.ActorID == actorID && tx.Reason == reason && !tx.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) LastByActorReason(_ context.Context, actorID shared.ActorID, reason ledger.Reason, excluding ...shared.TargetRef) (*ledger.Transaction, error) {
	var last *ledger.Transaction
	for _, tx := range s.txs {
		if tx.ActorID != actorID || tx.Reason != reason {
			continue
		}
		excluded := false
		for _, ref := range excluding {
			if tx.HasTarget(ref) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		if last == nil || tx.CreatedAt.After(last.CreatedAt) {
			last = tx
		}
	}
	if last == nil {
		return nil, shared.ErrTransactionNotFound
	}
	return last, nil
}

func (s *fakeStore) FindDivergentAggregates(_ context.Context, _ int) ([]ledger.Divergence, error) {
	return nil, nil
}

func (s *fakeStore) RepairAggregate(_ context.Context, actorID shared.ActorID) (int64, error) {
	sum, _ := s.SumByActor(context.Background(), actorID)
	return sum, nil
}

// ─── botwatch.Repository ───

func (s *fakeStore) SaveAlert(_ context.Context, alert *botwatch.Alert) (botwatch.SaveResult, error) {
	a, ok := s.actors[alert.ActorID]
	if !ok {
		return botwatch.SaveResult{}, shared.ErrActorNotFound
	}
	s.alerts = append(s.alerts, alert)
	newlyFlagged := a.RaiseBotScore(alert.ScoreIncrease)
	return botwatch.SaveResult{NewScore: a.BotScore, NewlyFlagged: newlyFlagged}, nil
}

func (s *fakeStore) GetAlertByID(_ context.Context, id string) (*botwatch.Alert, error) {
	for _, alert := range s.alerts {
		if alert.ID == id {
			return alert, nil
		}
	}
	return nil, shared.ErrAlertNotFound
}

func (s *fakeStore) ListUnreviewed(_ context.Context, _ shared.Pagination) ([]*botwatch.Alert, error) {
	return nil, nil
}

func (s *fakeStore) MarkReviewed(_ context.Context, _ string) error { return nil }

func (s *fakeStore) SaveDispute(_ context.Context, _ string, _ string) error { return nil }

// ─── shared.EventPublisher ───

type capturingPublisher struct {
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []shared.EventType {
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// TESTS
// ══════════════════════════════════════════════════════════════════════════════

func newTestHandler(store *fakeStore, pub *capturingPublisher) *RecordEventHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRecordEventHandler(
		store,
		storeAsLedger{store},
		storeAsAlerts{store},
		nil,
		pub,
		nil,
		logger,
	)
}

// The fake store satisfies all three repository interfaces, but botwatch and
// actor both declare GetByID with different signatures. Thin adapters pick the
// right method set.
type storeAsLedger struct{ *fakeStore }

type storeAsAlerts struct{ *fakeStore }

func (s storeAsAlerts) GetByID(ctx context.Context, id string) (*botwatch.Alert, error) {
	return s.GetAlertByID(ctx, id)
}

func (s storeAsAlerts) ListByActor(_ context.Context, actorID shared.ActorID, _ shared.Pagination) ([]*botwatch.Alert, error) {
	var out []*botwatch.Alert
	for _, alert := range s.alerts {
		if alert.ActorID == actorID {
			out = append(out, alert)
		}
	}
	return out, nil
}

func publishPayload(actorID shared.ActorID, projectID string, at time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"actor_id":%q,"project_id":%q,"published_at":%q}`,
		actorID, projectID, at.Format(time.RFC3339),
	))
}

func TestHandle_FirstProjectAwardsOnce(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   publishPayload(testActorID, "proj-1", time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, int64(award.XPFirstProject), result.Applied[0].Amount)
	assert.Equal(t, 0, result.Duplicates)
	assert.False(t, result.WasNoOp())
	assert.Equal(t, shared.XP(50), store.actors[testActorID].TotalXP)
	assert.Contains(t, pub.types(), shared.EventXPGained)
}

func TestHandle_RedeliveryIsSilentNoOp(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	payload := publishPayload(testActorID, "proj-1", time.Now().Add(-time.Hour))
	cmd := RecordEventCommand{EventType: activity.TypeProjectPublished, Payload: payload}

	_, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	// Same event delivered again: no error, no new ledger rows. The rule
	// table recognizes the consumed first-project key and stays silent
	// before anything reaches the ledger.
	result, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)

	assert.Empty(t, result.Applied)
	assert.Equal(t, 0, result.Decisions)
	assert.True(t, result.WasNoOp())
	assert.Equal(t, shared.XP(50), store.actors[testActorID].TotalXP)
}

func TestHandle_DemoViewDeduplicatesPerViewer(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	payload := json.RawMessage(fmt.Sprintf(
		`{"owner_id":%q,"project_id":"proj-1","viewer":{"session_token":"tok-a"},"viewed_at":%q}`,
		testActorID, time.Now().Add(-time.Minute).Format(time.RFC3339),
	))
	cmd := RecordEventCommand{EventType: activity.TypeDemoViewed, Payload: payload}

	first, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	require.Len(t, first.Applied, 1)
	assert.Equal(t, int64(award.XPDemoView), first.Applied[0].Amount)

	second, err := handler.Handle(context.Background(), cmd)
	require.NoError(t, err)
	assert.Empty(t, second.Applied)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, shared.XP(1), store.actors[testActorID].TotalXP)

	// A different viewer is a fresh award.
	other := json.RawMessage(fmt.Sprintf(
		`{"owner_id":%q,"project_id":"proj-1","viewer":{"session_token":"tok-b"},"viewed_at":%q}`,
		testActorID, time.Now().Add(-time.Minute).Format(time.RFC3339),
	))
	third, err := handler.Handle(context.Background(), RecordEventCommand{EventType: activity.TypeDemoViewed, Payload: other})
	require.NoError(t, err)
	assert.Len(t, third.Applied, 1)
	assert.Equal(t, shared.XP(2), store.actors[testActorID].TotalXP)
}

func TestHandle_SecondProjectAwardsTen(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	store.seedTransaction(t, testActorID, 50, ledger.ReasonFirstProject,
		[]shared.TargetRef{"proj-1"}, award.FirstProjectKey(testActorID), time.Now().Add(-time.Hour))
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   publishPayload(testActorID, "proj-2", time.Now().Add(-time.Minute)),
	})
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, int64(award.XPAdditionalProject), result.Applied[0].Amount)
	assert.Equal(t, shared.XP(60), store.actors[testActorID].TotalXP)
}

func TestHandle_UnknownActorIsFatal(t *testing.T) {
	store := newFakeStore()
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	_, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   publishPayload(testActorID, "proj-1", time.Now().Add(-time.Hour)),
	})

	assert.ErrorIs(t, err, shared.ErrActorNotFound)
	assert.Empty(t, store.txs, "nothing lands in the ledger")
	assert.Empty(t, pub.events)
}

func TestHandle_MalformedPayloadIsRejected(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	handler := newTestHandler(store, &capturingPublisher{})

	_, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   json.RawMessage(`{broken`),
	})
	assert.ErrorIs(t, err, activity.ErrMalformedPayload)

	_, err = handler.Handle(context.Background(), RecordEventCommand{
		EventType: "project.archived",
		Payload:   json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, activity.ErrUnknownType)
}

func TestHandle_LevelUpIsPublished(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	store.seedTransaction(t, testActorID, 60, ledger.ReasonIdeaSubmitted,
		[]shared.TargetRef{"idea-0"}, award.IdeaKey("idea-0"), time.Now().Add(-2*time.Hour))
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	// 60 XP + 50 for the first project crosses the 100 XP level boundary.
	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   publishPayload(testActorID, "proj-1", time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, shared.Level(2), store.actors[testActorID].Level)
	assert.Contains(t, pub.types(), shared.EventLevelUp)
}

func TestHandle_RapidPublishRaisesAlertAndFlags(t *testing.T) {
	store := newFakeStore()
	a := store.addActor(t, testActorID)
	store.seedTransaction(t, testActorID, 50, ledger.ReasonFirstProject,
		[]shared.TargetRef{"proj-1"}, award.FirstProjectKey(testActorID), time.Now().Add(-2*time.Minute))

	// One prior alert away from the flag threshold.
	a.BotScore = shared.BotScore(30)

	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   publishPayload(testActorID, "proj-2", time.Now()),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.AlertsRaised)
	assert.True(t, result.NewlyFlagged)
	assert.True(t, a.IsFlaggedBot)
	assert.Equal(t, shared.BotScore(50), a.BotScore)

	types := pub.types()
	assert.Contains(t, types, shared.EventBotAlertRaised)
	assert.Contains(t, types, shared.EventActorFlagged)
}

func TestHandle_RedeliveredIdeaDoesNotInflateSpamWindow(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	ideaPayload := func(n int) json.RawMessage {
		return json.RawMessage(fmt.Sprintf(
			`{"actor_id":%q,"idea_id":"idea-%d","submitted_at":%q}`,
			testActorID, n, time.Now().Add(-time.Minute).Format(time.RFC3339),
		))
	}

	// Five ideas within the hour: exactly at the limit, all clean.
	for n := 1; n <= 5; n++ {
		result, err := handler.Handle(context.Background(), RecordEventCommand{
			EventType: activity.TypeIdeaSubmitted,
			Payload:   ideaPayload(n),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, result.AlertsRaised, "idea %d", n)
	}

	// The fifth idea delivered again: already in the window count, must
	// not push the actor over the limit.
	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeIdeaSubmitted,
		Payload:   ideaPayload(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 0, result.AlertsRaised, "redelivery of an already-counted idea must not raise a spam alert")
	assert.Empty(t, store.alerts)

	// A genuinely new sixth idea still does.
	result, err = handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeIdeaSubmitted,
		Payload:   ideaPayload(6),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsRaised)
}

func TestHandle_RedeliveredPublishDoesNotMeasureOwnGap(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	store.seedTransaction(t, testActorID, 50, ledger.ReasonFirstProject,
		[]shared.TargetRef{"proj-1"}, award.FirstProjectKey(testActorID), time.Now().Add(-2*time.Minute))
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	// The same publish arrives again with no timestamp, so the decoder
	// stamps it now; the 2-minute-old ledger row for proj-1 is its own and
	// must not read as a rapid second publish.
	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   json.RawMessage(fmt.Sprintf(`{"actor_id":%q,"project_id":"proj-1"}`, testActorID)),
	})
	require.NoError(t, err)

	assert.True(t, result.WasNoOp())
	assert.Equal(t, 0, result.AlertsRaised)
	assert.Empty(t, store.alerts)
	assert.Equal(t, shared.BotScore(0), store.actors[testActorID].BotScore)
}

func TestHandle_TransientAppendFailureIsRetried(t *testing.T) {
	store := newFakeStore()
	store.addActor(t, testActorID)
	store.appendFailures = 1
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeProjectPublished,
		Payload:   publishPayload(testActorID, "proj-1", time.Now().Add(-time.Hour)),
	})
	require.NoError(t, err)
	assert.Len(t, result.Applied, 1)
}

func TestHandle_VisibilityToggleRevokesBonus(t *testing.T) {
	authorID := shared.ActorID("33333333-3333-3333-3333-333333333333")
	store := newFakeStore()
	store.addActor(t, authorID)
	store.seedTransaction(t, authorID, 2, ledger.ReasonPublicReviewBonus,
		[]shared.TargetRef{"rev-1"}, award.ReviewBonusGrantKey("rev-1", 0), time.Now().Add(-time.Hour))
	pub := &capturingPublisher{}
	handler := newTestHandler(store, pub)

	payload := json.RawMessage(fmt.Sprintf(
		`{"actor_id":%q,"visible":false,"authored_review_ids":["rev-1"],"toggled_at":%q}`,
		authorID, time.Now().Add(-time.Minute).Format(time.RFC3339),
	))
	result, err := handler.Handle(context.Background(), RecordEventCommand{
		EventType: activity.TypeVisibilityToggled,
		Payload:   payload,
	})
	require.NoError(t, err)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, int64(-award.XPPublicReviewBonus), result.Applied[0].Amount)
	assert.True(t, result.Applied[0].IsRevocation())
	assert.Equal(t, shared.XP(0), store.actors[authorID].TotalXP)
}
