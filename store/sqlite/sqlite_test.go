/*
sqlite_test.go - Storage-layer tests against an in-memory database

Tests for:
- The unique (subject, program) constraint
- ApplyDelta upsert, clamping and the scan guard
- RedeemFull's commit-time fullness check
- Reset, delete, stats and registry round trips
*/
package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/loyalty-engine/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testTime() time.Time {
	return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
}

func scanReq() ledger.DeltaRequest {
	return ledger.DeltaRequest{
		ScoreDelta:         1,
		VisitsDelta:        1,
		TargetScore:        10,
		RequireBelowTarget: true,
		TouchScan:          true,
		Now:                testTime(),
	}
}

func TestApplyDelta_InsertsOnFirstScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	outcome, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
	require.NoError(t, err)

	assert.True(t, outcome.Created)
	assert.Equal(t, 1, outcome.Card.Score)
	assert.Equal(t, 1, outcome.Card.Visits)
	assert.Equal(t, 10, outcome.Card.TargetScore)
	assert.NotEmpty(t, outcome.Card.CardNumber)

	found, err := store.FindCard(ctx, "subj-1", "prog-1")
	require.NoError(t, err)
	assert.Equal(t, outcome.Card.ID, found.ID)
	assert.Equal(t, testTime(), found.LastScanAt)
}

func TestApplyDelta_GuardBlocksFullCard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
		require.NoError(t, err)
	}

	_, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
	require.ErrorIs(t, err, ledger.ErrCardFull)

	card, err := store.FindCard(ctx, "subj-1", "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 10, card.Score)
	assert.Equal(t, 10, card.Visits, "rejected scan must not count a visit")
}

func TestApplyDelta_ClampsWithoutGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	up, err := store.ApplyDelta(ctx, "subj-1", "prog-1", ledger.DeltaRequest{
		ScoreDelta: 1000, TargetScore: 10, Now: testTime(),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, up.Card.Score)

	down, err := store.ApplyDelta(ctx, "subj-1", "prog-1", ledger.DeltaRequest{
		ScoreDelta: -1000, TargetScore: 10, Now: testTime(),
	})
	require.NoError(t, err)
	assert.Equal(t, 10, down.PreviousScore)
	assert.Equal(t, 0, down.Card.Score)
}

func TestApplyDelta_ExistingCardKeepsItsTargetSnapshot(t *testing.T) {
	// The program's target may drift after card creation; the card keeps
	// its creation-time snapshot.
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
	require.NoError(t, err)

	req := scanReq()
	req.TargetScore = 99
	outcome, err := store.ApplyDelta(ctx, "subj-1", "prog-1", req)
	require.NoError(t, err)
	assert.Equal(t, 10, outcome.Card.TargetScore)
}

func TestCreateCard_UniquePairEnforced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	card := ledger.Card{
		ID:              ledger.NewCardID(),
		SubjectID:       "subj-1",
		ProgramID:       "prog-1",
		TargetScore:     10,
		TotalValueSaved: decimal.Zero,
		CardNumber:      ledger.NewCardNumber(),
		CreatedAt:       testTime(),
		UpdatedAt:       testTime(),
	}
	_, err := store.CreateCard(ctx, card)
	require.NoError(t, err)

	dup := card
	dup.ID = ledger.NewCardID()
	_, err = store.CreateCard(ctx, dup)
	assert.ErrorIs(t, err, ledger.ErrCardExists)
}

func TestRedeemFull_ChecksFullnessAtCommit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var cardID ledger.CardID
	for i := 0; i < 10; i++ {
		outcome, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
		require.NoError(t, err)
		cardID = outcome.Card.ID
	}

	cash := decimal.RequireFromString("5.0")
	redeemed, err := store.RedeemFull(ctx, cardID, cash, ledger.RedeemFullReset, testTime())
	require.NoError(t, err)
	assert.Equal(t, 0, redeemed.Score)
	assert.Equal(t, 1, redeemed.RewardsEarned)
	assert.True(t, redeemed.TotalValueSaved.Equal(cash))

	// Second redemption sees an empty card.
	_, err = store.RedeemFull(ctx, cardID, cash, ledger.RedeemFullReset, testTime())
	assert.ErrorIs(t, err, ledger.ErrCardNotFull)
}

func TestRedeemFull_MissingCard(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RedeemFull(context.Background(), ledger.NewCardID(),
		decimal.Zero, ledger.RedeemFullReset, testTime())
	assert.ErrorIs(t, err, ledger.ErrCardNotFound)
}

func TestResetScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ResetScore(ctx, "subj-1", "prog-1", testTime())
	assert.ErrorIs(t, err, ledger.ErrCardNotFound)

	for i := 0; i < 4; i++ {
		_, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
		require.NoError(t, err)
	}

	card, err := store.ResetScore(ctx, "subj-1", "prog-1", testTime())
	require.NoError(t, err)
	assert.Equal(t, 0, card.Score)
	assert.Equal(t, 4, card.Visits)
}

func TestDeleteCard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	outcome, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
	require.NoError(t, err)

	require.NoError(t, store.DeleteCard(ctx, outcome.Card.ID))
	assert.ErrorIs(t, store.DeleteCard(ctx, outcome.Card.ID), ledger.ErrCardNotFound)

	_, err = store.FindCard(ctx, "subj-1", "prog-1")
	assert.ErrorIs(t, err, ledger.ErrCardNotFound)
}

func TestListCardsForSubject_OrdersByLastScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := scanReq()
	older.Now = testTime().Add(-time.Hour)
	_, err := store.ApplyDelta(ctx, "subj-1", "prog-old", older)
	require.NoError(t, err)
	_, err = store.ApplyDelta(ctx, "subj-1", "prog-new", scanReq())
	require.NoError(t, err)
	_, err = store.ApplyDelta(ctx, "subj-2", "prog-old", scanReq())
	require.NoError(t, err)

	cards, err := store.ListCardsForSubject(ctx, "subj-1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, ledger.ProgramID("prog-new"), cards[0].ProgramID)
	assert.Equal(t, ledger.ProgramID("prog-old"), cards[1].ProgramID)
}

func TestProgramStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// subj-1 at 8/10 (near reward), subj-2 at 2/10.
	for i := 0; i < 8; i++ {
		_, err := store.ApplyDelta(ctx, "subj-1", "prog-1", scanReq())
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := store.ApplyDelta(ctx, "subj-2", "prog-1", scanReq())
		require.NoError(t, err)
	}

	stats, err := store.ProgramStats(ctx, "prog-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCards)
	assert.Equal(t, 10, stats.TotalScans)
	assert.Equal(t, 1, stats.NearReward)
}

func TestProgramRegistry_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	program := ledger.Program{
		ID:            "prog-1",
		Name:          "Beanloop Coffee",
		TargetScore:   10,
		CashPerRedeem: decimal.RequireFromString("5.0"),
		Active:        true,
		Description:   "Buy 10 coffees, get 1 free.",
		Category:      "Coffee",
		Color:         "#616161",
	}
	require.NoError(t, store.SaveProgram(ctx, program))

	got, err := store.GetProgram(ctx, "prog-1")
	require.NoError(t, err)
	assert.Equal(t, program.Name, got.Name)
	assert.Equal(t, program.TargetScore, got.TargetScore)
	assert.True(t, got.CashPerRedeem.Equal(program.CashPerRedeem))
	assert.True(t, got.Active)
	assert.Equal(t, program.Category, got.Category)

	// Deactivation round-trips too.
	program.Active = false
	require.NoError(t, store.SaveProgram(ctx, program))
	got, err = store.GetProgram(ctx, "prog-1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = store.GetProgram(ctx, "prog-ghost")
	assert.ErrorIs(t, err, ledger.ErrProgramNotFound)
}

func TestSubjectDirectory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.SubjectExists(ctx, "subj-1")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.SaveSubject(ctx, Subject{
		ID:        "subj-1",
		Name:      "Demo Customer",
		Email:     "demo@example.com",
		CreatedAt: testTime(),
	}))

	exists, err = store.SubjectExists(ctx, "subj-1")
	require.NoError(t, err)
	assert.True(t, exists)
}
