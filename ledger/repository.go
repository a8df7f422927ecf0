/*
repository.go - Persistence contract for cards

PURPOSE:
  Defines the interface between the ledger core and the durable store.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

THE RACE-SAFETY PRIMITIVE:
  ApplyDelta is the single primitive the rest of the design is built on:
  one atomic "read current value, apply bounded delta, write back" step.
  There is deliberately NO UpdateCard(card) method: a blind read-modify-write
  lets two concurrent scanners both observe score=target-1 and both write
  target, which either double-books a full card or silently drops an
  increment depending on write order.

ATOMICITY CONTRACT:
  ApplyDelta and RedeemFull must each execute as one atomic store operation
  (a conditional UPDATE, an upsert-with-merge, or a compare-and-swap under a
  per-card mutex). Any implementation satisfies the contract as long as
  per-card linearizability holds: N concurrent deltas of +1 against capacity
  K net exactly min(N, K) increments.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite (single-statement writes)
  - ledger/store/memory.go: In-memory with per-card mutex (testing/dev)

SEE ALSO:
  - core.go: The only caller of this interface
  - errors.go: The sentinel errors these methods return
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DELTA REQUEST - One atomic bounded-counter update
// =============================================================================

// DeltaRequest describes one ApplyDelta call. Score is clamped to
// [0, target] inside the same atomic step as the increment.
type DeltaRequest struct {
	// ScoreDelta is signed; VisitsDelta must be >= 0 (visits are monotonic).
	ScoreDelta  int
	VisitsDelta int

	// TargetScore seeds the card's snapshot when the upsert inserts a new
	// row. An existing card keeps its own creation-time snapshot.
	TargetScore int

	// RequireBelowTarget arms the scan guard: if the existing card is
	// already at or above target, the store makes NO change (visits
	// included) and returns ErrCardFull. Without the guard the delta is
	// clamped silently (AdjustBy semantics).
	RequireBelowTarget bool

	// TouchScan updates LastScanAt alongside UpdatedAt.
	TouchScan bool

	Now time.Time
}

// DeltaOutcome reports the committed result of an ApplyDelta.
type DeltaOutcome struct {
	Card          Card
	PreviousScore int
	Created       bool
}

// =============================================================================
// CARD REPOSITORY - Interface for card persistence
// =============================================================================

// CardRepository persists cards. All write methods are single atomic store
// operations; partial writes are impossible by construction.
type CardRepository interface {
	// FindCard returns the card for the pair, or ErrCardNotFound.
	FindCard(ctx context.Context, subjectID SubjectID, programID ProgramID) (Card, error)

	// FindCardByID returns the card by its stable identity, or ErrCardNotFound.
	FindCardByID(ctx context.Context, cardID CardID) (Card, error)

	// ListCardsForSubject returns all cards owned by the subject, most
	// recently scanned first.
	ListCardsForSubject(ctx context.Context, subjectID SubjectID) ([]Card, error)

	// CreateCard inserts a zero-score card. Returns ErrCardExists if the
	// (subject, program) uniqueness constraint is violated.
	CreateCard(ctx context.Context, card Card) (Card, error)

	// ApplyDelta atomically upserts the card for the pair:
	//   - absent row: insert with score = clamp(req.ScoreDelta, 0, target)
	//   - existing row: score = clamp(score+req.ScoreDelta, 0, target),
	//     visits += req.VisitsDelta
	// See DeltaRequest for the scan guard and clamping contract.
	ApplyDelta(ctx context.Context, subjectID SubjectID, programID ProgramID, req DeltaRequest) (DeltaOutcome, error)

	// RedeemFull atomically converts a full card: applies newScore (already
	// computed per the deployment's redeem policy), increments RewardsEarned
	// and adds cashValue to TotalValueSaved. The fullness check reads the
	// stored score at commit time, not a stale snapshot. Returns
	// ErrCardNotFull if the guard fails, ErrCardNotFound if the card is
	// gone.
	RedeemFull(ctx context.Context, cardID CardID, cashValue decimal.Decimal, policy RedeemPolicy, now time.Time) (Card, error)

	// ResetScore unconditionally sets score to zero on an existing card.
	// RewardsEarned and TotalValueSaved are untouched. Returns
	// ErrCardNotFound if absent.
	ResetScore(ctx context.Context, subjectID SubjectID, programID ProgramID, now time.Time) (Card, error)

	// DeleteCard removes the card (subject opt-out). Returns ErrCardNotFound
	// if absent.
	DeleteCard(ctx context.Context, cardID CardID) error
}

// =============================================================================
// STATS REPOSITORY - Optional reporting extension
// =============================================================================

// ProgramStats summarizes a program's cards for a merchant dashboard.
type ProgramStats struct {
	ProgramID  ProgramID
	TotalCards int
	// TotalScans is the sum of visits across the program's cards.
	TotalScans int
	// NearReward counts cards at 80% of target or more.
	NearReward int
}

// StatsRepository extends CardRepository with aggregate queries. Stores that
// cannot aggregate efficiently may omit it; the core then returns
// ErrStoreRequired.
type StatsRepository interface {
	CardRepository

	ProgramStats(ctx context.Context, programID ProgramID) (ProgramStats, error)
}
