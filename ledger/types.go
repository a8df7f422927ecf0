/*
Package ledger provides the core loyalty punch-card engine.

PURPOSE:
  This package contains the data model and algorithms for a multi-tenant
  loyalty ledger. Each (subject, program) pair owns exactly one Card that
  accumulates a bounded integer score via scan events; a full card is
  converted into a reward via an explicit redemption.

KEY CONCEPTS IN THIS FILE (types.go):
  - Card: The ledger entity, one per (subject, program) pair
  - Program: A merchant's reward definition (target, cash value, active flag)
  - Subject/Program/Card IDs: Type-safe identifiers
  - ScanResult/RedeemResult/AdjustResult: Operation post-images with
    derived display fields

DESIGN PRINCIPLES:
  1. Boundedness: score is always within [0, target_score] at rest
  2. Precision: Monetary fields use decimal.Decimal, never float
  3. Type Safety: Strong typing for IDs prevents mixing subject/program IDs
  4. Atomicity: Every mutation is a single atomic store call (see core.go)

USAGE:
  core := ledger.NewCore(repo, programs, subjects)
  result, err := core.Scan(ctx, subjectID, programID)
  if result.RewardEarned {
      // card is now full; subject may redeem
  }

SEE ALSO:
  - core.go: Scan/Redeem/AdjustBy/Reset operations
  - repository.go: CardRepository persistence contract
  - errors.go: Error taxonomy
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SubjectID string
type ProgramID string
type CardID string

// NewCardID generates a fresh card identity.
func NewCardID() CardID {
	return CardID(uuid.NewString())
}

// NewCardNumber generates the opaque display token assigned once at card
// creation. The token is masked like a payment card ("****1234"); it carries
// no meaning beyond display and is immutable after creation.
func NewCardNumber() string {
	id := uuid.New()
	return fmt.Sprintf("****%04d", (uint16(id[14])<<8|uint16(id[15]))%10000)
}

// =============================================================================
// PROGRAM - Merchant-defined reward scheme (owned by the Program Registry)
// =============================================================================

// Program is read fresh per operation and treated as immutable during a
// single operation. The ledger only consults TargetScore, CashPerRedeem and
// Active; the display fields exist for the transport layer.
type Program struct {
	ID            ProgramID
	Name          string
	TargetScore   int
	CashPerRedeem decimal.Decimal
	Active        bool

	// Display-only fields, never consulted by the core.
	Description string
	Category    string
	Color       string
}

// =============================================================================
// CARD - The per-(subject, program) loyalty counter
// =============================================================================

// Card invariants (hold after every committed operation):
//  1. Exactly one Card per (SubjectID, ProgramID).
//  2. 0 <= Score <= TargetScore.
//  3. Visits, RewardsEarned and TotalValueSaved never decrease.
//  4. RewardsEarned increments only via Redeem from a full card.
type Card struct {
	ID        CardID
	SubjectID SubjectID
	ProgramID ProgramID

	// Score is the redeemable progress; Visits counts completed scans and
	// is never reduced by redemption.
	Score       int
	TargetScore int
	Visits      int

	RewardsEarned   int
	TotalValueSaved decimal.Decimal

	// CardNumber is the opaque display token, assigned once at creation.
	CardNumber string

	LastScanAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProgressPercent reports how full the card is, in whole percent.
func (c Card) ProgressPercent() int {
	if c.TargetScore <= 0 {
		return 0
	}
	return c.Score * 100 / c.TargetScore
}

// ScansUntilReward reports how many scans remain before the card is full.
func (c Card) ScansUntilReward() int {
	remaining := c.TargetScore - c.Score
	if remaining < 0 {
		return 0
	}
	return remaining
}

// =============================================================================
// OPERATION RESULTS - Post-images plus derived fields
// =============================================================================

// ScanResult is returned by a successful Scan.
type ScanResult struct {
	Card Card

	PreviousScore int

	// RewardEarned flags that this scan filled the card. Reaching full only
	// flags eligibility; redemption is a separate, explicit step.
	RewardEarned bool

	ProgressPercent  int
	ScansUntilReward int
}

// RedeemResult is returned by a successful Redeem.
type RedeemResult struct {
	Card Card

	// CashValue is the program's per-redemption value credited by this
	// redemption, read from the registry at redeem time.
	CashValue decimal.Decimal
}

// AdjustResult is returned by AdjustBy, reporting both scores for audit.
type AdjustResult struct {
	Card Card

	PreviousScore int
	NewScore      int
}
