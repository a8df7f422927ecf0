/*
core.go - The ledger core: Scan, Redeem, AdjustBy, Reset and card CRUD

PURPOSE:
  Owns the Card transition rules. The core is stateless between calls; all
  state lives in the CardRepository. Multiple concurrent callers (an admin
  console and a mobile app acting on the same card) are expected and are
  serialized per card by the repository's atomic primitives.

OWNERSHIP:
  A subject may only Redeem, Get, List or Delete its own cards. The check
  lives here, not in the transport layer; the ledger is the last line of
  defense against cross-tenant leakage. The acting subject is an explicit
  parameter on every owner-scoped call, never ambient state.

RETRY:
  Transient conflicts from the atomic-update primitive are retried up to
  maxRetries times with no backoff; contention is per card and one physical
  punch card cannot be scanned twice within milliseconds in practice. All
  other errors surface immediately.

SEE ALSO:
  - repository.go: The atomic primitives this file composes
  - policy.go: Full-reset vs carry-over redemption
  - errors.go: The failure taxonomy returned here
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
)

// maxRetries bounds the optimistic retry loop around atomic updates.
const maxRetries = 5

// Core implements the ledger operations against injected collaborators.
type Core struct {
	repo     CardRepository
	programs ProgramRegistry
	subjects SubjectDirectory
	clock    Clock
	policy   RedeemPolicy
}

// Option configures a Core.
type Option func(*Core)

// WithClock replaces the system clock. For tests.
func WithClock(c Clock) Option {
	return func(core *Core) { core.clock = c }
}

// WithRedeemPolicy selects the deployment's redemption policy.
// The default is RedeemFullReset.
func WithRedeemPolicy(p RedeemPolicy) Option {
	return func(core *Core) { core.policy = p }
}

// NewCore wires a ledger core. The redeem policy defaults to full-reset.
func NewCore(repo CardRepository, programs ProgramRegistry, subjects SubjectDirectory, opts ...Option) *Core {
	core := &Core{
		repo:     repo,
		programs: programs,
		subjects: subjects,
		clock:    SystemClock{},
		policy:   RedeemFullReset,
	}
	for _, opt := range opts {
		opt(core)
	}
	return core
}

// Policy reports the configured redemption policy.
func (c *Core) Policy() RedeemPolicy { return c.policy }

// =============================================================================
// SCAN - score += 1, bounded, lazy card creation
// =============================================================================

// Scan records one punch for the subject at the program. The card is created
// lazily on the first scan. A full card rejects the scan with ErrCardFull;
// the subject must redeem first.
func (c *Core) Scan(ctx context.Context, subjectID SubjectID, programID ProgramID) (*ScanResult, error) {
	if subjectID == "" || programID == "" {
		return nil, fmt.Errorf("%w: subject and program required", ErrInvalidInput)
	}
	if err := c.checkSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	program, err := c.programs.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	if !program.Active {
		return nil, fmt.Errorf("%w: %s", ErrProgramInactive, programID)
	}

	var outcome DeltaOutcome
	err = c.withRetry(ctx, func() error {
		var applyErr error
		outcome, applyErr = c.repo.ApplyDelta(ctx, subjectID, programID, DeltaRequest{
			ScoreDelta:         1,
			VisitsDelta:        1,
			TargetScore:        program.TargetScore,
			RequireBelowTarget: true,
			TouchScan:          true,
			Now:                c.clock.Now(),
		})
		return applyErr
	})
	if errors.Is(err, ErrCardFull) {
		// The guard tripped store-side; report with current numbers.
		if card, findErr := c.repo.FindCard(ctx, subjectID, programID); findErr == nil {
			return nil, &CardFullError{
				SubjectID:   subjectID,
				ProgramID:   programID,
				Score:       card.Score,
				TargetScore: card.TargetScore,
			}
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	card := outcome.Card
	return &ScanResult{
		Card:             card,
		PreviousScore:    outcome.PreviousScore,
		RewardEarned:     card.Score == card.TargetScore,
		ProgressPercent:  card.ProgressPercent(),
		ScansUntilReward: card.ScansUntilReward(),
	}, nil
}

// =============================================================================
// REDEEM - full card -> reward
// =============================================================================

// Redeem converts the caller's full card into a reward: score drops per the
// deployment policy, RewardsEarned increments and TotalValueSaved is
// credited with the program's cash value read at redeem time. The full-card
// check is enforced against the stored value at commit time, so two
// concurrent redemptions cannot double-spend one card.
func (c *Core) Redeem(ctx context.Context, callerID SubjectID, cardID CardID) (*RedeemResult, error) {
	if callerID == "" || cardID == "" {
		return nil, fmt.Errorf("%w: caller and card required", ErrInvalidInput)
	}
	card, err := c.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.SubjectID != callerID {
		return nil, &NotOwnerError{CallerID: callerID, CardID: cardID}
	}
	program, err := c.programs.GetProgram(ctx, card.ProgramID)
	if err != nil {
		return nil, err
	}

	var redeemed Card
	err = c.withRetry(ctx, func() error {
		var redeemErr error
		redeemed, redeemErr = c.repo.RedeemFull(ctx, cardID, program.CashPerRedeem, c.policy, c.clock.Now())
		return redeemErr
	})
	if errors.Is(err, ErrCardNotFull) {
		return nil, &CardNotFullError{
			SubjectID:   card.SubjectID,
			ProgramID:   card.ProgramID,
			Score:       card.Score,
			TargetScore: card.TargetScore,
		}
	}
	if err != nil {
		return nil, err
	}
	return &RedeemResult{Card: redeemed, CashValue: program.CashPerRedeem}, nil
}

// RedeemByPair resolves the card by its natural key, then redeems it.
func (c *Core) RedeemByPair(ctx context.Context, callerID SubjectID, subjectID SubjectID, programID ProgramID) (*RedeemResult, error) {
	card, err := c.repo.FindCard(ctx, subjectID, programID)
	if err != nil {
		return nil, err
	}
	return c.Redeem(ctx, callerID, card.ID)
}

// =============================================================================
// ADJUSTBY - signed administrative correction
// =============================================================================

// AdjustBy applies a signed operator correction, clamped to [0, target].
// The card is created if absent (seeding an initial score). Reaching target
// this way never triggers a redemption; adjustment and redemption are
// distinct verbs.
func (c *Core) AdjustBy(ctx context.Context, subjectID SubjectID, programID ProgramID, delta int) (*AdjustResult, error) {
	if subjectID == "" || programID == "" {
		return nil, fmt.Errorf("%w: subject and program required", ErrInvalidInput)
	}
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrInvalidInput)
	}
	if err := c.checkSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	program, err := c.programs.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}

	var outcome DeltaOutcome
	err = c.withRetry(ctx, func() error {
		var applyErr error
		outcome, applyErr = c.repo.ApplyDelta(ctx, subjectID, programID, DeltaRequest{
			ScoreDelta:  delta,
			TargetScore: program.TargetScore,
			Now:         c.clock.Now(),
		})
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return &AdjustResult{
		Card:          outcome.Card,
		PreviousScore: outcome.PreviousScore,
		NewScore:      outcome.Card.Score,
	}, nil
}

// =============================================================================
// RESET - administrative wipe to zero
// =============================================================================

// Reset sets score to zero on an existing card. Unlike Redeem it touches
// neither RewardsEarned nor TotalValueSaved; it is a corrective wipe, not
// reward fulfillment. Resetting an already-zero card succeeds trivially.
func (c *Core) Reset(ctx context.Context, subjectID SubjectID, programID ProgramID) (*Card, error) {
	if subjectID == "" || programID == "" {
		return nil, fmt.Errorf("%w: subject and program required", ErrInvalidInput)
	}
	var card Card
	err := c.withRetry(ctx, func() error {
		var resetErr error
		card, resetErr = c.repo.ResetScore(ctx, subjectID, programID, c.clock.Now())
		return resetErr
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// =============================================================================
// CARD CRUD
// =============================================================================

// CreateCard explicitly joins the subject to the program with a zero score.
func (c *Core) CreateCard(ctx context.Context, subjectID SubjectID, programID ProgramID) (*Card, error) {
	if subjectID == "" || programID == "" {
		return nil, fmt.Errorf("%w: subject and program required", ErrInvalidInput)
	}
	if err := c.checkSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	program, err := c.programs.GetProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	if !program.Active {
		return nil, fmt.Errorf("%w: %s", ErrProgramInactive, programID)
	}

	now := c.clock.Now()
	card, err := c.repo.CreateCard(ctx, Card{
		ID:          NewCardID(),
		SubjectID:   subjectID,
		ProgramID:   programID,
		TargetScore: program.TargetScore,
		CardNumber:  NewCardNumber(),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// GetCard returns the card, enforcing that the caller owns it.
func (c *Core) GetCard(ctx context.Context, callerID SubjectID, cardID CardID) (*Card, error) {
	card, err := c.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.SubjectID != callerID {
		return nil, &NotOwnerError{CallerID: callerID, CardID: cardID}
	}
	return &card, nil
}

// GetCardByPair returns the caller's card for the program.
func (c *Core) GetCardByPair(ctx context.Context, callerID SubjectID, subjectID SubjectID, programID ProgramID) (*Card, error) {
	if callerID != subjectID {
		return nil, fmt.Errorf("%w: subject %s", ErrNotOwner, callerID)
	}
	card, err := c.repo.FindCard(ctx, subjectID, programID)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// ListCardsForSubject returns the caller's cards, most recently scanned
// first.
func (c *Core) ListCardsForSubject(ctx context.Context, callerID SubjectID, subjectID SubjectID) ([]Card, error) {
	if callerID != subjectID {
		return nil, fmt.Errorf("%w: subject %s", ErrNotOwner, callerID)
	}
	return c.repo.ListCardsForSubject(ctx, subjectID)
}

// DeleteCard removes the caller's card (opt-out).
func (c *Core) DeleteCard(ctx context.Context, callerID SubjectID, cardID CardID) error {
	card, err := c.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return err
	}
	if card.SubjectID != callerID {
		return &NotOwnerError{CallerID: callerID, CardID: cardID}
	}
	return c.repo.DeleteCard(ctx, cardID)
}

// =============================================================================
// STATS
// =============================================================================

// ProgramStats summarizes a program's cards for its merchant. Requires a
// repository implementing StatsRepository.
func (c *Core) ProgramStats(ctx context.Context, programID ProgramID) (*ProgramStats, error) {
	stats, ok := c.repo.(StatsRepository)
	if !ok {
		return nil, ErrStoreRequired
	}
	if _, err := c.programs.GetProgram(ctx, programID); err != nil {
		return nil, err
	}
	result, err := stats.ProgramStats(ctx, programID)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// INTERNAL
// =============================================================================

func (c *Core) checkSubject(ctx context.Context, id SubjectID) error {
	exists, err := c.subjects.SubjectExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrSubjectNotFound, id)
	}
	return nil
}

// withRetry retries fn on concurrent-modification conflicts only. No
// backoff: contention is per card and expected to be rare.
func (c *Core) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctxErr)
		}
		err = fn()
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, maxRetries, err)
}
