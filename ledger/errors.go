/*
errors.go - Centralized error types for the loyalty ledger

PURPOSE:
  All error types in one place for consistency and discoverability.
  Transport adapters map these to protocol status codes.

ERROR CATEGORIES:
  1. NotFound     - Subject, program or card missing; caller must create first
  2. Conflict     - Operation is semantically invalid given current state
                    (AlreadyExists, CardFull, CardNotFull); never retry blindly
  3. Unauthorized - Caller does not own the card
  4. Transient    - Store unavailable or optimistic retry exhausted; safe to
                    retry with backoff at the caller
  5. InvalidInput - Malformed identifiers, zero delta where one is required

USAGE:
  Transport layers classify with the helpers:

    if ledger.IsConflict(err) {
        w.WriteHeader(http.StatusConflict)
    }

SEE ALSO:
  - core.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSubjectNotFound is returned when the acting subject does not exist.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrProgramNotFound is returned when a referenced program doesn't exist.
	ErrProgramNotFound = errors.New("program not found")

	// ErrProgramInactive is returned when the program exists but is not
	// accepting scans or new cards.
	ErrProgramInactive = errors.New("program inactive")

	// ErrCardNotFound is returned when no card exists for the given key.
	ErrCardNotFound = errors.New("card not found")

	// ErrCardExists is returned by CreateCard when the (subject, program)
	// pair already has a card.
	ErrCardExists = errors.New("card already exists")

	// ErrCardFull is returned by Scan when the card is already at target.
	// A full, unredeemed card blocks further scans; the subject must redeem
	// before scanning again.
	ErrCardFull = errors.New("card full: redeem before scanning again")

	// ErrCardNotFull is returned by Redeem when the card is below target.
	ErrCardNotFull = errors.New("card not full")

	// ErrNotOwner is returned when a subject acts on a card it does not own.
	ErrNotOwner = errors.New("card belongs to another subject")

	// ErrInvalidInput is returned for malformed identifiers or a zero delta.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable is returned when the durable store times out or
	// is unreachable.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConcurrentModification is returned when an atomic update loses a
	// race and should be retried.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrRetryExhausted is returned when the bounded retry loop gives up.
	ErrRetryExhausted = errors.New("retry limit exhausted")

	// ErrStoreRequired is returned when an operation requires a store
	// capability the configured repository does not implement.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CardFullError reports a rejected scan against a full card.
type CardFullError struct {
	SubjectID   SubjectID
	ProgramID   ProgramID
	Score       int
	TargetScore int
}

func (e *CardFullError) Error() string {
	return fmt.Sprintf("card full: score %d/%d for subject %s in program %s",
		e.Score, e.TargetScore, e.SubjectID, e.ProgramID)
}

func (e *CardFullError) Unwrap() error { return ErrCardFull }

// CardNotFullError reports a rejected redemption with the shortfall.
type CardNotFullError struct {
	SubjectID   SubjectID
	ProgramID   ProgramID
	Score       int
	TargetScore int
}

func (e *CardNotFullError) Error() string {
	return fmt.Sprintf("card not full: score %d/%d, %d scans remaining",
		e.Score, e.TargetScore, e.TargetScore-e.Score)
}

func (e *CardNotFullError) Unwrap() error { return ErrCardNotFull }

// NotOwnerError reports a cross-subject access attempt. The owner is not
// echoed back to avoid leaking another tenant's identity.
type NotOwnerError struct {
	CallerID SubjectID
	CardID   CardID
}

func (e *NotOwnerError) Error() string {
	return fmt.Sprintf("subject %s does not own card %s", e.CallerID, e.CardID)
}

func (e *NotOwnerError) Unwrap() error { return ErrNotOwner }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSubjectNotFound) ||
		errors.Is(err, ErrProgramNotFound) ||
		errors.Is(err, ErrCardNotFound)
}

// IsConflict returns true if the operation is semantically invalid for the
// current state. Conflicts must not be retried blindly.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCardExists) ||
		errors.Is(err, ErrCardFull) ||
		errors.Is(err, ErrCardNotFull) ||
		errors.Is(err, ErrProgramInactive)
}

// IsUnauthorized returns true for ownership violations.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrNotOwner)
}

// IsTransient returns true if the error might succeed on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrRetryExhausted)
}

// IsInvalidInput returns true for malformed caller input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
