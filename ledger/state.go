/*
state.go - Card state machine

STATES (a function of score and target_score):
  EMPTY        score == 0
  IN_PROGRESS  0 < score < target
  FULL         score >= target

TRANSITIONS:
  Scan:    EMPTY/IN_PROGRESS -> IN_PROGRESS/FULL; rejected from FULL with
           ErrCardFull (an explicit error, not a no-op)
  Redeem:  FULL -> EMPTY (full-reset) or FULL -> IN_PROGRESS (carry-over);
           rejected from EMPTY/IN_PROGRESS with ErrCardNotFull
  AdjustBy/Reset: operator escape hatches, may move between any states and
           bypass the Scan/Redeem gating
*/
package ledger

// CardState classifies a card's position in the punch cycle.
type CardState string

const (
	StateEmpty      CardState = "empty"
	StateInProgress CardState = "in_progress"
	StateFull       CardState = "full"
)

// StateOf derives the state from a score/target pair.
func StateOf(score, targetScore int) CardState {
	switch {
	case score >= targetScore && targetScore > 0:
		return StateFull
	case score > 0:
		return StateInProgress
	default:
		return StateEmpty
	}
}

// State reports the card's current state.
func (c Card) State() CardState {
	return StateOf(c.Score, c.TargetScore)
}
