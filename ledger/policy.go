/*
policy.go - Redemption policy

PURPOSE:
  Two incompatible redemption behaviors exist in the wild:

    Full-reset:  score := 0 after redeeming. Excess punches beyond the
                 target are forfeited.
    Carry-over:  score := max(score - target, 0). Excess punches carry
                 into the next card.

  The policy is a DEPLOYMENT choice, fixed at Core construction. It is never
  selected per request; mixing policies on one ledger produces cards whose
  history cannot be explained by either rule.

DEFAULT:
  Full-reset. Scan rejects a full card outright, so under normal operation
  score never exceeds target and the two policies coincide; they only
  diverge after administrative adjustments. Full-reset is the simpler rule
  to explain to merchants and is the default.

SEE ALSO:
  - core.go: Applies the policy inside Redeem
  - repository.go: RedeemFull executes the policy store-side
*/
package ledger

// RedeemPolicy selects what happens to score on redemption.
type RedeemPolicy int

const (
	// RedeemFullReset sets score to zero.
	RedeemFullReset RedeemPolicy = iota

	// RedeemCarryOver subtracts the target, keeping excess punches.
	RedeemCarryOver
)

func (p RedeemPolicy) String() string {
	switch p {
	case RedeemCarryOver:
		return "carry-over"
	default:
		return "full-reset"
	}
}

// Apply computes the post-redemption score.
func (p RedeemPolicy) Apply(score, targetScore int) int {
	if p == RedeemCarryOver {
		if next := score - targetScore; next > 0 {
			return next
		}
		return 0
	}
	return 0
}
