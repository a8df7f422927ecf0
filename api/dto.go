/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The domain types these mirror
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/loyalty-engine/ledger"
)

// =============================================================================
// CARD TYPES
// =============================================================================

// CardDTO represents a card in API responses.
type CardDTO struct {
	ID              string          `json:"id"`
	SubjectID       string          `json:"subject_id"`
	ProgramID       string          `json:"program_id"`
	Score           int             `json:"score"`
	TargetScore     int             `json:"target_score"`
	Visits          int             `json:"visits"`
	RewardsEarned   int             `json:"rewards_earned"`
	TotalValueSaved decimal.Decimal `json:"total_value_saved"`
	CardNumber      string          `json:"card_number"`
	State           string          `json:"state"`
	ProgressPercent int             `json:"progress_percentage"`
	LastScanAt      string          `json:"last_scan_at,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func toCardDTO(card ledger.Card) CardDTO {
	dto := CardDTO{
		ID:              string(card.ID),
		SubjectID:       string(card.SubjectID),
		ProgramID:       string(card.ProgramID),
		Score:           card.Score,
		TargetScore:     card.TargetScore,
		Visits:          card.Visits,
		RewardsEarned:   card.RewardsEarned,
		TotalValueSaved: card.TotalValueSaved,
		CardNumber:      card.CardNumber,
		State:           string(card.State()),
		ProgressPercent: card.ProgressPercent(),
		CreatedAt:       card.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       card.UpdatedAt.Format(time.RFC3339),
	}
	if !card.LastScanAt.IsZero() {
		dto.LastScanAt = card.LastScanAt.Format(time.RFC3339)
	}
	return dto
}

// CreateCardRequest joins a subject to a program explicitly.
type CreateCardRequest struct {
	SubjectID string `json:"subject_id"`
	ProgramID string `json:"program_id"`
}

// =============================================================================
// SCAN
// =============================================================================

// ScanRequest records one punch.
type ScanRequest struct {
	SubjectID string `json:"subject_id"`
	ProgramID string `json:"program_id"`
}

// ScanResponse mirrors the mobile app's scan contract.
type ScanResponse struct {
	Success          bool    `json:"success"`
	Card             CardDTO `json:"card"`
	PreviousScore    int     `json:"previous_score"`
	NewScore         int     `json:"new_score"`
	RewardEarned     bool    `json:"reward_earned"`
	ProgressPercent  int     `json:"progress_percentage"`
	ScansUntilReward int     `json:"scans_until_reward"`
	RewardMessage    string  `json:"reward_message,omitempty"`
}

// =============================================================================
// REDEEM / ADJUST / RESET
// =============================================================================

// RedeemResponse reports a redeemed card and the value credited.
type RedeemResponse struct {
	Success   bool            `json:"success"`
	Card      CardDTO         `json:"card"`
	CashValue decimal.Decimal `json:"cash_value"`
}

// AdjustRequest is an operator correction.
type AdjustRequest struct {
	SubjectID string `json:"subject_id"`
	ProgramID string `json:"program_id"`
	Delta     int    `json:"delta"`
}

// AdjustResponse reports both scores for audit.
type AdjustResponse struct {
	Card          CardDTO `json:"card"`
	PreviousScore int     `json:"previous_score"`
	NewScore      int     `json:"new_score"`
}

// ResetRequest wipes a card's score.
type ResetRequest struct {
	SubjectID string `json:"subject_id"`
	ProgramID string `json:"program_id"`
}

// =============================================================================
// PROGRAMS / SUBJECTS / STATS
// =============================================================================

// ProgramDTO represents a program in API responses.
type ProgramDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetScore   int             `json:"target_score"`
	CashPerRedeem decimal.Decimal `json:"cash_per_redeem"`
	Active        bool            `json:"active"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Color         string          `json:"color,omitempty"`
}

func toProgramDTO(p ledger.Program) ProgramDTO {
	return ProgramDTO{
		ID:            string(p.ID),
		Name:          p.Name,
		TargetScore:   p.TargetScore,
		CashPerRedeem: p.CashPerRedeem,
		Active:        p.Active,
		Description:   p.Description,
		Category:      p.Category,
		Color:         p.Color,
	}
}

// SaveProgramRequest creates or updates a program.
type SaveProgramRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	TargetScore   int             `json:"target_score"`
	CashPerRedeem decimal.Decimal `json:"cash_per_redeem"`
	Active        *bool           `json:"active"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Color         string          `json:"color"`
}

// RegisterSubjectRequest creates a customer identity.
type RegisterSubjectRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// StatsDTO is the merchant dashboard summary.
type StatsDTO struct {
	ProgramID  string `json:"program_id"`
	TotalCards int    `json:"total_cards"`
	TotalScans int    `json:"total_scans"`
	NearReward int    `json:"near_reward"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
