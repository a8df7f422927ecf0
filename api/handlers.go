/*
handlers.go - HTTP API handlers for the loyalty ledger

PURPOSE:
  Exposes the ledger core via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the ledger core. The core re-checks
  ownership on every call, so this layer is a convenience surface, not a
  security boundary.

ENDPOINTS:
  Mobile:
    POST   /api/mobile/scan                 Record one punch
    GET    /api/mobile/cards/{subjectID}    List a subject's cards

  Cards:
    POST   /api/cards                       Join a program explicitly
    GET    /api/cards/{id}                  Fetch one card
    DELETE /api/cards/{id}                  Opt out (delete card)
    POST   /api/cards/{id}/redeem           Redeem a full card

  Admin:
    POST   /api/admin/adjust                Signed score correction
    POST   /api/admin/reset                 Wipe score to zero

  Programs:
    GET    /api/programs                    List programs
    POST   /api/programs                    Create/update a program
    GET    /api/programs/{id}/stats         Merchant dashboard stats

  Subjects:
    POST   /api/subjects                    Register a customer identity

CALLER IDENTITY:
  Owner-scoped endpoints read the acting subject from the X-Subject-ID
  header. Authentication of that identity is out of scope here; a session
  or token middleware supplies it in production deployments.

ERROR HANDLING:
  Ledger errors are classified by taxonomy and mapped to HTTP status:
  - 400: InvalidInput
  - 403: Unauthorized (NotOwner)
  - 404: NotFound (subject, program, card)
  - 409: Conflict (AlreadyExists, CardFull, CardNotFull, ProgramInactive)
  - 503: Transient (store unavailable, retries exhausted)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/core.go: The operations wrapped here
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tally/loyalty-engine/ledger"
	"github.com/tally/loyalty-engine/store/sqlite"
)

// subjectHeader carries the authenticated caller's subject ID.
const subjectHeader = "X-Subject-ID"

// storeTimeout bounds every store round trip so no request hangs.
const storeTimeout = 5 * time.Second

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Core  *ledger.Core
	Store *sqlite.Store
}

// NewHandler creates a new handler around a core and its backing store.
func NewHandler(core *ledger.Core, store *sqlite.Store) *Handler {
	return &Handler{Core: core, Store: store}
}

// =============================================================================
// MOBILE HANDLERS
// =============================================================================

// Scan records one punch for a subject at a program.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := h.Core.Scan(ctx, ledger.SubjectID(req.SubjectID), ledger.ProgramID(req.ProgramID))
	if err != nil {
		writeLedgerError(w, "Scan failed", err)
		return
	}

	resp := ScanResponse{
		Success:          true,
		Card:             toCardDTO(result.Card),
		PreviousScore:    result.PreviousScore,
		NewScore:         result.Card.Score,
		RewardEarned:     result.RewardEarned,
		ProgressPercent:  result.ProgressPercent,
		ScansUntilReward: result.ScansUntilReward,
	}
	if result.RewardEarned {
		resp.RewardMessage = "Card complete! Redeem your reward on your next visit."
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCards returns all of a subject's cards, most recently scanned first.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	subjectID := ledger.SubjectID(chi.URLParam(r, "subjectID"))
	caller := callerID(r)

	ctx, cancel := requestContext(r)
	defer cancel()

	cards, err := h.Core.ListCardsForSubject(ctx, caller, subjectID)
	if err != nil {
		writeLedgerError(w, "Failed to list cards", err)
		return
	}

	dtos := make([]CardDTO, len(cards))
	for i, card := range cards {
		dtos[i] = toCardDTO(card)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject_id": string(subjectID),
		"cards":      dtos,
	})
}

// =============================================================================
// CARD HANDLERS
// =============================================================================

// CreateCard joins a subject to a program with a zero score.
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	card, err := h.Core.CreateCard(ctx, ledger.SubjectID(req.SubjectID), ledger.ProgramID(req.ProgramID))
	if err != nil {
		writeLedgerError(w, "Failed to create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardDTO(*card))
}

// GetCard fetches one card; the caller must own it.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	ctx, cancel := requestContext(r)
	defer cancel()

	card, err := h.Core.GetCard(ctx, callerID(r), cardID)
	if err != nil {
		writeLedgerError(w, "Failed to get card", err)
		return
	}
	writeJSON(w, http.StatusOK, toCardDTO(*card))
}

// DeleteCard removes the caller's card.
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := h.Core.DeleteCard(ctx, callerID(r), cardID); err != nil {
		writeLedgerError(w, "Failed to delete card", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Redeem converts the caller's full card into a reward.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	cardID := ledger.CardID(chi.URLParam(r, "id"))

	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := h.Core.Redeem(ctx, callerID(r), cardID)
	if err != nil {
		writeLedgerError(w, "Redemption failed", err)
		return
	}
	writeJSON(w, http.StatusOK, RedeemResponse{
		Success:   true,
		Card:      toCardDTO(result.Card),
		CashValue: result.CashValue,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Adjust applies a signed operator correction, clamped to [0, target].
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	result, err := h.Core.AdjustBy(ctx, ledger.SubjectID(req.SubjectID), ledger.ProgramID(req.ProgramID), req.Delta)
	if err != nil {
		writeLedgerError(w, "Adjustment failed", err)
		return
	}
	writeJSON(w, http.StatusOK, AdjustResponse{
		Card:          toCardDTO(result.Card),
		PreviousScore: result.PreviousScore,
		NewScore:      result.NewScore,
	})
}

// Reset wipes a card's score to zero without touching reward counters.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	card, err := h.Core.Reset(ctx, ledger.SubjectID(req.SubjectID), ledger.ProgramID(req.ProgramID))
	if err != nil {
		writeLedgerError(w, "Reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"card":    toCardDTO(*card),
	})
}

// =============================================================================
// PROGRAM HANDLERS
// =============================================================================

// ListPrograms returns all programs.
func (h *Handler) ListPrograms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r)
	defer cancel()

	programs, err := h.Store.ListPrograms(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list programs", err)
		return
	}
	dtos := make([]ProgramDTO, len(programs))
	for i, p := range programs {
		dtos[i] = toProgramDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveProgram creates or updates a program definition.
func (h *Handler) SaveProgram(w http.ResponseWriter, r *http.Request) {
	var req SaveProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Program id and name required", nil)
		return
	}
	if req.TargetScore <= 0 {
		writeError(w, http.StatusBadRequest, "Target score must be positive", nil)
		return
	}
	if req.CashPerRedeem.IsNegative() {
		writeError(w, http.StatusBadRequest, "Cash per redeem cannot be negative", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	program := ledger.Program{
		ID:            ledger.ProgramID(req.ID),
		Name:          req.Name,
		TargetScore:   req.TargetScore,
		CashPerRedeem: req.CashPerRedeem,
		Active:        active,
		Description:   req.Description,
		Category:      req.Category,
		Color:         req.Color,
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	if err := h.Store.SaveProgram(ctx, program); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save program", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProgramDTO(program))
}

// ProgramStats returns the merchant dashboard summary for a program.
func (h *Handler) ProgramStats(w http.ResponseWriter, r *http.Request) {
	programID := ledger.ProgramID(chi.URLParam(r, "id"))

	ctx, cancel := requestContext(r)
	defer cancel()

	stats, err := h.Core.ProgramStats(ctx, programID)
	if err != nil {
		writeLedgerError(w, "Failed to get stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsDTO{
		ProgramID:  string(stats.ProgramID),
		TotalCards: stats.TotalCards,
		TotalScans: stats.TotalScans,
		NearReward: stats.NearReward,
	})
}

// =============================================================================
// SUBJECT HANDLERS
// =============================================================================

// RegisterSubject creates a customer identity.
func (h *Handler) RegisterSubject(w http.ResponseWriter, r *http.Request) {
	var req RegisterSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Subject id required", nil)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	subject := sqlite.Subject{
		ID:        ledger.SubjectID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveSubject(ctx, subject); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to register subject", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": req.ID})
}

// =============================================================================
// HELPERS
// =============================================================================

func callerID(r *http.Request) ledger.SubjectID {
	return ledger.SubjectID(r.Header.Get(subjectHeader))
}

func requestContext(r *http.Request) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(r.Context(), storeTimeout)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps the ledger's error taxonomy to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, message, err)
	case ledger.IsUnauthorized(err):
		writeError(w, http.StatusForbidden, message, err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsTransient(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
