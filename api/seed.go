/*
seed.go - Demo data loader for testing and demonstrations

PURPOSE:
  Populates the database with a realistic set of neighborhood merchant
  programs and one demo subject with in-progress cards, so the mobile app
  and admin console have something to show against a fresh database.

USAGE VIA API:

	POST /api/seed/demo

NOTE:
  Seeding upserts programs by ID and is safe to call repeatedly. Only use
  in development/demo environments.

SEE ALSO:
  - handlers.go: The rest of the handler set
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/loyalty-engine/ledger"
	"github.com/tally/loyalty-engine/store/sqlite"
)

// =============================================================================
// DEMO DATA
// =============================================================================

type demoProgram struct {
	id          string
	name        string
	category    string
	color       string
	description string
	target      int
	cash        string
}

var demoPrograms = []demoProgram{
	{"prog-beanloop", "Beanloop Coffee", "Coffee", "#616161",
		"Buy 10 coffees, get 1 free.", 10, "5.0"},
	{"prog-cartems", "Cartems Donuts", "Bakeries & Pastry", "#c48c5c",
		"Cartems Club: buy 10 donuts across visits, get 1 free.", 10, "5.0"},
	{"prog-scoops", "Rain City Scoops", "Ice Cream & Gelato", "#ff9aa2",
		"Every 8th scoop is on the house.", 8, "6.0"},
	{"prog-pressed", "Pressed & Co", "Juice & Smoothie Bars", "#4caf50",
		"10 juices punched, next one free.", 10, "7.0"},
	{"prog-tacotally", "Taco Tally", "Tacos & Food Trucks", "#ff7043",
		"Buy 10 tacos across visits, get $10 off your next order.", 10, "10.0"},
	{"prog-steeped", "Steeped Tea House", "Tea Houses", "#6b8e23",
		"Loose leaf loyalty: 9 pots poured, 10th free.", 9, "9.0"},
}

// SeedDemo loads the demo programs and one subject with partial progress.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()

	for _, p := range demoPrograms {
		program := ledger.Program{
			ID:            ledger.ProgramID(p.id),
			Name:          p.name,
			TargetScore:   p.target,
			CashPerRedeem: decimal.RequireFromString(p.cash),
			Active:        true,
			Description:   p.description,
			Category:      p.category,
			Color:         p.color,
		}
		if err := h.Store.SaveProgram(ctx, program); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed programs", err)
			return
		}
	}

	demo := sqlite.Subject{
		ID:        "subj-demo",
		Name:      "Demo Customer",
		Email:     "demo@example.com",
		CreatedAt: now,
	}
	if err := h.Store.SaveSubject(ctx, demo); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed subject", err)
		return
	}

	// Partial progress on a few cards, seeded through the core so every
	// invariant applies to demo data too.
	progress := map[ledger.ProgramID]int{
		"prog-beanloop":  4,
		"prog-cartems":   7,
		"prog-tacotally": 2,
	}
	for programID, punches := range progress {
		if _, err := h.Core.GetCardByPair(ctx, demo.ID, demo.ID, programID); err == nil {
			continue // already seeded
		}
		for i := 0; i < punches; i++ {
			if _, err := h.Core.Scan(ctx, demo.ID, programID); err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to seed cards", err)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"programs": len(demoPrograms),
		"subject":  string(demo.ID),
	})
}
