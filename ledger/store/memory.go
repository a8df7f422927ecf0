// Package store provides CardRepository implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/loyalty-engine/ledger"
)

// =============================================================================
// MEMORY REPOSITORY - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every card under one mutex. Each method is a single critical
// section, so per-card operations are trivially linearizable.
type Memory struct {
	mu     sync.RWMutex
	byPair map[pairKey]*ledger.Card
	byID   map[ledger.CardID]pairKey
}

type pairKey struct {
	SubjectID ledger.SubjectID
	ProgramID ledger.ProgramID
}

func NewMemory() *Memory {
	return &Memory{
		byPair: make(map[pairKey]*ledger.Card),
		byID:   make(map[ledger.CardID]pairKey),
	}
}

func (m *Memory) FindCard(_ context.Context, subjectID ledger.SubjectID, programID ledger.ProgramID) (ledger.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	card, ok := m.byPair[pairKey{subjectID, programID}]
	if !ok {
		return ledger.Card{}, ledger.ErrCardNotFound
	}
	return *card, nil
}

func (m *Memory) FindCardByID(_ context.Context, cardID ledger.CardID) (ledger.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.byID[cardID]
	if !ok {
		return ledger.Card{}, ledger.ErrCardNotFound
	}
	return *m.byPair[key], nil
}

func (m *Memory) ListCardsForSubject(_ context.Context, subjectID ledger.SubjectID) ([]ledger.Card, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cards []ledger.Card
	for key, card := range m.byPair {
		if key.SubjectID == subjectID {
			cards = append(cards, *card)
		}
	}
	sort.Slice(cards, func(i, j int) bool {
		return cards[i].LastScanAt.After(cards[j].LastScanAt)
	})
	return cards, nil
}

func (m *Memory) CreateCard(_ context.Context, card ledger.Card) (ledger.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{card.SubjectID, card.ProgramID}
	if _, exists := m.byPair[key]; exists {
		return ledger.Card{}, ledger.ErrCardExists
	}
	stored := card
	if stored.TotalValueSaved.IsZero() {
		stored.TotalValueSaved = decimal.Zero
	}
	m.byPair[key] = &stored
	m.byID[stored.ID] = key
	return stored, nil
}

// ApplyDelta is the atomic bounded-counter upsert. The whole
// read-clamp-write runs under the write lock, so two concurrent scanners
// can never both observe score=target-1.
func (m *Memory) ApplyDelta(_ context.Context, subjectID ledger.SubjectID, programID ledger.ProgramID, req ledger.DeltaRequest) (ledger.DeltaOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{subjectID, programID}
	card, exists := m.byPair[key]
	if !exists {
		score := clamp(req.ScoreDelta, 0, req.TargetScore)
		fresh := ledger.Card{
			ID:              ledger.NewCardID(),
			SubjectID:       subjectID,
			ProgramID:       programID,
			Score:           score,
			TargetScore:     req.TargetScore,
			Visits:          req.VisitsDelta,
			TotalValueSaved: decimal.Zero,
			CardNumber:      ledger.NewCardNumber(),
			CreatedAt:       req.Now,
			UpdatedAt:       req.Now,
		}
		if req.TouchScan {
			fresh.LastScanAt = req.Now
		}
		m.byPair[key] = &fresh
		m.byID[fresh.ID] = key
		return ledger.DeltaOutcome{Card: fresh, PreviousScore: 0, Created: true}, nil
	}

	if req.RequireBelowTarget && card.Score >= card.TargetScore {
		return ledger.DeltaOutcome{}, ledger.ErrCardFull
	}

	prev := card.Score
	card.Score = clamp(card.Score+req.ScoreDelta, 0, card.TargetScore)
	card.Visits += req.VisitsDelta
	card.UpdatedAt = req.Now
	if req.TouchScan {
		card.LastScanAt = req.Now
	}
	return ledger.DeltaOutcome{Card: *card, PreviousScore: prev}, nil
}

// RedeemFull checks fullness against the stored value inside the critical
// section, so two concurrent redemptions cannot double-spend one card.
func (m *Memory) RedeemFull(_ context.Context, cardID ledger.CardID, cashValue decimal.Decimal, policy ledger.RedeemPolicy, now time.Time) (ledger.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.byID[cardID]
	if !ok {
		return ledger.Card{}, ledger.ErrCardNotFound
	}
	card := m.byPair[key]
	if card.Score < card.TargetScore {
		return ledger.Card{}, ledger.ErrCardNotFull
	}

	card.Score = policy.Apply(card.Score, card.TargetScore)
	card.RewardsEarned++
	card.TotalValueSaved = card.TotalValueSaved.Add(cashValue)
	card.UpdatedAt = now
	return *card, nil
}

func (m *Memory) ResetScore(_ context.Context, subjectID ledger.SubjectID, programID ledger.ProgramID, now time.Time) (ledger.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	card, ok := m.byPair[pairKey{subjectID, programID}]
	if !ok {
		return ledger.Card{}, ledger.ErrCardNotFound
	}
	card.Score = 0
	card.UpdatedAt = now
	return *card, nil
}

func (m *Memory) DeleteCard(_ context.Context, cardID ledger.CardID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.byID[cardID]
	if !ok {
		return ledger.ErrCardNotFound
	}
	delete(m.byPair, key)
	delete(m.byID, cardID)
	return nil
}

func (m *Memory) ProgramStats(_ context.Context, programID ledger.ProgramID) (ledger.ProgramStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ledger.ProgramStats{ProgramID: programID}
	for key, card := range m.byPair {
		if key.ProgramID != programID {
			continue
		}
		stats.TotalCards++
		stats.TotalScans += card.Visits
		if card.TargetScore > 0 && card.Score*10 >= card.TargetScore*8 {
			stats.NearReward++
		}
	}
	return stats, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
