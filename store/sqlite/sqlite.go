/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements the ledger's persistence contracts using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.CardRepository:   Card persistence and the atomic primitives
  ledger.StatsRepository:  Merchant dashboard aggregates
  ledger.ProgramRegistry:  Program parameters
  ledger.SubjectDirectory: Subject existence checks

ATOMICITY:
  ApplyDelta and RedeemFull each run inside one SQL transaction under the
  store's write mutex, so the read-clamp-write of a scan and the
  check-then-reset of a redemption are indivisible. RedeemFull additionally
  guards the UPDATE with "score >= target_score" so the fullness check holds
  at commit time, not at read time.

KEY TABLES:
  cards:    One row per (subject, program) pair; UNIQUE constraint enforces
            the pair invariant at the storage layer
  programs: Merchant reward definitions
  subjects: Customer identities (existence checks only, from the core's
            point of view)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  core := ledger.NewCore(store, store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/repository.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tally/loyalty-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One pooled connection: SQLite allows a single writer anyway, and
	// ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Subjects (customer identities; the ledger only checks existence)
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT,
		email TEXT,
		created_at TEXT NOT NULL
	);

	-- Programs (merchant reward definitions)
	CREATE TABLE IF NOT EXISTS programs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		target_score INTEGER NOT NULL,
		cash_per_redeem TEXT NOT NULL DEFAULT '0',
		active INTEGER NOT NULL DEFAULT 1,
		description TEXT,
		category TEXT,
		color TEXT DEFAULT '#6366F1',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Cards (the ledger proper)
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		program_id TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		target_score INTEGER NOT NULL,
		visits INTEGER NOT NULL DEFAULT 0,
		rewards_earned INTEGER NOT NULL DEFAULT 0,
		total_value_saved TEXT NOT NULL DEFAULT '0',
		card_number TEXT NOT NULL,
		last_scan_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: At most one card per (subject, program) pair
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_subject_program
		ON cards(subject_id, program_id);

	-- For subject card listings (hot path for the mobile app)
	CREATE INDEX IF NOT EXISTS idx_cards_subject_scanned
		ON cards(subject_id, last_scan_at DESC);

	-- For program-wide stats
	CREATE INDEX IF NOT EXISTS idx_cards_program
		ON cards(program_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CARD REPOSITORY
// =============================================================================

const cardColumns = `id, subject_id, program_id, score, target_score, visits,
	rewards_earned, total_value_saved, card_number, last_scan_at, created_at, updated_at`

func (s *Store) FindCard(ctx context.Context, subjectID ledger.SubjectID, programID ledger.ProgramID) (ledger.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE subject_id = ? AND program_id = ?`,
		string(subjectID), string(programID))
	return scanCard(row)
}

func (s *Store) FindCardByID(ctx context.Context, cardID ledger.CardID) (ledger.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = ?`, string(cardID))
	return scanCard(row)
}

func (s *Store) ListCardsForSubject(ctx context.Context, subjectID ledger.SubjectID) ([]ledger.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE subject_id = ?
		 ORDER BY last_scan_at DESC`, string(subjectID))
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	var cards []ledger.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *Store) CreateCard(ctx context.Context, card ledger.Card) (ledger.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cards (id, subject_id, program_id, score, target_score, visits,
			rewards_earned, total_value_saved, card_number, last_scan_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(card.ID), string(card.SubjectID), string(card.ProgramID),
		card.Score, card.TargetScore, card.Visits,
		card.RewardsEarned, card.TotalValueSaved.String(), card.CardNumber,
		nullTime(card.LastScanAt), formatTime(card.CreatedAt), formatTime(card.UpdatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.Card{}, ledger.ErrCardExists
		}
		return ledger.Card{}, wrapStoreErr(err)
	}
	return card, nil
}

// ApplyDelta runs the whole read-clamp-write as one transaction under the
// write mutex, so concurrent scanners serialize on the card row.
func (s *Store) ApplyDelta(ctx context.Context, subjectID ledger.SubjectID, programID ledger.ProgramID, req ledger.DeltaRequest) (ledger.DeltaOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.DeltaOutcome{}, wrapStoreErr(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE subject_id = ? AND program_id = ?`,
		string(subjectID), string(programID))
	card, err := scanCard(row)

	switch {
	case errors.Is(err, ledger.ErrCardNotFound):
		fresh := ledger.Card{
			ID:              ledger.NewCardID(),
			SubjectID:       subjectID,
			ProgramID:       programID,
			Score:           clamp(req.ScoreDelta, 0, req.TargetScore),
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO cards (id, subject_id, program_id, score, target_score, visits,
				rewards_earned, total_value_saved, card_number, last_scan_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, '0', ?, ?, ?, ?)`,
			string(fresh.ID), string(fresh.SubjectID), string(fresh.ProgramID),
			fresh.Score, fresh.TargetScore, fresh.Visits, fresh.CardNumber,
			nullTime(fresh.LastScanAt), formatTime(fresh.CreatedAt), formatTime(fresh.UpdatedAt))
		if err != nil {
			if isUniqueConstraintError(err) {
				// Lost the insert race; caller retries.
				return ledger.DeltaOutcome{}, ledger.ErrConcurrentModification
			}
			return ledger.DeltaOutcome{}, wrapStoreErr(err)
		}
		if err := tx.Commit(); err != nil {
			return ledger.DeltaOutcome{}, wrapStoreErr(err)
		}
		return ledger.DeltaOutcome{Card: fresh, PreviousScore: 0, Created: true}, nil

	case err != nil:
		return ledger.DeltaOutcome{}, err
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

	_, err = tx.ExecContext(ctx, `
		UPDATE cards SET score = ?, visits = ?, last_scan_at = ?, updated_at = ?
		WHERE id = ?`,
		card.Score, card.Visits, nullTime(card.LastScanAt), formatTime(card.UpdatedAt),
		string(card.ID))
	if err != nil {
		return ledger.DeltaOutcome{}, wrapStoreErr(err)
	}
	if err := tx.Commit(); err != nil {
		return ledger.DeltaOutcome{}, wrapStoreErr(err)
	}
	return ledger.DeltaOutcome{Card: card, PreviousScore: prev}, nil
}

// RedeemFull converts a full card in one transaction. The UPDATE re-asserts
// "score >= target_score" so the fullness check holds at commit time even
// against a writer that slipped between our read and write.
func (s *Store) RedeemFull(ctx context.Context, cardID ledger.CardID, cashValue decimal.Decimal, policy ledger.RedeemPolicy, now time.Time) (ledger.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = ?`, string(cardID))
	card, err := scanCard(row)
	if err != nil {
		return ledger.Card{}, err
	}
	if card.Score < card.TargetScore {
		return ledger.Card{}, ledger.ErrCardNotFull
	}

	card.Score = policy.Apply(card.Score, card.TargetScore)
	card.RewardsEarned++
	card.TotalValueSaved = card.TotalValueSaved.Add(cashValue)
	card.UpdatedAt = now

	result, err := tx.ExecContext(ctx, `
		UPDATE cards SET score = ?, rewards_earned = ?, total_value_saved = ?, updated_at = ?
		WHERE id = ? AND score >= target_score`,
		card.Score, card.RewardsEarned, card.TotalValueSaved.String(),
		formatTime(card.UpdatedAt), string(card.ID))
	if err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}
	if affected == 0 {
		return ledger.Card{}, ledger.ErrConcurrentModification
	}
	if err := tx.Commit(); err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}
	return card, nil
}

func (s *Store) ResetScore(ctx context.Context, subjectID ledger.SubjectID, programID ledger.ProgramID, now time.Time) (ledger.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE cards SET score = 0, updated_at = ?
		WHERE subject_id = ? AND program_id = ?`,
		formatTime(now), string(subjectID), string(programID))
	if err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}
	if affected == 0 {
		return ledger.Card{}, ledger.ErrCardNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE subject_id = ? AND program_id = ?`,
		string(subjectID), string(programID))
	return scanCard(row)
}

func (s *Store) DeleteCard(ctx context.Context, cardID ledger.CardID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, string(cardID))
	if err != nil {
		return wrapStoreErr(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return wrapStoreErr(err)
	}
	if affected == 0 {
		return ledger.ErrCardNotFound
	}
	return nil
}

// =============================================================================
// STATS
// =============================================================================

func (s *Store) ProgramStats(ctx context.Context, programID ledger.ProgramID) (ledger.ProgramStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ledger.ProgramStats{ProgramID: programID}
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(visits), 0),
			COALESCE(SUM(CASE WHEN target_score > 0 AND score * 10 >= target_score * 8 THEN 1 ELSE 0 END), 0)
		FROM cards WHERE program_id = ?`, string(programID))
	if err := row.Scan(&stats.TotalCards, &stats.TotalScans, &stats.NearReward); err != nil {
		return ledger.ProgramStats{}, wrapStoreErr(err)
	}
	return stats, nil
}

// =============================================================================
// PROGRAM REGISTRY
// =============================================================================

func (s *Store) GetProgram(ctx context.Context, id ledger.ProgramID) (ledger.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, target_score, cash_per_redeem, active, description, category, color
		FROM programs WHERE id = ?`, string(id))
	program, err := scanProgram(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Program{}, ledger.ErrProgramNotFound
	}
	if err != nil {
		return ledger.Program{}, wrapStoreErr(err)
	}
	return program, nil
}

// SaveProgram inserts or updates a program definition.
func (s *Store) SaveProgram(ctx context.Context, p ledger.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(time.Now().UTC())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO programs (id, name, target_score, cash_per_redeem, active,
			description, category, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			target_score = excluded.target_score,
			cash_per_redeem = excluded.cash_per_redeem,
			active = excluded.active,
			description = excluded.description,
			category = excluded.category,
			color = excluded.color,
			updated_at = excluded.updated_at`,
		string(p.ID), p.Name, p.TargetScore, p.CashPerRedeem.String(), boolInt(p.Active),
		p.Description, p.Category, p.Color, now, now)
	return wrapStoreErr(err)
}

// ListPrograms returns all programs, active and inactive.
func (s *Store) ListPrograms(ctx context.Context) ([]ledger.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, target_score, cash_per_redeem, active, description, category, color
		FROM programs ORDER BY name`)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	var programs []ledger.Program
	for rows.Next() {
		program, err := scanProgram(rows)
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		programs = append(programs, program)
	}
	return programs, rows.Err()
}

// =============================================================================
// SUBJECT DIRECTORY
// =============================================================================

func (s *Store) SubjectExists(ctx context.Context, id ledger.SubjectID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subjects WHERE id = ?`, string(id)).Scan(&count)
	if err != nil {
		return false, wrapStoreErr(err)
	}
	return count > 0, nil
}

// Subject is a minimal identity record. The ledger core only checks
// existence; name and email exist for the transport layer.
type Subject struct {
	ID        ledger.SubjectID
	Name      string
	Email     string
	CreatedAt time.Time
}

func (s *Store) SaveSubject(ctx context.Context, subject Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email`,
		string(subject.ID), subject.Name, subject.Email, formatTime(subject.CreatedAt))
	return wrapStoreErr(err)
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (ledger.Card, error) {
	var card ledger.Card
	var totalSaved string
	var lastScan sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&card.ID, &card.SubjectID, &card.ProgramID,
		&card.Score, &card.TargetScore, &card.Visits,
		&card.RewardsEarned, &totalSaved, &card.CardNumber,
		&lastScan, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Card{}, ledger.ErrCardNotFound
	}
	if err != nil {
		return ledger.Card{}, wrapStoreErr(err)
	}

	card.TotalValueSaved = parseDecimal(totalSaved)
	if lastScan.Valid {
		card.LastScanAt = parseTime(lastScan.String)
	}
	card.CreatedAt = parseTime(createdAt)
	card.UpdatedAt = parseTime(updatedAt)
	return card, nil
}

func scanProgram(row rowScanner) (ledger.Program, error) {
	var p ledger.Program
	var cash string
	var active int
	var description, category, color sql.NullString

	err := row.Scan(&p.ID, &p.Name, &p.TargetScore, &cash, &active,
		&description, &category, &color)
	if err != nil {
		return ledger.Program{}, err
	}
	p.CashPerRedeem = parseDecimal(cash)
	p.Active = active != 0
	p.Description = description.String
	p.Category = category.String
	p.Color = color.String
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
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

func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ledger.ErrStoreUnavailable, err)
	}
	if strings.Contains(err.Error(), "database is locked") {
		return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
