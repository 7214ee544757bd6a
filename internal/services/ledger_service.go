package services

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/raspadita/backend/internal/models"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 200
)

// LedgerService owns the movements table: append-only, no update or delete.
// Rows are written inside the same transaction as the balance change they
// record, so an audit read is never missing a movement whose balance effect
// is already visible.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// Append inserts one movement. A unique violation on (correlation_id, kind)
// means the same logical transfer was already applied, surfaced as
// ErrDuplicateTransfer so a client retry cannot double-apply.
func (s *LedgerService) Append(tx *sql.Tx, m *models.Movement) error {
	err := tx.QueryRow(`
		INSERT INTO movements (ts, kind, amount, actor_id, from_user, to_user, correlation_id, note)
		VALUES (NOW(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, ts`,
		m.Kind, m.Amount, m.ActorID, m.FromUser, m.ToUser, m.CorrelationID, m.Note).
		Scan(&m.ID, &m.TS)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateTransfer
		}
		return fmt.Errorf("append movement: %w", err)
	}
	return nil
}

// Query returns the movements visible to userID (as actor or counterparty),
// newest first. The limit is clamped to keep dashboard scans bounded.
func (s *LedgerService) Query(userID string, limit int) ([]models.Movement, error) {
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	if limit > maxLedgerLimit {
		limit = maxLedgerLimit
	}

	rows, err := s.db.Query(`
		SELECT id, ts, kind, amount, actor_id, from_user, to_user, correlation_id, note
		FROM movements
		WHERE actor_id = $1 OR from_user = $1 OR to_user = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query movements: %w", err)
	}
	defer rows.Close()

	movements := []models.Movement{}
	for rows.Next() {
		var m models.Movement
		if err := rows.Scan(&m.ID, &m.TS, &m.Kind, &m.Amount, &m.ActorID, &m.FromUser, &m.ToUser, &m.CorrelationID, &m.Note); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate movements: %w", err)
	}
	return movements, nil
}
