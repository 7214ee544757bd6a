package services

import (
	"database/sql"
	"fmt"

	"github.com/raspadita/backend/internal/models"
)

// WalletService owns the wallets table. Each wallet row is the unit of
// contention: every balance change goes through a single conditional UPDATE
// so two concurrent mutations on the same row cannot lose each other.
type WalletService struct {
	db *sql.DB
}

func NewWalletService(db *sql.DB) *WalletService {
	return &WalletService{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx, so wallet creation runs the
// same statement inside and outside a transaction.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// EnsureWallet lazily creates a wallet with balance 0. It is an upsert that
// never touches an existing balance.
func (s *WalletService) EnsureWallet(q execer, userID string) error {
	_, err := q.Exec(`
		INSERT INTO wallets (user_id, balance, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

// Ensure creates the wallet outside any transaction.
func (s *WalletService) Ensure(userID string) error {
	return s.EnsureWallet(s.db, userID)
}

// GetWallet returns the wallet for display. A missing row reads as a zero
// balance rather than an error, since wallets are created lazily.
func (s *WalletService) GetWallet(userID string) (*models.Wallet, error) {
	w := &models.Wallet{UserID: userID}
	err := s.db.QueryRow(`
		SELECT balance, initial_capital, updated_at
		FROM wallets
		WHERE user_id = $1`, userID).Scan(&w.Balance, &w.InitialCapital, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

func (s *WalletService) GetBalance(userID string) (int64, error) {
	w, err := s.GetWallet(userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// LockBalance locks the wallet row FOR UPDATE and returns the current
// balance. Callers locking two rows must lock them in ascending user id
// order to avoid deadlocks.
func (s *WalletService) LockBalance(tx *sql.Tx, userID string) (int64, error) {
	var balance int64
	err := tx.QueryRow(`
		SELECT balance
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

// Credit unconditionally increments the balance.
func (s *WalletService) Credit(tx *sql.Tx, userID string, amount int64) error {
	res, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE user_id = $1`, userID, amount)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTargetNotFound
	}
	return nil
}

// Debit decrements the balance only if it stays non-negative. Zero rows
// affected means the guard rejected the debit.
func (s *WalletService) Debit(tx *sql.Tx, userID string, amount int64) error {
	res, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1
		  AND balance >= $2`, userID, amount)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// SetBaseline stores the owner's display-only P&L reference. It has no
// effect on the balance.
func (s *WalletService) SetBaseline(userID string, value int64) error {
	res, err := s.db.Exec(`
		UPDATE wallets
		SET initial_capital = $2, updated_at = NOW()
		WHERE user_id = $1`, userID, value)
	if err != nil {
		return fmt.Errorf("set baseline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("baseline rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTargetNotFound
	}
	return nil
}

// AccountBalance is one row of the admin cashier-balances view.
type AccountBalance struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	Balance        int64  `json:"balance"`
	InitialCapital *int64 `json:"initial_capital,omitempty"`
}

// ListBalancesByRole joins accounts with their wallets for the console
// listings. Accounts without a wallet yet show a zero balance.
func (s *WalletService) ListBalancesByRole(role models.Role) ([]AccountBalance, error) {
	rows, err := s.db.Query(`
		SELECT a.id, a.email, a.role, COALESCE(w.balance, 0), w.initial_capital
		FROM accounts a
		LEFT JOIN wallets w ON w.user_id = a.id
		WHERE a.role = $1
		ORDER BY a.email`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.ID, &b.Email, &b.Role, &b.Balance, &b.InitialCapital); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return out, nil
}
