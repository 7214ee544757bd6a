package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"
	"github.com/raspadita/backend/internal/models"
)

// Actor is the resolved principal on whose authority a value movement runs.
type Actor struct {
	ID   string
	Role models.Role
}

// TransferService is the only writer of wallet balances and ledger rows.
// Every operation validates against the role policy first, then mutates the
// wallet store and appends to the ledger inside a single database
// transaction.
type TransferService struct {
	db       *sql.DB
	registry *RegistryService
	wallets  *WalletService
	ledger   *LedgerService
}

func NewTransferService(db *sql.DB, registry *RegistryService, wallets *WalletService, ledger *LedgerService) *TransferService {
	return &TransferService{
		db:       db,
		registry: registry,
		wallets:  wallets,
		ledger:   ledger,
	}
}

type MintRequest struct {
	TargetID      string
	Amount        int64
	Note          string
	CorrelationID string // optional idempotency key supplied by the client
}

// Mint creates currency on the target wallet and audits it with one ledger
// row. Returns the target's new balance.
func (s *TransferService) Mint(ctx context.Context, actor Actor, req MintRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !Allowed(actor.Role, OpMint) {
		return 0, ErrNotAuthorized
	}

	target, err := s.registry.FindByID(req.TargetID)
	if err == ErrAccountNotFound {
		return 0, ErrTargetNotFound
	}
	if err != nil {
		return 0, err
	}

	note := req.Note
	if note == "" {
		note = "top-up by admin"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin mint tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.wallets.EnsureWallet(tx, target.ID); err != nil {
		return 0, err
	}
	if err := s.wallets.Credit(tx, target.ID, req.Amount); err != nil {
		return 0, err
	}

	movement := &models.Movement{
		Kind:    models.KindMint,
		Amount:  req.Amount,
		ActorID: actor.ID,
		ToUser:  &target.ID,
		Note:    note,
	}
	if req.CorrelationID != "" {
		movement.CorrelationID = &req.CorrelationID
	}
	if err := s.ledger.Append(tx, movement); err != nil {
		return 0, err
	}

	newBalance, err := s.wallets.LockBalance(tx, target.ID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit mint tx: %w", err)
	}

	log.Printf("[TRANSFER] Mint of %d to %s by %s", req.Amount, target.ID, actor.ID)
	return newBalance, nil
}

type TransferRequest struct {
	FromID        string
	ToID          string
	Amount        int64
	Note          string
	CorrelationID string // optional idempotency key supplied by the client
}

// Transfer moves existing currency between two wallets as a single unit:
// both legs commit or neither does. The destination must be a player
// account; a cashier cannot route balance to another cashier or an admin
// through this path. Returns the source's new balance.
func (s *TransferService) Transfer(ctx context.Context, actor Actor, req TransferRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !Allowed(actor.Role, OpTransfer) {
		return 0, ErrNotAuthorized
	}

	dest, err := s.registry.FindByID(req.ToID)
	if err == ErrAccountNotFound {
		return 0, ErrTargetNotFound
	}
	if err != nil {
		return 0, err
	}
	if dest.Role != models.RolePlayer {
		return 0, ErrTargetNotEligible
	}

	note := req.Note
	if note == "" {
		note = "credit by cashier"
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.wallets.EnsureWallet(tx, req.FromID); err != nil {
		return 0, err
	}
	if err := s.wallets.EnsureWallet(tx, req.ToID); err != nil {
		return 0, err
	}

	// Lock both rows in ascending id order to prevent deadlocks between
	// opposing transfers.
	firstLock, secondLock := req.FromID, req.ToID
	if firstLock > secondLock {
		firstLock, secondLock = secondLock, firstLock
	}
	firstBalance, err := s.wallets.LockBalance(tx, firstLock)
	if err != nil {
		return 0, err
	}
	secondBalance, err := s.wallets.LockBalance(tx, secondLock)
	if err != nil {
		return 0, err
	}
	fromBalance := firstBalance
	if firstLock != req.FromID {
		fromBalance = secondBalance
	}

	if fromBalance < req.Amount {
		return 0, ErrInsufficientFunds
	}

	if err := s.wallets.Debit(tx, req.FromID, req.Amount); err != nil {
		return 0, err
	}
	if err := s.wallets.Credit(tx, req.ToID, req.Amount); err != nil {
		return 0, err
	}

	fromID, toID := req.FromID, req.ToID
	debit := &models.Movement{
		Kind:          models.KindDebit,
		Amount:        req.Amount,
		ActorID:       actor.ID,
		FromUser:      &fromID,
		ToUser:        &toID,
		CorrelationID: &correlationID,
		Note:          note,
	}
	if err := s.ledger.Append(tx, debit); err != nil {
		return 0, err
	}
	credit := &models.Movement{
		Kind:          models.KindCredit,
		Amount:        req.Amount,
		ActorID:       actor.ID,
		FromUser:      &fromID,
		ToUser:        &toID,
		CorrelationID: &correlationID,
		Note:          note,
	}
	if err := s.ledger.Append(tx, credit); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transfer tx: %w", err)
	}

	log.Printf("[TRANSFER] Transfer of %d from %s to %s by %s", req.Amount, req.FromID, req.ToID, actor.ID)
	return fromBalance - req.Amount, nil
}

// DistributeOutcome reports one recipient of a Distribute call.
type DistributeOutcome struct {
	TargetID string `json:"target_id"`
	Balance  int64  `json:"balance,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Distribute runs one independent Mint per recipient. Best effort: a failed
// mint does not roll back the ones already applied, and the outcome records
// who succeeded. Recipients are processed in sorted id order so failures are
// reproducible.
func (s *TransferService) Distribute(ctx context.Context, actor Actor, amounts map[string]int64, note string) []DistributeOutcome {
	targets := make([]string, 0, len(amounts))
	for id := range amounts {
		targets = append(targets, id)
	}
	sort.Strings(targets)

	outcomes := make([]DistributeOutcome, 0, len(targets))
	for _, id := range targets {
		balance, err := s.Mint(ctx, actor, MintRequest{TargetID: id, Amount: amounts[id], Note: note})
		if err != nil {
			log.Printf("[TRANSFER] Distribute mint to %s failed: %v", id, err)
			outcomes = append(outcomes, DistributeOutcome{TargetID: id, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, DistributeOutcome{TargetID: id, Balance: balance})
	}
	return outcomes
}

// SettlePlay settles one scratch-ticket play for a player: the ticket price
// is debited and any payout credited in a single transaction, with one
// ledger row per leg. Returns the player's new balance.
func (s *TransferService) SettlePlay(ctx context.Context, playerID string, ticketPrice, payout int64, label string) (int64, error) {
	if ticketPrice <= 0 || payout < 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin play tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.wallets.EnsureWallet(tx, playerID); err != nil {
		return 0, err
	}
	if _, err := s.wallets.LockBalance(tx, playerID); err != nil {
		return 0, err
	}
	if err := s.wallets.Debit(tx, playerID, ticketPrice); err != nil {
		return 0, err
	}

	correlationID := uuid.NewString()
	ticket := &models.Movement{
		Kind:          models.KindDebit,
		Amount:        ticketPrice,
		ActorID:       playerID,
		FromUser:      &playerID,
		CorrelationID: &correlationID,
		Note:          "scratch ticket",
	}
	if err := s.ledger.Append(tx, ticket); err != nil {
		return 0, err
	}

	if payout > 0 {
		if err := s.wallets.Credit(tx, playerID, payout); err != nil {
			return 0, err
		}
		prize := &models.Movement{
			Kind:          models.KindCredit,
			Amount:        payout,
			ActorID:       playerID,
			ToUser:        &playerID,
			CorrelationID: &correlationID,
			Note:          label,
		}
		if err := s.ledger.Append(tx, prize); err != nil {
			return 0, err
		}
	}

	newBalance, err := s.wallets.LockBalance(tx, playerID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit play tx: %w", err)
	}
	return newBalance, nil
}
