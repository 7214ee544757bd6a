package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/raspadita/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransferFixture(t *testing.T) (*TransferService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := NewRegistryService(db, nil)
	wallets := NewWalletService(db)
	ledger := NewLedgerService(db)
	return NewTransferService(db, registry, wallets, ledger), mock
}

func expectAccountLookup(mock sqlmock.Sqlmock, id, email string, role models.Role) {
	mock.ExpectQuery("SELECT id, email, role, created_at FROM accounts WHERE id =").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "created_at"}).
			AddRow(id, email, string(role), time.Now()))
}

func TestTransferService_Mint(t *testing.T) {
	admin := Actor{ID: "admin1", Role: models.RoleAdmin}

	t.Run("credits the target and writes one mint movement", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		expectAccountLookup(mock, "player1", "player1@example.com", models.RolePlayer)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("player1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("player1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WithArgs(models.KindMint, int64(5000), "admin1", nil, "player1", nil, "top-up by admin").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(1), time.Now()))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(5000)))
		mock.ExpectCommit()

		balance, err := service.Mint(context.Background(), admin, MintRequest{TargetID: "player1", Amount: 5000})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amounts before any lookup", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		for _, amount := range []int64{0, -100} {
			_, err := service.Mint(context.Background(), admin, MintRequest{TargetID: "player1", Amount: amount})
			assert.ErrorIs(t, err, ErrInvalidAmount)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("denies cashiers and players", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		for _, role := range []models.Role{models.RoleCashier, models.RolePlayer} {
			_, err := service.Mint(context.Background(), Actor{ID: "x", Role: role}, MintRequest{TargetID: "player1", Amount: 5000})
			assert.ErrorIs(t, err, ErrNotAuthorized)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown target", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		mock.ExpectQuery("SELECT id, email, role, created_at FROM accounts WHERE id =").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "created_at"}))

		_, err := service.Mint(context.Background(), admin, MintRequest{TargetID: "ghost", Amount: 5000})
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})
}

func TestTransferService_Transfer(t *testing.T) {
	cashier := Actor{ID: "cashier1", Role: models.RoleCashier}

	t.Run("moves both legs in one transaction with a shared correlation id", func(t *testing.T) {
		service, mock := newTransferFixture(t)
		corr := "6f5c1a52-68a9-4c3f-9f3a-2ac6fdc1b9aa"

		expectAccountLookup(mock, "player1", "player1@example.com", models.RolePlayer)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("cashier1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO wallets").WithArgs("player1").WillReturnResult(sqlmock.NewResult(0, 0))
		// cashier1 < player1, so the source row locks first
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("cashier1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(20000)))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(0)))
		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2`).
			WithArgs("cashier1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("player1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WithArgs(models.KindDebit, int64(5000), "cashier1", "cashier1", "player1", corr, "credit by cashier").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(10), time.Now()))
		mock.ExpectQuery("INSERT INTO movements").
			WithArgs(models.KindCredit, int64(5000), "cashier1", "cashier1", "player1", corr, "credit by cashier").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(11), time.Now()))
		mock.ExpectCommit()

		balance, err := service.Transfer(context.Background(), cashier, TransferRequest{
			FromID:        "cashier1",
			ToID:          "player1",
			Amount:        5000,
			CorrelationID: corr,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(15000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("locks rows in ascending id order regardless of direction", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		expectAccountLookup(mock, "aaa-player", "a@example.com", models.RolePlayer)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("zzz-cashier").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO wallets").WithArgs("aaa-player").WillReturnResult(sqlmock.NewResult(0, 0))
		// destination id sorts first, so it locks first even though it is the credit side
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("aaa-player").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(0)))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("zzz-cashier").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(8000)))
		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2`).
			WithArgs("zzz-cashier", int64(3000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("aaa-player", int64(3000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(20), time.Now()))
		mock.ExpectQuery("INSERT INTO movements").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(21), time.Now()))
		mock.ExpectCommit()

		balance, err := service.Transfer(context.Background(), Actor{ID: "zzz-cashier", Role: models.RoleCashier}, TransferRequest{
			FromID: "zzz-cashier",
			ToID:   "aaa-player",
			Amount: 3000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds rolls back without mutating either wallet", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		expectAccountLookup(mock, "player1", "player1@example.com", models.RolePlayer)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("cashier1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO wallets").WithArgs("player1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("cashier1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(1000)))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(0)))
		mock.ExpectRollback()

		_, err := service.Transfer(context.Background(), cashier, TransferRequest{
			FromID: "cashier1",
			ToID:   "player1",
			Amount: 5000,
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		// no UPDATE or INSERT ever reached the database
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("destination must be a player", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		expectAccountLookup(mock, "cashier2", "other@example.com", models.RoleCashier)

		_, err := service.Transfer(context.Background(), cashier, TransferRequest{
			FromID: "cashier1",
			ToID:   "cashier2",
			Amount: 5000,
		})
		assert.ErrorIs(t, err, ErrTargetNotEligible)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("players cannot transfer", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		_, err := service.Transfer(context.Background(), Actor{ID: "player1", Role: models.RolePlayer}, TransferRequest{
			FromID: "player1",
			ToID:   "player2",
			Amount: 100,
		})
		assert.ErrorIs(t, err, ErrNotAuthorized)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferService_Distribute(t *testing.T) {
	admin := Actor{ID: "admin1", Role: models.RoleAdmin}

	t.Run("keeps applied mints when a later one fails", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		// targets run in sorted id order: aaa-cashier first, then zzz-cashier
		expectAccountLookup(mock, "aaa-cashier", "a@example.com", models.RoleCashier)
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("aaa-cashier").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("aaa-cashier", int64(10000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(30), time.Now()))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("aaa-cashier").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(10000)))
		mock.ExpectCommit()

		mock.ExpectQuery("SELECT id, email, role, created_at FROM accounts WHERE id =").
			WithArgs("zzz-cashier").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "created_at"}))

		outcomes := service.Distribute(context.Background(), admin, map[string]int64{
			"zzz-cashier": 10000,
			"aaa-cashier": 10000,
		}, "float distribution")

		require.Len(t, outcomes, 2)
		assert.Equal(t, "aaa-cashier", outcomes[0].TargetID)
		assert.Equal(t, int64(10000), outcomes[0].Balance)
		assert.Empty(t, outcomes[0].Error)
		assert.Equal(t, "zzz-cashier", outcomes[1].TargetID)
		assert.Equal(t, ErrTargetNotFound.Error(), outcomes[1].Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferService_SettlePlay(t *testing.T) {
	t.Run("debits the ticket and credits the payout in one transaction", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("player1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(20000)))
		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2`).
			WithArgs("player1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WithArgs(models.KindDebit, int64(5000), "player1", "player1", nil, sqlmock.AnyArg(), "scratch ticket").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(40), time.Now()))
		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("player1", int64(3000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WithArgs(models.KindCredit, int64(3000), "player1", nil, "player1", sqlmock.AnyArg(), "🎉 ₲3.000").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(41), time.Now()))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(18000)))
		mock.ExpectCommit()

		balance, err := service.SettlePlay(context.Background(), "player1", 5000, 3000, "🎉 ₲3.000")
		require.NoError(t, err)
		assert.Equal(t, int64(18000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("a losing ticket writes only the debit leg", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("player1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(20000)))
		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2`).
			WithArgs("player1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO movements").
			WillReturnRows(sqlmock.NewRows([]string{"id", "ts"}).AddRow(int64(50), time.Now()))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(15000)))
		mock.ExpectCommit()

		balance, err := service.SettlePlay(context.Background(), "player1", 5000, 0, "")
		require.NoError(t, err)
		assert.Equal(t, int64(15000), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance rejects the ticket", func(t *testing.T) {
		service, mock := newTransferFixture(t)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO wallets").WithArgs("player1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT balance FROM wallets WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("player1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(int64(100)))
		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2`).
			WithArgs("player1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.SettlePlay(context.Background(), "player1", 5000, 0, "")
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
