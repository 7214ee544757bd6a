package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletService_EnsureWallet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)

	t.Run("creates missing wallet", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("user1").
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, service.EnsureWallet(tx, "user1"))
	})

	t.Run("is a no-op for an existing wallet", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		// ON CONFLICT DO NOTHING reports zero affected rows
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("user1").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, service.EnsureWallet(tx, "user1"))
	})

	t.Run("runs outside a transaction too", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs("user2").
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, service.Ensure("user2"))
	})
}

func TestWalletService_Debit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)

	t.Run("applies when balance covers the amount", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2, updated_at = NOW\(\) WHERE user_id = \$1 AND balance >= \$2`).
			WithArgs("user1", int64(3000)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.Debit(tx, "user1", 3000))
	})

	t.Run("rejects when the guard matches no row", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE wallets SET balance = balance - \$2`).
			WithArgs("user1", int64(999999)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.Debit(tx, "user1", 999999)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})
}

func TestWalletService_Credit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)

	t.Run("increments the balance", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("user1", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.Credit(tx, "user1", 5000))
	})

	t.Run("fails when the wallet row is missing", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec(`UPDATE wallets SET balance = balance \+ \$2`).
			WithArgs("ghost", int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.Credit(tx, "ghost", 5000)
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})
}

func TestWalletService_GetWallet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)

	t.Run("existing wallet with baseline", func(t *testing.T) {
		baseline := int64(100000)
		mock.ExpectQuery("SELECT balance, initial_capital, updated_at FROM wallets").
			WithArgs("cashier1").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "initial_capital", "updated_at"}).
				AddRow(int64(250000), baseline, time.Now()))

		w, err := service.GetWallet("cashier1")
		require.NoError(t, err)
		assert.Equal(t, int64(250000), w.Balance)
		require.NotNil(t, w.InitialCapital)
		assert.Equal(t, baseline, *w.InitialCapital)
	})

	t.Run("missing wallet reads as zero", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance, initial_capital, updated_at FROM wallets").
			WithArgs("newuser").
			WillReturnRows(sqlmock.NewRows([]string{"balance", "initial_capital", "updated_at"}))

		w, err := service.GetWallet("newuser")
		require.NoError(t, err)
		assert.Equal(t, int64(0), w.Balance)
		assert.Nil(t, w.InitialCapital)
	})
}

func TestWalletService_SetBaseline(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db)

	t.Run("updates the baseline only", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wallets SET initial_capital = \$2`).
			WithArgs("cashier1", int64(150000)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, service.SetBaseline("cashier1", 150000))
	})

	t.Run("rejects for a missing wallet", func(t *testing.T) {
		mock.ExpectExec(`UPDATE wallets SET initial_capital = \$2`).
			WithArgs("ghost", int64(150000)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := service.SetBaseline("ghost", 150000)
		assert.ErrorIs(t, err, ErrTargetNotFound)
	})
}
