package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vpnvault/backend/internal/models"
)

var accountColumns = []string{"id", "external_user_ref", "balance", "trial_consumed", "version", "created_at", "updated_at"}
var paymentColumns = []string{"id", "account_id", "amount", "external_ref", "status", "method", "created_at"}

func expectAccountFetch(dbmock sqlmock.Sqlmock, accountID, balance int64) {
	dbmock.ExpectQuery("SELECT id, external_user_ref, balance, trial_consumed, version, created_at, updated_at FROM accounts WHERE id = \\$1").
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountID, "tg_12345", balance, false, 1, time.Now(), time.Now()))
}

func TestPaymentService_Initiate(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	t.Run("provider payment created", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectAccountFetch(dbmock, 1, 0)

		provider.On("CreatePayment", mock.Anything, int64(20000), "top-up", mock.Anything).
			Return(&ProviderPayment{
				Ref:             "pay_abc123",
				Status:          ProviderStatusPending,
				Amount:          20000,
				ConfirmationURL: "https://provider.example/confirm/pay_abc123",
			}, nil)

		dbmock.ExpectExec("INSERT INTO payments").
			WithArgs(int64(1), int64(20000), "pay_abc123", models.PaymentPending, models.MethodProvider, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		result, err := service.Initiate(ctx, 1, 20000, "top-up")
		assert.NoError(t, err)
		assert.Equal(t, "pay_abc123", result.ExternalRef)
		assert.Equal(t, models.PaymentPending, result.Status)
		assert.Equal(t, models.MethodProvider, result.Method)
		assert.NotEmpty(t, result.ConfirmationURL)
		assert.NoError(t, dbmock.ExpectationsWereMet())
		provider.AssertExpectations(t)
	})

	t.Run("falls back to synthetic payment when provider is down", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectAccountFetch(dbmock, 1, 0)

		provider.On("CreatePayment", mock.Anything, int64(20000), "top-up", mock.Anything).
			Return(nil, errors.New("connection refused"))

		dbmock.ExpectBegin()
		dbmock.ExpectExec("INSERT INTO payments").
			WithArgs(int64(1), int64(20000), sqlmock.AnyArg(), models.PaymentSucceeded, models.MethodSynthetic, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbmock.ExpectQuery("SELECT id, balance, trial_consumed, version, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "trial_consumed", "version", "updated_at"}).
				AddRow(1, 0, false, 1, time.Now()))

		dbmock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(int64(1), int64(20000), EntryDeposit, sqlmock.AnyArg(), int64(20000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbmock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1").
			WithArgs(int64(20000), sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbmock.ExpectCommit()

		result, err := service.Initiate(ctx, 1, 20000, "top-up")
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentSucceeded, result.Status)
		assert.Equal(t, models.MethodSynthetic, result.Method)
		assert.Contains(t, result.ExternalRef, "synthetic_")
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		_, err := service.Initiate(ctx, 1, 0, "top-up")
		assert.Error(t, err)
		provider.AssertNotCalled(t, "CreatePayment")
	})
}

func TestPaymentService_Reconcile(t *testing.T) {
	db, dbmock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	expectPaymentFetch := func(status string) {
		dbmock.ExpectQuery("SELECT id, account_id, amount, external_ref, status, method, created_at FROM payments WHERE external_ref = \\$1").
			WithArgs("pay_abc123").
			WillReturnRows(sqlmock.NewRows(paymentColumns).
				AddRow(1, 1, 20000, "pay_abc123", status, models.MethodProvider, time.Now()))
	}

	t.Run("succeeded payment credits the account once", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectPaymentFetch(models.PaymentPending)

		provider.On("GetPaymentStatus", mock.Anything, "pay_abc123").
			Return(&ProviderPayment{Ref: "pay_abc123", Status: ProviderStatusSucceeded}, nil)

		dbmock.ExpectBegin()
		dbmock.ExpectExec("UPDATE payments SET status = \\$1, reconciled_at = \\$2 WHERE external_ref = \\$3 AND status = \\$4").
			WithArgs(models.PaymentSucceeded, sqlmock.AnyArg(), "pay_abc123", models.PaymentPending).
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbmock.ExpectQuery("SELECT id, balance, trial_consumed, version, updated_at FROM accounts WHERE id = \\$1 FOR UPDATE").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "trial_consumed", "version", "updated_at"}).
				AddRow(1, 0, false, 1, time.Now()))

		dbmock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(int64(1), int64(20000), EntryDeposit, "pay_abc123", int64(20000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbmock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1").
			WithArgs(int64(20000), sqlmock.AnyArg(), int64(1), 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		dbmock.ExpectCommit()

		result, err := service.Reconcile(ctx, "pay_abc123")
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentSucceeded, result.Status)
		assert.Equal(t, int64(20000), result.NewBalance)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("terminal payment is a no-op", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectPaymentFetch(models.PaymentSucceeded)
		expectAccountFetch(dbmock, 1, 20000)

		result, err := service.Reconcile(ctx, "pay_abc123")
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentSucceeded, result.Status)
		assert.Equal(t, int64(20000), result.NewBalance)
		provider.AssertNotCalled(t, "GetPaymentStatus")
	})

	t.Run("lost compare-and-set does not credit", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectPaymentFetch(models.PaymentPending)

		provider.On("GetPaymentStatus", mock.Anything, "pay_abc123").
			Return(&ProviderPayment{Ref: "pay_abc123", Status: ProviderStatusSucceeded}, nil)

		dbmock.ExpectBegin()
		dbmock.ExpectExec("UPDATE payments SET status = \\$1, reconciled_at = \\$2 WHERE external_ref = \\$3 AND status = \\$4").
			WithArgs(models.PaymentSucceeded, sqlmock.AnyArg(), "pay_abc123", models.PaymentPending).
			WillReturnResult(sqlmock.NewResult(1, 0)) // Another reconciliation got there first

		expectAccountFetch(dbmock, 1, 20000)
		dbmock.ExpectRollback()

		result, err := service.Reconcile(ctx, "pay_abc123")
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentSucceeded, result.Status)
		assert.Equal(t, int64(20000), result.NewBalance)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("failed payment never credits", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectPaymentFetch(models.PaymentPending)

		provider.On("GetPaymentStatus", mock.Anything, "pay_abc123").
			Return(&ProviderPayment{Ref: "pay_abc123", Status: ProviderStatusFailed}, nil)

		dbmock.ExpectExec("UPDATE payments SET status = \\$1, reconciled_at = \\$2 WHERE external_ref = \\$3 AND status = \\$4").
			WithArgs(models.PaymentFailed, sqlmock.AnyArg(), "pay_abc123", models.PaymentPending).
			WillReturnResult(sqlmock.NewResult(1, 1))

		expectAccountFetch(dbmock, 1, 0)

		result, err := service.Reconcile(ctx, "pay_abc123")
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentFailed, result.Status)
		assert.Equal(t, int64(0), result.NewBalance)
	})

	t.Run("failed report loses the race to a concurrent success", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		expectPaymentFetch(models.PaymentPending)

		provider.On("GetPaymentStatus", mock.Anything, "pay_abc123").
			Return(&ProviderPayment{Ref: "pay_abc123", Status: ProviderStatusFailed}, nil)

		// Another reconcile committed SUCCEEDED between our fetch and the CAS.
		dbmock.ExpectExec("UPDATE payments SET status = \\$1, reconciled_at = \\$2 WHERE external_ref = \\$3 AND status = \\$4").
			WithArgs(models.PaymentFailed, sqlmock.AnyArg(), "pay_abc123", models.PaymentPending).
			WillReturnResult(sqlmock.NewResult(0, 0))

		expectPaymentFetch(models.PaymentSucceeded)
		expectAccountFetch(dbmock, 1, 20000)

		result, err := service.Reconcile(ctx, "pay_abc123")
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentSucceeded, result.Status)
		assert.Equal(t, int64(20000), result.NewBalance)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("unknown payment reference", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		service := NewPaymentService(db, nil, provider, NewLedgerService(db))

		dbmock.ExpectQuery("SELECT id, account_id, amount, external_ref, status, method, created_at FROM payments WHERE external_ref = \\$1").
			WithArgs("pay_missing").
			WillReturnRows(sqlmock.NewRows(paymentColumns))

		_, err := service.Reconcile(ctx, "pay_missing")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("concurrent reconcile is rejected by the lock", func(t *testing.T) {
		provider := new(MockPaymentProvider)
		redisClient, redisMock := redismock.NewClientMock()
		service := NewPaymentService(db, redisClient, provider, NewLedgerService(db))

		redisMock.ExpectSetNX("reconcile:pay_abc123", 1, reconcileLockTTL).SetVal(false)

		_, err := service.Reconcile(ctx, "pay_abc123")
		assert.ErrorIs(t, err, ErrReconcileInProgress)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
