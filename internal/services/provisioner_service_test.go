package services

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/vpnvault/backend/internal/models"
)

func TestProvisionerService_Issue(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt succeeds", func(t *testing.T) {
		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(nil, keyProvider)

		keyProvider.On("CreateKey", mock.Anything, "tg_12345-1month", int64(0)).
			Return(&RemoteKey{ID: "7", AccessURL: "ss://real-key"}, nil).Once()

		issued := service.Issue(ctx, "tg_12345-1month", 0)
		assert.True(t, issued.Provisioned)
		assert.Equal(t, "7", issued.ExternalKeyRef)
		assert.Equal(t, "ss://real-key", issued.AccessSecret)
		keyProvider.AssertExpectations(t)
	})

	t.Run("retry succeeds after transient failure", func(t *testing.T) {
		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(nil, keyProvider)

		keyProvider.On("CreateKey", mock.Anything, "tg_12345-1month", int64(0)).
			Return(nil, errors.New("timeout")).Once()
		keyProvider.On("CreateKey", mock.Anything, "tg_12345-1month", int64(0)).
			Return(&RemoteKey{ID: "8", AccessURL: "ss://real-key"}, nil).Once()

		issued := service.Issue(ctx, "tg_12345-1month", 0)
		assert.True(t, issued.Provisioned)
		assert.Equal(t, "8", issued.ExternalKeyRef)
		keyProvider.AssertExpectations(t)
	})

	t.Run("persistent failure yields placeholder", func(t *testing.T) {
		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(nil, keyProvider)

		keyProvider.On("CreateKey", mock.Anything, "tg_12345-1month", int64(0)).
			Return(nil, errors.New("unreachable")).Twice()

		issued := service.Issue(ctx, "tg_12345-1month", 0)
		assert.False(t, issued.Provisioned)
		assert.Contains(t, issued.ExternalKeyRef, "local_")
		assert.Contains(t, issued.AccessSecret, "ss://chacha20-ietf-poly1305:")
		assert.Contains(t, issued.AccessSecret, "#tg_12345-1month")
		keyProvider.AssertExpectations(t)
	})

	t.Run("passes data limit through", func(t *testing.T) {
		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(nil, keyProvider)

		keyProvider.On("CreateKey", mock.Anything, "tg_12345-trial", int64(5368709120)).
			Return(&RemoteKey{ID: "9", AccessURL: "ss://trial-key"}, nil).Once()

		issued := service.Issue(ctx, "tg_12345-trial", 5368709120)
		assert.True(t, issued.Provisioned)
		keyProvider.AssertExpectations(t)
	})
}

func TestProvisionerService_Revoke(t *testing.T) {
	t.Run("delete failure is swallowed", func(t *testing.T) {
		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(nil, keyProvider)

		keyProvider.On("DeleteKey", mock.Anything, "7").
			Return(errors.New("unreachable"))

		service.Revoke(context.Background(), "7")
		keyProvider.AssertExpectations(t)
	})
}

func TestProvisionerService_SyncProvisioned(t *testing.T) {
	placeholderColumns := []string{"id", "external_user_ref", "tariff_id"}

	t.Run("adopts existing remote key by name", func(t *testing.T) {
		db, dbmock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(db, keyProvider)

		keyProvider.On("ListKeys", mock.Anything).
			Return([]RemoteKey{{ID: "7", Name: "tg_12345-1month", AccessURL: "ss://real-key"}}, nil)

		dbmock.ExpectQuery("SELECT k.id, a.external_user_ref, s.tariff_id FROM access_keys k").
			WillReturnRows(sqlmock.NewRows(placeholderColumns).AddRow(20, "tg_12345", "1month"))

		dbmock.ExpectExec("UPDATE access_keys SET provisioned = TRUE, external_key_ref = \\$1, access_secret = \\$2 WHERE id = \\$3 AND provisioned = FALSE").
			WithArgs("7", "ss://real-key", int64(20)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		repaired, err := service.SyncProvisioned(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, repaired)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})

	t.Run("creates missing remote key", func(t *testing.T) {
		db, dbmock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(db, keyProvider)

		keyProvider.On("ListKeys", mock.Anything).Return([]RemoteKey{}, nil)
		keyProvider.On("CreateKey", mock.Anything, "tg_12345-1month", int64(0)).
			Return(&RemoteKey{ID: "11", AccessURL: "ss://new-key"}, nil)

		dbmock.ExpectQuery("SELECT k.id, a.external_user_ref, s.tariff_id FROM access_keys k").
			WillReturnRows(sqlmock.NewRows(placeholderColumns).AddRow(21, "tg_12345", "1month"))

		dbmock.ExpectExec("UPDATE access_keys SET provisioned = TRUE").
			WithArgs("11", "ss://new-key", int64(21)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		repaired, err := service.SyncProvisioned(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, repaired)
		keyProvider.AssertExpectations(t)
	})

	t.Run("created key carries the tariff data limit", func(t *testing.T) {
		db, dbmock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(db, keyProvider,
			models.Tariff{ID: "trial", DataLimitBytes: 5 * 1024 * 1024 * 1024, IsTrial: true})

		keyProvider.On("ListKeys", mock.Anything).Return([]RemoteKey{}, nil)
		keyProvider.On("CreateKey", mock.Anything, "tg_12345-trial", int64(5368709120)).
			Return(&RemoteKey{ID: "12", AccessURL: "ss://trial-key"}, nil)

		dbmock.ExpectQuery("SELECT k.id, a.external_user_ref, s.tariff_id FROM access_keys k").
			WillReturnRows(sqlmock.NewRows(placeholderColumns).AddRow(23, "tg_12345", "trial"))

		dbmock.ExpectExec("UPDATE access_keys SET provisioned = TRUE").
			WithArgs("12", "ss://trial-key", int64(23)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		repaired, err := service.SyncProvisioned(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 1, repaired)
		keyProvider.AssertExpectations(t)
	})

	t.Run("skips rows the key service still cannot serve", func(t *testing.T) {
		db, dbmock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		keyProvider := new(MockKeyProvider)
		service := newTestProvisioner(db, keyProvider)

		keyProvider.On("ListKeys", mock.Anything).Return([]RemoteKey{}, nil)
		keyProvider.On("CreateKey", mock.Anything, "tg_12345-1month", int64(0)).
			Return(nil, errors.New("still down"))

		dbmock.ExpectQuery("SELECT k.id, a.external_user_ref, s.tariff_id FROM access_keys k").
			WillReturnRows(sqlmock.NewRows(placeholderColumns).AddRow(22, "tg_12345", "1month"))

		repaired, err := service.SyncProvisioned(context.Background())
		assert.NoError(t, err)
		assert.Equal(t, 0, repaired)
		assert.NoError(t, dbmock.ExpectationsWereMet())
	})
}
