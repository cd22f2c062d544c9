package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapshop/backend/internal/models"
)

const getAccountQuery = "SELECT (.+) FROM accounts WHERE account_id = \\$1"

func TestQRService_GeneratePaybackQR(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewQRService(db, redisClient, NewLedgerService(db), 5*time.Minute)
	service.newCode = func() string { return "fixed-code" }
	ctx := context.Background()

	t.Run("stores ticket and renders png", func(t *testing.T) {
		mock.ExpectQuery(getAccountQuery).WithArgs("S100").
			WillReturnRows(accountRows("S100", 650, models.AccountStatusActive, 4))
		ticket, err := json.Marshal(PaybackTicket{AccountID: "S100", DisplayName: "Ada", Balance: 650})
		require.NoError(t, err)
		redisMock.ExpectSet("payback:qr:fixed-code", ticket, 5*time.Minute).SetVal("OK")

		qr, err := service.GeneratePaybackQR(ctx, "S100")
		require.NoError(t, err)
		assert.Equal(t, "fixed-code", qr.Code)

		png, err := base64.StdEncoding.DecodeString(qr.Image)
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), png[:4])
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("inactive account", func(t *testing.T) {
		mock.ExpectQuery(getAccountQuery).WithArgs("S200").
			WillReturnRows(accountRows("S200", 0, models.AccountStatusInactive, 1))

		_, err := service.GeneratePaybackQR(ctx, "S200")
		assert.ErrorIs(t, err, ErrAccountInactive)
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectQuery(getAccountQuery).WithArgs("S404").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

		_, err := service.GeneratePaybackQR(ctx, "S404")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQRService_ResolvePaybackQR(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	service := NewQRService(nil, redisClient, nil, 5*time.Minute)
	ctx := context.Background()

	t.Run("code is consumed", func(t *testing.T) {
		redisMock.ExpectGetDel("payback:qr:abc").SetVal(`{"account_id":"S100","display_name":"Ada","balance":650}`)

		ticket, err := service.ResolvePaybackQR(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "S100", ticket.AccountID)
		assert.Equal(t, int64(650), ticket.Balance)
	})

	t.Run("second use is rejected", func(t *testing.T) {
		redisMock.ExpectGetDel("payback:qr:abc").RedisNil()

		_, err := service.ResolvePaybackQR(ctx, "abc")
		assert.ErrorIs(t, err, ErrPaybackCodeInvalid)
	})

	assert.NoError(t, redisMock.ExpectationsWereMet())
}
