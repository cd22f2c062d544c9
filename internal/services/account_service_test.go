package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapshop/backend/internal/models"
)

const insertAccountQuery = "INSERT INTO accounts (.+) RETURNING"

func TestAccountService_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	audit, sink := newTestAudit()
	service := NewAccountService(db, audit)
	ctx := context.Background()

	t.Run("new account starts at zero", func(t *testing.T) {
		mock.ExpectQuery(insertAccountQuery).
			WithArgs("S100", "Ada", "Obi", models.AccountStatusActive, sqlmock.AnyArg()).
			WillReturnRows(accountRows("S100", 0, models.AccountStatusActive, 1))

		account, err := service.Create(ctx, testAdmin, CreateAccountRequest{AccountID: "S100", FirstName: "Ada", LastName: "Obi"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), account.Balance)

		audit.Wait()
		entries := sink.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, AuditAccountCreated, entries[0].Action)
		require.NotNil(t, entries[0].AffectedAccountID)
		assert.Equal(t, "S100", *entries[0].AffectedAccountID)
	})

	t.Run("duplicate id", func(t *testing.T) {
		mock.ExpectQuery(insertAccountQuery).WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_pkey"})

		_, err := service.Create(ctx, testAdmin, CreateAccountRequest{AccountID: "S100", FirstName: "Ada", LastName: "Obi"})
		assert.ErrorIs(t, err, ErrAccountExists)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountService_Handlers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	audit, _ := newTestAudit()
	service := NewAccountService(db, audit)

	router := chi.NewRouter()
	router.Post("/accounts", service.CreateAccount)
	router.Get("/accounts", service.ListAccounts)
	router.Get("/accounts/{id}", service.GetAccount)

	t.Run("create", func(t *testing.T) {
		mock.ExpectQuery(insertAccountQuery).WillReturnRows(accountRows("S200", 0, models.AccountStatusActive, 1))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/accounts",
			bytes.NewBufferString(`{"account_id":"S200","first_name":"Ada","last_name":"Obi"}`)))

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("create conflict", func(t *testing.T) {
		mock.ExpectQuery(insertAccountQuery).WillReturnError(&pq.Error{Code: "23505"})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/accounts",
			bytes.NewBufferString(`{"account_id":"S200","first_name":"Ada","last_name":"Obi"}`)))

		assert.Equal(t, http.StatusConflict, w.Code)
		var resp ShopErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ACCOUNT_EXISTS", resp.ErrorCode)
	})

	t.Run("create missing name", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/accounts", bytes.NewBufferString(`{"account_id":"S200"}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE account_id = \\$1").WithArgs("S100").
			WillReturnRows(accountRows("S100", 450, models.AccountStatusActive, 3))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/S100", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var account models.Account
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &account))
		assert.Equal(t, int64(450), account.Balance)
	})

	t.Run("get unknown", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE account_id = \\$1").WithArgs("S404").
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts/S404", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM accounts ORDER BY account_id").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "first_name", "last_name", "balance", "status", "version", "created_at", "updated_at"}).
				AddRow("S100", "Ada", "Obi", 450, models.AccountStatusActive, 3, now, now).
				AddRow("S200", "Bo", "Eze", 0, models.AccountStatusActive, 1, now, now))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/accounts", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var accounts []models.Account
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accounts))
		assert.Len(t, accounts, 2)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
