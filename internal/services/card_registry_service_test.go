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

const (
	lockCardQuery     = "SELECT (.+) FROM cards WHERE uid = \\$1 FOR UPDATE"
	accountExistQuery = "SELECT EXISTS \\(SELECT 1 FROM accounts WHERE account_id = \\$1\\)"
	otherLinkQuery    = "SELECT uid FROM cards WHERE linked_account_id = \\$1"
	updateCardQuery   = "UPDATE cards SET linked_account_id = \\$1, status = \\$2, updated_at = \\$3 WHERE id = \\$4 RETURNING"
)

var cardColumnNames = []string{"id", "uid", "linked_account_id", "status", "created_at", "updated_at"}

func cardRows(id int64, uid string, linked any, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(cardColumnNames).AddRow(id, uid, linked, status, now, now)
}

var testAdmin = models.AdminIdentity{ID: 2, Username: "jdoe", FullName: "Jane Doe"}

func TestCardRegistryService_Capture(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	audit, sink := newTestAudit()
	service := NewCardRegistryService(db, audit)
	ctx := context.Background()

	t.Run("new card is inserted unlinked", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO cards (.+) ON CONFLICT \\(uid\\) DO UPDATE").
			WithArgs("04a1b2c3", models.CardStatusActive, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(append(cardColumnNames, "inserted")).
				AddRow(1, "04a1b2c3", nil, models.CardStatusActive, now, now, true))

		card, err := service.Capture(ctx, "  04A1B2C3 ")
		require.NoError(t, err)
		assert.Equal(t, "04a1b2c3", card.UID)
		assert.False(t, card.IsLinked())

		audit.Wait()
		entries := sink.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, AuditCardCaptured, entries[0].Action)
	})

	t.Run("recapture refreshes without auditing", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("INSERT INTO cards").
			WithArgs("04a1b2c3", models.CardStatusActive, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(append(cardColumnNames, "inserted")).
				AddRow(1, "04a1b2c3", nil, models.CardStatusActive, now.Add(-time.Hour), now, false))

		_, err := service.Capture(ctx, "04a1b2c3")
		require.NoError(t, err)

		audit.Wait()
		assert.Len(t, sink.Entries(), 1)
	})

	t.Run("linked card is returned unchanged", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO cards").
			WillReturnRows(sqlmock.NewRows(append(cardColumnNames, "inserted")))
		mock.ExpectQuery("SELECT (.+) FROM cards WHERE uid = \\$1").
			WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", "S100", models.CardStatusActive))

		card, err := service.Capture(ctx, "04a1b2c3")
		require.NoError(t, err)
		assert.Equal(t, "S100", card.AccountID())
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRegistryService_Link(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	audit, sink := newTestAudit()
	service := NewCardRegistryService(db, audit)
	ctx := context.Background()

	t.Run("links captured card", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(otherLinkQuery).WithArgs("S100", models.CardStatusActive, "04a1b2c3").
			WillReturnRows(sqlmock.NewRows([]string{"uid"}))
		mock.ExpectQuery(updateCardQuery).WithArgs("S100", models.CardStatusActive, sqlmock.AnyArg(), 1).
			WillReturnRows(cardRows(1, "04a1b2c3", "S100", models.CardStatusActive))
		mock.ExpectCommit()

		card, err := service.Link(ctx, testAdmin, "04A1B2C3", "S100")
		require.NoError(t, err)
		assert.Equal(t, "S100", card.AccountID())

		audit.Wait()
		entries := sink.Entries()
		require.NotEmpty(t, entries)
		last := entries[len(entries)-1]
		assert.Equal(t, AuditCardLinked, last.Action)
		assert.Equal(t, "Jane Doe", last.ActorName)
		assert.Equal(t, "S100", *last.AffectedAccountID)
	})

	t.Run("unknown uid is inserted linked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("beef0001").
			WillReturnRows(sqlmock.NewRows(cardColumnNames))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(otherLinkQuery).
			WillReturnRows(sqlmock.NewRows([]string{"uid"}))
		mock.ExpectQuery("INSERT INTO cards \\(uid, linked_account_id, status, created_at, updated_at\\)").
			WithArgs("beef0001", "S100", models.CardStatusActive, sqlmock.AnyArg()).
			WillReturnRows(cardRows(2, "beef0001", "S100", models.CardStatusActive))
		mock.ExpectCommit()

		card, err := service.Link(ctx, testAdmin, "beef0001", "S100")
		require.NoError(t, err)
		assert.Equal(t, int64(2), card.ID)
	})

	t.Run("relinking to same account is a no-op", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", "S100", models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectCommit()

		card, err := service.Link(ctx, testAdmin, "04a1b2c3", "S100")
		require.NoError(t, err)
		assert.Equal(t, "S100", card.AccountID())
	})

	t.Run("account not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S999").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := service.Link(ctx, testAdmin, "04a1b2c3", "S999")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("linked to another account", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", "S200", models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := service.Link(ctx, testAdmin, "04a1b2c3", "S100")
		assert.ErrorIs(t, err, ErrAlreadyLinkedToOther)
	})

	t.Run("deactivated card", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusDeactivated))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := service.Link(ctx, testAdmin, "04a1b2c3", "S100")
		assert.ErrorIs(t, err, ErrCardDeactivated)
	})

	t.Run("account already has an active card", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(otherLinkQuery).
			WillReturnRows(sqlmock.NewRows([]string{"uid"}).AddRow("ffff0000"))
		mock.ExpectRollback()

		_, err := service.Link(ctx, testAdmin, "04a1b2c3", "S100")
		assert.ErrorIs(t, err, ErrDuplicateActiveLink)
	})

	t.Run("unique index race maps to duplicate link", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(otherLinkQuery).
			WillReturnRows(sqlmock.NewRows([]string{"uid"}))
		mock.ExpectQuery(updateCardQuery).
			WillReturnError(&pq.Error{Code: "23505", Constraint: oneActiveLinkIndex})
		mock.ExpectRollback()

		_, err := service.Link(ctx, testAdmin, "04a1b2c3", "S100")
		assert.ErrorIs(t, err, ErrDuplicateActiveLink)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRegistryService_UnlinkDeactivateReactivate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	audit, sink := newTestAudit()
	service := NewCardRegistryService(db, audit)
	ctx := context.Background()

	t.Run("unlink keeps card active", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", "S100", models.CardStatusActive))
		mock.ExpectQuery(updateCardQuery).WithArgs(nil, models.CardStatusActive, sqlmock.AnyArg(), 1).
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectCommit()

		card, err := service.Unlink(ctx, testAdmin, "04a1b2c3")
		require.NoError(t, err)
		assert.True(t, card.IsActive())
		assert.False(t, card.IsLinked())
	})

	t.Run("unlink of unlinked card", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectRollback()

		_, err := service.Unlink(ctx, testAdmin, "04a1b2c3")
		assert.ErrorIs(t, err, ErrCardNotLinked)
	})

	t.Run("unlink of unknown card", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("deadbeef").
			WillReturnRows(sqlmock.NewRows(cardColumnNames))
		mock.ExpectRollback()

		_, err := service.Unlink(ctx, testAdmin, "deadbeef")
		assert.ErrorIs(t, err, ErrCardNotFound)
	})

	t.Run("deactivate clears link", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", "S100", models.CardStatusActive))
		mock.ExpectQuery(updateCardQuery).WithArgs(nil, models.CardStatusDeactivated, sqlmock.AnyArg(), 1).
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusDeactivated))
		mock.ExpectCommit()

		card, err := service.Deactivate(ctx, testAdmin, "04a1b2c3")
		require.NoError(t, err)
		assert.False(t, card.IsActive())
	})

	t.Run("reactivate", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusDeactivated))
		mock.ExpectQuery(updateCardQuery).WithArgs(nil, models.CardStatusActive, sqlmock.AnyArg(), 1).
			WillReturnRows(cardRows(1, "04a1b2c3", nil, models.CardStatusActive))
		mock.ExpectCommit()

		card, err := service.Reactivate(ctx, testAdmin, "04a1b2c3")
		require.NoError(t, err)
		assert.True(t, card.IsActive())
	})

	audit.Wait()
	var actions []string
	for _, e := range sink.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{AuditCardUnlinked, AuditCardDeactivated, AuditCardReactivated}, actions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRegistryService_Handlers(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	audit, _ := newTestAudit()
	service := NewCardRegistryService(db, audit)

	router := chi.NewRouter()
	router.Post("/cards/{uid}/link", service.LinkCard)
	router.Get("/cards", service.ListCards)
	router.Get("/cards/captured", service.GetCapturedCard)

	t.Run("link conflict renders error code", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(lockCardQuery).WithArgs("04a1b2c3").
			WillReturnRows(cardRows(1, "04a1b2c3", "S200", models.CardStatusActive))
		mock.ExpectQuery(accountExistQuery).WithArgs("S100").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		body, _ := json.Marshal(LinkCardRequest{AccountID: "S100"})
		r := httptest.NewRequest(http.MethodPost, "/cards/04a1b2c3/link", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
		var resp ShopErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ALREADY_LINKED", resp.ErrorCode)
	})

	t.Run("link rejects missing account id", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/cards/04a1b2c3/link", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("link rejects short uid", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/cards/ab/link", bytes.NewBufferString(`{"account_id":"S100"}`))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list active cards", func(t *testing.T) {
		now := time.Now()
		mock.ExpectQuery("SELECT (.+) FROM cards WHERE status = \\$1 ORDER BY updated_at DESC").
			WithArgs(models.CardStatusActive).
			WillReturnRows(sqlmock.NewRows(cardColumnNames).
				AddRow(1, "04a1b2c3", "S100", models.CardStatusActive, now, now).
				AddRow(2, "beef0001", nil, models.CardStatusActive, now, now))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cards", nil))

		require.Equal(t, http.StatusOK, w.Code)
		var views []models.CardView
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
		require.Len(t, views, 2)
		assert.Equal(t, "S100", *views[0].LinkedAccountID)
		assert.Nil(t, views[1].LinkedAccountID)
	})

	t.Run("no captured card", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM cards WHERE status = \\$1 AND linked_account_id IS NULL").
			WillReturnRows(sqlmock.NewRows(cardColumnNames))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cards/captured", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
