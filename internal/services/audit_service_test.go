package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tapshop/backend/internal/models"
)

func TestAuditEmitter_Record(t *testing.T) {
	admin := models.AdminIdentity{ID: 7, Username: "jdoe", FullName: "Jane Doe"}

	t.Run("entry reaches sink", func(t *testing.T) {
		emitter, sink := newTestAudit()
		accountID := "S100"

		emitter.Record(admin, AuditCardLinked, "04a1b2", &accountID)
		emitter.Wait()

		entries := sink.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "7", entries[0].ActorID)
		assert.Equal(t, "Jane Doe", entries[0].ActorName)
		assert.Equal(t, AuditCardLinked, entries[0].Action)
		assert.Equal(t, "04a1b2", entries[0].Target)
		require.NotNil(t, entries[0].AffectedAccountID)
		assert.Equal(t, "S100", *entries[0].AffectedAccountID)
	})

	t.Run("sink failure is swallowed", func(t *testing.T) {
		sink := &MockAuditSink{}
		sink.On("Append", AuditCardUnlinked, "04a1b2").Return(errors.New("disk full"))
		emitter := NewAuditEmitter(sink, defaultTestTimeout)

		assert.NotPanics(t, func() {
			emitter.Record(admin, AuditCardUnlinked, "04a1b2", nil)
			emitter.Wait()
		})
		sink.AssertExpectations(t)
	})
}

func TestPostgresAuditSink_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink := NewPostgresAuditSink(db)
	now := time.Now()

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs("7", "Jane Doe", AuditSettingUpdated, "max_debt_limit", nil, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = sink.Append(context.Background(), models.AuditLogEntry{
		ActorID:   "7",
		ActorName: "Jane Doe",
		Action:    AuditSettingUpdated,
		Target:    "max_debt_limit",
		CreatedAt: now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
