package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/models"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Audit actions
const (
	AuditCardCaptured      = "CARD_CAPTURED"
	AuditCardLinked        = "CARD_LINKED"
	AuditCardUnlinked      = "CARD_UNLINKED"
	AuditCardDeactivated   = "CARD_DEACTIVATED"
	AuditCardReactivated   = "CARD_REACTIVATED"
	AuditAccountCreated    = "ACCOUNT_CREATED"
	AuditShelfPriceUpdated = "SHELF_PRICE_UPDATED"
	AuditSettingUpdated    = "SETTING_UPDATED"
	AuditPaymentRecorded   = "PAYMENT_RECORDED"
)

// AuditSink persists audit entries
type AuditSink interface {
	Append(ctx context.Context, entry models.AuditLogEntry) error
}

// PostgresAuditSink appends to the audit_logs table
type PostgresAuditSink struct {
	db *sql.DB
}

func NewPostgresAuditSink(db *sql.DB) *PostgresAuditSink {
	return &PostgresAuditSink{db: db}
}

func (s *PostgresAuditSink) Append(ctx context.Context, entry models.AuditLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, actor_name, action, target, affected_account_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ActorID, entry.ActorName, entry.Action, entry.Target, entry.AffectedAccountID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// MongoAuditSink appends to the audit_logs collection
type MongoAuditSink struct {
	collection *mongo.Collection
}

func NewMongoAuditSink(client *mongo.Client, dbName string) *MongoAuditSink {
	return &MongoAuditSink{collection: client.Database(dbName).Collection("audit_logs")}
}

func (s *MongoAuditSink) Append(ctx context.Context, entry models.AuditLogEntry) error {
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// AuditEmitter records admin mutations off the request path. A failed append
// is logged and never reaches the caller.
type AuditEmitter struct {
	sink    AuditSink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAuditEmitter(sink AuditSink, timeout time.Duration) *AuditEmitter {
	return &AuditEmitter{sink: sink, timeout: timeout}
}

// Record appends one entry asynchronously
func (a *AuditEmitter) Record(actor models.AdminIdentity, action, target string, affectedAccountID *string) {
	entry := models.AuditLogEntry{
		ActorID:           strconv.FormatInt(actor.ID, 10),
		ActorName:         actor.FullName,
		Action:            action,
		Target:            target,
		AffectedAccountID: affectedAccountID,
		CreatedAt:         time.Now().UTC(),
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.sink.Append(ctx, entry); err != nil {
			log.Error().Err(err).
				Str("action", entry.Action).
				Str("target", entry.Target).
				Msg("[AUDIT] Failed to record audit entry")
			return
		}
		log.Debug().Str("action", entry.Action).Str("target", entry.Target).Msg("[AUDIT] Recorded")
	}()
}

// Wait blocks until every pending entry has been written or given up on
func (a *AuditEmitter) Wait() {
	a.wg.Wait()
}
