package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/models"
)

const paymentColumns = `id, reference, account_id, amount, status, idempotency_key, created_at`

// IdempotencyGuard deduplicates payment retries. The payments unique
// constraint is authoritative; Redis only short-circuits replays and any
// Redis failure falls through to the database.
type IdempotencyGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

type cachedPayment struct {
	ID        int64     `json:"id"`
	Reference string    `json:"reference"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Key       string    `json:"idempotency_key"`
	CreatedAt time.Time `json:"created_at"`
}

func NewIdempotencyGuard(redisClient *redis.Client, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{redis: redisClient, ttl: ttl}
}

func idempotencyCacheKey(key string) string {
	return "payment:idem:" + key
}

// CheckAndReserve returns the payment already committed under key, or nil
// when the caller may proceed. An empty key disables deduplication.
func (g *IdempotencyGuard) CheckAndReserve(ctx context.Context, q querier, key string) (*models.Payment, error) {
	if key == "" {
		return nil, nil
	}

	if payment := g.lookupCache(ctx, key); payment != nil {
		return payment, nil
	}

	payment, err := findPaymentByKey(ctx, q, key)
	if err != nil || payment == nil {
		return nil, err
	}

	g.Remember(ctx, payment)
	return payment, nil
}

func (g *IdempotencyGuard) lookupCache(ctx context.Context, key string) *models.Payment {
	if g.redis == nil {
		return nil
	}

	raw, err := g.redis.Get(ctx, idempotencyCacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("[PAYMENTS] Idempotency cache unavailable, falling back to database")
		return nil
	}

	var cached cachedPayment
	if err := json.Unmarshal(raw, &cached); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("[PAYMENTS] Discarding corrupt idempotency cache entry")
		return nil
	}

	return &models.Payment{
		ID:             cached.ID,
		Reference:      cached.Reference,
		AccountID:      cached.AccountID,
		Amount:         cached.Amount,
		Status:         cached.Status,
		IdempotencyKey: sql.NullString{String: cached.Key, Valid: true},
		CreatedAt:      cached.CreatedAt,
	}
}

// Remember caches a committed payment for fast replay
func (g *IdempotencyGuard) Remember(ctx context.Context, payment *models.Payment) {
	if g.redis == nil || !payment.IdempotencyKey.Valid {
		return
	}

	data, err := json.Marshal(cachedPayment{
		ID:        payment.ID,
		Reference: payment.Reference,
		AccountID: payment.AccountID,
		Amount:    payment.Amount,
		Status:    payment.Status,
		Key:       payment.IdempotencyKey.String,
		CreatedAt: payment.CreatedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("[PAYMENTS] Failed to encode idempotency cache entry")
		return
	}

	if err := g.redis.Set(ctx, idempotencyCacheKey(payment.IdempotencyKey.String), data, g.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("[PAYMENTS] Failed to cache payment")
	}
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	if err := row.Scan(&p.ID, &p.Reference, &p.AccountID, &p.Amount, &p.Status, &p.IdempotencyKey, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func findPaymentByKey(ctx context.Context, q querier, key string) (*models.Payment, error) {
	payment, err := scanPayment(q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	return payment, nil
}
