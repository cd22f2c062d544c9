package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

var (
	ErrPaybackCodeInvalid = &ShopError{KindNotFound, "PAYBACK_CODE_INVALID", "invalid or expired payback code"}
	ErrPaybackUnavailable = &ShopError{KindTransientIO, "PAYBACK_UNAVAILABLE", "payback codes need Redis"}
)

// PaybackTicket is what a payback QR code resolves to
type PaybackTicket struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Balance     int64  `json:"balance"`
}

// PaybackQR is a freshly issued code and its PNG rendering
type PaybackQR struct {
	Code      string    `json:"code"`
	Image     string    `json:"image"` // base64 PNG
	ExpiresAt time.Time `json:"expires_at"`
}

type QRService struct {
	db      *sql.DB
	redis   *redis.Client
	ledger  *LedgerService
	ttl     time.Duration
	newCode func() string
}

func NewQRService(db *sql.DB, redis *redis.Client, ledger *LedgerService, ttl time.Duration) *QRService {
	return &QRService{
		db:      db,
		redis:   redis,
		ledger:  ledger,
		ttl:     ttl,
		newCode: generateNonce,
	}
}

func paybackKey(code string) string {
	return fmt.Sprintf("payback:qr:%s", code)
}

// GeneratePaybackQR issues a short-lived code the payment tablet can scan to
// preselect the student's account.
func (s *QRService) GeneratePaybackQR(ctx context.Context, accountID string) (*PaybackQR, error) {
	if s.redis == nil {
		return nil, ErrPaybackUnavailable
	}

	account, err := s.ledger.getAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	ticket, err := json.Marshal(PaybackTicket{
		AccountID:   account.AccountID,
		DisplayName: account.DisplayName(),
		Balance:     account.Balance,
	})
	if err != nil {
		return nil, err
	}

	code := s.newCode()
	if err := s.redis.Set(ctx, paybackKey(code), ticket, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store payback code: %w", err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, err
	}

	return &PaybackQR{
		Code:      code,
		Image:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}, nil
}

// ResolvePaybackQR returns the ticket behind code. Codes are single use.
func (s *QRService) ResolvePaybackQR(ctx context.Context, code string) (*PaybackTicket, error) {
	if s.redis == nil {
		return nil, ErrPaybackUnavailable
	}

	// GETDEL so only one caller ever consumes a code
	data, err := s.redis.GetDel(ctx, paybackKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPaybackCodeInvalid
	}
	if err != nil {
		return nil, err
	}

	var ticket PaybackTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return nil, err
	}

	log.Info().Str("account_id", ticket.AccountID).Msg("[QR] Payback code consumed")

	return &ticket, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
