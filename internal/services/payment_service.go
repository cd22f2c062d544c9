package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/models"
)

type PaymentService struct {
	db        *sql.DB
	ledger    *LedgerService
	guard     *IdempotencyGuard
	audit     *AuditEmitter
	validator *ValidationHelper
}

// PaymentRequest represents a debt payback
type PaymentRequest struct {
	AccountID      string `json:"account_id" validate:"required,max=64" example:"S1234567"`
	Amount         int64  `json:"amount" validate:"required,gt=0" example:"500"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,max=128" example:"6f1c2a10-tablet-001"`
	AutoCap        bool   `json:"auto_cap,omitempty"`
}

// PaymentResponse represents a recorded payment
type PaymentResponse struct {
	Status     string             `json:"status" example:"success"`
	Payment    models.PaymentView `json:"payment"`
	NewBalance *int64             `json:"new_balance,omitempty"`
}

// PaymentResult is the outcome of RecordPayment
type PaymentResult struct {
	Payment    *models.Payment
	Replayed   bool
	NewBalance int64
}

func NewPaymentService(db *sql.DB, ledger *LedgerService, guard *IdempotencyGuard, audit *AuditEmitter) *PaymentService {
	return &PaymentService{
		db:        db,
		ledger:    ledger,
		guard:     guard,
		audit:     audit,
		validator: NewValidationHelper(),
	}
}

// RecordPayment reduces an account's debt. A retry with an idempotency key
// that already committed returns the original payment and changes nothing.
func (s *PaymentService) RecordPayment(ctx context.Context, actor models.AdminIdentity, req PaymentRequest) (*PaymentResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	existing, err := s.guard.CheckAndReserve(ctx, s.db, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info().Str("reference", existing.Reference).Msg("[PAYMENTS] Idempotent replay")
		return &PaymentResult{Payment: existing, Replayed: true}, nil
	}

	key := sql.NullString{String: req.IdempotencyKey, Valid: req.IdempotencyKey != ""}
	now := time.Now().UTC()

	var (
		payment *models.Payment
		account *models.Account
		winner  *models.Payment
	)
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		account, err = s.ledger.lockAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}

		// A same-key retry that committed while we waited for the row lock
		// has already moved the balance.
		if key.Valid {
			winner, err = findPaymentByKey(ctx, tx, key.String)
			if err != nil || winner != nil {
				return err
			}
		}

		amount := req.Amount
		if req.AutoCap {
			if account.Balance == 0 {
				return ErrNothingToPay
			}
			amount = CapPayment(account.Balance, amount)
		}

		payment, err = s.ledger.CommitPayment(ctx, tx, account, amount, key, now)
		return err
	})
	if errors.Is(err, errPaymentKeyTaken) {
		winner, err := findPaymentByKey(ctx, s.db, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, fmt.Errorf("payment for idempotency key %q vanished", req.IdempotencyKey)
		}
		s.guard.Remember(ctx, winner)
		log.Info().Str("reference", winner.Reference).Msg("[PAYMENTS] Lost idempotency race, replaying winner")
		return &PaymentResult{Payment: winner, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if winner != nil {
		s.guard.Remember(ctx, winner)
		log.Info().Str("reference", winner.Reference).Msg("[PAYMENTS] Key committed while waiting for lock, replaying")
		return &PaymentResult{Payment: winner, Replayed: true}, nil
	}

	s.guard.Remember(ctx, payment)
	s.audit.Record(actor, AuditPaymentRecorded, payment.Reference, &payment.AccountID)

	log.Info().
		Str("account_id", payment.AccountID).
		Int64("amount", payment.Amount).
		Int64("new_balance", account.Balance).
		Msg("[PAYMENTS] Payment committed")

	return &PaymentResult{Payment: payment, NewBalance: account.Balance}, nil
}

// GetByReference returns the payment with the given reference
func (s *PaymentService) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	payment, err := scanPayment(s.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE reference::text = $1`, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return payment, nil
}

// CreatePayment records a debt payback
// @Summary Record payment
// @Description Reduce a student's debt. Retries with the same idempotency key return the original payment.
// @Tags payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key, used when the body has none"
// @Param request body PaymentRequest true "Payment"
// @Success 201 {object} PaymentResponse "Payment recorded"
// @Success 200 {object} PaymentResponse "Idempotent replay"
// @Failure 400 {object} ShopErrorResponse
// @Failure 404 {object} ShopErrorResponse
// @Router /payments [post]
func (s *PaymentService) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := s.RecordPayment(r.Context(), actorFrom(r), req)
	if err != nil {
		log.Warn().Err(err).Str("account_id", req.AccountID).Msg("[PAYMENTS] Payment rejected")
		sendShopError(w, err)
		return
	}

	resp := PaymentResponse{Status: "success", Payment: result.Payment.View()}
	if result.Replayed {
		w.Header().Set("X-Idempotent-Replay", "true")
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.NewBalance = &result.NewBalance
	writeJSON(w, http.StatusCreated, resp)
}

// GetPayment returns one payment
// @Summary Get payment
// @Tags payments
// @Produce json
// @Param reference path string true "Payment reference"
// @Success 200 {object} models.PaymentView
// @Failure 404 {object} ShopErrorResponse
// @Router /payments/{reference} [get]
func (s *PaymentService) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := s.GetByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		sendShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payment.View())
}
