package models

import (
	"database/sql"
	"time"
)

// Purchase is created once per committed scan. Price is copied from the shelf
// at commit time.
type Purchase struct {
	ID        int64     `json:"id" db:"id"`
	Reference string    `json:"reference" db:"reference"`
	AccountID string    `json:"account_id" db:"account_id"`
	ShelfPort int       `json:"shelf_port" db:"shelf_port"`
	Price     int64     `json:"price" db:"price"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Payment is created once per committed payback
type Payment struct {
	ID             int64          `json:"id" db:"id"`
	Reference      string         `json:"reference" db:"reference"`
	AccountID      string         `json:"account_id" db:"account_id"`
	Amount         int64          `json:"amount" db:"amount"`
	Status         string         `json:"status" db:"status"`
	IdempotencyKey sql.NullString `json:"-" db:"idempotency_key"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Transaction status values shared by purchases and payments
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

// PaymentView is the JSON shape returned for payments
type PaymentView struct {
	Reference      string    `json:"reference"`
	AccountID      string    `json:"account_id"`
	Amount         int64     `json:"amount"`
	Status         string    `json:"status"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p *Payment) View() PaymentView {
	v := PaymentView{
		Reference: p.Reference,
		AccountID: p.AccountID,
		Amount:    p.Amount,
		Status:    p.Status,
		CreatedAt: p.CreatedAt,
	}
	if p.IdempotencyKey.Valid {
		k := p.IdempotencyKey.String
		v.IdempotencyKey = &k
	}
	return v
}
