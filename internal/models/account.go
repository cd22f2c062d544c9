package models

import (
	"time"
)

// Account is a student's running balance. Balance is in minor currency units
// and is only changed through the ledger commit functions.
type Account struct {
	AccountID string    `json:"account_id" db:"account_id"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	Balance   int64     `json:"balance" db:"balance"`
	Status    string    `json:"status" db:"status"`
	Version   int       `json:"-" db:"version"` // for optimistic locking
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const (
	AccountStatusActive   = "active"
	AccountStatusInactive = "inactive"
)

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// DisplayName is what the display device greets the student with
func (a *Account) DisplayName() string {
	return a.FirstName
}

// ShelfPort is a physical purchase point wired to a numbered port
type ShelfPort struct {
	PortNumber int       `json:"port_number" db:"port_number"`
	Price      int64     `json:"price" db:"price"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// SystemSetting is a single mutable key/value
type SystemSetting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const SettingMaxDebtLimit = "max_debt_limit"
