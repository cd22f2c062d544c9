package models

import (
	"database/sql"
	"strings"
	"time"
)

// Card represents a proximity card tapped at a shelf port
type Card struct {
	ID              int64          `json:"id" db:"id"`
	UID             string         `json:"uid" db:"uid"`
	LinkedAccountID sql.NullString `json:"-" db:"linked_account_id"`
	Status          string         `json:"status" db:"status"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// CardStatus represents card status
const (
	CardStatusActive      = "active"
	CardStatusDeactivated = "deactivated"
)

// NormalizeUID trims and lowercases a card identifier
func NormalizeUID(uid string) string {
	return strings.ToLower(strings.TrimSpace(uid))
}

func (c *Card) IsActive() bool {
	return c.Status == CardStatusActive
}

func (c *Card) IsLinked() bool {
	return c.LinkedAccountID.Valid && c.LinkedAccountID.String != ""
}

// AccountID returns the linked account or an empty string
func (c *Card) AccountID() string {
	if !c.IsLinked() {
		return ""
	}
	return c.LinkedAccountID.String
}

// CardView is the JSON shape returned to admin tooling
type CardView struct {
	UID             string    `json:"uid"`
	LinkedAccountID *string   `json:"linked_account_id"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c *Card) View() CardView {
	v := CardView{
		UID:       c.UID,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.IsLinked() {
		id := c.LinkedAccountID.String
		v.LinkedAccountID = &id
	}
	return v
}
