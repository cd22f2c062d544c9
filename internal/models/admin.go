package models

import "time"

// Admin is an operator allowed to link cards and change settings
type Admin struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	FirstName    string    `json:"first_name" db:"first_name"`
	LastName     string    `json:"last_name" db:"last_name"`
	Role         string    `json:"role" db:"role"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

func (a *Admin) FullName() string {
	return a.FirstName + " " + a.LastName
}

// AuditLogEntry is an append-only record of an admin-triggered mutation
type AuditLogEntry struct {
	ActorID           string    `json:"actor_id" db:"actor_id" bson:"actor_id"`
	ActorName         string    `json:"actor_name" db:"actor_name" bson:"actor_name"`
	Action            string    `json:"action" db:"action" bson:"action"`
	Target            string    `json:"target" db:"target" bson:"target"`
	AffectedAccountID *string   `json:"affected_account_id" db:"affected_account_id" bson:"affected_account_id,omitempty"`
	CreatedAt         time.Time `json:"created_at" db:"created_at" bson:"created_at"`
}

// AdminIdentity is the authenticated operator carried in a request context
type AdminIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// SystemActor attributes mutations that no admin triggered, such as bootstrap
var SystemActor = AdminIdentity{ID: 0, Username: "system", FullName: "System"}
