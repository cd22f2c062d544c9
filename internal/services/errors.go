package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lib/pq"
)

// ErrorKind groups shop errors by how callers should react to them
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindConflict
	KindPolicyViolation
	KindTransientIO
)

// ShopError is a classified failure with a stable code for admin tooling
type ShopError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *ShopError) Error() string {
	return e.Message
}

var (
	ErrAccountNotFound   = &ShopError{KindNotFound, "ACCOUNT_NOT_FOUND", "account not found"}
	ErrCardNotFound      = &ShopError{KindNotFound, "CARD_NOT_FOUND", "card not found"}
	ErrCardNotRegistered = &ShopError{KindNotFound, "CARD_NOT_REGISTERED", "card not registered to an account"}
	ErrPortNotConfigured = &ShopError{KindNotFound, "PORT_NOT_CONFIGURED", "no shelf configured for port"}
	ErrPaymentNotFound   = &ShopError{KindNotFound, "PAYMENT_NOT_FOUND", "payment not found"}

	ErrDuplicateActiveLink  = &ShopError{KindConflict, "DUPLICATE_ACTIVE_LINK", "account already has an active card"}
	ErrAlreadyLinkedToOther = &ShopError{KindConflict, "ALREADY_LINKED", "card is already linked to another account"}
	ErrCardNotLinked        = &ShopError{KindConflict, "CARD_NOT_LINKED", "card is not linked to any account"}
	ErrAccountExists        = &ShopError{KindConflict, "ACCOUNT_EXISTS", "account already exists"}
	ErrCardConflict         = &ShopError{KindConflict, "CARD_CONFLICT", "card was registered concurrently"}

	ErrLimitExceeded   = &ShopError{KindPolicyViolation, "LIMIT_REACHED", "debt limit reached"}
	ErrAccountInactive = &ShopError{KindPolicyViolation, "ACCOUNT_INACTIVE", "account is inactive"}
	ErrCardInactive    = &ShopError{KindPolicyViolation, "CARD_INACTIVE", "card is not active"}
	ErrCardDeactivated = &ShopError{KindPolicyViolation, "CARD_DEACTIVATED", "card is deactivated and cannot be linked"}
	ErrExcessPayment   = &ShopError{KindPolicyViolation, "EXCESS_PAYMENT", "payment exceeds outstanding balance"}
	ErrInvalidAmount   = &ShopError{KindPolicyViolation, "INVALID_AMOUNT", "amount must be greater than zero"}
	ErrNothingToPay    = &ShopError{KindPolicyViolation, "NOTHING_TO_PAY", "account has no outstanding balance"}

	ErrConcurrentUpdate = &ShopError{KindTransientIO, "CONCURRENT_UPDATE", "account was modified concurrently"}
)

// LimitExceededError carries the balance that made a purchase unaffordable
type LimitExceededError struct {
	Balance int64
	Limit   int64
	Price   int64
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("debt limit reached: balance %d + price %d exceeds limit %d", e.Balance, e.Price, e.Limit)
}

func (e *LimitExceededError) Is(target error) bool {
	return target == ErrLimitExceeded
}

// classify returns the ShopError behind err, or nil for unclassified failures
func classify(err error) *ShopError {
	if errors.Is(err, ErrLimitExceeded) {
		return ErrLimitExceeded
	}
	var se *ShopError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

func statusFor(se *ShopError) int {
	switch se.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPolicyViolation:
		switch se {
		case ErrLimitExceeded, ErrExcessPayment, ErrInvalidAmount, ErrNothingToPay, ErrCardDeactivated:
			return http.StatusBadRequest
		}
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// isUniqueViolation reports a Postgres unique_violation (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isConstraint reports a unique violation on the named constraint or index
func isConstraint(err error, name string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == name
}
