package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tapshop/backend/internal/models"
)

// errPaymentKeyTaken means a concurrent request committed a payment with the
// same idempotency key first.
var errPaymentKeyTaken = errors.New("idempotency key already used")

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CanAffordPurchase reports whether price fits under the debt ceiling
func CanAffordPurchase(balance, price, limit int64) bool {
	return balance+price <= limit
}

func ApplyPurchase(balance, price int64) int64 {
	return balance + price
}

// ApplyPayment debits amount from balance. Payments larger than the
// outstanding balance are rejected, so the balance never goes negative.
func ApplyPayment(balance, amount int64) (int64, error) {
	if amount <= 0 {
		return balance, ErrInvalidAmount
	}
	if amount > balance {
		return balance, ErrExcessPayment
	}
	return balance - amount, nil
}

// CapPayment clamps amount to the outstanding balance for auto-cap paybacks
func CapPayment(balance, amount int64) int64 {
	if amount > balance {
		return balance
	}
	return amount
}

// runInTx executes fn inside a database transaction. fn's error rolls back.
func runInTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LedgerService owns every write to accounts.balance
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

const accountColumns = `account_id, first_name, last_name, balance, status, version, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var account models.Account
	err := row.Scan(&account.AccountID, &account.FirstName, &account.LastName, &account.Balance,
		&account.Status, &account.Version, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// getAccount reads an account without locking it
func (s *LedgerService) getAccount(ctx context.Context, q querier, accountID string) (*models.Account, error) {
	return scanAccount(q.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_id = $1`, accountID))
}

// lockAccount reads an account and holds its row lock until tx ends, so two
// scans against the same account are serialized.
func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*models.Account, error) {
	return scanAccount(tx.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_id = $1
		FOR UPDATE`, accountID))
}

func (s *LedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, accountID string, newBalance int64, version int, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE account_id = $3 AND version = $4`,
		newBalance, now, accountID, version)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s: %w", accountID, ErrConcurrentUpdate)
	}

	return nil
}

// CommitPurchase charges shelf.Price to a locked account and records the
// purchase. Nothing is written when the debt limit would be exceeded.
func (s *LedgerService) CommitPurchase(ctx context.Context, tx *sql.Tx, account *models.Account, shelf *models.ShelfPort, limit int64, now time.Time) (*models.Purchase, error) {
	if !CanAffordPurchase(account.Balance, shelf.Price, limit) {
		return nil, &LimitExceededError{Balance: account.Balance, Limit: limit, Price: shelf.Price}
	}

	newBalance := ApplyPurchase(account.Balance, shelf.Price)
	if err := s.updateAccountBalance(ctx, tx, account.AccountID, newBalance, account.Version, now); err != nil {
		return nil, err
	}

	purchase := &models.Purchase{
		Reference: uuid.New().String(),
		AccountID: account.AccountID,
		ShelfPort: shelf.PortNumber,
		Price:     shelf.Price,
		Status:    models.TxStatusCompleted,
		CreatedAt: now,
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO purchases (reference, account_id, shelf_port, price, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		purchase.Reference, purchase.AccountID, purchase.ShelfPort, purchase.Price, purchase.Status, purchase.CreatedAt,
	).Scan(&purchase.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = now
	return purchase, nil
}

// CommitPayment debits amount from a locked account and records the payment.
// It returns errPaymentKeyTaken when the idempotency key was committed by a
// concurrent request; the caller must roll back and replay that payment.
func (s *LedgerService) CommitPayment(ctx context.Context, tx *sql.Tx, account *models.Account, amount int64, key sql.NullString, now time.Time) (*models.Payment, error) {
	newBalance, err := ApplyPayment(account.Balance, amount)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		Reference:      uuid.New().String(),
		AccountID:      account.AccountID,
		Amount:         amount,
		Status:         models.TxStatusCompleted,
		IdempotencyKey: key,
		CreatedAt:      now,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (reference, account_id, amount, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		payment.Reference, payment.AccountID, payment.Amount, payment.Status, payment.IdempotencyKey, payment.CreatedAt,
	).Scan(&payment.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errPaymentKeyTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	if err := s.updateAccountBalance(ctx, tx, account.AccountID, newBalance, account.Version, now); err != nil {
		return nil, err
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = now
	return payment, nil
}
