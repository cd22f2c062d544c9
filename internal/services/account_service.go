package services

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/models"
)

type AccountService struct {
	db        *sql.DB
	audit     *AuditEmitter
	validator *ValidationHelper
}

// CreateAccountRequest represents a student account registration
type CreateAccountRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64" example:"S1234567"`
	FirstName string `json:"first_name" validate:"required,max=100" example:"Ada"`
	LastName  string `json:"last_name" validate:"required,max=100" example:"Obi"`
}

func NewAccountService(db *sql.DB, audit *AuditEmitter) *AccountService {
	return &AccountService{
		db:        db,
		audit:     audit,
		validator: NewValidationHelper(),
	}
}

// Create registers a student with a zero balance
func (s *AccountService) Create(ctx context.Context, actor models.AdminIdentity, req CreateAccountRequest) (*models.Account, error) {
	now := time.Now().UTC()
	account, err := scanAccount(s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (account_id, first_name, last_name, balance, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, 1, $5, $5)
		RETURNING `+accountColumns,
		req.AccountID, req.FirstName, req.LastName, models.AccountStatusActive, now))
	if isUniqueViolation(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor, AuditAccountCreated, account.AccountID, &account.AccountID)
	return account, nil
}

func (s *AccountService) Get(ctx context.Context, accountID string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE account_id = $1`, accountID))
}

func (s *AccountService) List(ctx context.Context) ([]models.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.AccountID, &a.FirstName, &a.LastName, &a.Balance, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// CreateAccount registers a student account
// @Summary Create account
// @Description Register a student. The balance starts at zero.
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateAccountRequest true "Account"
// @Success 201 {object} models.Account
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ShopErrorResponse
// @Router /accounts [post]
func (s *AccountService) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}

	account, err := s.Create(r.Context(), actorFrom(r), req)
	if err != nil {
		sendShopError(w, err)
		return
	}

	log.Info().Str("account_id", account.AccountID).Msg("[ACCOUNTS] Account created")
	writeJSON(w, http.StatusCreated, account)
}

// GetAccount returns one account with its balance
// @Summary Get account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} ShopErrorResponse
// @Router /accounts/{id} [get]
func (s *AccountService) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		sendShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// ListAccounts lists all accounts
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Account
// @Router /accounts [get]
func (s *AccountService) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.List(r.Context())
	if err != nil {
		sendShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}
