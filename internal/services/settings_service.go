package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/models"
)

type SettingsService struct {
	db           *sql.DB
	audit        *AuditEmitter
	validator    *ValidationHelper
	defaultLimit int64
}

// DebtLimitRequest represents a debt limit update
type DebtLimitRequest struct {
	Value int64 `json:"value" validate:"required,gt=0" example:"2500"`
}

// DebtLimitResponse represents the current debt limit
type DebtLimitResponse struct {
	Key   string `json:"key" example:"max_debt_limit"`
	Value int64  `json:"value" example:"2000"`
}

func NewSettingsService(db *sql.DB, audit *AuditEmitter, defaultLimit int64) *SettingsService {
	return &SettingsService{
		db:           db,
		audit:        audit,
		validator:    NewValidationHelper(),
		defaultLimit: defaultLimit,
	}
}

// MaxDebtLimit reads the debt ceiling through q, so purchases can read it
// inside their own transaction. A missing or unparsable value yields the
// configured default.
func (s *SettingsService) MaxDebtLimit(ctx context.Context, q querier) (int64, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = $1`, models.SettingMaxDebtLimit).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return s.defaultLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read debt limit: %w", err)
	}

	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		log.Warn().Str("value", raw).Int64("default", s.defaultLimit).Msg("[SETTINGS] Invalid max_debt_limit, using default")
		return s.defaultLimit, nil
	}
	return limit, nil
}

func (s *SettingsService) SetMaxDebtLimit(ctx context.Context, actor models.AdminIdentity, limit int64) error {
	if limit <= 0 {
		return ErrInvalidAmount
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		models.SettingMaxDebtLimit, strconv.FormatInt(limit, 10), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update debt limit: %w", err)
	}

	s.audit.Record(actor, AuditSettingUpdated, models.SettingMaxDebtLimit, nil)
	return nil
}

// GetMaxDebtLimit returns the current debt ceiling
// @Summary Get debt limit
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} DebtLimitResponse
// @Router /settings/max_debt_limit [get]
func (s *SettingsService) GetMaxDebtLimit(w http.ResponseWriter, r *http.Request) {
	limit, err := s.MaxDebtLimit(r.Context(), s.db)
	if err != nil {
		sendShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DebtLimitResponse{Key: models.SettingMaxDebtLimit, Value: limit})
}

// UpdateMaxDebtLimit changes the debt ceiling
// @Summary Update debt limit
// @Description Set the maximum balance a student may owe. Applies to the next purchase.
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body DebtLimitRequest true "New limit"
// @Success 200 {object} DebtLimitResponse
// @Failure 400 {object} ErrorResponse
// @Router /settings/max_debt_limit [put]
func (s *SettingsService) UpdateMaxDebtLimit(w http.ResponseWriter, r *http.Request) {
	var req DebtLimitRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.SetMaxDebtLimit(r.Context(), actorFrom(r), req.Value); err != nil {
		sendShopError(w, err)
		return
	}

	log.Info().Int64("value", req.Value).Msg("[SETTINGS] Debt limit updated")
	writeJSON(w, http.StatusOK, DebtLimitResponse{Key: models.SettingMaxDebtLimit, Value: req.Value})
}
