package services

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/config"
	"github.com/tapshop/backend/internal/models"
	"github.com/tapshop/backend/internal/notifier"
)

// Publisher pushes events to the display device
type Publisher interface {
	Send(ctx context.Context, ev notifier.Event) error
}

// CardState is the classification of a scanned uid
type CardState int

const (
	CardAbsent CardState = iota
	CardUnlinked
	CardLinkedActive
	CardDeactivated
)

func (s CardState) String() string {
	switch s {
	case CardAbsent:
		return "absent"
	case CardUnlinked:
		return "unlinked"
	case CardLinkedActive:
		return "linked_active"
	case CardDeactivated:
		return "deactivated"
	}
	return "unknown"
}

// ClassifyCard maps a lookup result to its state. Deactivation wins over
// link state.
func ClassifyCard(card *models.Card) CardState {
	switch {
	case card == nil:
		return CardAbsent
	case !card.IsActive():
		return CardDeactivated
	case !card.IsLinked():
		return CardUnlinked
	}
	return CardLinkedActive
}

// Scan outcomes
const (
	ScanStatusNewCard    = "new_card"
	ScanStatusIdentified = "identified"
	ScanStatusSuccess    = "success"
	ScanStatusError      = "error"
)

// ScanRequest is one card tap reported by the scanner
type ScanRequest struct {
	CardUID    string     `json:"card_uid" validate:"required,min=4,max=64" example:"04a1b2c3"`
	PortNumber *int       `json:"port_number" example:"3"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// ScanResult is returned to the scanner
type ScanResult struct {
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
	AccountID     string `json:"account_id,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	AmountCharged *int64 `json:"amount_charged,omitempty"`
	NewBalance    *int64 `json:"new_balance,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

type ScanService struct {
	db        *sql.DB
	cfg       *config.ShopConfig
	cards     *CardRegistryService
	ledger    *LedgerService
	shelves   *ShelfService
	settings  *SettingsService
	display   Publisher
	validator *ValidationHelper
}

func NewScanService(db *sql.DB, cfg *config.ShopConfig, cards *CardRegistryService, ledger *LedgerService,
	shelves *ShelfService, settings *SettingsService, display Publisher) *ScanService {
	return &ScanService{
		db:        db,
		cfg:       cfg,
		cards:     cards,
		ledger:    ledger,
		shelves:   shelves,
		settings:  settings,
		display:   display,
		validator: NewValidationHelper(),
	}
}

// Dispatch classifies the scanned card and runs the admin-port or
// purchase-port flow. Admin-port policy failures come back as a result with
// status "error"; purchase-port failures come back as errors.
func (s *ScanService) Dispatch(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	uid := models.NormalizeUID(req.CardUID)
	now := time.Now().UTC()
	if req.Timestamp != nil {
		now = req.Timestamp.UTC()
	}

	card, err := s.cards.Lookup(ctx, uid)
	if err != nil {
		return nil, err
	}
	state := ClassifyCard(card)

	log.Debug().Str("uid", uid).Stringer("state", state).Interface("port", req.PortNumber).Msg("[SCAN] Card scanned")

	if s.cfg.IsAdminPort(req.PortNumber) {
		return s.adminScan(ctx, uid, card, state)
	}
	return s.purchaseScan(ctx, card, state, req.PortNumber, now)
}

func (s *ScanService) adminScan(ctx context.Context, uid string, card *models.Card, state CardState) (*ScanResult, error) {
	switch state {
	case CardAbsent, CardUnlinked:
		if _, err := s.cards.Capture(ctx, uid); err != nil {
			return nil, err
		}
		return &ScanResult{Status: ScanStatusNewCard, Message: "Card captured. Register in Admin."}, nil
	case CardDeactivated:
		return errorResult(ErrCardInactive), nil
	}

	account, err := s.ledger.getAccount(ctx, s.db, card.AccountID())
	if errors.Is(err, ErrAccountNotFound) {
		return errorResult(ErrAccountNotFound), nil
	}
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return errorResult(ErrAccountInactive), nil
	}

	s.notify(ctx, notifier.Event{
		Action:      notifier.ActionPayBack,
		AccountID:   account.AccountID,
		DisplayName: account.DisplayName(),
		Amount:      account.Balance,
	})

	return &ScanResult{
		Status:      ScanStatusIdentified,
		AccountID:   account.AccountID,
		DisplayName: account.DisplayName(),
		Message:     "Hi " + account.DisplayName() + ", choose payment amount.",
	}, nil
}

func (s *ScanService) purchaseScan(ctx context.Context, card *models.Card, state CardState, port *int, now time.Time) (*ScanResult, error) {
	switch state {
	case CardAbsent, CardUnlinked:
		return nil, ErrCardNotRegistered
	case CardDeactivated:
		return nil, ErrCardInactive
	}

	var (
		account  *models.Account
		purchase *models.Purchase
	)
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		account, err = s.ledger.lockAccount(ctx, tx, card.AccountID())
		if err != nil {
			return err
		}
		if !account.IsActive() {
			return ErrAccountInactive
		}

		if port == nil {
			return ErrPortNotConfigured
		}
		shelf, err := s.shelves.GetShelf(ctx, tx, *port)
		if err != nil {
			return err
		}

		limit, err := s.settings.MaxDebtLimit(ctx, tx)
		if err != nil {
			return err
		}

		purchase, err = s.ledger.CommitPurchase(ctx, tx, account, shelf, limit, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("account_id", account.AccountID).
		Int("port", purchase.ShelfPort).
		Int64("price", purchase.Price).
		Int64("new_balance", account.Balance).
		Msg("[SCAN] Purchase committed")

	s.notify(ctx, notifier.Event{
		Action:      notifier.ActionBuy,
		AccountID:   account.AccountID,
		DisplayName: account.DisplayName(),
		Amount:      purchase.Price,
		PortNumber:  purchase.ShelfPort,
	})

	charged, balance := purchase.Price, account.Balance
	return &ScanResult{
		Status:        ScanStatusSuccess,
		AccountID:     account.AccountID,
		DisplayName:   account.DisplayName(),
		AmountCharged: &charged,
		NewBalance:    &balance,
		Reference:     purchase.Reference,
	}, nil
}

// notify is best effort: the scan outcome never depends on the display
func (s *ScanService) notify(ctx context.Context, ev notifier.Event) {
	if err := s.display.Send(ctx, ev); err != nil {
		if errors.Is(err, notifier.ErrNoConsumerConnected) {
			log.Warn().Str("action", string(ev.Action)).Msg("[SCAN] No display connected, event dropped")
			return
		}
		log.Error().Err(err).Str("action", string(ev.Action)).Msg("[SCAN] Failed to notify display")
	}
}

func errorResult(se *ShopError) *ScanResult {
	return &ScanResult{Status: ScanStatusError, ErrorCode: se.Code, Message: se.Message}
}

// HandleScan processes a card tap
// @Summary Process card scan
// @Description Handle a card tap. The admin port captures or identifies cards; any other port commits a purchase.
// @Tags scans
// @Accept json
// @Produce json
// @Param request body ScanRequest true "Scan"
// @Success 200 {object} ScanResult
// @Failure 400 {object} ShopErrorResponse "Invalid request or debt limit reached"
// @Failure 403 {object} ShopErrorResponse "Card or account inactive"
// @Failure 404 {object} ShopErrorResponse "Card not registered or port not configured"
// @Router /scans [post]
func (s *ScanService) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}

	if len(models.NormalizeUID(req.CardUID)) < 4 {
		SendErrorResponse(w, "Invalid card uid", http.StatusBadRequest, nil)
		return
	}
	if req.PortNumber != nil && (*req.PortNumber < s.cfg.MinPort || *req.PortNumber > s.cfg.MaxPort) {
		SendErrorResponse(w, "Invalid port number", http.StatusBadRequest, nil)
		return
	}

	result, err := s.Dispatch(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("uid", models.NormalizeUID(req.CardUID)).Msg("[SCAN] Scan rejected")
		sendShopError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
