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

const (
	cardColumns = `id, uid, linked_account_id, status, created_at, updated_at`

	oneActiveLinkIndex = "cards_one_active_link_per_account"
	cardUIDConstraint  = "cards_uid_key"
)

type CardRegistryService struct {
	db        *sql.DB
	audit     *AuditEmitter
	validator *ValidationHelper
}

// LinkCardRequest represents a card link request
type LinkCardRequest struct {
	AccountID string `json:"account_id" validate:"required,max=64" example:"S1234567"`
}

func NewCardRegistryService(db *sql.DB, audit *AuditEmitter) *CardRegistryService {
	return &CardRegistryService{
		db:        db,
		audit:     audit,
		validator: NewValidationHelper(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var card models.Card
	if err := row.Scan(&card.ID, &card.UID, &card.LinkedAccountID, &card.Status, &card.CreatedAt, &card.UpdatedAt); err != nil {
		return nil, err
	}
	return &card, nil
}

// findCard returns nil without error when uid is unknown
func (s *CardRegistryService) findCard(ctx context.Context, q querier, uid string, forUpdate bool) (*models.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE uid = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	card, err := scanCard(q.QueryRowContext(ctx, query, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load card: %w", err)
	}
	return card, nil
}

func (s *CardRegistryService) updateCard(ctx context.Context, tx *sql.Tx, id int64, linked sql.NullString, status string, now time.Time) (*models.Card, error) {
	card, err := scanCard(tx.QueryRowContext(ctx, `
		UPDATE cards
		SET linked_account_id = $1, status = $2, updated_at = $3
		WHERE id = $4
		RETURNING `+cardColumns,
		linked, status, now, id))
	if err != nil {
		return nil, mapCardWriteError(err)
	}
	return card, nil
}

func mapCardWriteError(err error) error {
	switch {
	case isConstraint(err, oneActiveLinkIndex):
		return ErrDuplicateActiveLink
	case isConstraint(err, cardUIDConstraint):
		return ErrCardConflict
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrCardConflict, err)
	}
	return fmt.Errorf("failed to write card: %w", err)
}

// Lookup returns the card registered under uid, or nil
func (s *CardRegistryService) Lookup(ctx context.Context, uid string) (*models.Card, error) {
	return s.findCard(ctx, s.db, models.NormalizeUID(uid), false)
}

// Capture registers an unlinked card seen on the admin port. Capturing a
// known unlinked card only refreshes updated_at.
func (s *CardRegistryService) Capture(ctx context.Context, uid string) (*models.Card, error) {
	uid = models.NormalizeUID(uid)
	now := time.Now().UTC()

	var (
		card     models.Card
		inserted bool
	)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (uid, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (uid) DO UPDATE SET updated_at = EXCLUDED.updated_at
		WHERE cards.linked_account_id IS NULL
		RETURNING `+cardColumns+`, (xmax = 0) AS inserted`,
		uid, models.CardStatusActive, now,
	).Scan(&card.ID, &card.UID, &card.LinkedAccountID, &card.Status, &card.CreatedAt, &card.UpdatedAt, &inserted)
	if errors.Is(err, sql.ErrNoRows) {
		// already linked, nothing to refresh
		existing, err := s.findCard(ctx, s.db, uid, false)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrCardConflict
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to capture card: %w", err)
	}

	if inserted {
		log.Info().Str("uid", uid).Msg("[CARDS] New card captured")
		s.audit.Record(models.SystemActor, AuditCardCaptured, uid, nil)
	}
	return &card, nil
}

// Link binds uid to accountID, inserting the card if it was never seen
func (s *CardRegistryService) Link(ctx context.Context, actor models.AdminIdentity, uid, accountID string) (*models.Card, error) {
	uid = models.NormalizeUID(uid)
	now := time.Now().UTC()

	var linked *models.Card
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		card, err := s.findCard(ctx, tx, uid, true)
		if err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE account_id = $1)`, accountID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if !exists {
			return ErrAccountNotFound
		}

		if card != nil {
			if !card.IsActive() {
				return ErrCardDeactivated
			}
			if card.IsLinked() {
				if card.AccountID() == accountID {
					linked = card
					return nil
				}
				return ErrAlreadyLinkedToOther
			}
		}

		var otherUID string
		err = tx.QueryRowContext(ctx, `
			SELECT uid FROM cards
			WHERE linked_account_id = $1 AND status = $2 AND uid <> $3
			LIMIT 1`, accountID, models.CardStatusActive, uid).Scan(&otherUID)
		if err == nil {
			return ErrDuplicateActiveLink
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check existing links: %w", err)
		}

		account := sql.NullString{String: accountID, Valid: true}
		if card != nil {
			linked, err = s.updateCard(ctx, tx, card.ID, account, models.CardStatusActive, now)
			return err
		}

		linked, err = scanCard(tx.QueryRowContext(ctx, `
			INSERT INTO cards (uid, linked_account_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING `+cardColumns,
			uid, account, models.CardStatusActive, now))
		if err != nil {
			return mapCardWriteError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor, AuditCardLinked, uid, &accountID)
	return linked, nil
}

// Unlink detaches uid from its account. The card stays active.
func (s *CardRegistryService) Unlink(ctx context.Context, actor models.AdminIdentity, uid string) (*models.Card, error) {
	uid = models.NormalizeUID(uid)

	var (
		unlinked  *models.Card
		accountID string
	)
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		card, err := s.findCard(ctx, tx, uid, true)
		if err != nil {
			return err
		}
		if card == nil {
			return ErrCardNotFound
		}
		if !card.IsLinked() {
			return ErrCardNotLinked
		}

		accountID = card.AccountID()
		unlinked, err = s.updateCard(ctx, tx, card.ID, sql.NullString{}, card.Status, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor, AuditCardUnlinked, uid, &accountID)
	return unlinked, nil
}

// Deactivate clears any link and blocks the card from purchases and linking
func (s *CardRegistryService) Deactivate(ctx context.Context, actor models.AdminIdentity, uid string) (*models.Card, error) {
	uid = models.NormalizeUID(uid)

	var (
		deactivated *models.Card
		affected    *string
	)
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		card, err := s.findCard(ctx, tx, uid, true)
		if err != nil {
			return err
		}
		if card == nil {
			return ErrCardNotFound
		}

		if card.IsLinked() {
			id := card.AccountID()
			affected = &id
		}
		deactivated, err = s.updateCard(ctx, tx, card.ID, sql.NullString{}, models.CardStatusDeactivated, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor, AuditCardDeactivated, uid, affected)
	return deactivated, nil
}

// Reactivate returns a deactivated card to service, unlinked
func (s *CardRegistryService) Reactivate(ctx context.Context, actor models.AdminIdentity, uid string) (*models.Card, error) {
	uid = models.NormalizeUID(uid)

	var reactivated *models.Card
	err := runInTx(ctx, s.db, func(tx *sql.Tx) error {
		card, err := s.findCard(ctx, tx, uid, true)
		if err != nil {
			return err
		}
		if card == nil {
			return ErrCardNotFound
		}
		if card.IsActive() {
			reactivated = card
			return nil
		}

		reactivated, err = s.updateCard(ctx, tx, card.ID, sql.NullString{}, models.CardStatusActive, time.Now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(actor, AuditCardReactivated, uid, nil)
	return reactivated, nil
}

// ListActive returns every active card, most recently touched first
func (s *CardRegistryService) ListActive(ctx context.Context) ([]*models.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE status = $1
		ORDER BY updated_at DESC`, models.CardStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	cards := []*models.Card{}
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

// LatestCaptured returns the most recently captured unlinked card, or nil
func (s *CardRegistryService) LatestCaptured(ctx context.Context) (*models.Card, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE status = $1 AND linked_account_id IS NULL
		ORDER BY updated_at DESC
		LIMIT 1`, models.CardStatusActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load captured card: %w", err)
	}
	return card, nil
}

func cardUIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := models.NormalizeUID(chi.URLParam(r, "uid"))
	if len(uid) < 4 || len(uid) > 64 {
		SendErrorResponse(w, "Invalid card uid", http.StatusBadRequest, nil)
		return "", false
	}
	return uid, true
}

// LinkCard links a card to a student account
// @Summary Link card
// @Description Link a card to a student account. Linking to the same account again is a no-op.
// @Tags cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Param request body LinkCardRequest true "Target account"
// @Success 200 {object} models.CardView
// @Failure 400 {object} ShopErrorResponse
// @Failure 404 {object} ShopErrorResponse
// @Failure 409 {object} ShopErrorResponse
// @Router /cards/{uid}/link [post]
func (s *CardRegistryService) LinkCard(w http.ResponseWriter, r *http.Request) {
	uid, ok := cardUIDParam(w, r)
	if !ok {
		return
	}

	var req LinkCardRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}

	card, err := s.Link(r.Context(), actorFrom(r), uid, req.AccountID)
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Str("account_id", req.AccountID).Msg("[CARDS] Link failed")
		sendShopError(w, err)
		return
	}

	log.Info().Str("uid", uid).Str("account_id", req.AccountID).Msg("[CARDS] Card linked")
	writeJSON(w, http.StatusOK, card.View())
}

// UnlinkCard detaches a card from its account
// @Summary Unlink card
// @Description Remove the account link from a card. The card stays active.
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {object} models.CardView
// @Failure 404 {object} ShopErrorResponse
// @Failure 409 {object} ShopErrorResponse
// @Router /cards/{uid}/unlink [post]
func (s *CardRegistryService) UnlinkCard(w http.ResponseWriter, r *http.Request) {
	uid, ok := cardUIDParam(w, r)
	if !ok {
		return
	}

	card, err := s.Unlink(r.Context(), actorFrom(r), uid)
	if err != nil {
		sendShopError(w, err)
		return
	}

	log.Info().Str("uid", uid).Msg("[CARDS] Card unlinked")
	writeJSON(w, http.StatusOK, card.View())
}

// DeactivateCard takes a card out of service
// @Summary Deactivate card
// @Description Clear the card's link and block it from purchases
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {object} models.CardView
// @Failure 404 {object} ShopErrorResponse
// @Router /cards/{uid}/deactivate [post]
func (s *CardRegistryService) DeactivateCard(w http.ResponseWriter, r *http.Request) {
	uid, ok := cardUIDParam(w, r)
	if !ok {
		return
	}

	card, err := s.Deactivate(r.Context(), actorFrom(r), uid)
	if err != nil {
		sendShopError(w, err)
		return
	}

	log.Info().Str("uid", uid).Msg("[CARDS] Card deactivated")
	writeJSON(w, http.StatusOK, card.View())
}

// ReactivateCard returns a deactivated card to service
// @Summary Reactivate card
// @Description Make a deactivated card usable again. It comes back unlinked.
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Param uid path string true "Card UID"
// @Success 200 {object} models.CardView
// @Failure 404 {object} ShopErrorResponse
// @Router /cards/{uid}/reactivate [post]
func (s *CardRegistryService) ReactivateCard(w http.ResponseWriter, r *http.Request) {
	uid, ok := cardUIDParam(w, r)
	if !ok {
		return
	}

	card, err := s.Reactivate(r.Context(), actorFrom(r), uid)
	if err != nil {
		sendShopError(w, err)
		return
	}

	log.Info().Str("uid", uid).Msg("[CARDS] Card reactivated")
	writeJSON(w, http.StatusOK, card.View())
}

// ListCards lists active cards
// @Summary List active cards
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.CardView
// @Router /cards [get]
func (s *CardRegistryService) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.ListActive(r.Context())
	if err != nil {
		sendShopError(w, err)
		return
	}

	views := make([]models.CardView, 0, len(cards))
	for _, c := range cards {
		views = append(views, c.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// GetCapturedCard returns the card most recently tapped on the admin port
// @Summary Latest captured card
// @Description Most recently captured card that is not linked yet
// @Tags cards
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.CardView
// @Failure 404 {object} ShopErrorResponse
// @Router /cards/captured [get]
func (s *CardRegistryService) GetCapturedCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.LatestCaptured(r.Context())
	if err != nil {
		sendShopError(w, err)
		return
	}
	if card == nil {
		sendShopError(w, ErrCardNotFound)
		return
	}
	writeJSON(w, http.StatusOK, card.View())
}
