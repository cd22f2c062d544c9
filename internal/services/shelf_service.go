package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/config"
	"github.com/tapshop/backend/internal/models"
)

type ShelfService struct {
	db        *sql.DB
	audit     *AuditEmitter
	cfg       *config.ShopConfig
	validator *ValidationHelper
}

// ShelfPriceRequest represents a shelf price update
type ShelfPriceRequest struct {
	Price int64 `json:"price" validate:"required,gt=0" example:"150"`
}

func NewShelfService(db *sql.DB, audit *AuditEmitter, cfg *config.ShopConfig) *ShelfService {
	return &ShelfService{
		db:        db,
		audit:     audit,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// GetShelf returns the shelf wired to port
func (s *ShelfService) GetShelf(ctx context.Context, q querier, port int) (*models.ShelfPort, error) {
	var shelf models.ShelfPort
	err := q.QueryRowContext(ctx, `
		SELECT port_number, price, created_at, updated_at
		FROM shelf_ports
		WHERE port_number = $1`, port).
		Scan(&shelf.PortNumber, &shelf.Price, &shelf.CreatedAt, &shelf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPortNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load shelf: %w", err)
	}
	return &shelf, nil
}

// SetPrice creates or reprices the shelf on port
func (s *ShelfService) SetPrice(ctx context.Context, actor models.AdminIdentity, port int, price int64) (*models.ShelfPort, error) {
	if price <= 0 {
		return nil, ErrInvalidAmount
	}

	now := time.Now().UTC()
	var shelf models.ShelfPort
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shelf_ports (port_number, price, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (port_number) DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
		RETURNING port_number, price, created_at, updated_at`,
		port, price, now).
		Scan(&shelf.PortNumber, &shelf.Price, &shelf.CreatedAt, &shelf.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to set shelf price: %w", err)
	}

	s.audit.Record(actor, AuditShelfPriceUpdated, strconv.Itoa(port), nil)
	return &shelf, nil
}

func (s *ShelfService) List(ctx context.Context) ([]models.ShelfPort, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT port_number, price, created_at, updated_at
		FROM shelf_ports
		ORDER BY port_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shelves: %w", err)
	}
	defer rows.Close()

	shelves := []models.ShelfPort{}
	for rows.Next() {
		var shelf models.ShelfPort
		if err := rows.Scan(&shelf.PortNumber, &shelf.Price, &shelf.CreatedAt, &shelf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shelf: %w", err)
		}
		shelves = append(shelves, shelf)
	}
	return shelves, rows.Err()
}

// PutShelf sets the price of a shelf port
// @Summary Set shelf price
// @Description Configure the price charged for a scan on a purchase port
// @Tags shelves
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param port path int true "Port number"
// @Param request body ShelfPriceRequest true "Price"
// @Success 200 {object} models.ShelfPort
// @Failure 400 {object} ErrorResponse
// @Router /shelves/{port} [put]
func (s *ShelfService) PutShelf(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.Atoi(chi.URLParam(r, "port"))
	if err != nil || port < s.cfg.MinPort || port > s.cfg.MaxPort || port == s.cfg.AdminPort {
		SendErrorResponse(w, "Invalid purchase port", http.StatusBadRequest, nil)
		return
	}

	var req ShelfPriceRequest
	if !s.validator.decodeJSONBody(w, r, &req) {
		return
	}

	shelf, err := s.SetPrice(r.Context(), actorFrom(r), port, req.Price)
	if err != nil {
		sendShopError(w, err)
		return
	}

	log.Info().Int("port", port).Int64("price", req.Price).Msg("[SHELVES] Price updated")
	writeJSON(w, http.StatusOK, shelf)
}

// ListShelves lists configured shelves
// @Summary List shelves
// @Tags shelves
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ShelfPort
// @Router /shelves [get]
func (s *ShelfService) ListShelves(w http.ResponseWriter, r *http.Request) {
	shelves, err := s.List(r.Context())
	if err != nil {
		sendShopError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shelves)
}
