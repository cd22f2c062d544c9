package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/services"
)

type QRHandler struct {
	service *services.QRService
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{service: service}
}

// GeneratePaybackQR issues a payback QR code for an account
// @Summary Generate payback QR
// @Description Issue a short-lived, single-use QR code that identifies the student on the payment tablet
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} services.PaybackQR
// @Failure 403 {object} services.ShopErrorResponse
// @Failure 404 {object} services.ShopErrorResponse
// @Router /accounts/{id}/payback-qr [get]
func (h *QRHandler) GeneratePaybackQR(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")

	qr, err := h.service.GeneratePaybackQR(r.Context(), accountID)
	if err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("[QR] Payback code not issued")
		services.WriteShopError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, qr)
}

// ResolvePaybackQR consumes a scanned payback code
// @Summary Resolve payback QR
// @Description Resolve a scanned payback code to its account. The code cannot be used again.
// @Tags QR
// @Produce json
// @Security BearerAuth
// @Param code path string true "Payback code"
// @Success 200 {object} services.PaybackTicket
// @Failure 404 {object} services.ShopErrorResponse
// @Router /payback-qr/{code} [get]
func (h *QRHandler) ResolvePaybackQR(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.ResolvePaybackQR(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		services.WriteShopError(w, err)
		return
	}

	services.WriteJSON(w, http.StatusOK, ticket)
}
