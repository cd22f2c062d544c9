package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/tapshop/backend/internal/middleware"
	"github.com/tapshop/backend/internal/models"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ShopErrorResponse is returned for classified failures on the financial paths
type ShopErrorResponse struct {
	Status      string `json:"status"`
	ErrorCode   string `json:"error_code"`
	Message     string `json:"message"`
	CurrentDebt *int64 `json:"current_debt,omitempty"`
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// sendShopError renders a classified error, or a 500 for anything else
func sendShopError(w http.ResponseWriter, err error) {
	se := classify(err)
	if se == nil {
		log.Error().Err(err).Msg("[HTTP] Unclassified failure")
		writeJSON(w, http.StatusInternalServerError, ShopErrorResponse{
			Status:    "error",
			ErrorCode: "INTERNAL_ERROR",
			Message:   "An internal error occurred",
		})
		return
	}

	resp := ShopErrorResponse{
		Status:    "error",
		ErrorCode: se.Code,
		Message:   se.Message,
	}
	var limitErr *LimitExceededError
	if errors.As(err, &limitErr) {
		resp.Status = "denied"
		resp.CurrentDebt = &limitErr.Balance
	}
	writeJSON(w, statusFor(se), resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("[HTTP] Failed to write response")
	}
}

// decodeJSONBody decodes a single JSON object into dst and validates it.
// It writes the error response itself and returns false on failure.
func (vh *ValidationHelper) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := vh.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// actorFrom returns the admin behind r, falling back to the system actor
func actorFrom(r *http.Request) models.AdminIdentity {
	if admin, ok := middleware.AdminFromContext(r.Context()); ok {
		return admin
	}
	return models.SystemActor
}

// WriteShopError renders err the way the service handlers do
func WriteShopError(w http.ResponseWriter, err error) {
	sendShopError(w, err)
}

// WriteJSON writes body with statusCode
func WriteJSON(w http.ResponseWriter, statusCode int, body any) {
	writeJSON(w, statusCode, body)
}
