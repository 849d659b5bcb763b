package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/logger"
	"github.com/utafrali/glowskin/pkg/validator"
)

// Response is the JSON envelope every endpoint answers with.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse carries the machine readable part of a failure.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes a 200 success envelope.
func OK(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(w http.ResponseWriter, message string, data any) {
	WriteJSON(w, http.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// WriteError writes a failure envelope derived from err. AppErrors keep their
// status, code and message; anything else becomes a logged 500 whose cause is
// never sent to the client. The request-scoped logger is preferred over
// fallback when the RequestLogger middleware is mounted.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	WriteErrorWithData(w, r, err, nil, fallback)
}

// WriteErrorWithData is WriteError with a data payload attached to the
// failure envelope, e.g. `{"valid": false}` for a rejected coupon.
func WriteErrorWithData(w http.ResponseWriter, r *http.Request, err error, data any, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Message: "request validation failed",
			Data:    data,
			Error:   &ErrorResponse{Code: "VALIDATION_ERROR", Fields: valErr.Fields(), RequestID: requestID},
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status != http.StatusInternalServerError {
		WriteJSON(w, appErr.Status, Response{
			Message: appErr.Message,
			Data:    data,
			Error:   &ErrorResponse{Code: appErr.Code, RequestID: requestID},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "internal server error"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code, message = "ALREADY_EXISTS", "resource already exists"
	case errors.Is(err, apperrors.ErrConflict):
		code, message = "CONFLICT", "conflict"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		code, message = "SERVICE_UNAVAILABLE", "service temporarily unavailable"
	default:
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Message: message,
		Data:    data,
		Error:   &ErrorResponse{Code: code, RequestID: requestID},
	})
}

// WriteBadRequest writes a 400 with code INVALID_INPUT.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusBadRequest, Response{
		Message: message,
		Error:   &ErrorResponse{Code: "INVALID_INPUT"},
	})
}

// WriteValidationError writes a 400 with per-field messages when err comes
// from the validator package.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Message: "request validation failed",
			Error:   &ErrorResponse{Code: "VALIDATION_ERROR", Fields: valErr.Fields()},
		})
		return
	}
	WriteBadRequest(w, err.Error())
}

// DecodeJSON limits the body to 1MB, decodes it into dst and validates it.
// On failure it writes the 400 response and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	if err := validator.Validate(dst); err != nil {
		WriteValidationError(w, err)
		return false
	}
	return true
}

// ParseUUID validates that param is a UUID. If not it writes a 400 with code
// INVALID_PARAMETER and returns false so the caller can return early.
func ParseUUID(w http.ResponseWriter, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Message: "invalid id: " + param,
			Error:   &ErrorResponse{Code: "INVALID_PARAMETER"},
		})
		return uuid.Nil, false
	}
	return id, true
}
