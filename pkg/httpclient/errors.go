package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

// StatusError is returned for non-2xx provider responses. It keeps the status
// and the provider's message so callers can branch on either.
type StatusError struct {
	Service string
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s returned %d (%s): %s", e.Service, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.Status, e.Message)
}

// Unwrap maps the status onto the shared sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return apperrors.ErrNotFound
	case e.Status == http.StatusUnauthorized:
		return apperrors.ErrUnauthorized
	case e.Status == http.StatusForbidden:
		return apperrors.ErrForbidden
	case e.Status == http.StatusConflict:
		return apperrors.ErrConflict
	case e.Status == http.StatusGone:
		return apperrors.ErrGone
	case e.Status == http.StatusTooManyRequests:
		return apperrors.ErrTooManyRequests
	case e.Status == http.StatusUnprocessableEntity:
		return apperrors.ErrInvalidInput
	case e.Status == http.StatusBadRequest:
		return apperrors.ErrInvalidInput
	case e.Status >= 500:
		return apperrors.ErrServiceUnavail
	default:
		return nil
	}
}

// providerError covers the error bodies of the providers in use:
// {"message": "..."} (Shiprocket, Cashfree),
// {"error": {"code": "...", "description": "..."}} (Razorpay) and
// {"code": 21211, "message": "..."} (Twilio).
type providerError struct {
	Message string          `json:"message"`
	Code    json.RawMessage `json:"code"`
	Error   *struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Message     string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response body and returns
// a *StatusError describing it.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &StatusError{Service: service, Status: resp.StatusCode, Message: "unreadable body: " + err.Error()}
	}

	se := &StatusError{Service: service, Status: resp.StatusCode}
	var pe providerError
	if json.Unmarshal(raw, &pe) == nil {
		se.Message = pe.Message
		if len(pe.Code) > 0 {
			var s string
			if json.Unmarshal(pe.Code, &s) == nil {
				se.Code = s
			} else {
				se.Code = string(pe.Code)
			}
		}
		if pe.Error != nil {
			se.Code = pe.Error.Code
			se.Message = pe.Error.Description
			if se.Message == "" {
				se.Message = pe.Error.Message
			}
		}
	}
	if se.Message == "" {
		se.Message = string(raw)
		if len(se.Message) > 512 {
			se.Message = se.Message[:512]
		}
	}
	return se
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsClientError reports a 4xx provider response other than 408 and 429.
// Saga steps use it to tell rejected input apart from provider outages.
func IsClientError(err error) bool {
	s := StatusOf(err)
	if s == http.StatusRequestTimeout || s == http.StatusTooManyRequests {
		return false
	}
	return s >= 400 && s < 500
}
