package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/middleware"
	"github.com/utafrali/glowskin/pkg/pagination"
)

const dateLayout = "2006-01-02"

// caller returns the authenticated user id ("" for guests) and whether the
// caller is an admin.
func caller(r *http.Request) (string, bool) {
	return middleware.UserIDFromContext(r.Context()), middleware.RoleFromContext(r.Context()) == domain.RoleAdmin
}

func writeParamError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Message: message,
		Error:   &httputil.ErrorResponse{Code: "INVALID_PARAMETER"},
	})
}

// queryInt64 parses an optional integer query parameter. On a malformed value
// it writes the 400 and returns false.
func queryInt64(w http.ResponseWriter, r *http.Request, name string) (*int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		writeParamError(w, name+" must be a non-negative integer")
		return nil, false
	}
	return &n, true
}

// queryBool parses an optional boolean query parameter.
func queryBool(w http.ResponseWriter, r *http.Request, name string) (*bool, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		writeParamError(w, name+" must be true or false")
		return nil, false
	}
	return &b, true
}

// queryTime parses an optional date (YYYY-MM-DD) or RFC 3339 timestamp. A
// plain date used as an upper bound covers the whole day.
func queryTime(w http.ResponseWriter, r *http.Request, name string, endOfDay bool) (*time.Time, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, true
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		writeParamError(w, name+" must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}

// writePage answers with a paginated result.
func writePage[T any](w http.ResponseWriter, items []T, total int, page pagination.Params) {
	httputil.OK(w, "", pagination.NewResult(items, total, page))
}
