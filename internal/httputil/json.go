package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tendant/tenantctx/pkg/domain"
)

var (
	ErrInvalidBody  = errors.New("invalid request body")
	ErrBodyTooLarge = errors.New("request body too large")
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"error": msg} with the given status.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorResponse{Error: msg})
}

// Text writes a plain-text response.
func Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// DecodeJSON decodes the request body into v, rejecting unknown trailing
// data. A body over the request size limit reports ErrBodyTooLarge.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return ErrBodyTooLarge
		}
		return ErrInvalidBody
	}
	if dec.More() {
		return ErrInvalidBody
	}
	return nil
}

// RequestError maps a request failure to its response: rate-limit
// rejections are 429, everything else is 400 with the error message.
func RequestError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrRateLimitExceeded) {
		Error(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}
	Error(w, http.StatusBadRequest, err.Error())
}
