package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
)

// DecodeJSON decodes the request body into dst. Returns false after writing
// an error response when the body is not valid JSON for dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Client is gone; nothing left to do.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteAppError maps the application error taxonomy onto HTTP statuses.
func WriteAppError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	errCode := "internal"

	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		code, errCode = http.StatusBadRequest, "validation_failed"
	case apperrors.ErrCodeNotFound:
		code, errCode = http.StatusNotFound, "not_found"
	case apperrors.ErrCodeConflict:
		code, errCode = http.StatusConflict, "conflict"
	case apperrors.ErrCodeConfiguration:
		code, errCode = http.StatusUnprocessableEntity, "configuration"
	case apperrors.ErrCodeTimeout:
		code, errCode = http.StatusGatewayTimeout, "timeout"
	}

	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: err})
}
