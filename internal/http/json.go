package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/propaddadjs/portal-gateway/internal/errors"
)

// maxRequestBody caps portal request bodies. The portal only ever receives
// small credential and profile payloads.
const maxRequestBody = 1 << 20

// DecodeJSON decodes the request body into dst, rejecting unknown fields and
// oversized payloads. Returns false after writing the error response.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_json",
			Err:     apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed request body"),
		})
		return false
	}
	return true
}

// WriteJSON writes v as a JSON response. Encoding goes through a buffer first
// so an encode failure can still change the status line.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Client went away mid-write; nothing left to do.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError renders the portal error body: a stable machine-readable code, a
// human-readable message, and the offending input field when the failure
// names one.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{
		"error":   p.ErrCode,
		"message": p.Err.Error(),
	}
	var appErr *apperrors.AppError
	if errors.As(p.Err, &appErr) && appErr.Field != "" {
		body["field"] = appErr.Field
	}
	WriteJSON(w, p.Code, body)
}
