package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/music-catalog/pkg/catalog"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Message string   `json:"message"`
	Kind    string   `json:"kind"`
	Missing []string `json:"missing,omitempty"`
	Detail  string   `json:"detail,omitempty"`
}

// StatusFor maps an error to its HTTP status code
func StatusFor(err error) int {
	switch catalog.Kind(err) {
	case catalog.KindValidation:
		return http.StatusBadRequest
	case catalog.KindAuthorization:
		if errors.Is(err, catalog.ErrUnauthenticated) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	case catalog.KindNotFound:
		return http.StatusNotFound
	case catalog.KindIntegrity:
		return http.StatusConflict
	case catalog.KindUpload:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. detail carries the full error chain and is only
// included when showDetail is set.
func writeError(w http.ResponseWriter, r *http.Request, err error, showDetail bool) {
	status := StatusFor(err)
	kind := catalog.Kind(err)

	resp := ErrorResponse{
		Message: publicMessage(err, status),
		Kind:    string(kind),
	}
	var validationErr *catalog.ValidationError
	if errors.As(err, &validationErr) {
		resp.Missing = validationErr.Missing
	}
	if showDetail {
		resp.Detail = err.Error()
	}

	if status >= http.StatusInternalServerError || kind == catalog.KindIntegrity {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		slog.Info("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func publicMessage(err error, status int) string {
	var validationErr *catalog.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case status == http.StatusUnauthorized:
		return "Authentication required"
	case status == http.StatusForbidden:
		return "Admin access required"
	case errors.Is(err, catalog.ErrSongNotFound):
		return "Song not found"
	case errors.Is(err, catalog.ErrAlbumNotFound):
		return "Album not found"
	case status == http.StatusConflict:
		return "Catalog integrity violation"
	case status == http.StatusBadGateway:
		return "Upload failed"
	default:
		return "Internal server error"
	}
}
