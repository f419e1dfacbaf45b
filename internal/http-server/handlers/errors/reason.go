package errors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"momento/impl/access"
	"momento/lib/api/response"
	"momento/lib/sl"
)

var statuses = map[access.Reason]int{
	access.ReasonNotFound:         http.StatusNotFound,
	access.ReasonInactive:         http.StatusForbidden,
	access.ReasonExpired:          http.StatusGone,
	access.ReasonLimitReached:     http.StatusConflict,
	access.ReasonFileTooLarge:     http.StatusRequestEntityTooLarge,
	access.ReasonInvalidType:      http.StatusUnsupportedMediaType,
	access.ReasonFileLimitReached: http.StatusConflict,
	access.ReasonInvalidTable:     http.StatusBadRequest,
	access.ReasonStoreError:       http.StatusServiceUnavailable,
}

// Status maps a rejection reason to its HTTP status.
func Status(reason access.Reason) int {
	if s, ok := statuses[reason]; ok {
		return s
	}
	return http.StatusBadRequest
}

// Rejected writes err as a guest-facing response. Rejections carry their
// reason and message; anything else is logged and reported as a store error
// without internal details.
func Rejected(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	reason, ok := access.ReasonOf(err)
	if ok {
		logger.With(slog.String("reason", string(reason))).Debug("rejected")
	} else {
		logger.Error("store call failed", sl.Err(err))
	}
	render.Status(r, Status(reason))
	render.JSON(w, r, response.Rejected(string(reason), reason.Message()))
}
