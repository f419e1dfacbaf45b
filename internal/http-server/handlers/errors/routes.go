package errors

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"momento/lib/api/response"
	"momento/lib/sl"
)

func NotFound(log *slog.Logger) http.HandlerFunc {
	return unrouted(log, http.StatusNotFound, "Requested resource not found")
}

func NotAllowed(log *slog.Logger) http.HandlerFunc {
	return unrouted(log, http.StatusMethodNotAllowed, "Method not allowed")
}

func unrouted(log *slog.Logger, status int, message string) http.HandlerFunc {
	log = log.With(sl.Module("http.handlers.errors"))
	return func(w http.ResponseWriter, r *http.Request) {
		log.With(
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		).Debug("no route")
		render.Status(r, status)
		render.JSON(w, r, response.Error(message))
	}
}
