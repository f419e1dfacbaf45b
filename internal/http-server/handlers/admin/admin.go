package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"momento/entity"
	"momento/impl/core"
	"momento/lib/api/cont"
	"momento/lib/api/response"
	"momento/lib/sl"
)

const (
	defaultUsageLimit = 100
	maxUsageLimit     = 1000
)

type Core interface {
	ListCodes(ctx context.Context, kind entity.Kind) ([]*entity.AccessCode, error)
	CreateCode(ctx context.Context, kind entity.Kind, req *entity.CreateCodeRequest, createdBy string) (*entity.AccessCode, error)
	GetCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error)
	SetCodeActive(ctx context.Context, kind entity.Kind, code string, active bool) (*entity.AccessCode, error)
	ResetUsage(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error)
	DeleteCode(ctx context.Context, kind entity.Kind, code string) error
	ListUsage(ctx context.Context, kind entity.Kind, code string, limit int) ([]*entity.UsageRecord, error)
	CodeStats(ctx context.Context, kind entity.Kind, code string) (*entity.UsageStats, error)
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}
		records, err := handler.ListCodes(r.Context(), kind)
		if err != nil {
			failed(w, r, logger, "list codes", err)
			return
		}
		render.JSON(w, r, response.Ok(records))
	}
}

func Create(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}

		var req entity.CreateCodeRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		record, err := handler.CreateCode(r.Context(), kind, &req, cont.UserName(r.Context()))
		if err != nil {
			failed(w, r, logger, "create code", err)
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.Ok(record))
	}
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}
		record, err := handler.GetCode(r.Context(), kind, chi.URLParam(r, "code"))
		if err != nil {
			failed(w, r, logger, "get code", err)
			return
		}
		render.JSON(w, r, response.Ok(record))
	}
}

func SetActive(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}

		var req entity.SetActiveRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		record, err := handler.SetCodeActive(r.Context(), kind, chi.URLParam(r, "code"), *req.Active)
		if err != nil {
			failed(w, r, logger, "set active", err)
			return
		}
		render.JSON(w, r, response.Ok(record))
	}
}

func Reset(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}
		record, err := handler.ResetUsage(r.Context(), kind, chi.URLParam(r, "code"))
		if err != nil {
			failed(w, r, logger, "reset usage", err)
			return
		}
		render.JSON(w, r, response.Ok(record))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}
		if err := handler.DeleteCode(r.Context(), kind, chi.URLParam(r, "code")); err != nil {
			failed(w, r, logger, "delete code", err)
			return
		}
		render.JSON(w, r, response.Ok(nil))
	}
}

// Usage lists usage records newest first; ?limit= caps the count.
func Usage(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}

		limit := defaultUsageLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("Invalid limit"))
				return
			}
			limit = min(n, maxUsageLimit)
		}

		records, err := handler.ListUsage(r.Context(), kind, chi.URLParam(r, "code"), limit)
		if err != nil {
			failed(w, r, logger, "list usage", err)
			return
		}
		render.JSON(w, r, response.Ok(records))
	}
}

func Stats(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger, kind, ok := begin(log, w, r)
		if !ok {
			return
		}
		stats, err := handler.CodeStats(r.Context(), kind, chi.URLParam(r, "code"))
		if err != nil {
			failed(w, r, logger, "code stats", err)
			return
		}
		render.JSON(w, r, response.Ok(stats))
	}
}

// begin builds the request logger and reads the {kind} path parameter.
func begin(log *slog.Logger, w http.ResponseWriter, r *http.Request) (*slog.Logger, entity.Kind, bool) {
	kind := entity.Kind(chi.URLParam(r, "kind"))
	logger := log.With(
		sl.Module("http.handlers.admin"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("kind", string(kind)),
	)
	if name := cont.UserName(r.Context()); name != "" {
		logger = logger.With(slog.String("user", name))
	}
	if !kind.Valid() {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error(fmt.Sprintf("Unknown code kind: %s", kind)))
		return logger, kind, false
	}
	if code := chi.URLParam(r, "code"); code != "" {
		logger = logger.With(sl.Code(string(kind), entity.NormalizeCode(code)))
	}
	return logger, kind, true
}

func failed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.Error("Code not found"))
	case errors.Is(err, core.ErrCodeExists):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, response.Error("Code already exists"))
	case errors.Is(err, core.ErrInvalid):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(err.Error()))
	default:
		logger.Error(op, sl.Err(err))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("Service temporarily unavailable"))
	}
}
