package code

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"momento/entity"
	"momento/impl/access"
	apierr "momento/internal/http-server/handlers/errors"
	"momento/lib/api/request"
	"momento/lib/api/response"
	"momento/lib/sl"
)

type Core interface {
	ValidateCode(ctx context.Context, kind entity.Kind, code string) (*entity.AccessCode, error)
	ConsumeCode(ctx context.Context, kind entity.Kind, code string, in entity.UsageInput) (*entity.UsageRecord, error)
}

// Validate is the read-only check behind the entry pages. Rejected codes are
// a normal answer with valid=false; only store failures change the status.
func Validate(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.code")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.ValidateCodeRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(sl.Code(string(req.Kind), entity.NormalizeCode(req.Code)))

		record, err := handler.ValidateCode(r.Context(), req.Kind, req.Code)
		if err != nil {
			reason, rejected := access.ReasonOf(err)
			if !rejected {
				logger.Error("validate code", sl.Err(err))
				render.Status(r, apierr.Status(reason))
			}
			render.JSON(w, r, response.Ok(entity.ValidateCodeResponse{
				Valid:  false,
				Error:  reason.Message(),
				Reason: string(reason),
			}))
			return
		}

		render.JSON(w, r, response.Ok(entity.ValidateCodeResponse{
			Valid:  true,
			Record: record,
		}))
	}
}

// Access consumes one use of a code for guest entry.
func Access(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := sl.Module("http.handlers.code")

		logger := log.With(
			mod,
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req entity.AccessRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Debug("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(sl.Code(string(req.Kind), entity.NormalizeCode(req.Code)))

		record, err := handler.ConsumeCode(r.Context(), req.Kind, req.Code, entity.UsageInput{
			UserId:    req.UserId,
			UserAgent: r.UserAgent(),
			IpAddress: request.ClientIP(r),
		})
		if err != nil {
			apierr.Rejected(w, r, logger, err)
			return
		}
		logger.With(slog.String("usage_id", record.Id)).Debug("access granted")

		render.JSON(w, r, response.Ok(record))
	}
}
