package ratelimit

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"momento/entity"
	"momento/internal/ratelimit"
	"momento/lib/api/request"
	"momento/lib/api/response"
	"momento/lib/sl"
)

type Metrics interface {
	RateLimited()
}

// New throttles requests per client IP. Limiter failures let the request through.
func New(log *slog.Logger, limiter ratelimit.Limiter, metrics Metrics) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.ratelimit")

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ip := request.ClientIP(r)
			allowed, retryAfter, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				log.With(
					mod,
					slog.String("request_id", middleware.GetReqID(r.Context())),
					sl.Err(err),
				).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if metrics != nil {
					metrics.RateLimited()
				}
				log.With(
					mod,
					slog.String("remote_addr", ip),
					slog.String("path", r.URL.Path),
					sl.Topic(entity.TopicSecurity),
				).Debug("rate limited")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retryAfter.Seconds()))))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("Too many requests. Please wait a moment and try again."))
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
