package authenticate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"momento/entity"
	"momento/lib/api/cont"
	"momento/lib/api/request"
	"momento/lib/api/response"
	"momento/lib/sl"
)

type Authenticate interface {
	AuthenticateByToken(ctx context.Context, token string) (*entity.User, error)
}

// New checks the bearer token of admin requests and puts the user into the
// request context.
func New(log *slog.Logger, auth Authenticate) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.authenticate")
	log.With(mod).Info("authenticate middleware initialized")

	return func(next http.Handler) http.Handler {

		fn := func(w http.ResponseWriter, r *http.Request) {
			logger := log.With(
				mod,
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", request.ClientIP(r)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Debug("token not found")
				authFailed(w, r, "Token not found")
				return
			}

			if auth == nil {
				authFailed(w, r, "Unauthorized: authentication not enabled")
				return
			}

			user, err := auth.AuthenticateByToken(r.Context(), token)
			if err != nil {
				logger.With(
					sl.Secret("token", token),
					sl.Topic(entity.TopicSecurity),
					sl.Err(err),
				).Warn("authentication failed")
				authFailed(w, r, "Unauthorized: token not found")
				return
			}

			w.Header().Set("X-User", user.Username)
			next.ServeHTTP(w, r.WithContext(cont.PutUser(r.Context(), user)))
		}

		return http.HandlerFunc(fn)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func authFailed(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, response.Error(message))
}
