package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"momento/internal/config"
	"momento/internal/http-server/handlers/admin"
	"momento/internal/http-server/handlers/code"
	apierr "momento/internal/http-server/handlers/errors"
	"momento/internal/http-server/handlers/upload"
	"momento/internal/http-server/middleware/authenticate"
	"momento/internal/http-server/middleware/ratelimit"
	"momento/internal/http-server/middleware/requestlog"
	"momento/internal/http-server/middleware/timeout"
	limiter "momento/internal/ratelimit"
	"momento/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	code.Core
	upload.Core
	admin.Core
}

// Deps are the infrastructure pieces the router needs besides the core.
type Deps struct {
	Limiter  limiter.Limiter
	Metrics  ratelimit.Metrics
	Gatherer prometheus.Gatherer
}

// NewRouter builds the route tree. Guest routes are rate limited per IP;
// admin routes require a bearer token.
func NewRouter(conf *config.Config, log *slog.Logger, handler Handler, deps Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestlog.New(log))
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(apierr.NotFound(log))
	router.MethodNotAllowed(apierr.NotAllowed(log))

	if deps.Gatherer != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(guest chi.Router) {
			if deps.Limiter != nil {
				guest.Use(ratelimit.New(log, deps.Limiter, deps.Metrics))
			}
			guest.Route("/code", func(c chi.Router) {
				c.Use(timeout.Timeout(conf.Limits.RequestTimeout))
				c.Post("/validate", code.Validate(log, handler))
				c.Post("/access", code.Access(log, handler))
			})
			guest.Post("/upload", upload.Upload(log, handler, upload.Options{
				MaxUploadMB: conf.Limits.MaxUploadMB,
				Timeout:     conf.Limits.UploadTimeout,
			}))
		})

		v1.Route("/admin", func(adm chi.Router) {
			adm.Use(timeout.Timeout(conf.Limits.RequestTimeout))
			adm.Use(authenticate.New(log, handler))
			adm.Route("/codes/{kind}", func(codes chi.Router) {
				codes.Get("/", admin.List(log, handler))
				codes.Post("/", admin.Create(log, handler))
				codes.Route("/{code}", func(one chi.Router) {
					one.Get("/", admin.Get(log, handler))
					one.Delete("/", admin.Delete(log, handler))
					one.Put("/active", admin.SetActive(log, handler))
					one.Post("/reset", admin.Reset(log, handler))
					one.Get("/usage", admin.Usage(log, handler))
					one.Get("/stats", admin.Stats(log, handler))
				})
			})
		})
	})

	return router
}

// New starts serving and blocks until ctx is cancelled or the listener fails.
func New(ctx context.Context, conf *config.Config, log *slog.Logger, handler Handler, deps Deps) error {
	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:           NewRouter(conf, log, handler, deps),
		ErrorLog:          httpLog,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.httpServer.Shutdown(shutdownCtx); err != nil {
			server.log.Error("shutdown", sl.Err(err))
		}
	}()

	server.log.Info("starting api server", slog.String("address", serverAddress))

	err = server.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
