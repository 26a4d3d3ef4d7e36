package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kavrelis/streamtube/internal/service"
	"github.com/kavrelis/streamtube/pkg/health"
	"github.com/kavrelis/streamtube/pkg/middleware"
)

// RouterConfig bundles the handler dependencies.
type RouterConfig struct {
	UserService  *service.UserService
	VideoService *service.VideoService
	Health       *health.Handler
	Cookies      CookieConfig
	CORS         middleware.CORSConfig
	Tracing      bool
	Logger       *slog.Logger
}

// NewRouter creates the chi router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	if cfg.Tracing {
		r.Use(middleware.Tracing("streamtube"))
	}
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("streamtube"))

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(cfg.UserService, cfg.Cookies, cfg.Logger)
	userHandler := NewUserHandler(cfg.UserService, cfg.Logger)
	videoHandler := NewVideoHandler(cfg.VideoService, cfg.Logger)

	gate := Authenticate(cfg.UserService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(gate)
				r.Post("/logout", authHandler.Logout)
				r.Post("/change-password", authHandler.ChangePassword)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(gate)

			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.UpdateMe)
			r.Patch("/me/avatar", userHandler.UpdateAvatar)
			r.Patch("/me/cover-image", userHandler.UpdateCoverImage)
			r.Get("/me/history", userHandler.History)
			r.With(middleware.CacheControl(60)).Get("/{username}/channel", userHandler.Channel)
		})

		r.Route("/videos", func(r chi.Router) {
			r.Use(gate)

			r.Get("/", videoHandler.List)
			r.Post("/", videoHandler.Create)
			r.Get("/{id}", videoHandler.Get)
		})
	})

	return r
}
