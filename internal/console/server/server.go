package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/yardwatch/internal/console/handler"
	"github.com/xela07ax/yardwatch/internal/domain"
	"github.com/xela07ax/yardwatch/internal/engine"
	"github.com/xela07ax/yardwatch/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка RS256 токенов, реализуется AuthService
	authValidator auth.TokenValidator

	authHandler     *handler.AuthHandler     // /auth/token
	overrideHandler *handler.OverrideHandler // /v1/overrides
	alertHandler    *handler.AlertHandler    // /v1/alerts
}

func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	overrideH *handler.OverrideHandler,
	alertH *handler.AlertHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		authHandler:     authH,
		overrideHandler: overrideH,
		alertHandler:    alertH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(engine.TracingMiddleware)
	r.Use(engine.AccessLog(s.logger))
	r.Use(middleware.Recoverer)

	// Публичные роуты
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// Защищенный периметр (RS256)
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.With(auth.RequireScope(domain.ScopeAlerts)).Get("/v1/alerts", s.alertHandler.List)

		r.Route("/v1/overrides", func(r chi.Router) {
			r.Get("/", s.overrideHandler.List)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireScope(domain.ScopeOverrides))
				r.Put("/{trackID}", s.overrideHandler.Put)
				r.Delete("/{trackID}", s.overrideHandler.Delete)
			})
		})
	})
}

func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
