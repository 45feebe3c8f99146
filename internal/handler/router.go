package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	authhandler "github.com/nlin-dev/chatrelay/internal/handler/auth"
	chathandler "github.com/nlin-dev/chatrelay/internal/handler/chat"
	"github.com/nlin-dev/chatrelay/internal/middleware"
	authservice "github.com/nlin-dev/chatrelay/internal/service/auth"
	"github.com/nlin-dev/chatrelay/internal/service/session"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(authSvc *authservice.Service, controller *session.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth", func(api chi.Router) {
		authhandler.New(authSvc).RegisterRoutes(api)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireAuth(authSvc))
		chathandler.New(controller).RegisterRoutes(protected)
	})

	return r
}
