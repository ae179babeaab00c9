package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/herald/herald-go/internal/middleware"
	"github.com/herald/herald-go/internal/service"
)

// Services are the collaborators the router dispatches to.
type Services struct {
	Auth          *service.AuthService
	Reset         *service.ResetService
	Notifications *service.NotificationService
	Realtime      http.Handler
	Metrics       http.Handler
}

// NewRouter builds the HTTP surface: the JSON API under /api/v1 plus the
// websocket, health and metrics endpoints.
func NewRouter(s Services) http.Handler {
	authHandler := NewAuthHandler(s.Auth)
	resetHandler := NewResetHandler(s.Reset)
	notificationHandler := NewNotificationHandler(s.Notifications)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}
	if s.Realtime != nil {
		r.Method(http.MethodGet, "/ws", s.Realtime)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/check-email", resetHandler.HandleCheckEmail)
		r.Post("/changePassword", resetHandler.HandleChangePassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.Auth))
			r.Get("/whoami", authHandler.HandleWhoami)
			r.Get("/users", authHandler.HandleListUsers)
			r.Get("/notifications", notificationHandler.HandleList)
		})
	})

	return r
}
