package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/chirp-be/internal/api/handlers"
	"github.com/isdelr/chirp-be/internal/auth"
	"github.com/isdelr/chirp-be/internal/logger"
	"github.com/isdelr/chirp-be/internal/metrics"
	"github.com/isdelr/chirp-be/internal/services"
	"github.com/isdelr/chirp-be/internal/websocket"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "chirp-be"

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Users         services.UserServiceProvider
	Posts         services.PostServiceProvider
	Follows       services.FollowServiceProvider
	Notifications services.NotificationServiceProvider
	Tokens        *auth.TokenService
	Hub           *websocket.Hub

	CORSAllowedOrigins []string
	AuthRateLimit      float64
	AuthRateBurst      int
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	gate := auth.NewGate(d.Tokens)
	limiter := NewRateLimiter(d.AuthRateLimit, d.AuthRateBurst)

	authHandler := handlers.NewAuthHandler(d.Users, d.Tokens)
	userHandler := handlers.NewUserHandler(d.Users)
	postHandler := handlers.NewPostHandler(d.Posts)
	followHandler := handlers.NewFollowHandler(d.Follows)
	notificationHandler := handlers.NewNotificationHandler(d.Notifications)
	wsHandler := handlers.NewWebSocketHandler(d.Hub, gate, d.Notifications)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "service": ServiceName})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// The websocket authenticates itself so it can accept ?token=.
		r.Get("/ws", wsHandler.Serve)

		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.Handler).Post("/signup", authHandler.Signup)
			r.With(limiter.Handler).Post("/login", authHandler.Login)
			r.With(gate.Require).Get("/me", authHandler.Me)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(gate.Require).Get("/me", userHandler.Me)
			r.Get("/{userId}", userHandler.Get)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", postHandler.List)
			r.With(gate.Require).Post("/", postHandler.Create)
			r.With(gate.Require).Get("/me", postHandler.Mine)
			r.Get("/user/{userId}", postHandler.ByUser)
		})

		r.Route("/follow/{userId}", func(r chi.Router) {
			r.With(gate.Require).Post("/", followHandler.Follow)
			r.With(gate.Require).Delete("/", followHandler.Unfollow)
			r.Get("/followers", followHandler.Followers)
			r.Get("/following", followHandler.Following)
			r.With(gate.Require).Get("/status", followHandler.Status)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(gate.Require)
			r.Get("/", notificationHandler.List)
			r.Get("/unread-count", notificationHandler.UnreadCount)
			r.Patch("/read-all", notificationHandler.MarkAllRead)
			r.Patch("/{id}/read", notificationHandler.MarkRead)
		})
	})

	return r
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
