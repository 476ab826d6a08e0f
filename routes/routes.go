package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Dosada05/talent-vote/handlers"
	"github.com/Dosada05/talent-vote/middleware"
	"github.com/Dosada05/talent-vote/models"
)

const (
	voteRateLimitScope  = "votes"
	voteRateLimitWindow = time.Minute
)

// Dependencies собирает всё, что нужно роутеру.
type Dependencies struct {
	EventHandler      *handlers.EventHandler
	VoteHandler       *handlers.VoteHandler
	WebhookHandler    *handlers.WebhookHandler
	NavigationHandler *handlers.NavigationHandler
	AdminHandler      *handlers.AdminHandler
	WebSocketHandler  *handlers.WebSocketHandler

	Authenticator *middleware.Authenticator
	// Limiter может быть nil: тогда голосование не ограничивается.
	Limiter         middleware.Limiter
	VoteLimitPerMin int
	AllowedOrigins  []string
	SwaggerDocURL   string
	Logger          *slog.Logger
}

func SetupRoutes(router chi.Router, deps Dependencies) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(deps.SwaggerDocURL),
	))

	router.Route("/api", func(r chi.Router) {
		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/", deps.EventHandler.GetEvent)
			r.Get("/active-phase", deps.EventHandler.GetActivePhase)
			r.Get("/participants", deps.EventHandler.ListParticipants)
		})

		r.With(middleware.RateLimit(deps.Limiter, voteRateLimitScope, deps.VoteLimitPerMin, voteRateLimitWindow, deps.Logger)).
			Post("/votes", deps.VoteHandler.SubmitVote)

		// Шлюз аутентифицируется подписью, а не JWT.
		r.Post("/webhooks/gateway", deps.WebhookHandler.HandleGatewayWebhook)

		r.With(deps.Authenticator.OptionalAuthenticate).
			Get("/navigation", deps.NavigationHandler.GetNavigation)

		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.Authenticator.Authenticate)
			r.Use(middleware.RequireRole(models.RoleAdmin))

			r.Get("/gateway-events", deps.AdminHandler.ListGatewayEvents)
		})
	})

	router.Get("/ws/events/{eventID}", deps.WebSocketHandler.ServeWs)
}
