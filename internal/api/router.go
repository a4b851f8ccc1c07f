package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/isdelr/bookmarks-be/internal/api/handlers"
	"github.com/isdelr/bookmarks-be/internal/api/respond"
	"github.com/isdelr/bookmarks-be/internal/auth"
	"github.com/isdelr/bookmarks-be/internal/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// MaxBodyBytes caps request bodies; embedded favicons make bookmark payloads
// larger than typical JSON.
const MaxBodyBytes = 8 << 20

// NewRouter creates and configures a new Chi router.
func NewRouter(
	sessions *auth.Manager,
	allowedOrigins []string,
	userService services.UserServiceProvider,
	collectionService services.CollectionServiceProvider,
	bookmarkService services.BookmarkServiceProvider,
	eventService services.EventServiceProvider,
) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(requestIDLogger)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(limitBody(MaxBodyBytes))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", auth.CSRFHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService, sessions)
	collectionHandler := handlers.NewCollectionHandler(collectionService)
	bookmarkHandler := handlers.NewBookmarkHandler(bookmarkService)
	eventHandler := handlers.NewEventHandler(eventService)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Use(auth.CSRFMiddleware)

		r.Get("/csrf-token", userHandler.CSRFToken)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", userHandler.Register)
			r.Post("/login", userHandler.Login)
			r.Post("/logout", userHandler.Logout)
			r.Get("/me", userHandler.GetMe)
			r.Get("/verify-email", userHandler.VerifyEmail)
			r.Post("/request-password-reset", userHandler.RequestPasswordReset)
			r.Post("/reset-password", userHandler.ResetPassword)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)

			r.Route("/collections", func(r chi.Router) {
				r.Get("/", collectionHandler.GetAll)
				r.Post("/", collectionHandler.Create)
				r.Patch("/{id}", collectionHandler.Update)
				r.Delete("/{id}", collectionHandler.Delete)
			})

			r.Route("/bookmarks", func(r chi.Router) {
				r.Get("/", bookmarkHandler.GetAll)
				r.Post("/", bookmarkHandler.Create)
				r.Patch("/{id}", bookmarkHandler.Update)
				r.Delete("/{id}", bookmarkHandler.Delete)
			})

			r.Get("/events", eventHandler.GetRecent)
		})
	})

	return r
}

// requestIDLogger adds chi's request id to the request logger.
func requestIDLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			logger := zerolog.Ctx(r.Context())
			logger.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("Request handled")
}

func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}
