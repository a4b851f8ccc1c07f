package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/isdelr/bookmarks-be/internal/api"
	"github.com/isdelr/bookmarks-be/internal/auth"
	"github.com/isdelr/bookmarks-be/internal/config"
	"github.com/isdelr/bookmarks-be/internal/database"
	"github.com/isdelr/bookmarks-be/internal/imagefetch"
	"github.com/isdelr/bookmarks-be/internal/logger"
	"github.com/isdelr/bookmarks-be/internal/mail"
	"github.com/isdelr/bookmarks-be/internal/monitoring"
	"github.com/isdelr/bookmarks-be/internal/services"
	"github.com/isdelr/bookmarks-be/internal/store"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Init(cfg.LogLevel, !cfg.IsProduction()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(2)
	}

	// Set up database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("dialect", string(database.DetectDialect(cfg.DatabaseURL))).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}
	st := store.New(db)

	// Set up sessions
	sessionStore, closeSessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session store")
	}
	defer closeSessions()

	sessions := auth.NewManager(sessionStore, auth.ManagerConfig{
		Secret: []byte(cfg.SessionSecret),
		TTL:    cfg.SessionTTL,
		Secure: cfg.IsProduction(),
	})

	// Set up mail delivery
	var mailer mail.Sender
	if cfg.ResendAPIKey != "" {
		mailer = mail.NewResendSender(cfg.ResendAPIKey, cfg.MailFrom)
	} else {
		log.Warn().Msg("RESEND_API_KEY is not set, emails will only be logged")
		mailer = mail.NewLogSender()
	}

	guard := imagefetch.New(
		imagefetch.WithTimeout(cfg.ImageFetchTimeout),
		imagefetch.WithMaxBytes(cfg.ImageMaxBytes),
	)

	// Set up services
	eventService := services.NewEventService(st)
	userService, err := services.NewUserService(st, mailer, eventService, services.UserServiceConfig{
		BaseURL:    cfg.BaseURL,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user service")
	}
	collectionService := services.NewCollectionService(st, eventService)
	bookmarkService := services.NewBookmarkService(st, guard, eventService)

	// Set up and run the background scheduler
	scheduler, err := monitoring.NewScheduler(cfg.SweepSchedule, sessions, st)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	go scheduler.Run()

	// Set up router
	router := api.NewRouter(sessions, cfg.AllowedOrigins, userService, collectionService, bookmarkService, eventService)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

// newSessionStore builds the configured session backend and a func that
// releases it.
func newSessionStore(cfg *config.Config) (auth.SessionStore, func(), error) {
	if cfg.SessionStore != "redis" {
		return auth.NewMemoryStore(), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", opts.Addr).Msg("Using redis session store")

	return auth.NewRedisStore(client), func() { _ = client.Close() }, nil
}
