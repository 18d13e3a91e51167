package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/internal/config"
	"pairchat/internal/domain"
	"pairchat/internal/handler"
	"pairchat/internal/messaging"
	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	"pairchat/internal/repository/postgres"
	"pairchat/internal/service"
	"pairchat/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting chat server")

	connCtx, connCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	if err := db.PingContext(connCtx); err != nil {
		slog.Error("database ping failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	mqCtx, mqCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer mqCancel()

	backplane, err := messaging.NewBackplaneWithRetry(mqCtx, cfg.RabbitMQURL)
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer backplane.Close()
	slog.Info("broadcast backplane connected",
		slog.String("instance_id", backplane.InstanceID()))

	userRepo := postgres.NewUserRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	sessionRepo, err := postgres.NewSessionRepository(db)
	if err != nil {
		slog.Error("failed to prepare session repository", slog.String("error", err.Error()))
		os.Exit(1)
	}

	hub := websocket.NewHub()

	authService := service.NewAuthService(userRepo, sessionRepo)
	dispatch := service.NewDispatchService(messageRepo, hub, backplane)
	dispatch.SetStoreTimeout(cfg.StoreTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relayConsumer := messaging.NewRelayConsumer(backplane, hub)
	if err := relayConsumer.Start(ctx); err != nil {
		slog.Error("failed to start relay consumer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("relay consumer started")

	go startSessionCleanup(ctx, sessionRepo)
	go config.ReportPoolStats(ctx, db, 15*time.Second)

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)

	authHandler := handler.NewAuthHandler(authService)
	historyHandler := handler.NewHistoryHandler(dispatch, authService)
	wsHandler := handler.NewWebSocketHandler(hub, dispatch, authService, origins)

	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS(origins))
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(db, backplane))
	r.Handle("/metrics", promhttp.Handler())

	authLimiter := middleware.NewRateLimiter(5, 10)
	defer authLimiter.Stop()
	apiLimiter := middleware.NewRateLimiter(20, 50)
	defer apiLimiter.Stop()

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authLimiter.Middleware())
			r.Post("/auth/register", authHandler.Register)
			r.Post("/auth/login", authHandler.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(sessionRepo))
			r.Use(apiLimiter.Middleware())

			r.Get("/auth/me", authHandler.Me)
			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/messages/{peer}", historyHandler.GetMessages)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(sessionRepo))
		r.Get("/ws/chat", wsHandler.HandleConnection)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("chat server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	hub.Shutdown()
	cancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// startSessionCleanup runs a background task to delete expired sessions
func startSessionCleanup(ctx context.Context, repo domain.SessionRepository) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := repo.DeleteExpired(cleanupCtx)
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("session cleanup completed",
					slog.Int64("sessions_deleted", count))
			}
			cancel()
		}
	}
}
