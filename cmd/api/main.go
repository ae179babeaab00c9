package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/joho/godotenv"

	"github.com/herald/herald-go/internal/config"
	"github.com/herald/herald-go/internal/crypto"
	"github.com/herald/herald-go/internal/handler"
	"github.com/herald/herald-go/internal/ledger"
	"github.com/herald/herald-go/internal/mailer"
	"github.com/herald/herald-go/internal/metrics"
	"github.com/herald/herald-go/internal/model"
	"github.com/herald/herald-go/internal/realtime"
	"github.com/herald/herald-go/internal/repository"
	"github.com/herald/herald-go/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Env == "production" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	db, err := repository.NewDB(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		slog.Error("database setup failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := repository.Migrate(context.Background(), db, cfg.DatabaseDriver); err != nil {
		slog.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	users := repository.NewUserRepository(db)
	tokens := crypto.NewTokenService(cfg.JWTSecret, cfg.SessionTTL, cfg.ResetTTL)
	hasher := crypto.NewHasher(crypto.DefaultHashParams(), cfg.HashWorkers)
	profiles := expirable.NewLRU[int64, model.UserResponse](cfg.UserCacheSize, nil, cfg.UserCacheTTL)

	var consumed service.Ledger
	if cfg.RedisURL != "" {
		redisLedger, err := ledger.NewRedisLedger(context.Background(), cfg.RedisURL)
		if err != nil {
			slog.Error("redis ledger setup failed", "error", err)
			os.Exit(1)
		}
		defer redisLedger.Close()
		consumed = redisLedger
		slog.Info("consumed tokens tracked in redis")
	} else {
		tokenRepo := repository.NewConsumedTokenRepository(db)
		purge, err := ledger.SchedulePurge(cfg.LedgerPurgeSchedule, tokenRepo)
		if err != nil {
			slog.Error("ledger purge setup failed", "error", err)
			os.Exit(1)
		}
		defer func() { <-purge.Stop().Done() }()
		consumed = tokenRepo
	}

	var mail mailer.Mailer = mailer.LogMailer{}
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		slog.Warn("SMTP_HOST not set, reset emails are only logged")
	}

	gateway := realtime.NewGateway(m)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), gateway, cfg.PushPolicy, m)
	authService := service.NewAuthService(users, tokens, hasher, profiles, notifications, m)
	resetService := service.NewResetService(users, tokens, hasher, consumed, mail, notifications, m, cfg.ResetURLBase)

	router := handler.NewRouter(handler.Services{
		Auth:          authService,
		Reset:         resetService,
		Notifications: notifications,
		Realtime:      realtime.NewHandler(gateway, authService, m),
		Metrics:       m.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.Env, "driver", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Websocket connections are hijacked, so Shutdown does not wait for them.
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}

	resetService.Wait()
	slog.Info("server stopped")
}
