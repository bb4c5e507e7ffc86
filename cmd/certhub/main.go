package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"certhub/internal/app"
	"certhub/internal/auth"
	"certhub/internal/config"
	"certhub/internal/recaptcha"
	"certhub/internal/registry"
	"certhub/internal/server"
	"certhub/internal/session"
	"certhub/internal/storage"
	"certhub/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session ttl: %v", err)
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioRegion, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	var sessions session.Store
	switch cfg.SessionBackend {
	case "redis":
		sessions = session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, sessionTTL)
	default:
		sessions = session.NewMemoryStore(sessionTTL)
	}

	appCore := app.New(registry.New(), objects, cfg.MinioBucket)

	httpServer := server.New(server.Config{
		App:        appCore,
		Gate:       auth.NewGate(cfg.AdminUsername, cfg.AdminPassword),
		Sessions:   sessions,
		Recaptcha:  recaptcha.NewClient(cfg.RecaptchaSecret),
		SessionTTL: sessionTTL,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("certhub listening", "addr", addr, "sessionBackend", cfg.SessionBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
