package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bookhub/internal/util"
	"bookhub/services/web/internal/apiclient"
	"bookhub/services/web/internal/app"
	"bookhub/services/web/internal/config"
	"bookhub/services/web/internal/server"
	"bookhub/services/web/internal/session"
)

func main() {
	// A .env next to the binary is optional; real env vars win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("BOOKHUB_WEB_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	apiTimeout, err := config.ParseDuration("apiTimeout", cfg.APITimeout)
	if err != nil {
		log.Fatalf("failed to parse api timeout: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	sessions, closeSessions := newSessionProvider(cfg, sessionTTL)
	defer closeSessions()

	appCore, err := app.New(app.Config{
		API: apiclient.NewClient(cfg.APIBaseURL, &http.Client{Timeout: apiTimeout}),
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Sessions:                   sessions,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		TrustedProxies:             trusted,
		CORSAllowedOrigins:         cfg.CORSAllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownErr := make(chan error, 1)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		slog.Info("shutting down server", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctx)
	}()

	slog.Info("server listening", "addr", addr, "api", cfg.APIBaseURL, "session_backend", cfg.SessionBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		return
	}
	if err := <-shutdownErr; err != nil {
		logger.Error("shutdown error", "err", err)
		return
	}
	slog.Info("server stopped", "addr", addr)
}

func newSessionProvider(cfg config.FileConfig, ttl time.Duration) (session.Provider, func()) {
	cookie := session.CookieOptions{
		Name:   cfg.SessionCookieName,
		Secure: cfg.SessionCookieSecure,
		MaxAge: ttl,
	}
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		return session.NewKeyedProvider(session.NewMemoryBackend(ttl), cookie), func() {}
	case config.SessionBackendCookie:
		provider, err := session.NewCookieProvider(cfg.SessionSecret, ttl, cookie)
		if err != nil {
			log.Fatalf("failed to init cookie sessions: %v", err)
		}
		return provider, func() {}
	default:
		backend := session.NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, "", ttl)
		return session.NewKeyedProvider(backend, cookie), func() { _ = backend.Close() }
	}
}
