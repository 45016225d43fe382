// Package main is the entry point for the authcore token authority.
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

	"github.com/joho/godotenv"

	"github.com/clanhall/authcore/internal/config"
	"github.com/clanhall/authcore/internal/domain"
	"github.com/clanhall/authcore/internal/httpapi"
	"github.com/clanhall/authcore/internal/identity"
	"github.com/clanhall/authcore/internal/jwks"
	"github.com/clanhall/authcore/internal/keys"
	"github.com/clanhall/authcore/internal/store/sqlite"
	"github.com/clanhall/authcore/internal/token"
)

func main() {
	// Local development convenience; missing .env files are fine.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLogLevel(cfg.LogLevel),
		})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Initialize SQLite store
	st, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("initialized sqlite store", "path", cfg.DatabasePath)

	// Load or generate the signing key
	manager, err := loadKeys(cfg, logger)
	if err != nil {
		logger.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}

	logger.Info("signing key ready", "kid", manager.Kid())

	// Publish the JWKS and issuer identity to the shared config store so
	// dependent services can validate our tokens.
	ctx := context.Background()
	publisher := jwks.NewPublisher(manager, st.SharedConfig(), cfg.Issuer(), cfg.Audience,
		jwks.WithPublisherLogger(logger))
	if err := publisher.Publish(ctx); err != nil {
		logger.Error("failed to publish JWKS", "error", err)
		os.Exit(1)
	}

	// The validator reads keys back through the shared config store, the
	// same path dependent services use.
	cache := jwks.NewCache(
		jwks.NewConfigSource(st.SharedConfig(), domain.ConfigKeyJWKS),
		cfg.JWKSCacheTTL,
		jwks.WithCacheLogger(logger),
	)
	validator := token.NewValidator(cache, cfg.Issuer(), cfg.Audience,
		token.WithSessionStore(st.Sessions()),
		token.WithValidatorLogger(logger),
	)

	issuer := token.NewIssuer(manager, st.Sessions(), st.Users(),
		cfg.Issuer(), cfg.Audience,
		cfg.AccessTokenTTL, cfg.IDTokenTTL, cfg.RefreshTokenTTL,
		token.WithIssuerLogger(logger),
	)

	registry := identity.NewRegistry(
		identity.NewGoogleVerifier(cfg.GoogleJWKSURL, cfg.GoogleIssuer, cfg.GoogleClientID,
			cfg.JWKSFetchTimeout, cfg.JWKSCacheTTL),
		identity.NewAppleVerifier(cfg.AppleIssuer, cfg.AppleClientID),
	)
	linker := identity.NewLinker(st.Users(), identity.WithLinkerLogger(logger))

	logger.Info("identity providers registered", "providers", registry.Names())

	// Create HTTP server
	server := httpapi.NewServer(cfg.Addr(), httpapi.WithLogger(logger))
	if err := httpapi.MountRoutes(server.Router(), httpapi.Deps{
		Config:    cfg,
		Keys:      manager,
		Issuer:    issuer,
		Validator: validator,
		Registry:  registry,
		Linker:    linker,
		Logger:    logger,
	}); err != nil {
		logger.Error("failed to mount routes", "error", err)
		os.Exit(1)
	}

	// Start server in goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("server started", "addr", cfg.Addr(), "issuer", cfg.Issuer())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// loadKeys builds the key manager from configured PEM material, falling
// back to an ephemeral generated key for development.
func loadKeys(cfg *config.Config, logger *slog.Logger) (*keys.Manager, error) {
	switch {
	case cfg.SigningKeyPEM != "":
		return keys.LoadPEM([]byte(cfg.SigningKeyPEM), keys.WithLogger(logger))
	case cfg.SigningKeyFile != "":
		return keys.LoadFile(cfg.SigningKeyFile, keys.WithLogger(logger))
	default:
		return keys.Generate(keys.WithLogger(logger))
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
