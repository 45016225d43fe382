// Package config handles application configuration via environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the token authority.
type Config struct {
	// Server settings
	Host string `env:"AUTH_HOST" env-default:"0.0.0.0"`
	Port int    `env:"AUTH_PORT" env-default:"8080"`

	// Token identity (required for validation to mean anything)
	IssuerURL string `env:"AUTH_ISSUER_URL" env-default:"http://localhost:8080"`
	Audience  string `env:"AUTH_AUDIENCE" env-default:"clanhall-api"`

	// Storage settings
	DatabasePath string `env:"AUTH_DATABASE_PATH" env-default:"./data/authcore.db"`

	// Signing key material. When empty an ephemeral key pair is generated,
	// which invalidates all outstanding tokens on every restart.
	SigningKeyPEM  string `env:"AUTH_SIGNING_KEY_PEM"`
	SigningKeyFile string `env:"AUTH_SIGNING_KEY_FILE"`

	// Token settings
	AccessTokenTTL  time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" env-default:"15m"`
	IDTokenTTL      time.Duration `env:"AUTH_ID_TOKEN_TTL" env-default:"1h"`
	RefreshTokenTTL time.Duration `env:"AUTH_REFRESH_TOKEN_TTL" env-default:"720h"` // 30 days

	// JWKS distribution
	JWKSCacheTTL     time.Duration `env:"AUTH_JWKS_CACHE_TTL" env-default:"10m"`
	JWKSFetchTimeout time.Duration `env:"AUTH_JWKS_FETCH_TIMEOUT" env-default:"5s"`

	// Third-party identity providers
	GoogleIssuer   string `env:"AUTH_GOOGLE_ISSUER" env-default:"https://accounts.google.com"`
	GoogleJWKSURL  string `env:"AUTH_GOOGLE_JWKS_URL" env-default:"https://www.googleapis.com/oauth2/v3/certs"`
	GoogleClientID string `env:"AUTH_GOOGLE_CLIENT_ID"`
	AppleIssuer    string `env:"AUTH_APPLE_ISSUER" env-default:"https://appleid.apple.com"`
	AppleClientID  string `env:"AUTH_APPLE_CLIENT_ID"`

	// Paths the HTTP auth gate lets through without a token.
	// Comma-separated; prefix match.
	PublicPaths string `env:"AUTH_PUBLIC_PATHS" env-default:"/healthz,/readyz,/metrics,/.well-known,/oauth2/jwks.json,/oauth2/token,/oauth2/revoke,/auth"`

	// Session cookie carrying an access token for browser clients.
	SessionCookieName string `env:"AUTH_SESSION_COOKIE" env-default:"clanhall_token"`

	// Rate limiting for the token endpoints, requests per minute per IP.
	TokenRateLimit int `env:"AUTH_TOKEN_RATE_LIMIT" env-default:"30"`

	// Logging
	LogLevel  string `env:"AUTH_LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"AUTH_LOG_FORMAT" env-default:"json"` // json or text
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Addr returns the server address in host:port format.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Issuer returns the issuer URL without a trailing slash.
func (c *Config) Issuer() string {
	return strings.TrimSuffix(c.IssuerURL, "/")
}

// ParsePublicPaths splits the public path allow-list.
func (c *Config) ParsePublicPaths() []string {
	if c.PublicPaths == "" {
		return nil
	}

	var paths []string
	for _, p := range strings.Split(c.PublicPaths, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	return paths
}
