package httpapi

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/clanhall/authcore/internal/config"
	"github.com/clanhall/authcore/internal/gate"
	"github.com/clanhall/authcore/internal/identity"
	"github.com/clanhall/authcore/internal/keys"
	"github.com/clanhall/authcore/internal/token"
)

// Deps collects the collaborators the route table needs.
type Deps struct {
	Config    *config.Config
	Keys      *keys.Manager
	Issuer    *token.Issuer
	Validator *token.Validator
	Registry  *identity.Registry
	Linker    *identity.Linker
	Logger    *slog.Logger
}

// MountRoutes attaches all endpoints to the router: the OIDC surface, the
// provider exchange, and the three transport gates. Every HTTP route runs
// behind the auth gate; its allow-list keeps the public endpoints open. The
// WebSocket endpoint sits outside the gate because STOMP authenticates at
// CONNECT frame time, not at upgrade time.
func MountRoutes(r chi.Router, d Deps) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	discovery := NewDiscoveryHandler(d.Config.Issuer())
	jwksHandler := NewJWKSHandler(d.Keys, logger)
	tokenHandler := NewTokenHandler(d.Issuer, logger)
	userInfoHandler := NewUserInfoHandler(d.Validator, logger)
	exchangeHandler := NewExchangeHandler(d.Registry, d.Linker, d.Issuer, logger)

	httpGate := gate.NewHTTPGate(
		d.Validator,
		d.Config.ParsePublicPaths(),
		d.Config.SessionCookieName,
		gate.WithHTTPGateLogger(logger),
	)

	schema, err := gate.NewSchema()
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}
	graphqlGate := gate.NewGraphQLGate(schema, gate.WithGraphQLGateLogger(logger))

	r.Group(func(pr chi.Router) {
		pr.Use(httpGate.Middleware)

		pr.Get("/.well-known/openid-configuration", discovery.OpenIDConfiguration)
		pr.Get("/oauth2/jwks.json", jwksHandler.JWKS)
		pr.Get("/userinfo", userInfoHandler.UserInfo)
		pr.Handle("/graphql", graphqlGate)

		// Token issuance endpoints are the brute-force surface.
		pr.Group(func(tr chi.Router) {
			tr.Use(httprate.LimitByIP(d.Config.TokenRateLimit, time.Minute))

			tr.Post("/oauth2/token", tokenHandler.Token)
			tr.Post("/oauth2/revoke", tokenHandler.Revoke)
			tr.Post("/auth/{provider}/exchange", exchangeHandler.Exchange)
		})
	})

	stompGate := gate.NewSTOMPGate(
		d.Validator,
		d.Config.SessionCookieName,
		gate.WithSTOMPGateLogger(logger),
	)
	r.Handle("/ws", stompGate.Handler())

	return nil
}
