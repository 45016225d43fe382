package jwks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clanhall/authcore/internal/domain"
	"github.com/clanhall/authcore/internal/keys"
	"github.com/clanhall/authcore/internal/store"
)

// Publisher writes the issuing service's JWKS and token identity into the
// shared config store for dependent services to pick up. It runs once at
// startup and may be re-invoked to republish.
type Publisher struct {
	manager  *keys.Manager
	repo     store.SharedConfigRepository
	issuer   string
	audience string
	logger   *slog.Logger
}

// PublisherOption configures the Publisher.
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger for the publisher.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

// NewPublisher creates a Publisher for the given key manager and store.
func NewPublisher(manager *keys.Manager, repo store.SharedConfigRepository, issuer, audience string, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		manager:  manager,
		repo:     repo,
		issuer:   issuer,
		audience: audience,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish upserts the JWKS document and the issuer/audience identity rows.
func (p *Publisher) Publish(ctx context.Context) error {
	doc, err := p.manager.JWKSJSON()
	if err != nil {
		return fmt.Errorf("failed to render JWKS: %w", err)
	}

	now := time.Now()
	entries := []*domain.SharedConfigEntry{
		{
			Key:         domain.ConfigKeyJWKS,
			Value:       doc,
			Description: "Public signing keys of the token authority",
			UpdatedAt:   now,
		},
		{
			Key:         domain.ConfigKeyIssuer,
			Value:       p.issuer,
			Description: "Token issuer URL",
			UpdatedAt:   now,
		},
		{
			Key:         domain.ConfigKeyAudience,
			Value:       p.audience,
			Description: "Expected token audience",
			UpdatedAt:   now,
		},
	}

	for _, entry := range entries {
		if err := p.repo.Upsert(ctx, entry); err != nil {
			return fmt.Errorf("failed to publish %s: %w", entry.Key, err)
		}
	}

	p.logger.Info("published JWKS to shared config",
		"kid", p.manager.Kid(),
		"issuer", p.issuer,
	)
	return nil
}
