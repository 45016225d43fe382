package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clanhall/authcore/internal/domain"
	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/keys"
	"github.com/clanhall/authcore/internal/metrics"
	"github.com/clanhall/authcore/internal/store"
)

// RefreshTokenBytes is the entropy of an opaque refresh token.
const RefreshTokenBytes = 32

// TokenSet is the full result of a login or token exchange.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresIn    int
	SessionID    string
}

// Issuer signs access/ID tokens and manages refresh sessions.
type Issuer struct {
	manager  *keys.Manager
	sessions store.SessionRepository
	users    store.UserRepository

	issuer     string
	audience   string
	accessTTL  time.Duration
	idTTL      time.Duration
	refreshTTL time.Duration

	logger *slog.Logger
}

// IssuerOption configures the Issuer.
type IssuerOption func(*Issuer)

// WithIssuerLogger sets the logger for the issuer.
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *Issuer) { i.logger = logger }
}

// NewIssuer creates an Issuer. The user repository is used on refresh to
// recover the external subject bound to a session's user.
func NewIssuer(
	manager *keys.Manager,
	sessions store.SessionRepository,
	users store.UserRepository,
	issuer, audience string,
	accessTTL, idTTL, refreshTTL time.Duration,
	opts ...IssuerOption,
) *Issuer {
	iss := &Issuer{
		manager:    manager,
		sessions:   sessions,
		users:      users,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		idTTL:      idTTL,
		refreshTTL: refreshTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss
}

// IssueAccessAndID signs an access/ID token pair for the identity. Both
// share issuer, audience, subject and issued-at; the access token
// additionally carries the session id when one exists. Access and ID TTLs
// are configured independently.
func (i *Issuer) IssueAccessAndID(identity Identity, sessionID string) (accessToken, idToken string, expiresIn int, err error) {
	now := time.Now().UTC()
	sub := identity.SubjectString()

	accessClaims := &Claims{
		SessionID: sessionID,
		UserID:    identity.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	idClaims := &Claims{
		UserID: identity.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.idTTL)),
		},
	}

	accessToken, err = i.manager.Sign(accessClaims)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to sign access token: %w", err)
	}
	idToken, err = i.manager.Sign(idClaims)
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to sign ID token: %w", err)
	}

	return accessToken, idToken, int(i.accessTTL.Seconds()), nil
}

// IssueAll creates a refresh session and signs a full token set bound to it.
// Concurrent logins for the same user create independent sessions.
func (i *Issuer) IssueAll(ctx context.Context, identity Identity, userAgent, ip string) (*TokenSet, error) {
	refreshToken, err := generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:               uuid.New().String(),
		UserID:           identity.UserID,
		RefreshTokenHash: HashRefreshToken(refreshToken),
		CreatedAt:        now,
		ExpiresAt:        now.Add(i.refreshTTL),
		IP:               ip,
		UserAgent:        userAgent,
	}

	if err := i.sessions.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	accessToken, idToken, expiresIn, err := i.IssueAccessAndID(identity, session.ID)
	if err != nil {
		return nil, err
	}

	metrics.RecordTokenIssued("access", "exchange")
	metrics.RecordTokenIssued("id", "exchange")
	metrics.RecordTokenIssued("refresh", "exchange")

	i.logger.Info("issued token set",
		"user_id", identity.UserID,
		"session_id", session.ID,
	)

	return &TokenSet{
		AccessToken:  accessToken,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		SessionID:    session.ID,
	}, nil
}

// Refresh exchanges a refresh token for a fresh access/ID pair bound to the
// same session. The refresh token itself is not rotated; it stays valid
// until its fixed expiry.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (accessToken, idToken string, expiresIn int, err error) {
	session, err := i.sessions.GetByRefreshTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if autherrors.IsCode(err, autherrors.CodeNotFound) {
			return "", "", 0, autherrors.RefreshToken("unknown refresh token")
		}
		return "", "", 0, fmt.Errorf("failed to look up session: %w", err)
	}

	if session.IsExpired(time.Now()) {
		_ = i.sessions.DeleteByID(ctx, session.ID)
		return "", "", 0, autherrors.RefreshToken("refresh token expired")
	}

	identity := Identity{UserID: session.UserID}
	if i.users != nil {
		if user, err := i.users.GetByID(ctx, session.UserID); err == nil {
			identity.Subject = user.Subject
		}
	}

	accessToken, idToken, expiresIn, err = i.IssueAccessAndID(identity, session.ID)
	if err != nil {
		return "", "", 0, err
	}

	metrics.RecordTokenIssued("access", "refresh")
	metrics.RecordTokenIssued("id", "refresh")

	return accessToken, idToken, expiresIn, nil
}

// Revoke deletes the session matching the refresh token. Unknown or already
// revoked tokens are a no-op, never an error.
func (i *Issuer) Revoke(ctx context.Context, refreshToken string) error {
	session, err := i.sessions.GetByRefreshTokenHash(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		if autherrors.IsCode(err, autherrors.CodeNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if err := i.sessions.DeleteByID(ctx, session.ID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	metrics.RecordTokenRevocation()
	i.logger.Info("revoked session", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

// HashRefreshToken returns the SHA-256 hex digest persisted in place of the
// plaintext refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateRefreshToken() (string, error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
