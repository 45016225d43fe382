package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/identity"
	"github.com/clanhall/authcore/internal/token"
)

// ExchangeHandler trades a verified third-party identity token for a local
// token set. This is the only login entry point.
type ExchangeHandler struct {
	registry *identity.Registry
	linker   *identity.Linker
	issuer   *token.Issuer
	logger   *slog.Logger
}

// NewExchangeHandler creates a new ExchangeHandler.
func NewExchangeHandler(registry *identity.Registry, linker *identity.Linker, issuer *token.Issuer, logger *slog.Logger) *ExchangeHandler {
	return &ExchangeHandler{
		registry: registry,
		linker:   linker,
		issuer:   issuer,
		logger:   logger,
	}
}

type exchangeRequest struct {
	IDToken string `json:"id_token"`
}

// ExchangeResponse is the body of a successful provider exchange.
type ExchangeResponse struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	SID          string `json:"sid"`
}

// Exchange handles POST /auth/{provider}/exchange.
func (h *ExchangeHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := chi.URLParam(r, "provider")

	verifier, err := h.registry.Get(provider)
	if err != nil {
		h.writeExchangeError(w, "invalid_request", "unknown identity provider", http.StatusNotFound)
		return
	}

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.IDToken) == "" {
		h.writeExchangeError(w, "invalid_request", "id_token is required", http.StatusBadRequest)
		return
	}

	ident, err := verifier.Verify(ctx, req.IDToken)
	if err != nil {
		h.logger.Info("provider token rejected", "provider", provider, "error", err)

		desc := "identity token verification failed"
		var verr *autherrors.Error
		if errors.As(err, &verr) && verr.Code == autherrors.CodeValidation {
			desc = verr.Message
		}
		h.writeExchangeError(w, "invalid_grant", desc, http.StatusUnauthorized)
		return
	}

	user, err := h.linker.FindOrCreateUser(ctx, ident)
	if err != nil {
		h.logger.Error("account linking failed", "provider", provider, "error", err)
		h.writeExchangeError(w, "server_error", "failed to link account", http.StatusInternalServerError)
		return
	}

	set, err := h.issuer.IssueAll(ctx, token.Identity{UserID: user.ID, Subject: user.Subject}, r.UserAgent(), clientIP(r))
	if err != nil {
		h.logger.Error("token issuance failed", "provider", provider, "user_id", user.ID, "error", err)
		h.writeExchangeError(w, "server_error", "failed to issue tokens", http.StatusInternalServerError)
		return
	}

	h.logger.Info("exchange completed",
		"provider", provider,
		"user_id", user.ID,
		"session_id", set.SessionID,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	json.NewEncoder(w).Encode(ExchangeResponse{
		AccessToken:  set.AccessToken,
		IDToken:      set.IDToken,
		RefreshToken: set.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    set.ExpiresIn,
		SID:          set.SessionID,
	})
}

func (h *ExchangeHandler) writeExchangeError(w http.ResponseWriter, errorCode, errorDesc string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": errorDesc,
	})
}

// clientIP extracts the remote host, relying on chi's RealIP middleware to
// have resolved forwarding headers already.
func clientIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}
