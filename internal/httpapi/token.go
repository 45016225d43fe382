package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	autherrors "github.com/clanhall/authcore/internal/errors"
	"github.com/clanhall/authcore/internal/token"
)

// TokenHandler handles the OAuth2 token and revocation endpoints.
type TokenHandler struct {
	issuer *token.Issuer
	logger *slog.Logger
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(issuer *token.Issuer, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		issuer: issuer,
		logger: logger,
	}
}

// TokenResponse is the body of a successful token grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token handles POST /oauth2/token. Only the refresh_token grant is
// supported; logins happen through the provider exchange endpoint.
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeTokenError(w, "invalid_request", "method must be POST", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeTokenError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
		return
	}

	grantType := r.PostFormValue("grant_type")
	if grantType != "refresh_token" {
		h.writeTokenError(w, "unsupported_grant_type", "grant_type not supported", http.StatusBadRequest)
		return
	}

	refreshToken := r.PostFormValue("refresh_token")
	if refreshToken == "" {
		h.writeTokenError(w, "invalid_request", "refresh_token is required", http.StatusBadRequest)
		return
	}

	accessToken, idToken, expiresIn, err := h.issuer.Refresh(r.Context(), refreshToken)
	if err != nil {
		h.logger.Info("token request failed", "grant_type", grantType, "error", err)

		if autherrors.IsCode(err, autherrors.CodeRefreshToken) {
			h.writeTokenError(w, "invalid_grant", "refresh token is invalid or expired", http.StatusBadRequest)
			return
		}
		h.writeTokenError(w, "invalid_request", "request failed", http.StatusInternalServerError)
		return
	}

	h.logger.Info("tokens issued", "grant_type", grantType)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: accessToken,
		IDToken:     idToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	})
}

// Revoke handles POST /oauth2/revoke. Revocation always answers 200 so
// callers cannot probe which tokens exist.
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeTokenError(w, "invalid_request", "method must be POST", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeTokenError(w, "invalid_request", "malformed form body", http.StatusBadRequest)
		return
	}

	if refreshToken := r.PostFormValue("token"); refreshToken != "" {
		if err := h.issuer.Revoke(r.Context(), refreshToken); err != nil {
			// Still answer 200; the caller can retry, and the session
			// remains revocable.
			h.logger.Error("revocation failed", "error", err)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (h *TokenHandler) writeTokenError(w http.ResponseWriter, errorCode, errorDesc string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":             errorCode,
		"error_description": errorDesc,
	})
}
