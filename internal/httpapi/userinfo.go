package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/clanhall/authcore/internal/token"
)

// UserInfoHandler handles the OIDC userinfo endpoint.
type UserInfoHandler struct {
	validator *token.Validator
	logger    *slog.Logger
}

// NewUserInfoHandler creates a new UserInfoHandler.
func NewUserInfoHandler(validator *token.Validator, logger *slog.Logger) *UserInfoHandler {
	return &UserInfoHandler{
		validator: validator,
		logger:    logger,
	}
}

// UserInfo handles GET /userinfo.
func (h *UserInfoHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		h.writeInvalidToken(w)
		return
	}

	claims, err := h.validator.Validate(r.Context(), strings.TrimSpace(auth[len("Bearer "):]))
	if err != nil {
		h.logger.Info("userinfo request failed", "error", err)
		h.writeInvalidToken(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"sub": claims.Subject})
}

func (h *UserInfoHandler) writeInvalidToken(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
}
