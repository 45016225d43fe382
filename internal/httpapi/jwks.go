package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/clanhall/authcore/internal/keys"
)

// JWKSHandler serves the public key set.
type JWKSHandler struct {
	manager *keys.Manager
	logger  *slog.Logger
}

// NewJWKSHandler creates a new JWKSHandler.
func NewJWKSHandler(manager *keys.Manager, logger *slog.Logger) *JWKSHandler {
	return &JWKSHandler{
		manager: manager,
		logger:  logger,
	}
}

// JWKS handles the /oauth2/jwks.json endpoint.
func (h *JWKSHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	doc, err := h.manager.JWKSJSON()
	if err != nil {
		h.logger.Error("failed to render JWKS", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write([]byte(doc))
}
