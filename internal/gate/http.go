package gate

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/clanhall/authcore/internal/metrics"
	"github.com/clanhall/authcore/internal/token"
)

// HTTPGate is the HTTP auth filter. Requests to allow-listed paths pass
// through untouched; everything else must present a valid token as a Bearer
// header or session cookie, or the chain stops with a 401 JSON body.
type HTTPGate struct {
	validator   *token.Validator
	publicPaths []string
	cookieName  string
	logger      *slog.Logger
}

// HTTPGateOption configures the HTTPGate.
type HTTPGateOption func(*HTTPGate)

// WithHTTPGateLogger sets the logger for the gate.
func WithHTTPGateLogger(logger *slog.Logger) HTTPGateOption {
	return func(g *HTTPGate) { g.logger = logger }
}

// NewHTTPGate creates an HTTPGate.
func NewHTTPGate(validator *token.Validator, publicPaths []string, cookieName string, opts ...HTTPGateOption) *HTTPGate {
	g := &HTTPGate{
		validator:   validator,
		publicPaths: publicPaths,
		cookieName:  cookieName,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Middleware returns the chi-compatible middleware.
func (g *HTTPGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		outcome := Evaluate(ctx, g.validator, g.extractToken(r))
		if !outcome.Authenticated {
			metrics.RecordGateRejection("http")
			g.logger.Info("request rejected",
				"path", r.URL.Path,
				"reason", outcome.Reason,
				"request_id", middleware.GetReqID(ctx),
			)
			writeUnauthorized(w)
			return
		}

		ctx = ContextWithOutcome(ctx, outcome, clientIP(r), r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isPublic reports whether the path is on the allow-list. Prefix match so
// grouped endpoints (discovery, provider exchange) stay open as a family.
func (g *HTTPGate) isPublic(path string) bool {
	for _, p := range g.publicPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// extractToken takes the Bearer header first, then the session cookie.
func (g *HTTPGate) extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(auth[len("Bearer "):])
	}
	if g.cookieName != "" {
		if cookie, err := r.Cookie(g.cookieName); err == nil {
			return cookie.Value
		}
	}
	return ""
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from forwarding headers.
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		host = host[:idx]
	}
	return host
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_token"})
}
