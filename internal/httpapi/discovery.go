package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// OIDCDiscovery represents the OIDC discovery document.
type OIDCDiscovery struct {
	Issuer                           string   `json:"issuer"`
	JwksURI                          string   `json:"jwks_uri"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

// DiscoveryHandler handles the OIDC discovery endpoint.
type DiscoveryHandler struct {
	issuerURL string
}

// NewDiscoveryHandler creates a new DiscoveryHandler.
func NewDiscoveryHandler(issuerURL string) *DiscoveryHandler {
	return &DiscoveryHandler{
		issuerURL: strings.TrimSuffix(issuerURL, "/"),
	}
}

// OpenIDConfiguration handles the /.well-known/openid-configuration endpoint.
func (h *DiscoveryHandler) OpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	discovery := OIDCDiscovery{
		Issuer:             h.issuerURL,
		JwksURI:            h.issuerURL + "/oauth2/jwks.json",
		TokenEndpoint:      h.issuerURL + "/oauth2/token",
		RevocationEndpoint: h.issuerURL + "/oauth2/revoke",
		UserinfoEndpoint:   h.issuerURL + "/userinfo",

		ResponseTypesSupported: []string{
			"code",
		},

		GrantTypesSupported: []string{
			"authorization_code",
			"refresh_token",
		},

		SubjectTypesSupported: []string{
			"public",
		},

		IDTokenSigningAlgValuesSupported: []string{
			"RS256",
		},

		ScopesSupported: []string{
			"openid",
			"profile",
			"email",
			"offline_access",
		},

		ClaimsSupported: []string{
			"iss",
			"sub",
			"aud",
			"exp",
			"iat",
			"sid",
			"user_id",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
