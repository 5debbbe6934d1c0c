package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOIDCVerifierRetriesFailedDiscovery(t *testing.T) {
	var calls atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		// the first discovery attempt hits an outage
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/auth",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	}))
	defer srv.Close()

	v := &OIDCVerifier{ClientID: "client-1", Issuer: srv.URL}
	ctx := context.Background()

	_, err := v.Verify(ctx, "not-a-jwt")
	require.EqualError(t, err, "failed to init google oidc provider")

	_, err = v.Verify(ctx, "not-a-jwt")
	require.EqualError(t, err, "invalid id_token")

	// discovery is not repeated once it succeeded
	_, err = v.Verify(ctx, "still-not-a-jwt")
	require.EqualError(t, err, "invalid id_token")
	assert.EqualValues(t, 2, calls.Load())
}
