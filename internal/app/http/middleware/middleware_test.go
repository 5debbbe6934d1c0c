package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiden-app/internal/dbtest"
	"kaiden-app/internal/domain/access"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/ratelimit"
	"kaiden-app/internal/service/entitlements"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": c.GetUint("user_id"), "role": c.GetString("role")})
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, jwt.MapClaims{"user_id": 7, "exp": time.Now().Add(-time.Minute).Unix()}))
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, jwt.MapClaims{"user_id": 7, "role": "admin"}))
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":7,"role":"admin"}`, w.Body.String())

	// query tokens are only honoured on websocket upgrades
	req = httptest.NewRequest(http.MethodGet, "/me?access_token="+token(t, jwt.MapClaims{"user_id": 7}), nil)
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)
}

func TestAuthMiddlewareAcceptsQueryTokenOnUpgrade(t *testing.T) {
	r := gin.New()
	r.GET("/ws", AuthMiddleware(secret), whoami)

	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token(t, jwt.MapClaims{"user_id": 3}), nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":3`)
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/gate", OptionalAuth(secret), whoami)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/gate", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":0`)

	req := httptest.NewRequest(http.MethodGet, "/gate", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":0`)
}

func TestRequireRole(t *testing.T) {
	r := gin.New()
	r.GET("/admin", AuthMiddleware(secret), RequireRole("admin"), whoami)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, jwt.MapClaims{"user_id": 1, "role": "user"}))
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, jwt.MapClaims{"user_id": 1, "role": "admin"}))
	assert.Equal(t, http.StatusOK, serve(r, req).Code)
}

func TestSanitizeNestedStrings(t *testing.T) {
	r := gin.New()
	r.POST("/echo", SanitizeAndCleanInputMiddleware(), func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		c.Data(http.StatusOK, "application/json", b)
	})

	body := `{"name":"<b>Ada</b>","tags":["<script>x</script>ok"],"address":{"city":"<i>Lyon</i>"},"age":3}`
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"Ada","tags":["ok"],"address":{"city":"Lyon"},"age":3}`, w.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("{nope"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, serve(r, req).Code)
}

type fakeGate struct {
	outcome access.GateOutcome
	err     error
}

func (f fakeGate) Gate(_ context.Context, _ uint, feature string) (entitlements.Decision, error) {
	return entitlements.Decision{Feature: feature, Outcome: f.outcome, HasAccess: f.outcome == access.GateGranted}, f.err
}

func TestRequireFeature(t *testing.T) {
	cases := []struct {
		gate fakeGate
		want int
	}{
		{fakeGate{outcome: access.GateGranted}, http.StatusOK},
		{fakeGate{outcome: access.GateSignIn}, http.StatusUnauthorized},
		{fakeGate{outcome: access.GateUpgrade}, http.StatusPaymentRequired},
		{fakeGate{err: entitlements.ErrUnknownFeature}, http.StatusNotFound},
		{fakeGate{err: errors.New("db down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := gin.New()
		r.GET("/x", RequireFeature(tc.gate, "medical_billing"), whoami)
		w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, tc.want, w.Code, "outcome %q err %v", tc.gate.outcome, tc.gate.err)
	}

	r := gin.New()
	r.GET("/x", RequireFeature(fakeGate{outcome: access.GateUpgrade}, "medical_billing"), whoami)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	var body struct {
		Gate entitlements.Decision `json:"gate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, access.GateUpgrade, body.Gate.Outcome)
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.POST("/buy", RateLimit(RateLimitConfig{Route: "checkout", Rate: 0.001, Burst: 2, Limiter: ratelimit.NewMemoryBucket()}), whoami)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := serve(r, httptest.NewRequest(http.MethodPost, "/buy", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, float64, int) (*ratelimit.Result, error) {
	return nil, ratelimit.ErrNotConfigured
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.POST("/buy", RateLimit(RateLimitConfig{Route: "checkout", Rate: 1, Burst: 1, Limiter: brokenLimiter{}}), whoami)
	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodPost, "/buy", nil)).Code)
}

func TestRequireActiveSubscription(t *testing.T) {
	db := dbtest.New(t)
	sub := "sub_1"
	active := "active"
	canceled := "canceled"
	past := time.Now().Add(-time.Hour)

	paying := users.User{Email: "pay@kaiden.test", SubscriptionID: &sub, StripeSubscriptionStatus: &active}
	lapsed := users.User{Email: "lapsed@kaiden.test", SubscriptionID: ptr("sub_2"), StripeSubscriptionStatus: &canceled, CurrentPeriodEnd: &past}
	trial := users.User{Email: "trial@kaiden.test"}
	for _, u := range []*users.User{&paying, &lapsed, &trial} {
		require.NoError(t, db.Create(u).Error)
	}

	for _, tc := range []struct {
		user users.User
		want int
	}{
		{paying, http.StatusOK},
		{lapsed, http.StatusPaymentRequired},
		{trial, http.StatusForbidden},
	} {
		r := gin.New()
		r.POST("/change-plan", func(c *gin.Context) { c.Set("user_id", tc.user.ID) }, RequireActiveSubscription(db), whoami)
		w := serve(r, httptest.NewRequest(http.MethodPost, "/change-plan", nil))
		assert.Equal(t, tc.want, w.Code, tc.user.Email)
	}
}

func ptr[T any](v T) *T { return &v }
