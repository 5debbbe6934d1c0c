package entitlements

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiden-app/internal/dbtest"
	"kaiden-app/internal/domain/access"
	"kaiden-app/internal/domain/users"
	entitlementsvc "kaiden-app/internal/service/entitlements"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.New(t)

	trialEnd := time.Now().Add(48 * time.Hour)
	require.NoError(t, db.Create(&users.User{Email: "ada@kaiden.test", TrialEndAt: &trialEnd}).Error)

	svc := entitlementsvc.NewService(db, entitlementsvc.Deps{AppURL: "https://app.kaiden.test"})
	h := NewHandler(svc, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-User") != "" {
			c.Set("user_id", uint(1))
		}
	})
	r.GET("/entitlements", h.List)
	r.GET("/entitlements/:feature", h.Check)
	r.GET("/gate/:feature", h.Gate)
	return r
}

func get(r *gin.Engine, path string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authed {
		req.Header.Set("X-User", "1")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheck(t *testing.T) {
	r := newRouter(t)

	w := get(r, "/entitlements/ai_chat", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"feature":"ai_chat","has_access":true,"source":"tier"}`, w.Body.String())

	w = get(r, "/entitlements/medical_billing", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"feature":"medical_billing","has_access":false}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, get(r, "/entitlements/teleport", true).Code)
}

func TestList(t *testing.T) {
	r := newRouter(t)
	w := get(r, "/entitlements", true)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		State    string
		Tier     string
		Features []string
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "trial", out.State)
	assert.Equal(t, "free_trial", out.Tier)
	assert.Contains(t, out.Features, "business_guides")
	assert.NotContains(t, out.Features, "voice_ai")
}

func TestGateBranches(t *testing.T) {
	r := newRouter(t)

	decode := func(w *httptest.ResponseRecorder) entitlementsvc.Decision {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code)
		var d entitlementsvc.Decision
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
		return d
	}

	d := decode(get(r, "/gate/medical_billing", false))
	assert.Equal(t, access.GateSignIn, d.Outcome)

	d = decode(get(r, "/gate/medical_billing", true))
	assert.Equal(t, access.GateUpgrade, d.Outcome)
	assert.Equal(t, "https://app.kaiden.test/pricing?feature=medical_billing", d.PlansURL)
	require.NotNil(t, d.Offer)
	assert.Equal(t, "$49.00", d.Offer.FormattedPrice)

	d = decode(get(r, "/gate/ai_chat", true))
	assert.Equal(t, access.GateGranted, d.Outcome)

	assert.Equal(t, http.StatusNotFound, get(r, "/gate/teleport", false).Code)
}
