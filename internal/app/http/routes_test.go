package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authapi "kaiden-app/internal/api/auth"
	"kaiden-app/internal/dbtest"
	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/domain/users"
	"kaiden-app/internal/infra/email"
	"kaiden-app/internal/infra/metrics"
	"kaiden-app/internal/infra/ratelimit"
	"kaiden-app/internal/infra/stripe/stripetest"
	auditsvc "kaiden-app/internal/service/audit"
	billingsvc "kaiden-app/internal/service/billing"
	entitlementsvc "kaiden-app/internal/service/entitlements"
	notificationsvc "kaiden-app/internal/service/notifications"
	plansvc "kaiden-app/internal/service/plans"
	purchasesvc "kaiden-app/internal/service/purchases"
)

const secret = "route-secret"

type fixture struct {
	r     *gin.Engine
	user  string
	other string
	admin string
}

func setup(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := dbtest.New(t)

	trialEnd := time.Now().Add(7 * 24 * time.Hour)
	member := users.User{Email: "ada@kaiden.test", Role: users.RoleUser, IsVerified: true, TrialEndAt: &trialEnd}
	boss := users.User{Email: "root@kaiden.test", Role: users.RoleAdmin, IsVerified: true}
	require.NoError(t, db.Create(&member).Error)
	require.NoError(t, db.Create(&boss).Error)
	peer := users.User{Email: "bob@kaiden.test", Role: users.RoleUser, IsVerified: true, TrialEndAt: &trialEnd}
	require.NoError(t, db.Create(&peer).Error)

	gw := stripetest.New()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	audit := auditsvc.NewWriter(db, nil)
	hub := notificationsvc.NewHub(nil, m, nil)
	t.Cleanup(hub.Close)
	notes := notificationsvc.NewService(db, notificationsvc.Deps{Hub: hub, Metrics: m})
	ent := entitlementsvc.NewService(db, entitlementsvc.Deps{Audit: audit, Metrics: m, AppURL: "https://app.kaiden.test"})
	purch := purchasesvc.NewService(db, purchasesvc.Deps{Gateway: gw, Notifier: notes, Audit: audit, Metrics: m, AppURL: "https://app.kaiden.test"})
	bill := billingsvc.NewService(db, billingsvc.Deps{Gateway: gw, Notifier: notes, Audit: audit, AppURL: "https://app.kaiden.test"})

	r := NewRouter(Deps{
		DB:            db,
		Metrics:       m,
		CORSOrigins:   []string{"https://app.kaiden.test"},
		Auth:          authapi.Config{JWTSecret: secret, APIURL: "https://api.kaiden.test", AppURL: "https://app.kaiden.test"},
		Mailer:        &email.Outbox{},
		Gateway:       gw,
		Audit:         audit,
		Entitlements:  ent,
		Purchases:     purch,
		Billing:       bill,
		Plans:         plansvc.NewService(db, gw, "prod_kaiden", nil),
		Notifications: notes,
		Hub:           hub,
		EHR:           healthsync.NewTenants(nil, nil),
		Limiter:       ratelimit.NewMemoryBucket(),
		CheckoutRate:  0.001,
		CheckoutBurst: 1,
	})

	userToken, err := authapi.IssueToken(secret, member, time.Now())
	require.NoError(t, err)
	adminToken, err := authapi.IssueToken(secret, boss, time.Now())
	require.NoError(t, err)
	peerToken, err := authapi.IssueToken(secret, peer, time.Now())
	require.NoError(t, err)
	return fixture{r: r, user: userToken, other: peerToken, admin: adminToken}
}

func (f fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	return w
}

func TestPublicRoutes(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/features/pricing", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/plans", "", nil).Code)

	w := f.do(http.MethodGet, "/gate/medical_billing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var d entitlementsvc.Decision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "sign_in", string(d.Outcome))

	w = f.do(http.MethodGet, "/gate/medical_billing", f.user, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
	assert.Equal(t, "upgrade", string(d.Outcome))
}

func TestAuthAndRoleGuards(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/me", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/me", f.user, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin/users", f.user, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/users", f.admin, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/change-plan", f.user, gin.H{"price_id": "price_x"}).Code)
}

func TestHealthSyncUnlocksAfterGrant(t *testing.T) {
	f := setup(t)

	assert.Equal(t, http.StatusPaymentRequired, f.do(http.MethodGet, "/healthsync/status", f.user, nil).Code)

	w := f.do(http.MethodPost, "/admin/entitlements", f.admin, gin.H{"user_id": 1, "feature": HealthSyncFeature})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/healthsync/status", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"adapter":"memory"`)
}

func TestHealthSyncRecordsAreScopedToTheCaller(t *testing.T) {
	f := setup(t)
	for _, id := range []int{1, 3} {
		w := f.do(http.MethodPost, "/admin/entitlements", f.admin, gin.H{"user_id": id, "feature": HealthSyncFeature})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := f.do(http.MethodPost, "/healthsync/patients", f.other, gin.H{"name": "Alan Turing", "mrn": "MRN-1912"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var theirs healthsync.Patient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &theirs))

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/healthsync/patients?q=", f.user, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/healthsync/patients/"+theirs.ID, f.user, nil).Code)

	w = f.do(http.MethodGet, "/healthsync/patients?q=turing", f.user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/healthsync/fhir/Patient", f.user, nil).Code)
}

func TestCheckoutIsRateLimited(t *testing.T) {
	f := setup(t)

	first := f.do(http.MethodPost, "/purchases/checkout", f.user, gin.H{"feature": "api_access"})
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := f.do(http.MethodPost, "/purchases/checkout", f.user, gin.H{"feature": "api_access"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}
