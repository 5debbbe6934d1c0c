package healthsync

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaiden-app/internal/app/http/middleware"
	"kaiden-app/internal/domain/access"
	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/infra/ehr"
	"kaiden-app/internal/service/entitlements"
)

type stubGate struct{ outcome access.GateOutcome }

func (g stubGate) Gate(_ context.Context, _ uint, feature string) (entitlements.Decision, error) {
	return entitlements.Decision{Feature: feature, Outcome: g.outcome, HasAccess: g.outcome == access.GateGranted}, nil
}

type caller struct {
	id   uint
	role string
}

var (
	ada   = caller{id: 1, role: "user"}
	bob   = caller{id: 2, role: "user"}
	staff = caller{id: 9, role: "admin"}
)

// asCaller stands in for AuthMiddleware and reads the identity from test headers.
func asCaller(c *gin.Context) {
	if id, err := strconv.Atoi(c.GetHeader("X-Test-User")); err == nil {
		c.Set("user_id", uint(id))
	}
	c.Set("role", c.GetHeader("X-Test-Role"))
	c.Next()
}

func newRouter(tenants *healthsync.Tenants, outcome access.GateOutcome) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/healthsync", asCaller, middleware.RequireFeature(stubGate{outcome}, "medical_billing"))
	h := NewHandler(tenants, nil)
	h.Register(rg)
	h.RegisterFHIR(rg.Group("/fhir", middleware.RequireRole("admin")))
	return r
}

func send(r *gin.Engine, as caller, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as.id != 0 {
		req.Header.Set("X-Test-User", strconv.Itoa(int(as.id)))
	}
	req.Header.Set("X-Test-Role", as.role)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestGateBlocksWithoutMedicalBilling(t *testing.T) {
	r := newRouter(healthsync.NewTenants(nil, nil), access.GateUpgrade)
	assert.Equal(t, http.StatusPaymentRequired, send(r, ada, http.MethodGet, "/healthsync/status", nil).Code)

	r = newRouter(healthsync.NewTenants(nil, nil), access.GateSignIn)
	assert.Equal(t, http.StatusUnauthorized, send(r, ada, http.MethodGet, "/healthsync/patients", nil).Code)
}

func TestPatientVisitFlow(t *testing.T) {
	r := newRouter(healthsync.NewTenants(nil, nil), access.GateGranted)

	status := decode[map[string]any](t, send(r, ada, http.MethodGet, "/healthsync/status", nil))
	assert.Equal(t, "memory", status["adapter"])
	assert.Equal(t, false, status["fhir"])

	assert.Equal(t, http.StatusBadRequest, send(r, ada, http.MethodPost, "/healthsync/patients", gin.H{}).Code)

	w := send(r, ada, http.MethodPost, "/healthsync/patients", gin.H{"name": "Grace Hopper", "date_of_birth": "1906-12-09"})
	require.Equal(t, http.StatusCreated, w.Code)
	patient := decode[healthsync.Patient](t, w)

	found := decode[[]healthsync.Patient](t, send(r, ada, http.MethodGet, "/healthsync/patients?q=grace", nil))
	require.Len(t, found, 1)

	w = send(r, ada, http.MethodPatch, "/healthsync/patients/"+patient.ID, gin.H{"phone": "555-0100"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "555-0100", decode[healthsync.Patient](t, w).Phone)
	assert.Equal(t, http.StatusNotFound, send(r, ada, http.MethodGet, "/healthsync/patients/patient-missing", nil).Code)

	w = send(r, ada, http.MethodPost, "/healthsync/appointments", gin.H{
		"patient_id": patient.ID,
		"start_time": "2026-05-04T10:00:00Z",
		"status":     "scheduled",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	appt := decode[healthsync.Appointment](t, w)

	assert.Len(t, decode[[]healthsync.Appointment](t, send(r, ada, http.MethodGet, "/healthsync/appointments?date=2026-05-04", nil)), 1)
	assert.Len(t, decode[[]healthsync.Appointment](t, send(r, ada, http.MethodGet, "/healthsync/patients/"+patient.ID+"/appointments", nil)), 1)
	assert.Equal(t, http.StatusBadRequest, send(r, ada, http.MethodGet, "/healthsync/appointments", nil).Code)

	assert.Equal(t, http.StatusBadRequest, send(r, ada, http.MethodPatch, "/healthsync/appointments/"+appt.ID+"/status", gin.H{"status": "teleported"}).Code)
	w = send(r, ada, http.MethodPatch, "/healthsync/appointments/"+appt.ID+"/status", gin.H{"status": "checked-in"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, healthsync.AppointmentCheckedIn, decode[healthsync.Appointment](t, w).Status)

	w = send(r, ada, http.MethodPost, "/healthsync/notes", gin.H{"patient_id": patient.ID, "appointment_id": appt.ID, "chief_complaint": "cough"})
	require.Equal(t, http.StatusCreated, w.Code)
	note := decode[healthsync.ClinicalNote](t, w)
	w = send(r, ada, http.MethodPatch, "/healthsync/notes/"+note.ID, gin.H{"assessment": "viral URI", "icd_codes": []string{"J06.9"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"J06.9"}, decode[healthsync.ClinicalNote](t, send(r, ada, http.MethodGet, "/healthsync/notes/"+note.ID, nil)).ICDCodes)

	w = send(r, ada, http.MethodPost, "/healthsync/orders", gin.H{"patient_id": patient.ID, "type": "lab", "description": "CBC"})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[healthsync.Order](t, w)
	w = send(r, ada, http.MethodPatch, "/healthsync/orders/"+order.ID+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode[[]healthsync.Order](t, send(r, ada, http.MethodGet, "/healthsync/patients/"+patient.ID+"/orders", nil))
	require.Len(t, orders, 1)
	assert.Equal(t, healthsync.OrderCompleted, orders[0].Status)

	assert.Equal(t, http.StatusForbidden, send(r, ada, http.MethodGet, "/healthsync/fhir/Patient", nil).Code)
	assert.Equal(t, http.StatusNotImplemented, send(r, staff, http.MethodGet, "/healthsync/fhir/Patient", nil).Code)
}

func TestRecordsStayWithTheirAccount(t *testing.T) {
	r := newRouter(healthsync.NewTenants(nil, nil), access.GateGranted)

	w := send(r, bob, http.MethodPost, "/healthsync/patients", gin.H{"name": "Bob's Patient", "mrn": "MRN-77"})
	require.Equal(t, http.StatusCreated, w.Code)
	theirs := decode[healthsync.Patient](t, w)

	assert.Equal(t, http.StatusBadRequest, send(r, ada, http.MethodGet, "/healthsync/patients", nil).Code)
	assert.Equal(t, http.StatusBadRequest, send(r, ada, http.MethodGet, "/healthsync/patients?q=%20", nil).Code)
	assert.Empty(t, decode[[]healthsync.Patient](t, send(r, ada, http.MethodGet, "/healthsync/patients?q=MRN-77", nil)))
	assert.Equal(t, http.StatusNotFound, send(r, ada, http.MethodGet, "/healthsync/patients/"+theirs.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, send(r, ada, http.MethodPatch, "/healthsync/patients/"+theirs.ID, gin.H{"phone": "555-0199"}).Code)

	mine := decode[[]healthsync.Patient](t, send(r, bob, http.MethodGet, "/healthsync/patients?q=MRN-77", nil))
	require.Len(t, mine, 1)
	assert.Equal(t, theirs.ID, mine[0].ID)

	assert.Equal(t, http.StatusUnauthorized, send(r, caller{}, http.MethodGet, "/healthsync/status", nil).Code)
}

func TestFHIRPassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/Patient/gone":
			http.Error(w, `{"issue":"gone"}`, http.StatusGone)
		case r.Method == http.MethodGet && r.URL.Path == "/Patient":
			_ = json.NewEncoder(w).Encode(map[string]any{"resourceType": "Bundle", "name": r.URL.Query().Get("name")})
		default:
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	defer upstream.Close()

	adapter, err := ehr.NewAdapter(ehr.Config{System: ehr.SystemCerner, Endpoint: upstream.URL, AccessToken: "tok"})
	require.NoError(t, err)
	r := newRouter(healthsync.NewTenants(adapter, nil), access.GateGranted)

	assert.Equal(t, http.StatusForbidden, send(r, ada, http.MethodGet, "/healthsync/fhir/Patient?name=hopper", nil).Code)
	status := decode[map[string]any](t, send(r, ada, http.MethodGet, "/healthsync/status", nil))
	assert.Equal(t, "memory", status["adapter"])
	status = decode[map[string]any](t, send(r, staff, http.MethodGet, "/healthsync/status", nil))
	assert.Equal(t, "cerner", status["adapter"])
	assert.Equal(t, true, status["fhir"])

	bundle := decode[map[string]any](t, send(r, staff, http.MethodGet, "/healthsync/fhir/Patient?name=hopper", nil))
	assert.Equal(t, "Bundle", bundle["resourceType"])
	assert.Equal(t, "hopper", bundle["name"])

	w := send(r, staff, http.MethodPost, "/healthsync/fhir/Observation", gin.H{"status": "final"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Observation", decode[map[string]any](t, w)["resourceType"])

	w = send(r, staff, http.MethodPut, "/healthsync/fhir/Observation/obs-1", gin.H{"status": "amended"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "obs-1", decode[map[string]any](t, w)["id"])

	assert.Equal(t, http.StatusBadGateway, send(r, staff, http.MethodGet, "/healthsync/fhir/Patient/gone", nil).Code)
}
