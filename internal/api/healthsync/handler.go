package healthsync

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/infra/httpclient"
)

// Handler exposes the EHR operations. Routes are mounted behind the
// medical_billing feature gate and every call runs against the caller's own
// record store.
type Handler struct {
	tenants *healthsync.Tenants
	log     *zap.Logger
}

func NewHandler(tenants *healthsync.Tenants, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if tenants == nil {
		tenants = healthsync.NewTenants(nil, nil)
	}
	return &Handler{tenants: tenants, log: log}
}

// Register mounts every adapter operation on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)

	rg.POST("/patients", h.CreatePatient)
	rg.GET("/patients", h.SearchPatients)
	rg.GET("/patients/:id", h.GetPatient)
	rg.PATCH("/patients/:id", h.UpdatePatient)
	rg.GET("/patients/:id/appointments", h.PatientAppointments)
	rg.GET("/patients/:id/orders", h.PatientOrders)

	rg.POST("/appointments", h.CreateAppointment)
	rg.GET("/appointments", h.AppointmentsByDate)
	rg.GET("/appointments/:id", h.GetAppointment)
	rg.PATCH("/appointments/:id/status", h.UpdateAppointmentStatus)

	rg.POST("/notes", h.CreateClinicalNote)
	rg.GET("/notes/:id", h.GetClinicalNote)
	rg.PATCH("/notes/:id", h.UpdateClinicalNote)

	rg.POST("/orders", h.CreateOrder)
	rg.PATCH("/orders/:id/status", h.UpdateOrderStatus)
}

// RegisterFHIR mounts the raw FHIR passthrough. It reaches the upstream with
// the practice token, so rg must already be restricted to staff.
func (h *Handler) RegisterFHIR(rg *gin.RouterGroup) {
	rg.GET("/:resource", h.FHIRSearch)
	rg.GET("/:resource/:id", h.FHIRRead)
	rg.POST("/:resource", h.FHIRCreate)
	rg.PUT("/:resource/:id", h.FHIRUpdate)
}

func isStaff(c *gin.Context) bool { return c.GetString("role") == "admin" }

// adapterFor resolves the record store of the authenticated caller.
func (h *Handler) adapterFor(c *gin.Context) (healthsync.Adapter, bool) {
	a, err := h.tenants.For(c.GetUint("user_id"), isStaff(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "details": err.Error()})
		return nil, false
	}
	return a, true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, healthsync.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, healthsync.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case httpclient.StatusCode(err) != 0:
		h.log.Warn("ehr upstream error", zap.String("op", op), zap.Uint("user_id", c.GetUint("user_id")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "EHR system rejected the request", "details": err.Error()})
	default:
		h.log.Error("ehr call failed", zap.String("op", op), zap.Uint("user_id", c.GetUint("user_id")), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "EHR system unavailable", "details": err.Error()})
	}
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return false
	}
	return true
}

func (h *Handler) Status(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	_, fhir := a.(healthsync.FHIRClient)
	c.JSON(http.StatusOK, gin.H{"adapter": a.Name(), "fhir": fhir})
}

/* ---------- patients ---------- */

func (h *Handler) CreatePatient(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var p healthsync.Patient
	if !bind(c, &p) {
		return
	}
	out, err := a.CreatePatient(c.Request.Context(), p)
	if err != nil {
		h.fail(c, "create_patient", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// SearchPatients GET /patients?q=
func (h *Handler) SearchPatients(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search query"})
		return
	}
	out, err := a.SearchPatients(c.Request.Context(), q)
	if err != nil {
		h.fail(c, "search_patients", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetPatient(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	out, err := a.GetPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_patient", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var u healthsync.PatientUpdate
	if !bind(c, &u) {
		return
	}
	out, err := a.UpdatePatient(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		h.fail(c, "update_patient", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) PatientAppointments(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	out, err := a.PatientAppointments(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "patient_appointments", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) PatientOrders(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	out, err := a.Orders(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "orders", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ---------- appointments ---------- */

func (h *Handler) CreateAppointment(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var appt healthsync.Appointment
	if !bind(c, &appt) {
		return
	}
	out, err := a.CreateAppointment(c.Request.Context(), appt)
	if err != nil {
		h.fail(c, "create_appointment", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

// AppointmentsByDate GET /appointments?date=YYYY-MM-DD
func (h *Handler) AppointmentsByDate(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	date := c.Query("date")
	if date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing date"})
		return
	}
	out, err := a.AppointmentsByDate(c.Request.Context(), date)
	if err != nil {
		h.fail(c, "appointments_by_date", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetAppointment(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	out, err := a.GetAppointment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_appointment", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateAppointmentStatus(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var body struct {
		Status healthsync.AppointmentStatus `json:"status"`
	}
	if !bind(c, &body) {
		return
	}
	out, err := a.UpdateAppointmentStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		h.fail(c, "update_appointment_status", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ---------- clinical notes ---------- */

func (h *Handler) CreateClinicalNote(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var n healthsync.ClinicalNote
	if !bind(c, &n) {
		return
	}
	out, err := a.CreateClinicalNote(c.Request.Context(), n)
	if err != nil {
		h.fail(c, "create_clinical_note", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetClinicalNote(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	out, err := a.GetClinicalNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get_clinical_note", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) UpdateClinicalNote(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var u healthsync.ClinicalNoteUpdate
	if !bind(c, &u) {
		return
	}
	out, err := a.UpdateClinicalNote(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		h.fail(c, "update_clinical_note", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ---------- orders ---------- */

func (h *Handler) CreateOrder(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var o healthsync.Order
	if !bind(c, &o) {
		return
	}
	if o.OrderedBy == "" {
		o.OrderedBy = c.GetString("email")
	}
	out, err := a.CreateOrder(c.Request.Context(), o)
	if err != nil {
		h.fail(c, "create_order", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	a, ok := h.adapterFor(c)
	if !ok {
		return
	}
	var body struct {
		Status healthsync.OrderStatus `json:"status"`
	}
	if !bind(c, &body) {
		return
	}
	out, err := a.UpdateOrderStatus(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil {
		h.fail(c, "update_order_status", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

/* ---------- raw FHIR ---------- */

func (h *Handler) fhir(c *gin.Context) (healthsync.FHIRClient, bool) {
	practice := h.tenants.Practice()
	fc, ok := practice.(healthsync.FHIRClient)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Configured EHR adapter does not speak FHIR", "adapter": practice.Name()})
	}
	return fc, ok
}

func (h *Handler) FHIRSearch(c *gin.Context) {
	fc, ok := h.fhir(c)
	if !ok {
		return
	}
	params := map[string]string{}
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	out, err := fc.FHIRSearch(c.Request.Context(), c.Param("resource"), params)
	if err != nil {
		h.fail(c, "fhir_search", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) FHIRRead(c *gin.Context) {
	fc, ok := h.fhir(c)
	if !ok {
		return
	}
	out, err := fc.FHIRRead(c.Request.Context(), c.Param("resource"), c.Param("id"))
	if err != nil {
		h.fail(c, "fhir_read", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) FHIRCreate(c *gin.Context) {
	fc, ok := h.fhir(c)
	if !ok {
		return
	}
	var body map[string]any
	if !bind(c, &body) {
		return
	}
	out, err := fc.FHIRCreate(c.Request.Context(), c.Param("resource"), body)
	if err != nil {
		h.fail(c, "fhir_create", err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) FHIRUpdate(c *gin.Context) {
	fc, ok := h.fhir(c)
	if !ok {
		return
	}
	var body map[string]any
	if !bind(c, &body) {
		return
	}
	out, err := fc.FHIRUpdate(c.Request.Context(), c.Param("resource"), c.Param("id"), body)
	if err != nil {
		h.fail(c, "fhir_update", err)
		return
	}
	c.JSON(http.StatusOK, out)
}
