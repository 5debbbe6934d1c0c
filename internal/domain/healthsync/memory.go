package healthsync

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAdapter keeps records in process. It never validates cross-record references,
// and concurrent writers to the same record resolve last write wins.
type MemoryAdapter struct {
	mu           sync.RWMutex
	patients     map[string]Patient
	appointments map[string]Appointment
	notes        map[string]ClinicalNote
	orders       map[string]Order
	now          func() time.Time
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		patients:     map[string]Patient{},
		appointments: map[string]Appointment{},
		notes:        map[string]ClinicalNote{},
		orders:       map[string]Order{},
		now:          time.Now,
	}
}

func (m *MemoryAdapter) Name() string { return "memory" }

func newID(prefix string) string { return prefix + "-" + uuid.NewString() }

func (m *MemoryAdapter) timestamp() string { return m.now().UTC().Format(time.RFC3339) }

/* ---------- patients ---------- */

func (m *MemoryAdapter) CreatePatient(_ context.Context, p Patient) (Patient, error) {
	if strings.TrimSpace(p.Name) == "" {
		return Patient{}, fmt.Errorf("%w: patient name is required", ErrInvalid)
	}
	p.ID = newID("patient")
	if p.MRN == "" {
		p.MRN = strings.ToUpper(p.ID[len("patient-"):][:8])
	}
	p = clonePatient(p)

	m.mu.Lock()
	m.patients[p.ID] = p
	m.mu.Unlock()
	return clonePatient(p), nil
}

func (m *MemoryAdapter) GetPatient(_ context.Context, id string) (Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return Patient{}, &NotFoundError{Kind: "patient", ID: id}
	}
	return clonePatient(p), nil
}

// SearchPatients matches a case-insensitive name substring or an MRN substring.
// A blank query is rejected rather than listing every patient.
func (m *MemoryAdapter) SearchPatients(_ context.Context, query string) ([]Patient, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalid)
	}

	m.mu.RLock()
	out := []Patient{}
	for _, p := range m.patients {
		if strings.Contains(strings.ToLower(p.Name), q) || strings.Contains(p.MRN, strings.TrimSpace(query)) {
			out = append(out, clonePatient(p))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) UpdatePatient(_ context.Context, id string, u PatientUpdate) (Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.patients[id]
	if !ok {
		return Patient{}, &NotFoundError{Kind: "patient", ID: id}
	}
	applyPatientUpdate(&p, u)
	m.patients[id] = clonePatient(p)
	return clonePatient(p), nil
}

func applyPatientUpdate(p *Patient, u PatientUpdate) {
	if u.MRN != nil {
		p.MRN = *u.MRN
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.DateOfBirth != nil {
		p.DateOfBirth = *u.DateOfBirth
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.Phone != nil {
		p.Phone = *u.Phone
	}
	if u.Address != nil {
		a := *u.Address
		p.Address = &a
	}
	if u.Insurances != nil {
		p.Insurances = *u.Insurances
	}
	if u.Allergies != nil {
		p.Allergies = *u.Allergies
	}
	if u.Medications != nil {
		p.Medications = *u.Medications
	}
	if u.Problems != nil {
		p.Problems = *u.Problems
	}
	if u.Vitals != nil {
		p.Vitals = u.Vitals
	}
}

/* ---------- appointments ---------- */

func (m *MemoryAdapter) CreateAppointment(_ context.Context, a Appointment) (Appointment, error) {
	if a.PatientID == "" || a.StartTime == "" {
		return Appointment{}, fmt.Errorf("%w: appointment needs patient_id and start_time", ErrInvalid)
	}
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	if !a.Status.Valid() {
		return Appointment{}, fmt.Errorf("%w: appointment status %q", ErrInvalid, a.Status)
	}
	a.ID = newID("appt")

	m.mu.Lock()
	m.appointments[a.ID] = a
	m.mu.Unlock()
	return a, nil
}

func (m *MemoryAdapter) GetAppointment(_ context.Context, id string) (Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appointments[id]
	if !ok {
		return Appointment{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	return a, nil
}

// AppointmentsByDate returns appointments whose start time begins with date (YYYY-MM-DD).
func (m *MemoryAdapter) AppointmentsByDate(_ context.Context, date string) ([]Appointment, error) {
	return m.filterAppointments(func(a Appointment) bool { return strings.HasPrefix(a.StartTime, date) }), nil
}

func (m *MemoryAdapter) PatientAppointments(_ context.Context, patientID string) ([]Appointment, error) {
	return m.filterAppointments(func(a Appointment) bool { return a.PatientID == patientID }), nil
}

func (m *MemoryAdapter) filterAppointments(keep func(Appointment) bool) []Appointment {
	m.mu.RLock()
	out := []Appointment{}
	for _, a := range m.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryAdapter) UpdateAppointmentStatus(_ context.Context, id string, status AppointmentStatus) (Appointment, error) {
	if !status.Valid() {
		return Appointment{}, fmt.Errorf("%w: appointment status %q", ErrInvalid, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return Appointment{}, &NotFoundError{Kind: "appointment", ID: id}
	}
	a.Status = status
	m.appointments[id] = a
	return a, nil
}

/* ---------- clinical notes ---------- */

func (m *MemoryAdapter) CreateClinicalNote(_ context.Context, n ClinicalNote) (ClinicalNote, error) {
	if n.PatientID == "" {
		return ClinicalNote{}, fmt.Errorf("%w: clinical note needs patient_id", ErrInvalid)
	}
	n.ID = newID("note")
	if n.Timestamp == "" {
		n.Timestamp = m.timestamp()
	}
	n = cloneNote(n)

	m.mu.Lock()
	m.notes[n.ID] = n
	m.mu.Unlock()
	return cloneNote(n), nil
}

func (m *MemoryAdapter) GetClinicalNote(_ context.Context, id string) (ClinicalNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notes[id]
	if !ok {
		return ClinicalNote{}, &NotFoundError{Kind: "clinical note", ID: id}
	}
	return cloneNote(n), nil
}

func (m *MemoryAdapter) UpdateClinicalNote(_ context.Context, id string, u ClinicalNoteUpdate) (ClinicalNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return ClinicalNote{}, &NotFoundError{Kind: "clinical note", ID: id}
	}
	if u.ChiefComplaint != nil {
		n.ChiefComplaint = *u.ChiefComplaint
	}
	if u.HPI != nil {
		n.HPI = *u.HPI
	}
	if u.ROS != nil {
		n.ROS = u.ROS
	}
	if u.PhysicalExam != nil {
		n.PhysicalExam = u.PhysicalExam
	}
	if u.Assessment != nil {
		n.Assessment = *u.Assessment
	}
	if u.Plan != nil {
		n.Plan = *u.Plan
	}
	if u.ICDCodes != nil {
		n.ICDCodes = *u.ICDCodes
	}
	if u.CPTCodes != nil {
		n.CPTCodes = *u.CPTCodes
	}
	n = cloneNote(n)
	m.notes[id] = n
	return cloneNote(n), nil
}

/* ---------- orders ---------- */

func (m *MemoryAdapter) CreateOrder(_ context.Context, o Order) (Order, error) {
	if o.PatientID == "" {
		return Order{}, fmt.Errorf("%w: order needs patient_id", ErrInvalid)
	}
	if !o.Type.Valid() {
		return Order{}, fmt.Errorf("%w: order type %q", ErrInvalid, o.Type)
	}
	if o.Status == "" {
		o.Status = OrderDraft
	}
	if !o.Status.Valid() {
		return Order{}, fmt.Errorf("%w: order status %q", ErrInvalid, o.Status)
	}
	o.ID = newID("order")
	if o.OrderedAt == "" {
		o.OrderedAt = m.timestamp()
	}
	o.Details = maps.Clone(o.Details)

	m.mu.Lock()
	m.orders[o.ID] = o
	m.mu.Unlock()
	return o, nil
}

func (m *MemoryAdapter) Orders(_ context.Context, patientID string) ([]Order, error) {
	m.mu.RLock()
	out := []Order{}
	for _, o := range m.orders {
		if o.PatientID == patientID {
			out = append(out, o)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderedAt != out[j].OrderedAt {
			return out[i].OrderedAt < out[j].OrderedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(_ context.Context, id string, status OrderStatus) (Order, error) {
	if !status.Valid() {
		return Order{}, fmt.Errorf("%w: order status %q", ErrInvalid, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, &NotFoundError{Kind: "order", ID: id}
	}
	o.Status = status
	m.orders[id] = o
	return o, nil
}

/* ---------- copies ---------- */

func clonePatient(p Patient) Patient {
	if p.Address != nil {
		a := *p.Address
		p.Address = &a
	}
	p.Insurances = slices.Clone(p.Insurances)
	p.Allergies = slices.Clone(p.Allergies)
	p.Medications = slices.Clone(p.Medications)
	p.Problems = slices.Clone(p.Problems)
	p.Vitals = maps.Clone(p.Vitals)
	return p
}

func cloneNote(n ClinicalNote) ClinicalNote {
	n.ROS = maps.Clone(n.ROS)
	n.PhysicalExam = maps.Clone(n.PhysicalExam)
	n.ICDCodes = slices.Clone(n.ICDCodes)
	n.CPTCodes = slices.Clone(n.CPTCodes)
	return n
}

var _ Adapter = (*MemoryAdapter)(nil)
