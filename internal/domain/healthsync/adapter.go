package healthsync

import "context"

// Adapter normalises calls to an EHR system.
type Adapter interface {
	Name() string

	CreatePatient(ctx context.Context, p Patient) (Patient, error)
	GetPatient(ctx context.Context, id string) (Patient, error)
	SearchPatients(ctx context.Context, query string) ([]Patient, error)
	UpdatePatient(ctx context.Context, id string, u PatientUpdate) (Patient, error)

	CreateAppointment(ctx context.Context, a Appointment) (Appointment, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	AppointmentsByDate(ctx context.Context, date string) ([]Appointment, error)
	PatientAppointments(ctx context.Context, patientID string) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status AppointmentStatus) (Appointment, error)

	CreateClinicalNote(ctx context.Context, n ClinicalNote) (ClinicalNote, error)
	GetClinicalNote(ctx context.Context, id string) (ClinicalNote, error)
	UpdateClinicalNote(ctx context.Context, id string, u ClinicalNoteUpdate) (ClinicalNote, error)

	CreateOrder(ctx context.Context, o Order) (Order, error)
	Orders(ctx context.Context, patientID string) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (Order, error)
}

// FHIRClient is implemented by adapters that can talk FHIR REST to the upstream system.
// Resources are returned undecoded.
type FHIRClient interface {
	FHIRSearch(ctx context.Context, resource string, params map[string]string) (map[string]any, error)
	FHIRRead(ctx context.Context, resource, id string) (map[string]any, error)
	FHIRCreate(ctx context.Context, resource string, body map[string]any) (map[string]any, error)
	FHIRUpdate(ctx context.Context, resource, id string, body map[string]any) (map[string]any, error)
}
