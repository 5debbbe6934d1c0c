package healthsync

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid record")
)

// NotFoundError names the record kind and id that was missing.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

type Insurance struct {
	Provider string `json:"provider"`
	MemberID string `json:"member_id"`
	Group    string `json:"group"`
}

type Patient struct {
	ID          string         `json:"id"`
	MRN         string         `json:"mrn"`
	Name        string         `json:"name"`
	DateOfBirth string         `json:"date_of_birth"`
	Gender      string         `json:"gender"`
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Address     *Address       `json:"address,omitempty"`
	Insurances  []Insurance    `json:"insurances,omitempty"`
	Allergies   []string       `json:"allergies"`
	Medications []string       `json:"medications"`
	Problems    []string       `json:"problems"`
	Vitals      map[string]any `json:"vitals,omitempty"`
}

// PatientUpdate is a partial patient; nil fields are left untouched.
type PatientUpdate struct {
	MRN         *string        `json:"mrn"`
	Name        *string        `json:"name"`
	DateOfBirth *string        `json:"date_of_birth"`
	Gender      *string        `json:"gender"`
	Email       *string        `json:"email"`
	Phone       *string        `json:"phone"`
	Address     *Address       `json:"address"`
	Insurances  *[]Insurance   `json:"insurances"`
	Allergies   *[]string      `json:"allergies"`
	Medications *[]string      `json:"medications"`
	Problems    *[]string      `json:"problems"`
	Vitals      map[string]any `json:"vitals"`
}

type AppointmentStatus string

const (
	AppointmentScheduled  AppointmentStatus = "scheduled"
	AppointmentCheckedIn  AppointmentStatus = "checked-in"
	AppointmentInProgress AppointmentStatus = "in-progress"
	AppointmentCompleted  AppointmentStatus = "completed"
	AppointmentCancelled  AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentScheduled, AppointmentCheckedIn, AppointmentInProgress, AppointmentCompleted, AppointmentCancelled:
		return true
	}
	return false
}

// Appointment is a scheduled visit. StartTime is RFC 3339 so a date prefix selects a day.
type Appointment struct {
	ID             string            `json:"id"`
	PatientID      string            `json:"patient_id"`
	ProviderID     string            `json:"provider_id"`
	StartTime      string            `json:"start_time"`
	EndTime        string            `json:"end_time"`
	Type           string            `json:"type"`
	Status         AppointmentStatus `json:"status"`
	ReasonForVisit string            `json:"reason_for_visit"`
}

type ClinicalNote struct {
	ID             string            `json:"id"`
	PatientID      string            `json:"patient_id"`
	AppointmentID  string            `json:"appointment_id"`
	ChiefComplaint string            `json:"chief_complaint"`
	HPI            string            `json:"hpi"`
	ROS            map[string]string `json:"ros"`
	PhysicalExam   map[string]string `json:"physical_exam"`
	Assessment     string            `json:"assessment"`
	Plan           string            `json:"plan"`
	ICDCodes       []string          `json:"icd_codes"`
	CPTCodes       []string          `json:"cpt_codes"`
	Timestamp      string            `json:"timestamp"`
}

type ClinicalNoteUpdate struct {
	ChiefComplaint *string           `json:"chief_complaint"`
	HPI            *string           `json:"hpi"`
	ROS            map[string]string `json:"ros"`
	PhysicalExam   map[string]string `json:"physical_exam"`
	Assessment     *string           `json:"assessment"`
	Plan           *string           `json:"plan"`
	ICDCodes       *[]string         `json:"icd_codes"`
	CPTCodes       *[]string         `json:"cpt_codes"`
}

type OrderType string

const (
	OrderLab          OrderType = "lab"
	OrderImaging      OrderType = "imaging"
	OrderPrescription OrderType = "prescription"
	OrderReferral     OrderType = "referral"
	OrderProcedure    OrderType = "procedure"
)

func (t OrderType) Valid() bool {
	switch t {
	case OrderLab, OrderImaging, OrderPrescription, OrderReferral, OrderProcedure:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderOrdered   OrderStatus = "ordered"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderDraft, OrderOrdered, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

type Order struct {
	ID          string         `json:"id"`
	PatientID   string         `json:"patient_id"`
	Type        OrderType      `json:"type"`
	Description string         `json:"description"`
	Status      OrderStatus    `json:"status"`
	OrderedBy   string         `json:"ordered_by"`
	OrderedAt   string         `json:"ordered_at"`
	Details     map[string]any `json:"details,omitempty"`
}
