package ehr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/infra/httpclient"
)

// CustomAdapter reads patients from a practice's own REST API. Everything else
// is kept locally.
type CustomAdapter struct {
	*healthsync.MemoryAdapter
	http *httpclient.Client
}

func (a *CustomAdapter) Name() string { return SystemCustom }

func (a *CustomAdapter) GetPatient(ctx context.Context, id string) (healthsync.Patient, error) {
	var p healthsync.Patient
	err := a.http.DoJSON(ctx, http.MethodGet, "/patients/"+url.PathEscape(id), nil, nil, &p)
	if httpclient.StatusCode(err) == http.StatusNotFound {
		return healthsync.Patient{}, &healthsync.NotFoundError{Kind: "patient", ID: id}
	}
	if err != nil {
		return healthsync.Patient{}, fmt.Errorf("custom ehr get patient: %w", err)
	}
	return p, nil
}

func (a *CustomAdapter) SearchPatients(ctx context.Context, query string) ([]healthsync.Patient, error) {
	out := []healthsync.Patient{}
	if err := a.http.DoJSON(ctx, http.MethodGet, "/patients/search?q="+url.QueryEscape(query), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("custom ehr search patients: %w", err)
	}
	return out, nil
}
