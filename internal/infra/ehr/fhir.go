package ehr

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/infra/httpclient"
)

// fhirAdapter serves the adapter operations from memory and forwards raw FHIR
// resource calls to the upstream server.
type fhirAdapter struct {
	*healthsync.MemoryAdapter
	system string
	http   *httpclient.Client
	log    *zap.Logger
}

func (a *fhirAdapter) Name() string { return a.system }

func (a *fhirAdapter) FHIRSearch(ctx context.Context, resource string, params map[string]string) (map[string]any, error) {
	path, err := resourcePath(resource, "")
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		q := url.Values{}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, params[k])
		}
		path += "?" + q.Encode()
	}
	a.log.Debug("fhir search", zap.String("system", a.system), zap.String("resource", resource))
	return a.do(ctx, http.MethodGet, path, nil)
}

func (a *fhirAdapter) FHIRRead(ctx context.Context, resource, id string) (map[string]any, error) {
	path, err := resourcePath(resource, id)
	if err != nil {
		return nil, err
	}
	a.log.Debug("fhir read", zap.String("system", a.system), zap.String("resource", resource), zap.String("id", id))
	out, err := a.do(ctx, http.MethodGet, path, nil)
	if httpclient.StatusCode(err) == http.StatusNotFound {
		return nil, &healthsync.NotFoundError{Kind: resource, ID: id}
	}
	return out, err
}

func (a *fhirAdapter) FHIRCreate(ctx context.Context, resource string, body map[string]any) (map[string]any, error) {
	path, err := resourcePath(resource, "")
	if err != nil {
		return nil, err
	}
	a.log.Debug("fhir create", zap.String("system", a.system), zap.String("resource", resource))
	return a.do(ctx, http.MethodPost, path, withResourceType(resource, body))
}

func (a *fhirAdapter) FHIRUpdate(ctx context.Context, resource, id string, body map[string]any) (map[string]any, error) {
	path, err := resourcePath(resource, id)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: fhir update needs an id", healthsync.ErrInvalid)
	}
	a.log.Debug("fhir update", zap.String("system", a.system), zap.String("resource", resource), zap.String("id", id))
	b := withResourceType(resource, body)
	b["id"] = id
	return a.do(ctx, http.MethodPut, path, b)
}

func (a *fhirAdapter) do(ctx context.Context, method, path string, in map[string]any) (map[string]any, error) {
	out := map[string]any{}
	var payload any
	if in != nil {
		payload = in
	}
	if err := a.http.DoJSON(ctx, method, path, nil, payload, &out); err != nil {
		return nil, fmt.Errorf("%s fhir %s %s: %w", a.system, method, path, err)
	}
	return out, nil
}

var (
	fhirResourceType = regexp.MustCompile(`^[A-Z][A-Za-z]+$`)
	fhirID           = regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`)
)

// resourcePath only admits FHIR type names and logical ids, so nothing a
// caller sends can climb out of the server base.
func resourcePath(resource, id string) (string, error) {
	if !fhirResourceType.MatchString(resource) {
		return "", fmt.Errorf("%w: fhir resource %q", healthsync.ErrInvalid, resource)
	}
	if id == "" {
		return "/" + resource, nil
	}
	if !fhirID.MatchString(id) || strings.Trim(id, ".") == "" {
		return "", fmt.Errorf("%w: fhir id %q", healthsync.ErrInvalid, id)
	}
	return "/" + resource + "/" + url.PathEscape(id), nil
}

func withResourceType(resource string, body map[string]any) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}
	out["resourceType"] = resource
	return out
}
