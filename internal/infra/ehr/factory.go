package ehr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"kaiden-app/internal/domain/healthsync"
	"kaiden-app/internal/infra/httpclient"
)

const (
	SystemEpic   = "epic"
	SystemCerner = "cerner"
	SystemCustom = "custom"
	SystemNone   = "none"
)

var ErrMissingEndpoint = errors.New("ehr api endpoint is required")

type Config struct {
	System      string
	Endpoint    string
	ClientID    string
	AccessToken string
	APIKey      string
	Headers     map[string]string
	Timeout     time.Duration
	Logger      *zap.Logger
}

// NewAdapter builds the adapter for cfg.System. Unknown systems and "none" get
// the in-memory adapter.
func NewAdapter(cfg Config) (healthsync.Adapter, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	system := strings.ToLower(strings.TrimSpace(cfg.System))
	switch system {
	case SystemEpic, SystemCerner, SystemCustom:
	default:
		if system != "" && system != SystemNone {
			log.Warn("unknown ehr system, using in-memory adapter", zap.String("system", cfg.System))
		}
		return healthsync.NewMemoryAdapter(), nil
	}

	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("%s: %w", system, ErrMissingEndpoint)
	}
	client, err := httpclient.NewWithBaseURL(cfg.Endpoint, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", system, err)
	}
	client.Headers = map[string]string{}
	for k, v := range cfg.Headers {
		client.Headers[k] = v
	}

	switch system {
	case SystemEpic:
		client.Headers["Accept"] = "application/fhir+json"
		if cfg.ClientID != "" {
			client.Headers["Epic-Client-ID"] = cfg.ClientID
		}
		if cfg.AccessToken != "" {
			client.Headers["Authorization"] = "Bearer " + cfg.AccessToken
		}
	case SystemCerner:
		client.Headers["Accept"] = "application/fhir+json"
		if cfg.AccessToken != "" {
			client.Headers["Authorization"] = "Bearer " + cfg.AccessToken
		}
	case SystemCustom:
		if cfg.APIKey != "" {
			client.Headers["Authorization"] = "Bearer " + cfg.APIKey
		}
		return &CustomAdapter{MemoryAdapter: healthsync.NewMemoryAdapter(), http: client}, nil
	}

	return &fhirAdapter{
		MemoryAdapter: healthsync.NewMemoryAdapter(),
		system:        system,
		http:          client,
		log:           log.Named("ehr"),
	}, nil
}

var (
	_ healthsync.FHIRClient = (*fhirAdapter)(nil)
	_ healthsync.Adapter    = (*CustomAdapter)(nil)
)
