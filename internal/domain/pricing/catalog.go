package pricing

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"kaiden-app/internal/domain/features"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

var ErrInvalidCatalog = errors.New("invalid pricing catalog")

// FeaturePricing is a single-use purchase offer for one feature slug.
type FeaturePricing struct {
	Feature      string `yaml:"feature" json:"feature"`
	DisplayName  string `yaml:"display_name" json:"display_name"`
	Description  string `yaml:"description" json:"description"`
	Price        int64  `yaml:"price" json:"price"` // minor units
	Currency     string `yaml:"currency" json:"currency"`
	Lifetime     bool   `yaml:"lifetime" json:"lifetime"`
	DurationDays *int   `yaml:"duration_days,omitempty" json:"duration_days,omitempty"`
}

// Catalog is immutable once parsed.
type Catalog struct {
	byFeature map[string]FeaturePricing
	keys      []string
}

type catalogFile struct {
	Features []FeaturePricing `yaml:"features"`
}

// Parse decodes and validates a YAML price table.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	c := &Catalog{byFeature: make(map[string]FeaturePricing, len(file.Features))}
	for i, p := range file.Features {
		p.Feature = strings.TrimSpace(p.Feature)
		p.Currency = strings.ToLower(strings.TrimSpace(p.Currency))
		if err := validate(p); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%s): %v", ErrInvalidCatalog, i, p.Feature, err)
		}
		if _, dup := c.byFeature[p.Feature]; dup {
			return nil, fmt.Errorf("%w: duplicate feature %s", ErrInvalidCatalog, p.Feature)
		}
		c.byFeature[p.Feature] = p
		c.keys = append(c.keys, p.Feature)
	}
	sort.Strings(c.keys)
	return c, nil
}

func validate(p FeaturePricing) error {
	switch {
	case p.Feature == "":
		return errors.New("feature is required")
	case p.Price <= 0:
		return fmt.Errorf("price must be positive, got %d", p.Price)
	case len(p.Currency) != 3:
		return fmt.Errorf("currency must be an ISO 4217 code, got %q", p.Currency)
	case p.Lifetime && p.DurationDays != nil:
		return errors.New("lifetime entries must not set duration_days")
	case !p.Lifetime && (p.DurationDays == nil || *p.DurationDays <= 0):
		return errors.New("non-lifetime entries need a positive duration_days")
	}
	if _, ok := features.Lookup(p.Feature); !ok {
		return fmt.Errorf("unknown feature slug %q", p.Feature)
	}
	return nil
}

// Load parses the catalog compiled into the binary.
func Load() (*Catalog, error) {
	return Parse(embeddedCatalog)
}

func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// GetFeaturePricing looks up the offer for a feature slug.
func (c *Catalog) GetFeaturePricing(feature string) (FeaturePricing, bool) {
	p, ok := c.byFeature[feature]
	return p, ok
}

// All returns every offer sorted by feature slug.
func (c *Catalog) All() []FeaturePricing {
	out := make([]FeaturePricing, 0, len(c.keys))
	for _, k := range c.keys {
		out = append(out, c.byFeature[k])
	}
	return out
}

func (c *Catalog) Len() int { return len(c.keys) }

// ExpiresAt is when access bought at from ends; nil for lifetime offers.
func ExpiresAt(p FeaturePricing, from time.Time) *time.Time {
	if p.Lifetime || p.DurationDays == nil {
		return nil
	}
	t := from.AddDate(0, 0, *p.DurationDays)
	return &t
}

var defaultCatalog = MustLoad()

// Default returns the embedded catalog.
func Default() *Catalog { return defaultCatalog }

func GetFeaturePricing(feature string) (FeaturePricing, bool) {
	return defaultCatalog.GetFeaturePricing(feature)
}
