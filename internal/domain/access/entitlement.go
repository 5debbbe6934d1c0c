package access

import (
	"sort"
	"time"

	"kaiden-app/internal/domain/entitlements"
	"kaiden-app/internal/domain/features"
	"kaiden-app/internal/domain/purchases"
	"kaiden-app/internal/domain/users"
)

// Subject is everything that can confer access to a user.
type Subject struct {
	User      users.User
	Grants    []entitlements.Grant
	Purchases []purchases.FeaturePurchase
}

// Source names what conferred access.
type Source string

const (
	SourceNone     Source = ""
	SourceTier     Source = "tier"
	SourceGrant    Source = "grant"
	SourcePurchase Source = "purchase"
)

// Resolve reports whether s may use feature and what granted it.
// Tier inclusion wins over grants, grants over purchases.
func Resolve(now time.Time, s Subject, feature string) (bool, Source) {
	if features.HasFeature(EffectiveTier(now, s.User), feature) {
		return true, SourceTier
	}
	for _, g := range s.Grants {
		if g.Feature == feature && g.ActiveAt(now) {
			return true, SourceGrant
		}
	}
	for _, p := range s.Purchases {
		if p.FeatureName == feature && p.ActiveAt(now) {
			return true, SourcePurchase
		}
	}
	return false, SourceNone
}

// HasAccess is Resolve without the source.
func HasAccess(now time.Time, s Subject, feature string) bool {
	ok, _ := Resolve(now, s, feature)
	return ok
}

// AccessibleFeatures lists every slug s can use at now, sorted.
func AccessibleFeatures(now time.Time, s Subject) []string {
	set := map[string]struct{}{}
	for _, f := range features.FeaturesForTier(EffectiveTier(now, s.User)) {
		set[f.Name] = struct{}{}
	}
	for _, g := range s.Grants {
		if g.ActiveAt(now) {
			set[g.Feature] = struct{}{}
		}
	}
	for _, p := range s.Purchases {
		if p.ActiveAt(now) {
			set[p.FeatureName] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
