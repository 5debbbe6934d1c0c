package features

// FeatureConfig describes a gated capability and the tiers that include it.
type FeatureConfig struct {
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name"`
	Description string             `json:"description"`
	Tiers       []SubscriptionTier `json:"tiers"`
}

var (
	allTiers           = []SubscriptionTier{TierFreeTrial, TierPersonal, TierSmallBusiness, TierStartup, TierEnterprise}
	personalAndUp      = []SubscriptionTier{TierPersonal, TierSmallBusiness, TierStartup, TierEnterprise}
	smallBusinessAndUp = []SubscriptionTier{TierSmallBusiness, TierStartup, TierEnterprise}
	startupAndUp       = []SubscriptionTier{TierStartup, TierEnterprise}
	enterpriseOnly     = []SubscriptionTier{TierEnterprise}
)

// catalog is kept in declaration order; FeaturesForTier relies on it.
var catalog = []FeatureConfig{
	{"ai_chat", "AI Business Consultant", "Chat with Kaiden AI for business advice", allTiers},
	{"document_templates", "Document Templates", "Access to business document templates", allTiers},
	{"business_guides", "Business Formation Guides", "Step-by-step business formation guides", allTiers},
	{"community_access", "Community Access", "Access to Kaiden community forums", allTiers},

	{"unlimited_ai", "Unlimited AI Conversations", "No limits on AI chat interactions", personalAndUp},
	{"credit_repair", "Credit Repair Basics", "Credit repair guidance and tools", personalAndUp},
	{"email_support", "Email Support", "48-hour email support response", personalAndUp},

	{"voice_ai", "Voice AI Assistant", "Personalized voice-based AI assistant", smallBusinessAndUp},
	{"llc_formation", "LLC & Trust Formation", "Assistance with LLC and trust formation", smallBusinessAndUp},
	{"grant_writing", "Grant & Proposal Writing", "AI-assisted grant and proposal writing", smallBusinessAndUp},
	{"dropshipping_tools", "Dropshipping Setup", "Tools and guidance for dropshipping", smallBusinessAndUp},
	{"content_creation", "Content Creation Tools", "AI-powered content generation", smallBusinessAndUp},
	{"priority_support", "Priority Support", "24-hour priority email support", smallBusinessAndUp},
	{"team_members_5", "Up to 5 Team Members", "Add up to 5 team members", []SubscriptionTier{TierSmallBusiness}},
	{"strategy_call_monthly", "Monthly Strategy Call", "30-minute monthly strategy call", smallBusinessAndUp},
	{"done_for_you_docs", "Done-For-You Documents", "Professional document preparation service", smallBusinessAndUp},

	{"ai_arena", "AI Arena", "Multi-AI debates and analysis", startupAndUp},
	{"crypto_investment", "Crypto & Investment Guidance", "Cryptocurrency and investment advice", startupAndUp},
	{"medical_billing", "Medical Billing Setup", "Medical billing and healthcare tools", startupAndUp},
	{"vitalsync_integration", "VitalSync Integration", "Full VitalSync telehealth platform access", startupAndUp},
	{"tribe_integration", "Where's My Tribe Integration", "Community platform integration", startupAndUp},
	{"academy_access", "Kaiden Academy", "Full access to Kaiden Academy courses", startupAndUp},
	{"phone_support", "Priority Phone Support", "Direct phone support line", startupAndUp},
	{"team_members_15", "Up to 15 Team Members", "Add up to 15 team members", []SubscriptionTier{TierStartup}},
	{"strategy_call_weekly", "Weekly Strategy Calls", "Weekly strategy and planning calls", startupAndUp},
	{"creative_content_engine", "Creative Content Engine", "AI agent swarm for multi-platform content creation", startupAndUp},

	{"white_label", "White-Label Capabilities", "Brand Kaiden as your own", enterpriseOnly},
	{"custom_integrations", "Custom Integrations", "Custom API integrations and workflows", enterpriseOnly},
	{"api_access", "API Access", "Full API access for custom development", enterpriseOnly},
	{"dedicated_manager", "Dedicated Account Manager", "Personal account manager", enterpriseOnly},
	{"unlimited_team", "Unlimited Team Members", "No limit on team size", enterpriseOnly},
	{"support_24_7", "24/7 Priority Support", "Round-the-clock priority support", enterpriseOnly},
	{"custom_workflows", "Custom Workflows", "Custom automation workflows", enterpriseOnly},
	{"advanced_analytics", "Advanced Analytics", "Advanced reporting and analytics", enterpriseOnly},
	{"sla_guarantee", "SLA Guarantee", "99.9% uptime SLA guarantee", enterpriseOnly},
	{"on_demand_sessions", "On-Demand Strategy Sessions", "Unlimited on-demand strategy sessions", enterpriseOnly},
}

var byName = func() map[string]FeatureConfig {
	m := make(map[string]FeatureConfig, len(catalog))
	for _, f := range catalog {
		m[f.Name] = f
	}
	return m
}()

// Lookup returns the catalog entry for a feature slug.
func Lookup(feature string) (FeatureConfig, bool) {
	f, ok := byName[feature]
	return f, ok
}

// All returns every feature in declaration order.
func All() []FeatureConfig {
	out := make([]FeatureConfig, len(catalog))
	copy(out, catalog)
	return out
}

func (f FeatureConfig) includes(tier SubscriptionTier) bool {
	for _, t := range f.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// HasFeature reports whether tier includes feature. Unknown features are never included.
func HasFeature(tier SubscriptionTier, feature string) bool {
	f, ok := byName[feature]
	if !ok {
		return false
	}
	return f.includes(tier)
}

// FeaturesForTier lists the features included in tier.
func FeaturesForTier(tier SubscriptionTier) []FeatureConfig {
	out := []FeatureConfig{}
	for _, f := range catalog {
		if f.includes(tier) {
			out = append(out, f)
		}
	}
	return out
}

// MinimumTierForFeature is the lowest tier including feature; enterprise when none does.
func MinimumTierForFeature(feature string) SubscriptionTier {
	f, ok := byName[feature]
	if !ok {
		return TierEnterprise
	}
	for _, tier := range Tiers {
		if f.includes(tier) {
			return tier
		}
	}
	return TierEnterprise
}
