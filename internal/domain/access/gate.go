package access

// Decide maps the two gate inputs to exactly one outcome.
// Authentication is checked first, so an anonymous caller never sees the upgrade branch.
func Decide(authenticated, hasAccess bool) GateOutcome {
	switch {
	case !authenticated:
		return GateSignIn
	case !hasAccess:
		return GateUpgrade
	default:
		return GateGranted
	}
}
