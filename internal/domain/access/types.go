package access

type AccessState string

const (
	AccessTrial  AccessState = "trial"
	AccessActive AccessState = "active"
	AccessGrace  AccessState = "grace"
	AccessLocked AccessState = "locked"
)

// GateOutcome is the single branch a gated feature page takes.
type GateOutcome string

const (
	GateSignIn  GateOutcome = "sign_in"
	GateUpgrade GateOutcome = "upgrade"
	GateGranted GateOutcome = "granted"
)
