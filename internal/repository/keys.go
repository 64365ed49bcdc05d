package repository

const (
	// wizard_session:{session_id} -> JSON WizardSession
	KeyWizardSession = "wizard_session:%s"

	// rate_limit:{key}
	KeyRateLimit = "rate_limit:%s"

	// idem:booking:{attempt_id} -> 1, one booking request per attempt
	KeyIdemAttempt = "idem:booking:%s"
)
