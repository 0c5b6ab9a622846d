package usecase

// Login outcomes passed to AccessMetrics.LoginAttempt.
const (
	LoginOutcomeSuccess            = "success"
	LoginOutcomeInvalidCredentials = "invalid_credentials"
	LoginOutcomeLocked             = "locked"
	LoginOutcomeInactive           = "inactive"
	LoginOutcomeError              = "error"
)

// Token rejection reasons passed to AccessMetrics.TokenRejected.
const (
	RejectMissing = "missing"
	RejectInvalid = "invalid"
	RejectSubject = "subject"
)

// AccessMetrics captures telemetry hooks for authentication and audit.
type AccessMetrics interface {
	LoginAttempt(outcome string)
	LockEngaged()
	TokenRejected(reason string)
	AuditWriteFailed(action string)
}

type noopMetrics struct{}

func (noopMetrics) LoginAttempt(string)     {}
func (noopMetrics) LockEngaged()            {}
func (noopMetrics) TokenRejected(string)    {}
func (noopMetrics) AuditWriteFailed(string) {}
