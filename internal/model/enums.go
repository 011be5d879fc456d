package model

type JobType string

const (
	JobTypeExport        JobType = "export"
	JobTypeAnalyze       JobType = "analyze"
	JobTypeExportAnalyze JobType = "export_analyze"
)

var JobTypes = []string{string(JobTypeExport), string(JobTypeAnalyze), string(JobTypeExportAnalyze)}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusUnknown    JobStatus = "unknown"
)

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type AuthMethod string

const (
	AuthMethodCodeScan  AuthMethod = "code-scan"
	AuthMethodPhoneCode AuthMethod = "phone-code"
)

var AuthMethods = []string{string(AuthMethodCodeScan), string(AuthMethodPhoneCode)}

type AuthState string

const (
	AuthStateCollectingAppID     AuthState = "collecting_app_id"
	AuthStateCollectingAppSecret AuthState = "collecting_app_secret"
	AuthStateAwaitingQRScan      AuthState = "awaiting_qr_scan"
	AuthStateCollectingPhone     AuthState = "collecting_phone"
	AuthStateAwaitingCode        AuthState = "awaiting_code"
	AuthStateAwaitingPassword    AuthState = "awaiting_password"
	AuthStateAuthorized          AuthState = "authorized"
	AuthStateCancelled           AuthState = "cancelled"
	AuthStateTimedOut            AuthState = "timed_out"
	AuthStateFailed              AuthState = "failed"
)

func (s AuthState) IsTerminal() bool {
	switch s {
	case AuthStateAuthorized, AuthStateCancelled, AuthStateTimedOut, AuthStateFailed:
		return true
	}
	return false
}

// HasDeadline reports whether the state waits on the user with a deadline.
func (s AuthState) HasDeadline() bool {
	return s == AuthStateAwaitingQRScan || s == AuthStateAwaitingCode || s == AuthStateAwaitingPassword
}
