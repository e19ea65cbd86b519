package core

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Sign-in
	RecordLogin(method string, success bool)
	RecordIdentityProviderCall(operation string, success bool, duration time.Duration)

	// Session tokens
	RecordTokenIssued(tokenType, grantType string)
	RecordTokenValidation(result string, duration time.Duration)

	// PKCE authorization flow; step is authorize, callback or token
	RecordAuthorizationStep(step, result string)
	RecordAuthorizationRecordsPurged(kind string, count int64)

	// User directory
	RecordAdminChange(action string)
}
