package metrics

import "time"

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

func outcome(success bool) string {
	if success {
		return resultSuccess
	}
	return resultFailure
}

func (m *Metrics) RecordLogin(method string, success bool) {
	m.LoginsTotal.WithLabelValues(method, outcome(success)).Inc()
}

func (m *Metrics) RecordIdentityProviderCall(
	operation string,
	success bool,
	duration time.Duration,
) {
	m.IdentityProviderCallsTotal.WithLabelValues(operation, outcome(success)).Inc()
	m.IdentityProviderCallSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Metrics) RecordTokenIssued(tokenType, grantType string) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
}

func (m *Metrics) RecordTokenValidation(result string, duration time.Duration) {
	m.TokenValidationTotal.WithLabelValues(result).Inc()
	m.TokenValidationDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordAuthorizationStep(step, result string) {
	m.AuthorizationStepsTotal.WithLabelValues(step, result).Inc()
}

func (m *Metrics) RecordAuthorizationRecordsPurged(kind string, count int64) {
	if count <= 0 {
		return
	}
	m.AuthorizationPurgedTotal.WithLabelValues(kind).Add(float64(count))
}

func (m *Metrics) RecordAdminChange(action string) {
	m.AdminChangesTotal.WithLabelValues(action).Inc()
}
