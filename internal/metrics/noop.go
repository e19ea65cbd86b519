package metrics

import "time"

// NoopMetrics discards everything; used when metrics are disabled.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordLogin(method string, success bool) {}

func (n *NoopMetrics) RecordIdentityProviderCall(string, bool, time.Duration) {}

func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string)               {}
func (n *NoopMetrics) RecordTokenValidation(result string, duration time.Duration) {}

func (n *NoopMetrics) RecordAuthorizationStep(step, result string)               {}
func (n *NoopMetrics) RecordAuthorizationRecordsPurged(kind string, count int64) {}

func (n *NoopMetrics) RecordAdminChange(action string) {}
