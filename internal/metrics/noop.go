package metrics

import "time"

// NoopMetrics does nothing; it is used when metrics are disabled.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordTokenIssued(tokenType, grantType string)                      {}
func (n *NoopMetrics) RecordTokenError(grantType, code string)                            {}
func (n *NoopMetrics) RecordTokenRevoked(reason string)                                   {}
func (n *NoopMetrics) RecordAuthorizationDecision(decision string)                        {}
func (n *NoopMetrics) RecordLogin(success bool)                                           {}
func (n *NoopMetrics) RecordHTTPRequest(method, path string, status int, d time.Duration) {}
