package metric

import (
	"time"
)

type nopMetrics struct{}

func NewNop() Metrics {
	return &nopMetrics{}
}
func (m *nopMetrics) IncRequestsTotal()                               {}
func (m *nopMetrics) UpdateRequestsDuration(_, _ string, _ time.Time) {}
func (m *nopMetrics) IncResponsesTotal(_ string, _ int)               {}
func (m *nopMetrics) IncRequestsInFlight()                            {}
func (m *nopMetrics) DecRequestsInFlight()                            {}
func (m *nopMetrics) IncFailedRequestsTotal(_ FailReason)             {}
func (m *nopMetrics) IncCacheHits(_ string)                           {}
func (m *nopMetrics) IncCacheMisses(_ string)                         {}
func (m *nopMetrics) IncUpstreamAttempts(_, _ string)                 {}
func (m *nopMetrics) IncRetries(_ string)                             {}
func (m *nopMetrics) IncFetchFailures(_, _ string)                    {}
func (m *nopMetrics) IncIdentityRotations()                           {}
func (m *nopMetrics) SetCircuitState(_ int)                           {}
func (m *nopMetrics) IncAdmissionsInFlight()                          {}
func (m *nopMetrics) DecAdmissionsInFlight()                          {}
func (m *nopMetrics) UpdateUpstreamLatency(_ string, _ time.Duration) {}
