package metric

import "time"

type FailReason string

const (
	FailReasonNoMatchedRoute FailReason = "no_matched_route"
	FailReasonUnauthorized   FailReason = "unauthorized"
	FailReasonRateLimited    FailReason = "rate_limited"
	FailReasonInvalidQuery   FailReason = "invalid_query"
	FailReasonUpstream       FailReason = "upstream"
	FailReasonUnknown        FailReason = "unknown"
)

// Metrics is implemented by every metrics provider. The first group describes
// the HTTP API, the second the upstream access layer.
type Metrics interface {
	IncRequestsTotal()
	UpdateRequestsDuration(route, method string, start time.Time)
	IncResponsesTotal(route string, status int)
	IncRequestsInFlight()
	DecRequestsInFlight()
	IncFailedRequestsTotal(FailReason)

	IncCacheHits(kind string)
	IncCacheMisses(kind string)
	IncUpstreamAttempts(kind, outcome string)
	IncRetries(kind string)
	IncFetchFailures(kind, failure string)
	IncIdentityRotations()
	SetCircuitState(state int)
	IncAdmissionsInFlight()
	DecAdmissionsInFlight()
	UpdateUpstreamLatency(kind string, lat time.Duration)
}
