package metrics

// ============================================================================
// Metric Names
// ============================================================================

const namespace = "pspin"

// HTTP metric names
const (
	MetricNameHTTPRequestsTotal    = "http_requests_total"
	MetricNameHTTPRequestDuration  = "http_request_duration_seconds"
	MetricNameHTTPRequestsInFlight = "http_requests_in_flight"
)

// Spin metric names
const (
	MetricNameSpinsTotal        = "spins_total"
	MetricNameSpinDuration      = "spin_duration_seconds"
	MetricNameSpinsCorrected    = "spins_corrected_total"
	MetricNameSpinsSuperseded   = "spins_superseded_total"
	MetricNameConfirmationsPath = "confirmations_total"
)

// Gas payment metric names
const (
	MetricNamePaymentAttempts  = "payment_attempts_total"
	MetricNameSponsoredEnabled = "sponsored_payment_enabled"
)

// Session metric names
const (
	MetricNameConnectionHealth = "connection_health_failures"
	MetricNameSetupsTotal      = "delegation_setups_total"
	MetricNameBridgeClients    = "bridge_clients"
)

// ============================================================================
// Metric Help Text
// ============================================================================

const (
	HelpTextHTTPRequestsTotal    = "Total number of HTTP requests"
	HelpTextHTTPRequestDuration  = "HTTP request latency in seconds"
	HelpTextHTTPRequestsInFlight = "Current number of HTTP requests being served"

	HelpTextSpinsTotal        = "Spin requests that reached a terminal state, by result"
	HelpTextSpinDuration      = "Time from spin intent to delivered outcome in seconds"
	HelpTextSpinsCorrected    = "Spin intents replaced by the default intent after failing validation"
	HelpTextSpinsSuperseded   = "Spin outcomes discarded because a newer request was issued"
	HelpTextConfirmationsPath = "Confirmation watcher resolutions, by path"

	HelpTextPaymentAttempts  = "Gas payment submissions, by strategy and result"
	HelpTextSponsoredEnabled = "1 when the sponsored gas payment strategy is enabled"

	HelpTextConnectionHealth = "Consecutive spin failures counted by the connection health tracker"
	HelpTextSetupsTotal      = "Delegation setup attempts, by result"
	HelpTextBridgeClients    = "Connected game surfaces"
)

// ============================================================================
// Label Names and Values
// ============================================================================

const (
	LabelMethod   = "method"
	LabelPath     = "path"
	LabelStatus   = "status"
	LabelResult   = "result"
	LabelPathKind = "path"
	LabelStrategy = "strategy"
	LabelNetwork  = "network"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"

	PathLive     = "live"
	PathFallback = "fallback"
	PathTimeout  = "timeout"
)

// HTTPLatencyBuckets are the histogram buckets for API latency.
var HTTPLatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// SpinLatencyBuckets cover live confirmations through fully exhausted fallback polling.
var SpinLatencyBuckets = []float64{0.5, 1, 2, 4, 8, 12, 16, 24, 32}
