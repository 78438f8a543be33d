package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"

	// Checkout-specific instruments.
	MReconciliationRequired MetricKey = "checkout_reconciliation_required_total"
	MOversellRejected       MetricKey = "inventory_oversell_rejected_total"
	MRateLimited            MetricKey = "http_rate_limited_total"
)
