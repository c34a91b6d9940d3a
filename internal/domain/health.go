package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// WorkflowMetrics is returned by GET /v1/metrics/workflow.
type WorkflowMetrics struct {
	Approved           int64   `json:"approved"`
	Rejected           int64   `json:"rejected"`
	Processed          int64   `json:"processed"`
	FailedTransitions  int64   `json:"failedTransitions"`
	WalletFailures     int64   `json:"walletFailures"`
	Reconciled         int64   `json:"reconciled"`
	AnalyticsCacheRate float64 `json:"analyticsCacheHitRate"`
	Period             string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}
