package domain

import "time"

// EngineMetrics is the rolling per-engine counter set the Health Monitor and
// Engine Manager both update and the observability surface exposes. All
// fields are read through EngineMetricsSnapshot; the live struct is owned by
// a sync/atomic-backed tracker (see adapter/metrics/tracker.go).
type EngineMetrics struct {
	LastOkAt      time.Time
	LastErrAt     time.Time
	RequestsOk    int64
	RequestsErr   int64
	P50LatencyMs  int64
	P95LatencyMs  int64
}

// EngineMetricsSnapshot is the immutable, copyable view returned by the
// tracker's Snapshot method.
type EngineMetricsSnapshot struct {
	LastOkAt     time.Time      `json:"last_ok_at,omitempty"`
	LastErrAt    time.Time      `json:"last_err_at,omitempty"`
	Identity     EngineIdentity `json:"engine"`
	RequestsOk   int64          `json:"requests_ok"`
	RequestsErr  int64          `json:"requests_err"`
	P50LatencyMs int64          `json:"p50_latency_ms"`
	P95LatencyMs int64          `json:"p95_latency_ms"`
}
