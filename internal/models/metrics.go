package models

import "time"

// ServiceMetrics is a point-in-time summary of service activity.
type ServiceMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	OverrideWrites           uint64    `json:"override_writes"`
	CascadeDeletions         uint64    `json:"cascade_deletions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
