package dto

import "time"

// MonthlyRevenuePoint is one chronological month bucket of PAID revenue.
// Month labels use the short month plus two-digit year form, e.g. "Jan 25".
type MonthlyRevenuePoint struct {
	Month   string `json:"month"`
	Revenue int    `json:"revenue"`
}

// MonthlyCourseEnrollments counts enrollments per course title for one month.
type MonthlyCourseEnrollments struct {
	Month  string         `json:"month"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// InstructorLoadEntry counts paying students per instructor display name.
type InstructorLoadEntry struct {
	Instructor string `json:"instructor"`
	Students   int    `json:"students"`
}

// StatusBreakdown counts enrollments per payment status.
type StatusBreakdown struct {
	Pending  int `json:"pending"`
	Paid     int `json:"paid"`
	Rejected int `json:"rejected"`
}

// AdminSummary is the aggregated administrator dashboard payload.
type AdminSummary struct {
	TotalEnrollments   int                        `json:"total_enrollments"`
	PendingPayments    int                        `json:"pending_payments"`
	TotalRevenue       int                        `json:"total_revenue"`
	ActiveStudents     int                        `json:"active_students"`
	Revenue            []MonthlyRevenuePoint      `json:"revenue"`
	EnrollmentsByMonth []MonthlyCourseEnrollments `json:"enrollments_by_month"`
	InstructorLoad     []InstructorLoadEntry      `json:"instructor_load"`
	StatusBreakdown    StatusBreakdown            `json:"status_breakdown"`
	GeneratedAt        time.Time                  `json:"generated_at"`
}

// SystemMetrics is a lightweight runtime snapshot served to administrators.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
