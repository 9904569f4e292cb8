package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tswimming/swimschool-api/internal/dto"
	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

const dashboardSummaryCacheKey = "dashboard:admin-summary"

type dashboardEnrollmentSource interface {
	ListAll(ctx context.Context) ([]models.Enrollment, error)
}

type courseLister interface {
	List(ctx context.Context) ([]models.Course, error)
}

// DashboardService aggregates enrollments into the administrator dashboard.
// Aggregation happens in memory over the full enrollment set; the school's
// data volume stays far below anything that would need SQL rollups.
type DashboardService struct {
	enrollments dashboardEnrollmentSource
	courses     courseLister
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(enrollments dashboardEnrollmentSource, courses courseLister, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		enrollments: enrollments,
		courses:     courses,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         time.Now,
	}
}

type courseInfo struct {
	title      string
	price      int
	instructor string
}

func (s *DashboardService) courseIndex(ctx context.Context) map[string]courseInfo {
	index := make(map[string]courseInfo)
	courses, err := s.courses.List(ctx)
	if err != nil {
		s.logger.Warn("dashboard course load failed", zap.Error(err))
		return index
	}
	for _, course := range courses {
		info := courseInfo{title: course.Title, price: course.Price, instructor: "Unassigned"}
		if course.InstructorName != nil && *course.InstructorName != "" {
			info.instructor = *course.InstructorName
		}
		index[course.ID] = info
	}
	return index
}

// AdminSummary builds the full dashboard payload, cache-aside.
func (s *DashboardService) AdminSummary(ctx context.Context) (*dto.AdminSummary, error) {
	if s.cache != nil {
		var cached dto.AdminSummary
		if hit, _ := s.cache.Get(ctx, dashboardSummaryCacheKey, &cached); hit {
			return &cached, nil
		}
	}

	enrollments, err := s.enrollments.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments for dashboard")
	}
	courses := s.courseIndex(ctx)

	summary := &dto.AdminSummary{
		Revenue:            s.revenueByMonth(enrollments, courses),
		EnrollmentsByMonth: s.enrollmentsByMonth(enrollments, courses),
		InstructorLoad:     s.instructorLoad(enrollments, courses),
		GeneratedAt:        s.now().UTC(),
	}

	activeStudents := make(map[string]bool)
	for i := range enrollments {
		e := &enrollments[i]
		summary.TotalEnrollments++
		switch e.PaymentStatus {
		case models.PaymentStatusPending:
			summary.StatusBreakdown.Pending++
			summary.PendingPayments++
		case models.PaymentStatusPaid:
			summary.StatusBreakdown.Paid++
			summary.TotalRevenue += courses[e.CourseID].price
			activeStudents[e.UserID] = true
		case models.PaymentStatusRejected:
			summary.StatusBreakdown.Rejected++
		}
	}
	summary.ActiveStudents = len(activeStudents)

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardSummaryCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// InvalidateCache drops the cached summary; called after writes that change
// dashboard numbers.
func (s *DashboardService) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Invalidate(ctx, "dashboard:*")
}

// revenueByMonth buckets PAID revenue by creation month, chronologically,
// labelled like "Jan 25".
func (s *DashboardService) revenueByMonth(enrollments []models.Enrollment, courses map[string]courseInfo) []dto.MonthlyRevenuePoint {
	type bucket struct {
		key     time.Time
		revenue int
	}
	buckets := make(map[string]*bucket)
	for i := range enrollments {
		e := &enrollments[i]
		if e.PaymentStatus != models.PaymentStatusPaid {
			continue
		}
		month := time.Date(e.CreatedAt.Year(), e.CreatedAt.Month(), 1, 0, 0, 0, 0, time.UTC)
		label := month.Format("Jan 06")
		if buckets[label] == nil {
			buckets[label] = &bucket{key: month}
		}
		buckets[label].revenue += courses[e.CourseID].price
	}

	points := make([]dto.MonthlyRevenuePoint, 0, len(buckets))
	keys := make([]string, 0, len(buckets))
	for label := range buckets {
		keys = append(keys, label)
	}
	sort.Slice(keys, func(i, j int) bool { return buckets[keys[i]].key.Before(buckets[keys[j]].key) })
	for _, label := range keys {
		points = append(points, dto.MonthlyRevenuePoint{Month: label, Revenue: buckets[label].revenue})
	}
	return points
}

// enrollmentsByMonth counts enrollments per month and course title.
// Enrollments whose course no longer exists land in an "Unknown" bucket.
func (s *DashboardService) enrollmentsByMonth(enrollments []models.Enrollment, courses map[string]courseInfo) []dto.MonthlyCourseEnrollments {
	type bucket struct {
		key    time.Time
		counts map[string]int
		total  int
	}
	buckets := make(map[string]*bucket)
	for i := range enrollments {
		e := &enrollments[i]
		month := time.Date(e.CreatedAt.Year(), e.CreatedAt.Month(), 1, 0, 0, 0, 0, time.UTC)
		label := month.Format("Jan 06")
		if buckets[label] == nil {
			buckets[label] = &bucket{key: month, counts: make(map[string]int)}
		}
		title := courses[e.CourseID].title
		if title == "" {
			title = "Unknown"
		}
		buckets[label].counts[title]++
		buckets[label].total++
	}

	keys := make([]string, 0, len(buckets))
	for label := range buckets {
		keys = append(keys, label)
	}
	sort.Slice(keys, func(i, j int) bool { return buckets[keys[i]].key.Before(buckets[keys[j]].key) })

	out := make([]dto.MonthlyCourseEnrollments, 0, len(keys))
	for _, label := range keys {
		out = append(out, dto.MonthlyCourseEnrollments{
			Month:  label,
			Counts: buckets[label].counts,
			Total:  buckets[label].total,
		})
	}
	return out
}

// instructorLoad counts paying students per instructor, busiest first.
func (s *DashboardService) instructorLoad(enrollments []models.Enrollment, courses map[string]courseInfo) []dto.InstructorLoadEntry {
	load := make(map[string]int)
	for i := range enrollments {
		e := &enrollments[i]
		if e.PaymentStatus != models.PaymentStatusPaid {
			continue
		}
		instructor := courses[e.CourseID].instructor
		if instructor == "" {
			instructor = "Unassigned"
		}
		load[instructor]++
	}

	entries := make([]dto.InstructorLoadEntry, 0, len(load))
	for instructor, students := range load {
		entries = append(entries, dto.InstructorLoadEntry{Instructor: instructor, Students: students})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Students != entries[j].Students {
			return entries[i].Students > entries[j].Students
		}
		return entries[i].Instructor < entries[j].Instructor
	})
	return entries
}
