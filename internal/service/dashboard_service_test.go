package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tswimming/swimschool-api/internal/models"
)

type fakeDashboardEnrollments struct {
	enrollments []models.Enrollment
}

func (f *fakeDashboardEnrollments) ListAll(_ context.Context) ([]models.Enrollment, error) {
	return f.enrollments, nil
}

type fakeCourseLister struct {
	courses []models.Course
}

func (f *fakeCourseLister) List(_ context.Context) ([]models.Course, error) {
	return f.courses, nil
}

func dashboardFixture() *DashboardService {
	fluke := "Khru Fluke"
	som := "Khru Som"
	courses := &fakeCourseLister{courses: []models.Course{
		{ID: "course-a", Title: "Course A", Price: 3000, InstructorName: &fluke},
		{ID: "course-b", Title: "Course B", Price: 4000, InstructorName: &som},
		{ID: "course-x", Title: "Course X", Price: 1000},
	}}
	jan := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	enrollments := &fakeDashboardEnrollments{enrollments: []models.Enrollment{
		{ID: "e1", UserID: "u1", CourseID: "course-a", PaymentStatus: models.PaymentStatusPaid, CreatedAt: jan},
		{ID: "e2", UserID: "u2", CourseID: "course-a", PaymentStatus: models.PaymentStatusPaid, CreatedAt: feb},
		{ID: "e3", UserID: "u3", CourseID: "course-b", PaymentStatus: models.PaymentStatusPaid, CreatedAt: feb},
		{ID: "e4", UserID: "u4", CourseID: "course-b", PaymentStatus: models.PaymentStatusPending, CreatedAt: feb},
		{ID: "e5", UserID: "u5", CourseID: "deleted-course", PaymentStatus: models.PaymentStatusRejected, CreatedAt: feb},
		{ID: "e6", UserID: "u1", CourseID: "course-x", PaymentStatus: models.PaymentStatusPaid, CreatedAt: feb},
	}}
	return NewDashboardService(enrollments, courses, nil, 0, nil)
}

func TestAdminSummaryTotals(t *testing.T) {
	svc := dashboardFixture()

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.TotalEnrollments)
	assert.Equal(t, 1, summary.PendingPayments)
	assert.Equal(t, 3000+3000+4000+1000, summary.TotalRevenue)
	assert.Equal(t, 4, summary.StatusBreakdown.Paid)
	assert.Equal(t, 1, summary.StatusBreakdown.Pending)
	assert.Equal(t, 1, summary.StatusBreakdown.Rejected)
	// u1 holds two paid enrollments but counts once.
	assert.Equal(t, 3, summary.ActiveStudents)
}

func TestAdminSummaryRevenueIsChronological(t *testing.T) {
	svc := dashboardFixture()

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Revenue, 2)
	assert.Equal(t, "Jan 25", summary.Revenue[0].Month)
	assert.Equal(t, 3000, summary.Revenue[0].Revenue)
	assert.Equal(t, "Feb 25", summary.Revenue[1].Month)
	assert.Equal(t, 3000+4000+1000, summary.Revenue[1].Revenue)
}

func TestAdminSummaryUnknownCourseBucket(t *testing.T) {
	svc := dashboardFixture()

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.EnrollmentsByMonth, 2)
	feb := summary.EnrollmentsByMonth[1]
	assert.Equal(t, "Feb 25", feb.Month)
	assert.Equal(t, 1, feb.Counts["Unknown"])
	assert.Equal(t, 5, feb.Total)
}

func TestAdminSummaryInstructorLoad(t *testing.T) {
	svc := dashboardFixture()

	summary, err := svc.AdminSummary(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.InstructorLoad, 3)
	assert.Equal(t, "Khru Fluke", summary.InstructorLoad[0].Instructor)
	assert.Equal(t, 2, summary.InstructorLoad[0].Students)
	// Courses without an instructor surface as Unassigned.
	names := []string{summary.InstructorLoad[1].Instructor, summary.InstructorLoad[2].Instructor}
	assert.Contains(t, names, "Unassigned")
	assert.Contains(t, names, "Khru Som")
}
