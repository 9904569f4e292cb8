package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tswimming/swimschool-api/internal/models"
)

type fakeNotificationRepo struct {
	single     []models.Notification
	batches    [][]models.Notification
	failOnCall int
	calls      int
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *models.Notification) error {
	f.single = append(f.single, *n)
	return nil
}

func (f *fakeNotificationRepo) CreateBatch(_ context.Context, batch []models.Notification) error {
	f.calls++
	if f.failOnCall > 0 && f.calls == f.failOnCall {
		return fmt.Errorf("write failed")
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeNotificationRepo) ListByUser(_ context.Context, _ models.NotificationFilter) ([]models.Notification, int, error) {
	return f.single, len(f.single), nil
}

func (f *fakeNotificationRepo) CountUnread(_ context.Context, _ string) (int, error) {
	return len(f.single), nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, _ []string) error {
	return nil
}

type fakeAudience struct {
	students    []string
	instructors []string
	everyone    []string
}

func (f *fakeAudience) ListByRole(_ context.Context, role models.UserRole) ([]string, error) {
	if role == models.RoleStudent {
		return f.students, nil
	}
	return f.instructors, nil
}

func (f *fakeAudience) ListActiveIDs(_ context.Context) ([]string, error) {
	return f.everyone, nil
}

type fakePaidLister struct {
	enrollments []models.Enrollment
}

func (f *fakePaidLister) ListPaid(_ context.Context) ([]models.Enrollment, error) {
	return f.enrollments, nil
}

func manyUserIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%d", i)
	}
	return ids
}

func TestBroadcastChunksByBatchSize(t *testing.T) {
	repo := &fakeNotificationRepo{}
	audience := &fakeAudience{everyone: manyUserIDs(1200)}
	svc := NewNotificationService(repo, audience, nil, nil, nil, 500, nil, nil)

	delivered, err := svc.Broadcast(context.Background(), BroadcastRequest{
		Title: "Pool closed", Message: "Maintenance on Friday", Audience: models.AudienceAll,
	})
	require.NoError(t, err)
	assert.Equal(t, 1200, delivered)
	require.Len(t, repo.batches, 3)
	assert.Len(t, repo.batches[0], 500)
	assert.Len(t, repo.batches[1], 500)
	assert.Len(t, repo.batches[2], 200)
}

func TestBroadcastSurfacesPartialDelivery(t *testing.T) {
	repo := &fakeNotificationRepo{failOnCall: 2}
	audience := &fakeAudience{everyone: manyUserIDs(1200)}
	svc := NewNotificationService(repo, audience, nil, nil, nil, 500, nil, nil)

	delivered, err := svc.Broadcast(context.Background(), BroadcastRequest{
		Title: "t", Message: "m", Audience: models.AudienceAll,
	})
	require.Error(t, err)
	assert.Equal(t, 500, delivered, "committed batches stay delivered")
}

func TestBroadcastResolvesStudentAudience(t *testing.T) {
	repo := &fakeNotificationRepo{}
	audience := &fakeAudience{students: []string{"s1", "s2"}, everyone: manyUserIDs(10)}
	svc := NewNotificationService(repo, audience, nil, nil, nil, 500, nil, nil)

	delivered, err := svc.Broadcast(context.Background(), BroadcastRequest{
		Title: "t", Message: "m", Audience: models.AudienceStudent,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	require.Len(t, repo.batches, 1)
	assert.Equal(t, "s1", repo.batches[0][0].UserID)
	assert.Equal(t, models.NotificationSystem, repo.batches[0][0].Type)
}

func TestExpirySweepNotifiesWithinThirtyDays(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	soon := now.AddDate(0, 0, 10)
	far := now.AddDate(0, 0, 90)
	past := now.AddDate(0, 0, -5)

	repo := &fakeNotificationRepo{}
	enrollments := &fakePaidLister{enrollments: []models.Enrollment{
		{ID: "e1", UserID: "u1", StudentName: "A", CourseID: "course-a", PaymentStatus: models.PaymentStatusPaid, ExpiryDate: &soon},
		{ID: "e2", UserID: "u2", StudentName: "B", CourseID: "course-a", PaymentStatus: models.PaymentStatusPaid, ExpiryDate: &far},
		{ID: "e3", UserID: "u3", StudentName: "C", CourseID: "course-a", PaymentStatus: models.PaymentStatusPaid, ExpiryDate: &past},
		{ID: "e4", UserID: "u4", StudentName: "D", CourseID: "course-b", PaymentStatus: models.PaymentStatusPaid},
	}}
	courses := &fakeCourseGetter{courses: map[string]*models.Course{
		"course-a": {ID: "course-a", Type: models.CourseTypeNormal},
		"course-b": {ID: "course-b", Type: models.CourseTypePrivate},
	}}
	svc := NewNotificationService(repo, &fakeAudience{}, enrollments, courses, nil, 500, nil, nil)
	svc.now = func() time.Time { return now }

	notified, err := svc.ExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)
	require.Len(t, repo.single, 1)
	assert.Equal(t, "u1", repo.single[0].UserID)
	assert.Equal(t, models.NotificationExpiry, repo.single[0].Type)
}

func TestExpirySweepDerivesNormalCourseExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// Started ~2.5 months ago: the derived three-month expiry lands inside
	// the thirty-day alert window.
	start := now.AddDate(0, 0, -75)

	repo := &fakeNotificationRepo{}
	enrollments := &fakePaidLister{enrollments: []models.Enrollment{
		{ID: "e1", UserID: "u1", StudentName: "A", CourseID: "course-a", PaymentStatus: models.PaymentStatusPaid, StartDate: start},
	}}
	courses := &fakeCourseGetter{courses: map[string]*models.Course{
		"course-a": {ID: "course-a", Type: models.CourseTypeNormal},
	}}
	svc := NewNotificationService(repo, &fakeAudience{}, enrollments, courses, nil, 500, nil, nil)
	svc.now = func() time.Time { return now }

	notified, err := svc.ExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, notified)
}
