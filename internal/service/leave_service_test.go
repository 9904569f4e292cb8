package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

type fakeLeaveRepo struct {
	requests map[string]*models.LeaveRequest
}

func newFakeLeaveRepo() *fakeLeaveRepo {
	return &fakeLeaveRepo{requests: make(map[string]*models.LeaveRequest)}
}

func (f *fakeLeaveRepo) Create(_ context.Context, req *models.LeaveRequest) error {
	if req.ID == "" {
		req.ID = fmt.Sprintf("leave-%d", len(f.requests)+1)
	}
	req.Status = models.LeaveStatusPending
	copied := *req
	f.requests[req.ID] = &copied
	return nil
}

func (f *fakeLeaveRepo) FindByID(_ context.Context, id string) (*models.LeaveRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *req
	return &copied, nil
}

func (f *fakeLeaveRepo) List(_ context.Context, _ models.LeaveFilter) ([]models.LeaveRequest, int, error) {
	var out []models.LeaveRequest
	for _, req := range f.requests {
		out = append(out, *req)
	}
	return out, len(out), nil
}

func (f *fakeLeaveRepo) Decide(_ context.Context, id string, status models.LeaveStatus) error {
	req, ok := f.requests[id]
	if !ok || req.Status != models.LeaveStatusPending {
		return sql.ErrNoRows
	}
	req.Status = status
	return nil
}

type leaveFixture struct {
	svc      *LeaveService
	repo     *fakeLeaveRepo
	notifier *fakeNotifier
	clock    time.Time
}

func newLeaveFixture() *leaveFixture {
	fluke := "Khru Fluke"
	enrollments := newFakeEnrollmentRepo()
	enrollments.enrollments["enr-1"] = &models.Enrollment{
		ID:            "enr-1",
		UserID:        "user-1",
		CourseID:      "course-a",
		StudentName:   "Nong Nam",
		PaymentStatus: models.PaymentStatusPaid,
	}
	enrollments.enrollments["enr-2"] = &models.Enrollment{
		ID:            "enr-2",
		UserID:        "user-2",
		CourseID:      "course-a",
		StudentName:   "Nong Fah",
		PaymentStatus: models.PaymentStatusPending,
	}
	courses := &fakeCourseGetter{courses: map[string]*models.Course{
		"course-a": {ID: "course-a", Title: "Course A", InstructorName: &fluke},
	}}
	fx := &leaveFixture{
		repo:     newFakeLeaveRepo(),
		notifier: &fakeNotifier{},
		clock:    time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	users := &fakeUserDirectory{
		admins: []string{"admin-1"},
		byName: map[string]*models.User{"Khru Fluke": {ID: "instructor-1"}},
	}
	fx.svc = NewLeaveService(fx.repo, enrollments, courses, users, fx.notifier, nil, nil)
	fx.svc.now = func() time.Time { return fx.clock }
	return fx
}

func TestRequestLeaveSnapshotsCourseName(t *testing.T) {
	fx := newLeaveFixture()

	leave, err := fx.svc.Request(context.Background(), "user-1", RequestLeaveRequest{
		EnrollmentID: "enr-1",
		LeaveDate:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Reason:       "family trip",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusPending, leave.Status)
	assert.Equal(t, "Course A", leave.CourseName)
	assert.Equal(t, "Nong Nam", leave.StudentName)

	staff := fx.notifier.ofType(models.NotificationLeave)
	require.Len(t, staff, 2)
	assert.Equal(t, "admin-1", staff[0].UserID)
	assert.Equal(t, "instructor-1", staff[1].UserID)
}

func TestRequestLeaveRejectsNonOwner(t *testing.T) {
	fx := newLeaveFixture()

	_, err := fx.svc.Request(context.Background(), "user-1", RequestLeaveRequest{
		EnrollmentID: "enr-2",
		LeaveDate:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Reason:       "sick",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestRequestLeaveAllowedWhilePaymentPending(t *testing.T) {
	fx := newLeaveFixture()

	leave, err := fx.svc.Request(context.Background(), "user-2", RequestLeaveRequest{
		EnrollmentID: "enr-2",
		LeaveDate:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Reason:       "sick",
	})
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusPending, leave.Status)
}

func TestRequestLeaveRejectsPastDate(t *testing.T) {
	fx := newLeaveFixture()

	_, err := fx.svc.Request(context.Background(), "user-1", RequestLeaveRequest{
		EnrollmentID: "enr-1",
		LeaveDate:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Reason:       "trip",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDecideLeaveIsFirstWriterWins(t *testing.T) {
	fx := newLeaveFixture()
	leave, err := fx.svc.Request(context.Background(), "user-1", RequestLeaveRequest{
		EnrollmentID: "enr-1",
		LeaveDate:    time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		Reason:       "trip",
	})
	require.NoError(t, err)

	decided, err := fx.svc.Decide(context.Background(), leave.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.LeaveStatusApproved, decided.Status)

	_, err = fx.svc.Decide(context.Background(), leave.ID, false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Decide(context.Background(), "missing", true)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
