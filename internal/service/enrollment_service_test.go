package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

type fakeEnrollmentRepo struct {
	enrollments        map[string]*models.Enrollment
	attendance         map[string]map[string]bool
	attendanceAttempts int
	created            []*models.Enrollment
	failCreate         error
}

func newFakeEnrollmentRepo() *fakeEnrollmentRepo {
	return &fakeEnrollmentRepo{
		enrollments: make(map[string]*models.Enrollment),
		attendance:  make(map[string]map[string]bool),
	}
}

func (f *fakeEnrollmentRepo) Create(_ context.Context, e *models.Enrollment) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	if e.ID == "" {
		e.ID = fmt.Sprintf("enr-%d", len(f.enrollments)+1)
	}
	if e.PaymentStatus == "" {
		e.PaymentStatus = models.PaymentStatusPending
	}
	if e.Evaluation == "" {
		e.Evaluation = models.EvaluationPending
	}
	copied := *e
	f.enrollments[e.ID] = &copied
	f.created = append(f.created, &copied)
	return nil
}

func (f *fakeEnrollmentRepo) FindByID(_ context.Context, id string) (*models.Enrollment, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *e
	return &copied, nil
}

func (f *fakeEnrollmentRepo) List(_ context.Context, _ models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var out []models.Enrollment
	for _, e := range f.enrollments {
		out = append(out, *e)
	}
	return out, len(out), nil
}

func (f *fakeEnrollmentRepo) UpdatePaymentStatus(_ context.Context, id string, status models.PaymentStatus) error {
	e, ok := f.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.PaymentStatus = status
	return nil
}

func (f *fakeEnrollmentRepo) UpdateEvaluation(_ context.Context, id string, result models.EvaluationResult) error {
	e, ok := f.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Evaluation = result
	return nil
}

func (f *fakeEnrollmentRepo) SetReview(_ context.Context, id string, review models.Review) (bool, error) {
	e, ok := f.enrollments[id]
	if !ok {
		return false, sql.ErrNoRows
	}
	if e.Review != nil {
		return false, nil
	}
	e.Review = &review
	return true, nil
}

func (f *fakeEnrollmentRepo) AddAttendance(_ context.Context, id string, at time.Time) (bool, error) {
	f.attendanceAttempts++
	day := at.Format("2006-01-02")
	if f.attendance[id] == nil {
		f.attendance[id] = make(map[string]bool)
	}
	if f.attendance[id][day] {
		return false, nil
	}
	f.attendance[id][day] = true
	if e, ok := f.enrollments[id]; ok {
		e.Attendance = append(e.Attendance, at)
	}
	return true, nil
}

func (f *fakeEnrollmentRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.enrollments, id)
	return nil
}

type fakeCourseGetter struct {
	courses map[string]*models.Course
}

func (f *fakeCourseGetter) Get(_ context.Context, id string) (*models.Course, error) {
	c, ok := f.courses[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return c, nil
}

type fakeSlipUploader struct {
	url string
	err error
}

func (f *fakeSlipUploader) Upload(_ context.Context, _ string, _ io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeStudentIDGen struct{ id string }

func (f *fakeStudentIDGen) Generate(_ context.Context, _, _ string) (string, error) {
	return f.id, nil
}

type fakeUserDirectory struct {
	admins      []string
	instructors []string
	byName      map[string]*models.User
	nameErr     error
}

func (f *fakeUserDirectory) ListByRole(_ context.Context, role models.UserRole) ([]string, error) {
	switch role {
	case models.RoleAdmin:
		return f.admins, nil
	case models.RoleInstructor:
		return f.instructors, nil
	}
	return nil, nil
}

func (f *fakeUserDirectory) FindByDisplayName(_ context.Context, name string) (*models.User, error) {
	if f.nameErr != nil {
		return nil, f.nameErr
	}
	u, ok := f.byName[name]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

type sentNotification struct {
	UserID string
	Title  string
	Type   models.NotificationType
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, userID, title, _ string, typ models.NotificationType) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{UserID: userID, Title: title, Type: typ})
	return nil
}

func (f *fakeNotifier) ofType(typ models.NotificationType) []sentNotification {
	var out []sentNotification
	for _, n := range f.sent {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

type fakeAuditWriter struct {
	entries []*models.AuditLog
}

func (f *fakeAuditWriter) Create(_ context.Context, entry *models.AuditLog) error {
	f.entries = append(f.entries, entry)
	return nil
}

type enrollmentFixture struct {
	svc      *EnrollmentService
	repo     *fakeEnrollmentRepo
	slips    *fakeSlipUploader
	users    *fakeUserDirectory
	notifier *fakeNotifier
	audit    *fakeAuditWriter
	clock    time.Time
}

func newEnrollmentFixture() *enrollmentFixture {
	fluke := "Khru Fluke"
	courses := &fakeCourseGetter{courses: map[string]*models.Course{
		"course-a": {ID: "course-a", Title: "Course A", Type: models.CourseTypeNormal, IsOpen: true, InstructorName: &fluke},
		"course-b": {ID: "course-b", Title: "Course B", Type: models.CourseTypePrivate, IsOpen: true},
		"closed":   {ID: "closed", Title: "Closed", Type: models.CourseTypeNormal, IsOpen: false},
	}}
	fx := &enrollmentFixture{
		repo:  newFakeEnrollmentRepo(),
		slips: &fakeSlipUploader{url: "https://img.example/slip.png"},
		users: &fakeUserDirectory{
			admins:      []string{"admin-1"},
			instructors: []string{"instructor-1", "instructor-2"},
			byName:      map[string]*models.User{"Khru Fluke": {ID: "instructor-1", DisplayName: "Khru Fluke"}},
		},
		notifier: &fakeNotifier{},
		audit:    &fakeAuditWriter{},
		clock:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.svc = NewEnrollmentService(fx.repo, courses, fx.slips, &fakeStudentIDGen{id: "CA68001"},
		fx.users, fx.notifier, fx.audit, nil, 3*time.Second, nil, nil)
	fx.svc.now = func() time.Time { return fx.clock }
	return fx
}

func validRegistration() RegisterEnrollmentRequest {
	return RegisterEnrollmentRequest{
		CourseID:     "course-a",
		StudentName:  "Nong Nam",
		Gender:       "female",
		Age:          6,
		Phone:        "0812345678",
		StartDate:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		SlipFilename: "slip.png",
		SlipFile:     strings.NewReader("fake-image"),
	}
}

func TestRegisterCreatesPendingEnrollmentWithExpiry(t *testing.T) {
	fx := newEnrollmentFixture()

	enrollment, err := fx.svc.Register(context.Background(), "user-1", validRegistration())
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPending, enrollment.PaymentStatus)
	assert.Equal(t, "CA68001", enrollment.StudentID)
	assert.Equal(t, "https://img.example/slip.png", enrollment.SlipURL)
	require.NotNil(t, enrollment.ExpiryDate)
	assert.Equal(t, time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC), *enrollment.ExpiryDate)

	admins := fx.notifier.ofType(models.NotificationSystem)
	require.Len(t, admins, 1)
	assert.Equal(t, "admin-1", admins[0].UserID)
}

func TestRegisterPrivateCourseHasNoExpiry(t *testing.T) {
	fx := newEnrollmentFixture()
	req := validRegistration()
	req.CourseID = "course-b"

	enrollment, err := fx.svc.Register(context.Background(), "user-1", req)
	require.NoError(t, err)
	assert.Nil(t, enrollment.ExpiryDate)
}

func TestRegisterAbortsWhenSlipUploadFails(t *testing.T) {
	fx := newEnrollmentFixture()
	fx.slips.err = fmt.Errorf("image host down")

	_, err := fx.svc.Register(context.Background(), "user-1", validRegistration())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErr.Code)
	assert.Empty(t, fx.repo.created, "no enrollment may exist without its slip")
}

func TestRegisterRejectsClosedCourse(t *testing.T) {
	fx := newEnrollmentFixture()
	req := validRegistration()
	req.CourseID = "closed"

	_, err := fx.svc.Register(context.Background(), "user-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func seedEnrollment(fx *enrollmentFixture, status models.PaymentStatus, evaluation models.EvaluationResult) *models.Enrollment {
	e := &models.Enrollment{
		ID:            "enr-1",
		StudentID:     "CA68001",
		UserID:        "user-1",
		CourseID:      "course-a",
		StudentName:   "Nong Nam",
		PaymentStatus: status,
		Evaluation:    evaluation,
	}
	fx.repo.enrollments[e.ID] = e
	return e
}

func TestDecidePaymentRequiresConfirmation(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPending, models.EvaluationPending)

	enrollment, confirmed, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	assert.False(t, confirmed)
	assert.Nil(t, enrollment)
	assert.Equal(t, models.PaymentStatusPending, fx.repo.enrollments["enr-1"].PaymentStatus)

	fx.clock = fx.clock.Add(time.Second)
	enrollment, confirmed, err = fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	assert.True(t, confirmed)
	assert.Equal(t, models.PaymentStatusPaid, enrollment.PaymentStatus)
}

func TestDecidePaymentConfirmationExpires(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPending, models.EvaluationPending)

	_, confirmed, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	assert.False(t, confirmed)

	fx.clock = fx.clock.Add(5 * time.Second)
	_, confirmed, err = fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	assert.False(t, confirmed, "stale intent must re-arm, not execute")
}

func TestDecidePaymentNotifiesStudentAndInstructor(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPending, models.EvaluationPending)

	_, _, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	fx.clock = fx.clock.Add(time.Second)
	_, confirmed, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	require.True(t, confirmed)

	payments := fx.notifier.ofType(models.NotificationPayment)
	require.Len(t, payments, 1)
	assert.Equal(t, "user-1", payments[0].UserID)

	newStudents := fx.notifier.ofType(models.NotificationNewEnrollment)
	require.Len(t, newStudents, 1)
	assert.Equal(t, "instructor-1", newStudents[0].UserID)
}

func TestDecidePaymentOverrideIsAudited(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPaid, models.EvaluationPending)

	_, _, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusRejected, DecisionMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	fx.clock = fx.clock.Add(time.Second)
	_, confirmed, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusRejected, DecisionMeta{IP: "10.0.0.1"})
	require.NoError(t, err)
	require.True(t, confirmed)

	require.Len(t, fx.audit.entries, 1)
	entry := fx.audit.entries[0]
	assert.Equal(t, models.AuditActionPaymentOverride, entry.Action)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.Contains(t, string(entry.Detail), "PAID")
	assert.Contains(t, string(entry.Detail), "REJECTED")
}

func TestDecidePaymentSameStatusIsIdempotent(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPaid, models.EvaluationPending)

	_, _, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	fx.clock = fx.clock.Add(time.Second)
	enrollment, confirmed, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	require.True(t, confirmed)
	assert.Equal(t, models.PaymentStatusPaid, enrollment.PaymentStatus)
	assert.Empty(t, fx.audit.entries)
	assert.Empty(t, fx.notifier.sent)
}

func TestCheckInSkipsUnpaidAndSameDay(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPaid, models.EvaluationPending)
	fx.repo.enrollments["enr-2"] = &models.Enrollment{ID: "enr-2", UserID: "user-2", PaymentStatus: models.PaymentStatusPending}

	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	result, err := fx.svc.CheckIn(context.Background(), []string{"enr-1", "enr-2", "missing"}, at)
	require.NoError(t, err)
	assert.Equal(t, []string{"enr-1"}, result.CheckedIn)
	assert.ElementsMatch(t, []string{"enr-2", "missing"}, result.Skipped)

	// The same-day repeat is filtered out before the store is touched.
	attempts := fx.repo.attendanceAttempts
	result, err = fx.svc.CheckIn(context.Background(), []string{"enr-1"}, at.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, result.CheckedIn)
	assert.Equal(t, []string{"enr-1"}, result.Skipped)
	assert.Equal(t, attempts, fx.repo.attendanceAttempts)
}

type fakeSummaryInvalidator struct{ calls int }

func (f *fakeSummaryInvalidator) InvalidateCache(context.Context) { f.calls++ }

func TestDecidePaymentInvalidatesDashboardSummary(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPending, models.EvaluationPending)
	invalidator := &fakeSummaryInvalidator{}
	fx.svc.SetSummaryInvalidator(invalidator)

	_, confirmed, err := fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	require.False(t, confirmed)
	assert.Zero(t, invalidator.calls)

	_, confirmed, err = fx.svc.DecidePayment(context.Background(), "admin-1", "enr-1", models.PaymentStatusPaid, DecisionMeta{})
	require.NoError(t, err)
	require.True(t, confirmed)
	assert.Equal(t, 1, invalidator.calls)
}

func TestEvaluateRequiresPaid(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPending, models.EvaluationPending)

	_, err := fx.svc.Evaluate(context.Background(), "enr-1", models.EvaluationPass)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestEvaluateIsIdempotentForSameResult(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPaid, models.EvaluationPending)

	_, err := fx.svc.Evaluate(context.Background(), "enr-1", models.EvaluationPass)
	require.NoError(t, err)
	require.Len(t, fx.notifier.ofType(models.NotificationEvaluation), 1)

	enrollment, err := fx.svc.Evaluate(context.Background(), "enr-1", models.EvaluationPass)
	require.NoError(t, err)
	assert.Equal(t, models.EvaluationPass, enrollment.Evaluation)
	assert.Len(t, fx.notifier.ofType(models.NotificationEvaluation), 1, "no duplicate notification")

	_, err = fx.svc.Evaluate(context.Background(), "enr-1", models.EvaluationFail)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitReviewOwnerPassOnce(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPaid, models.EvaluationPass)
	req := ReviewRequest{Rating: 5, Comment: "great lessons"}

	_, err := fx.svc.SubmitReview(context.Background(), "stranger", "enr-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	enrollment, err := fx.svc.SubmitReview(context.Background(), "user-1", "enr-1", req)
	require.NoError(t, err)
	require.NotNil(t, enrollment.Review)
	assert.Equal(t, "Nong Nam", enrollment.Review.ReviewerName)

	// Staff fan-out reaches every administrator and every instructor once.
	staff := fx.notifier.ofType(models.NotificationEvaluation)
	require.Len(t, staff, 3)
	recipients := make([]string, 0, len(staff))
	for _, n := range staff {
		recipients = append(recipients, n.UserID)
	}
	assert.ElementsMatch(t, []string{"admin-1", "instructor-1", "instructor-2"}, recipients)

	_, err = fx.svc.SubmitReview(context.Background(), "user-1", "enr-1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubmitReviewRequiresPass(t *testing.T) {
	fx := newEnrollmentFixture()
	seedEnrollment(fx, models.PaymentStatusPaid, models.EvaluationFail)

	_, err := fx.svc.SubmitReview(context.Background(), "user-1", "enr-1", ReviewRequest{Rating: 4, Comment: "ok"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}
