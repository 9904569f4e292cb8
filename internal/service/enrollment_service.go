package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

type enrollmentRepository interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
	UpdateEvaluation(ctx context.Context, id string, result models.EvaluationResult) error
	SetReview(ctx context.Context, id string, review models.Review) (bool, error)
	AddAttendance(ctx context.Context, enrollmentID string, checkedInAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

type slipUploader interface {
	Upload(ctx context.Context, filename string, file io.Reader) (string, error)
}

type studentIDGenerator interface {
	Generate(ctx context.Context, courseID, courseTitle string) (string, error)
}

type userDirectory interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]string, error)
	FindByDisplayName(ctx context.Context, name string) (*models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, userID, title, message string, typ models.NotificationType) error
}

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// RegisterEnrollmentRequest carries a student's course registration.
type RegisterEnrollmentRequest struct {
	CourseID      string    `json:"course_id" validate:"required"`
	StudentName   string    `json:"student_name" validate:"required"`
	Gender        string    `json:"gender" validate:"required"`
	Age           int       `json:"age" validate:"required,gt=0"`
	Weight        string    `json:"weight"`
	Height        string    `json:"height"`
	School        string    `json:"school"`
	Disease       *string   `json:"disease"`
	ADHDCondition bool      `json:"adhd_condition"`
	Phone         string    `json:"phone" validate:"required"`
	StartDate     time.Time `json:"start_date" validate:"required"`

	SlipFilename string    `json:"-"`
	SlipFile     io.Reader `json:"-"`
}

// ReviewRequest carries a one-time course review.
type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required"`
}

// DecisionMeta captures the caller context recorded with audited decisions.
type DecisionMeta struct {
	IP        string
	UserAgent string
}

type paymentIntent struct {
	armedAt time.Time
}

// EnrollmentService orchestrates registration, payment decisions, attendance,
// evaluations and reviews.
type EnrollmentService struct {
	repo       enrollmentRepository
	courses    courseGetter
	slips      slipUploader
	studentIDs studentIDGenerator
	users      userDirectory
	notify     notifier
	audit      auditWriter
	metrics    *MetricsService
	dashboards summaryInvalidator

	confirmWindow time.Duration
	intentsMu     sync.Mutex
	intents       map[string]paymentIntent

	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseGetter, slips slipUploader, studentIDs studentIDGenerator, users userDirectory, notify notifier, audit auditWriter, metrics *MetricsService, confirmWindow time.Duration, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if confirmWindow <= 0 {
		confirmWindow = 3 * time.Second
	}
	return &EnrollmentService{
		repo:          repo,
		courses:       courses,
		slips:         slips,
		studentIDs:    studentIDs,
		users:         users,
		notify:        notify,
		audit:         audit,
		metrics:       metrics,
		confirmWindow: confirmWindow,
		intents:       make(map[string]paymentIntent),
		validator:     validate,
		logger:        logger,
		now:           time.Now,
	}
}

type summaryInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// SetSummaryInvalidator registers the dashboard cache to drop after writes
// that change its numbers.
func (s *EnrollmentService) SetSummaryInvalidator(d summaryInvalidator) {
	s.dashboards = d
}

func (s *EnrollmentService) invalidateSummary(ctx context.Context) {
	if s.dashboards != nil {
		s.dashboards.InvalidateCache(ctx)
	}
}

// Register creates a PENDING enrollment for the calling student. The payment
// slip upload happens first and aborts registration on failure so that no
// enrollment exists without its slip.
func (s *EnrollmentService) Register(ctx context.Context, userID string, req RegisterEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if req.SlipFile == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment slip is required")
	}

	course, err := s.courses.Get(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !course.IsOpen {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "course is closed for registration")
	}

	slipURL, err := s.slips.Upload(ctx, req.SlipFilename, req.SlipFile)
	if err != nil {
		s.logger.Error("payment slip upload failed", zap.String("course_id", req.CourseID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "payment slip upload failed, registration not saved")
	}

	studentID, err := s.studentIDs.Generate(ctx, req.CourseID, course.Title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate student id")
	}

	enrollment := &models.Enrollment{
		StudentID:     studentID,
		UserID:        userID,
		CourseID:      req.CourseID,
		StudentName:   req.StudentName,
		Gender:        req.Gender,
		Age:           req.Age,
		Weight:        req.Weight,
		Height:        req.Height,
		School:        req.School,
		Disease:       req.Disease,
		ADHDCondition: req.ADHDCondition,
		Phone:         req.Phone,
		StartDate:     req.StartDate,
		SlipURL:       slipURL,
	}
	if course.Type == models.CourseTypeNormal {
		expiry := req.StartDate.AddDate(0, 3, 0)
		enrollment.ExpiryDate = &expiry
	}

	if err := s.repo.Create(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}
	if s.metrics != nil {
		s.metrics.RecordRegistration()
	}
	s.invalidateSummary(ctx)
	s.logger.Info("enrollment registered",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", studentID),
		zap.String("course_id", req.CourseID))

	s.notifyAdmins(ctx, "New registration",
		fmt.Sprintf("%s registered for %s (%s).", req.StudentName, course.Title, studentID),
		models.NotificationSystem)

	return enrollment, nil
}

// DecidePayment applies a PAID or REJECTED decision in two steps. The first
// call arms the decision and returns confirmed=false; a second identical call
// from the same actor within the confirmation window executes it. An armed
// decision expires after the window and must be re-armed.
func (s *EnrollmentService) DecidePayment(ctx context.Context, actorID, enrollmentID string, status models.PaymentStatus, meta DecisionMeta) (*models.Enrollment, bool, error) {
	if status != models.PaymentStatusPaid && status != models.PaymentStatusRejected {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "decision must be PAID or REJECTED")
	}

	if !s.confirmIntent(actorID, enrollmentID, status) {
		return nil, false, nil
	}

	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.PaymentStatus == status {
		return enrollment, true, nil
	}

	override := enrollment.PaymentStatus != models.PaymentStatusPending
	if err := s.repo.UpdatePaymentStatus(ctx, enrollmentID, status); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}
	previous := enrollment.PaymentStatus
	enrollment.PaymentStatus = status

	if s.metrics != nil {
		s.metrics.RecordPaymentDecision(string(status))
	}
	if override {
		s.logger.Warn("payment status override",
			zap.String("enrollment_id", enrollmentID),
			zap.String("actor_id", actorID),
			zap.String("from", string(previous)),
			zap.String("to", string(status)))
		s.recordOverrideAudit(ctx, actorID, enrollmentID, previous, status, meta)
	}

	s.invalidateSummary(ctx)
	s.notifyPaymentDecision(ctx, enrollment, status)
	return enrollment, true, nil
}

// confirmIntent reports whether the decision was already armed within the
// window. A first or stale call re-arms and returns false.
func (s *EnrollmentService) confirmIntent(actorID, enrollmentID string, status models.PaymentStatus) bool {
	key := actorID + "|" + enrollmentID + "|" + string(status)
	now := s.now()

	s.intentsMu.Lock()
	defer s.intentsMu.Unlock()
	intent, ok := s.intents[key]
	if ok && now.Sub(intent.armedAt) <= s.confirmWindow {
		delete(s.intents, key)
		return true
	}
	s.intents[key] = paymentIntent{armedAt: now}
	return false
}

func (s *EnrollmentService) recordOverrideAudit(ctx context.Context, actorID, enrollmentID string, from, to models.PaymentStatus, meta DecisionMeta) {
	detail, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
	entry := &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionPaymentOverride,
		Resource:   "enrollment",
		ResourceID: &enrollmentID,
		Detail:     detail,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Error("failed to record payment override audit",
			zap.String("enrollment_id", enrollmentID),
			zap.Error(err))
	}
}

func (s *EnrollmentService) notifyPaymentDecision(ctx context.Context, enrollment *models.Enrollment, status models.PaymentStatus) {
	if status == models.PaymentStatusPaid {
		_ = s.notify.Notify(ctx, enrollment.UserID, "Payment approved",
			fmt.Sprintf("Payment for %s has been verified. See you at the pool!", enrollment.StudentName),
			models.NotificationPayment)
		s.notifyCourseInstructor(ctx, enrollment)
		return
	}
	_ = s.notify.Notify(ctx, enrollment.UserID, "Payment rejected",
		fmt.Sprintf("Payment for %s could not be verified. Please contact the school.", enrollment.StudentName),
		models.NotificationPayment)
}

// notifyCourseInstructor resolves the course's instructor display name to a
// user account and tells them about their new student. Courses without an
// assigned instructor, or names with no matching account, are skipped.
func (s *EnrollmentService) notifyCourseInstructor(ctx context.Context, enrollment *models.Enrollment) {
	course, err := s.courses.Get(ctx, enrollment.CourseID)
	if err != nil || course.InstructorName == nil {
		return
	}
	instructor, err := s.users.FindByDisplayName(ctx, *course.InstructorName)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("instructor lookup failed",
				zap.String("instructor", *course.InstructorName),
				zap.Error(err))
		}
		return
	}
	_ = s.notify.Notify(ctx, instructor.ID, "New student",
		fmt.Sprintf("%s (%s) joined %s.", enrollment.StudentName, enrollment.StudentID, course.Title),
		models.NotificationNewEnrollment)
}

func (s *EnrollmentService) notifyAdmins(ctx context.Context, title, message string, typ models.NotificationType) {
	s.notifyRoles(ctx, title, message, typ, models.RoleAdmin)
}

// notifyStaff fans out to every administrator and instructor.
func (s *EnrollmentService) notifyStaff(ctx context.Context, title, message string, typ models.NotificationType) {
	s.notifyRoles(ctx, title, message, typ, models.RoleAdmin, models.RoleInstructor)
}

func (s *EnrollmentService) notifyRoles(ctx context.Context, title, message string, typ models.NotificationType, roles ...models.UserRole) {
	for _, role := range roles {
		ids, err := s.users.ListByRole(ctx, role)
		if err != nil {
			s.logger.Warn("staff lookup failed", zap.String("role", string(role)), zap.Error(err))
			continue
		}
		for _, id := range ids {
			_ = s.notify.Notify(ctx, id, title, message, typ)
		}
	}
}

// CheckInResult summarises a bulk attendance write.
type CheckInResult struct {
	CheckedIn []string `json:"checked_in"`
	Skipped   []string `json:"skipped"`
}

// CheckIn records attendance for the enrollments at the given time. Only PAID
// enrollments are eligible; an enrollment already checked in that calendar
// day is skipped, never duplicated.
func (s *EnrollmentService) CheckIn(ctx context.Context, enrollmentIDs []string, at time.Time) (*CheckInResult, error) {
	if len(enrollmentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no enrollments selected")
	}
	if at.IsZero() {
		at = s.now().UTC()
	}

	result := &CheckInResult{CheckedIn: []string{}, Skipped: []string{}}
	for _, id := range enrollmentIDs {
		enrollment, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				result.Skipped = append(result.Skipped, id)
				continue
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
		}
		if enrollment.PaymentStatus != models.PaymentStatusPaid {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		// Same-day repeats are skipped here; the unique-day insert below
		// still absorbs the race when two callers pass the filter together.
		if enrollment.CheckedInOn(at) {
			result.Skipped = append(result.Skipped, id)
			continue
		}
		written, err := s.repo.AddAttendance(ctx, id, at)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
		}
		if written {
			result.CheckedIn = append(result.CheckedIn, id)
		} else {
			result.Skipped = append(result.Skipped, id)
		}
	}
	return result, nil
}

// Evaluate records a PASS or FAIL for a PAID enrollment. Repeating the same
// result is a no-op; changing a decided result is rejected.
func (s *EnrollmentService) Evaluate(ctx context.Context, enrollmentID string, result models.EvaluationResult) (*models.Enrollment, error) {
	if result != models.EvaluationPass && result != models.EvaluationFail {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evaluation must be PASS or FAIL")
	}
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.PaymentStatus != models.PaymentStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only paid enrollments can be evaluated")
	}
	if enrollment.Evaluation == result {
		return enrollment, nil
	}
	if enrollment.Evaluation != models.EvaluationPending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment already evaluated")
	}
	if err := s.repo.UpdateEvaluation(ctx, enrollmentID, result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update evaluation")
	}
	enrollment.Evaluation = result

	message := fmt.Sprintf("%s did not pass the evaluation this time. Keep practicing!", enrollment.StudentName)
	if result == models.EvaluationPass {
		message = fmt.Sprintf("Congratulations! %s passed the course evaluation.", enrollment.StudentName)
	}
	_ = s.notify.Notify(ctx, enrollment.UserID, "Evaluation result", message, models.NotificationEvaluation)

	return enrollment, nil
}

// SubmitReview attaches the owner's one-time review to a passed enrollment.
func (s *EnrollmentService) SubmitReview(ctx context.Context, userID, enrollmentID string, req ReviewRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the enrollment owner can review")
	}
	if enrollment.Evaluation != models.EvaluationPass {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "reviews are open after a passed evaluation")
	}

	review := models.Review{
		Rating:       req.Rating,
		Comment:      req.Comment,
		ReviewerName: enrollment.StudentName,
		CreatedAt:    s.now().UTC(),
	}
	written, err := s.repo.SetReview(ctx, enrollmentID, review)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save review")
	}
	if !written {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment already reviewed")
	}
	enrollment.Review = &review

	s.notifyStaff(ctx, "New course review",
		fmt.Sprintf("%s rated the course %d/5.", enrollment.StudentName, req.Rating),
		models.NotificationEvaluation)

	return enrollment, nil
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Delete removes an enrollment and its attendance history.
func (s *EnrollmentService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete enrollment")
	}
	s.invalidateSummary(ctx)
	s.logger.Info("enrollment deleted", zap.String("enrollment_id", id))
	return nil
}
