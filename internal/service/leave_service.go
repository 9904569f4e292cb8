package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

type leaveRepository interface {
	Create(ctx context.Context, req *models.LeaveRequest) error
	FindByID(ctx context.Context, id string) (*models.LeaveRequest, error)
	List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, int, error)
	Decide(ctx context.Context, id string, status models.LeaveStatus) error
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// RequestLeaveRequest carries a student's declared absence.
type RequestLeaveRequest struct {
	EnrollmentID string    `json:"enrollment_id" validate:"required"`
	LeaveDate    time.Time `json:"leave_date" validate:"required"`
	Reason       string    `json:"reason" validate:"required"`
}

// LeaveService manages the leave request workflow.
type LeaveService struct {
	repo        leaveRepository
	enrollments enrollmentReader
	courses     courseGetter
	users       userDirectory
	notify      notifier
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewLeaveService constructs LeaveService.
func NewLeaveService(repo leaveRepository, enrollments enrollmentReader, courses courseGetter, users userDirectory, notify notifier, validate *validator.Validate, logger *zap.Logger) *LeaveService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeaveService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		users:       users,
		notify:      notify,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Request files a leave request for one of the caller's enrollments. The
// course name is snapshotted so the request stays readable even if the
// catalog changes later.
func (s *LeaveService) Request(ctx context.Context, userID string, req RequestLeaveRequest) (*models.LeaveRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid leave payload")
	}
	if req.LeaveDate.Before(s.now().Truncate(24 * time.Hour)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "leave date must not be in the past")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the enrollment owner can request leave")
	}

	courseName := enrollment.CourseID
	if course, err := s.courses.Get(ctx, enrollment.CourseID); err == nil {
		courseName = course.Title
	}

	leave := &models.LeaveRequest{
		UserID:       userID,
		EnrollmentID: enrollment.ID,
		StudentName:  enrollment.StudentName,
		CourseName:   courseName,
		LeaveDate:    req.LeaveDate,
		Reason:       req.Reason,
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create leave request")
	}
	s.logger.Info("leave requested",
		zap.String("leave_id", leave.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.Time("leave_date", req.LeaveDate))

	s.notifyStaff(ctx, enrollment,
		fmt.Sprintf("%s requested leave from %s on %s.", enrollment.StudentName, courseName, req.LeaveDate.Format("2 Jan 2006")))

	return leave, nil
}

func (s *LeaveService) notifyStaff(ctx context.Context, enrollment *models.Enrollment, message string) {
	admins, err := s.users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.logger.Warn("admin lookup failed", zap.Error(err))
	}
	for _, adminID := range admins {
		_ = s.notify.Notify(ctx, adminID, "Leave request", message, models.NotificationLeave)
	}
	course, err := s.courses.Get(ctx, enrollment.CourseID)
	if err != nil || course.InstructorName == nil {
		return
	}
	instructor, err := s.users.FindByDisplayName(ctx, *course.InstructorName)
	if err != nil {
		return
	}
	_ = s.notify.Notify(ctx, instructor.ID, "Leave request", message, models.NotificationLeave)
}

// Decide approves or rejects a pending leave request. Decisions are
// first-writer-wins; deciding an already decided request is a conflict.
func (s *LeaveService) Decide(ctx context.Context, id string, approve bool) (*models.LeaveRequest, error) {
	status := models.LeaveStatusRejected
	if approve {
		status = models.LeaveStatusApproved
	}
	if err := s.repo.Decide(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, findErr := s.repo.FindByID(ctx, id); findErr != nil {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "leave request not found")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "leave request already decided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decide leave request")
	}

	leave, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load leave request")
	}

	verdict := "rejected"
	if approve {
		verdict = "approved"
	}
	_ = s.notify.Notify(ctx, leave.UserID, "Leave request "+verdict,
		fmt.Sprintf("Your leave for %s on %s was %s.", leave.CourseName, leave.LeaveDate.Format("2 Jan 2006"), verdict),
		models.NotificationLeave)

	return leave, nil
}

// List returns leave requests with pagination metadata.
func (s *LeaveService) List(ctx context.Context, filter models.LeaveFilter) ([]models.LeaveRequest, *models.Pagination, error) {
	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list leave requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
