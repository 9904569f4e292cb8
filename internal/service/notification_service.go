package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	CreateBatch(ctx context.Context, batch []models.Notification) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, ids []string) error
}

type audienceResolver interface {
	ListByRole(ctx context.Context, role models.UserRole) ([]string, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
}

type paidEnrollmentLister interface {
	ListPaid(ctx context.Context) ([]models.Enrollment, error)
}

type courseGetter interface {
	Get(ctx context.Context, id string) (*models.Course, error)
}

// BroadcastRequest describes an announcement fanned out to an audience.
type BroadcastRequest struct {
	Title    string                   `json:"title" validate:"required"`
	Message  string                   `json:"message" validate:"required"`
	Audience models.BroadcastAudience `json:"audience" validate:"required,oneof=ALL STUDENT INSTRUCTOR"`
}

// NotificationService delivers notifications, broadcasts and the course
// expiry sweep.
type NotificationService struct {
	repo        notificationRepository
	users       audienceResolver
	enrollments paidEnrollmentLister
	courses     courseGetter
	metrics     *MetricsService
	batchSize   int
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo notificationRepository, users audienceResolver, enrollments paidEnrollmentLister, courses courseGetter, metrics *MetricsService, batchSize int, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &NotificationService{
		repo:        repo,
		users:       users,
		enrollments: enrollments,
		courses:     courses,
		metrics:     metrics,
		batchSize:   batchSize,
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// Notify writes a single notification. Callers treat delivery as best-effort
// and must not fail their own operation on a returned error.
func (s *NotificationService) Notify(ctx context.Context, userID, title, message string, typ models.NotificationType) error {
	n := &models.Notification{UserID: userID, Title: title, Message: message, Type: typ}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("user_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err))
		return err
	}
	return nil
}

// Broadcast fans the announcement out to every user in the audience, writing
// recipients in bounded batches. Delivery is partial on failure: batches
// already committed stay delivered, and the returned count reflects them.
func (s *NotificationService) Broadcast(ctx context.Context, req BroadcastRequest) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid broadcast payload")
	}

	recipients, err := s.resolveAudience(ctx, req.Audience)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve broadcast audience")
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	delivered := 0
	for start := 0; start < len(recipients); start += s.batchSize {
		end := start + s.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		batch := make([]models.Notification, 0, end-start)
		for _, userID := range recipients[start:end] {
			batch = append(batch, models.Notification{
				UserID:  userID,
				Title:   req.Title,
				Message: req.Message,
				Type:    models.NotificationSystem,
			})
		}
		if err := s.repo.CreateBatch(ctx, batch); err != nil {
			s.logger.Error("broadcast batch failed",
				zap.Int("delivered", delivered),
				zap.Int("remaining", len(recipients)-delivered),
				zap.Error(err))
			return delivered, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("broadcast delivered to %d of %d recipients", delivered, len(recipients)))
		}
		delivered += end - start
	}

	if s.metrics != nil {
		s.metrics.ObserveBroadcast(delivered)
	}
	s.logger.Info("broadcast delivered",
		zap.String("audience", string(req.Audience)),
		zap.Int("recipients", delivered))
	return delivered, nil
}

func (s *NotificationService) resolveAudience(ctx context.Context, audience models.BroadcastAudience) ([]string, error) {
	switch audience {
	case models.AudienceStudent:
		return s.users.ListByRole(ctx, models.RoleStudent)
	case models.AudienceInstructor:
		return s.users.ListByRole(ctx, models.RoleInstructor)
	default:
		return s.users.ListActiveIDs(ctx)
	}
}

// ListMine returns the caller's notifications with pagination metadata.
func (s *NotificationService) ListMine(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.ListByUser(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UnreadCount returns the caller's unread notification count.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkRead marks the given notifications read, all-or-nothing.
func (s *NotificationService) MarkRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.repo.MarkRead(ctx, ids); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}

// ExpirySweep scans PAID enrollments and notifies owners whose course access
// expires within the next thirty days. Enrollments without an expiry are
// skipped. Returns the number of notifications written; individual delivery
// failures are logged and do not abort the sweep.
func (s *NotificationService) ExpirySweep(ctx context.Context) (int, error) {
	enrollments, err := s.enrollments.ListPaid(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments for expiry sweep")
	}

	now := s.now()
	notified := 0
	for i := range enrollments {
		e := &enrollments[i]
		courseType := models.CourseType("")
		if course, err := s.courses.Get(ctx, e.CourseID); err == nil && course != nil {
			courseType = course.Type
		}
		expiry := e.EffectiveExpiry(courseType)
		if expiry == nil {
			continue
		}
		daysLeft := int(math.Ceil(expiry.Sub(now).Hours() / 24))
		if daysLeft <= 0 || daysLeft > 30 {
			continue
		}
		message := fmt.Sprintf("Your course for %s expires in %d days (%s).",
			e.StudentName, daysLeft, expiry.Format("2 Jan 2006"))
		if err := s.Notify(ctx, e.UserID, "Course expiring soon", message, models.NotificationExpiry); err != nil {
			continue
		}
		notified++
	}

	s.logger.Info("expiry sweep completed",
		zap.Int("scanned", len(enrollments)),
		zap.Int("notified", notified))
	return notified, nil
}
