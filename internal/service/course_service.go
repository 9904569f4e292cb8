package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Upsert(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// UpsertCourseRequest describes an administrator course write.
type UpsertCourseRequest struct {
	ID             string  `json:"id" validate:"required"`
	Title          string  `json:"title" validate:"required"`
	AgeGroup       string  `json:"age_group"`
	Type           string  `json:"type" validate:"required,oneof=Normal Private Baby"`
	Sessions       int     `json:"sessions" validate:"gte=0"`
	Price          int     `json:"price" validate:"gte=0"`
	TimeSlot       string  `json:"time_slot"`
	Description    string  `json:"description"`
	Capacity       int     `json:"capacity" validate:"gte=0"`
	ImageURL       string  `json:"image_url"`
	IsOpen         bool    `json:"is_open"`
	Terms          string  `json:"terms"`
	InstructorName *string `json:"instructor_name"`
	PoolLocation   *string `json:"pool_location"`
}

// CourseService serves the course catalog: the built-in default set overlaid
// by stored rows keyed by the same id.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns the merged catalog. Stored rows win over defaults with the
// same id, defaults fill the gaps, store-only courses are appended.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	overrides := make(map[string]models.Course, len(stored))
	for _, course := range stored {
		overrides[course.ID] = course
	}

	merged := make([]models.Course, 0, len(stored))
	seen := make(map[string]bool)
	for _, course := range models.DefaultCourses() {
		if override, ok := overrides[course.ID]; ok {
			merged = append(merged, override)
		} else {
			merged = append(merged, course)
		}
		seen[course.ID] = true
	}

	var extras []models.Course
	for _, course := range stored {
		if !seen[course.ID] {
			extras = append(extras, course)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i].ID < extras[j].ID })
	merged = append(merged, extras...)

	return merged, nil
}

// Get returns one course: the stored override when present, else the default.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	stored, err := s.repo.FindByID(ctx, id)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	for _, course := range models.DefaultCourses() {
		if course.ID == id {
			c := course
			return &c, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
}

// Upsert writes a course override.
func (s *CourseService) Upsert(ctx context.Context, req UpsertCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{
		ID:             req.ID,
		Title:          req.Title,
		AgeGroup:       req.AgeGroup,
		Type:           models.CourseType(req.Type),
		Sessions:       req.Sessions,
		Price:          req.Price,
		TimeSlot:       req.TimeSlot,
		Description:    req.Description,
		Capacity:       req.Capacity,
		ImageURL:       req.ImageURL,
		IsOpen:         req.IsOpen,
		Terms:          req.Terms,
		InstructorName: req.InstructorName,
		PoolLocation:   req.PoolLocation,
	}
	if err := s.repo.Upsert(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save course")
	}
	s.logger.Info("course saved", zap.String("course_id", course.ID))
	return course, nil
}

// Delete removes a stored override. Default catalog entries cannot be
// deleted, only overridden.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course override not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}
