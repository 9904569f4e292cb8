package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tswimming/swimschool-api/internal/models"
)

// CourseRepository handles persistence of stored course overrides.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, title, age_group, type, sessions, price, time_slot, description,
        capacity, image_url, is_open, terms, instructor_name, pool_location, updated_at`

// List returns every stored course row.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses ORDER BY id", courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}

// FindByID returns a stored course row.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = $1", courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Upsert writes a course row keyed by id, replacing an existing override.
func (r *CourseRepository) Upsert(ctx context.Context, course *models.Course) error {
	now := time.Now().UTC()
	course.UpdatedAt = &now
	const query = `INSERT INTO courses (id, title, age_group, type, sessions, price, time_slot, description,
        capacity, image_url, is_open, terms, instructor_name, pool_location, updated_at)
        VALUES (:id, :title, :age_group, :type, :sessions, :price, :time_slot, :description,
        :capacity, :image_url, :is_open, :terms, :instructor_name, :pool_location, :updated_at)
        ON CONFLICT (id) DO UPDATE SET
        title = EXCLUDED.title, age_group = EXCLUDED.age_group, type = EXCLUDED.type,
        sessions = EXCLUDED.sessions, price = EXCLUDED.price, time_slot = EXCLUDED.time_slot,
        description = EXCLUDED.description, capacity = EXCLUDED.capacity, image_url = EXCLUDED.image_url,
        is_open = EXCLUDED.is_open, terms = EXCLUDED.terms, instructor_name = EXCLUDED.instructor_name,
        pool_location = EXCLUDED.pool_location, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("upsert course: %w", err)
	}
	return nil
}

// Delete removes a stored course override. Deleting a default-only course is
// a no-op reported as sql.ErrNoRows.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
