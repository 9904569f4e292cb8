package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tswimming/swimschool-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments and their
// attendance entries.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, student_id, user_id, course_id, student_name, gender, age, weight, height,
        school, disease, adhd_condition, phone, start_date, expiry_date, slip_url,
        payment_status, evaluation, review, created_at`

type enrollmentRow struct {
	models.Enrollment
	ReviewJSON []byte `db:"review"`
}

func (row *enrollmentRow) toModel() (*models.Enrollment, error) {
	e := row.Enrollment
	if len(row.ReviewJSON) > 0 {
		var review models.Review
		if err := json.Unmarshal(row.ReviewJSON, &review); err != nil {
			return nil, fmt.Errorf("decode review for enrollment %s: %w", e.ID, err)
		}
		e.Review = &review
	}
	e.Attendance = []time.Time{}
	return &e, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	if enrollment.PaymentStatus == "" {
		enrollment.PaymentStatus = models.PaymentStatusPending
	}
	if enrollment.Evaluation == "" {
		enrollment.Evaluation = models.EvaluationPending
	}
	const query = `INSERT INTO enrollments (id, student_id, user_id, course_id, student_name, gender, age,
        weight, height, school, disease, adhd_condition, phone, start_date, expiry_date, slip_url,
        payment_status, evaluation, created_at)
        VALUES (:id, :student_id, :user_id, :course_id, :student_name, :gender, :age,
        :weight, :height, :school, :disease, :adhd_condition, :phone, :start_date, :expiry_date, :slip_url,
        :payment_status, :evaluation, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment with its review and attendance loaded.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var row enrollmentRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	enrollment, err := row.toModel()
	if err != nil {
		return nil, err
	}
	attendance, err := r.AttendanceFor(ctx, id)
	if err != nil {
		return nil, err
	}
	enrollment.Attendance = attendance
	return enrollment, nil
}

// List returns enrollments filtered by the provided criteria, attendance
// included, newest first by default.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	var conditions []string
	var args []interface{}

	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.PaymentStatus != "" {
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)+1))
		args = append(args, filter.PaymentStatus)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "created_at",
		"start_date":   "start_date",
		"student_name": "student_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM enrollments%s ORDER BY %s %s LIMIT %d OFFSET %d",
		enrollmentColumns, clause, orderBy, order, size, offset)

	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	enrollments := make([]models.Enrollment, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, 0, err
		}
		attendance, err := r.AttendanceFor(ctx, e.ID)
		if err != nil {
			return nil, 0, err
		}
		e.Attendance = attendance
		enrollments = append(enrollments, *e)
	}

	countQuery := "SELECT COUNT(*) FROM enrollments" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListAll returns every enrollment without attendance; used by dashboard
// aggregation and report rendering.
func (r *EnrollmentRepository) ListAll(ctx context.Context) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments ORDER BY created_at", enrollmentColumns)
	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list all enrollments: %w", err)
	}
	enrollments := make([]models.Enrollment, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, nil
}

// ListPaid returns every PAID enrollment; used by the expiry sweep.
func (r *EnrollmentRepository) ListPaid(ctx context.Context) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE payment_status = $1", enrollmentColumns)
	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, models.PaymentStatusPaid); err != nil {
		return nil, fmt.Errorf("list paid enrollments: %w", err)
	}
	enrollments := make([]models.Enrollment, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, nil
}

// UpdatePaymentStatus sets the payment status.
func (r *EnrollmentRepository) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	const query = `UPDATE enrollments SET payment_status = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateEvaluation sets the evaluation result.
func (r *EnrollmentRepository) UpdateEvaluation(ctx context.Context, id string, result models.EvaluationResult) error {
	const query = `UPDATE enrollments SET evaluation = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, result)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetReview attaches a review exactly once. Returns false without error when
// a review already exists; the first review is never overwritten.
func (r *EnrollmentRepository) SetReview(ctx context.Context, id string, review models.Review) (bool, error) {
	payload, err := json.Marshal(review)
	if err != nil {
		return false, fmt.Errorf("encode review: %w", err)
	}
	const query = `UPDATE enrollments SET review = $2 WHERE id = $1 AND review IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, payload)
	if err != nil {
		return false, fmt.Errorf("set review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set review result: %w", err)
	}
	return affected == 1, nil
}

// AddAttendance appends a check-in for the enrollment. The insert is
// additive: no prior read of the attendance set, and a second insert for the
// same calendar day is absorbed by the day-uniqueness conflict target.
// Returns whether a new entry was written.
func (r *EnrollmentRepository) AddAttendance(ctx context.Context, enrollmentID string, checkedInAt time.Time) (bool, error) {
	const query = `INSERT INTO attendance_entries (id, enrollment_id, checked_in_at, attended_on)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (enrollment_id, attended_on) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, uuid.NewString(), enrollmentID, checkedInAt, checkedInAt.Format("2006-01-02"))
	if err != nil {
		return false, fmt.Errorf("add attendance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add attendance result: %w", err)
	}
	return affected == 1, nil
}

// AttendanceFor returns the check-in timestamps for an enrollment.
func (r *EnrollmentRepository) AttendanceFor(ctx context.Context, enrollmentID string) ([]time.Time, error) {
	const query = `SELECT checked_in_at FROM attendance_entries WHERE enrollment_id = $1 ORDER BY checked_in_at`
	var entries []time.Time
	if err := r.db.SelectContext(ctx, &entries, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	if entries == nil {
		entries = []time.Time{}
	}
	return entries, nil
}

// Delete removes an enrollment and its attendance entries.
func (r *EnrollmentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attendance_entries WHERE enrollment_id = $1`, id); err != nil {
		return fmt.Errorf("delete attendance entries: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
