package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tswimming/swimschool-api/internal/models"
)

func TestEnrollmentCreateDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnResult(sqlmock.NewResult(0, 1))

	enrollment := &models.Enrollment{
		StudentID:   "CA68001",
		UserID:      "user-1",
		CourseID:    "course-a",
		StudentName: "Nong Nam",
		StartDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(context.Background(), enrollment))
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, models.PaymentStatusPending, enrollment.PaymentStatus)
	assert.Equal(t, models.EvaluationPending, enrollment.Evaluation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentSetReviewOnlyOnce(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET review = $2 WHERE id = $1 AND review IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET review = $2 WHERE id = $1 AND review IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	review := models.Review{Rating: 5, Comment: "great course", ReviewerName: "Nong Nam"}
	written, err := repo.SetReview(context.Background(), "enr-1", review)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.SetReview(context.Background(), "enr-1", review)
	require.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentAddAttendanceSameDayAbsorbed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnResult(sqlmock.NewResult(0, 0))

	at := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	written, err := repo.AddAttendance(context.Background(), "enr-1", at)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = repo.AddAttendance(context.Background(), "enr-1", at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentUpdatePaymentStatusMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec("UPDATE enrollments SET payment_status").
		WithArgs("missing", string(models.PaymentStatusPaid)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdatePaymentStatus(context.Background(), "missing", models.PaymentStatusPaid)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "user_id", "course_id", "student_name", "payment_status", "evaluation", "start_date", "created_at"}).
		AddRow("enr-1", "CA68001", "user-1", "course-a", "Nong Nam", "PAID", "PENDING", time.Now(), time.Now())

	mock.ExpectQuery("SELECT (.+) FROM enrollments WHERE user_id = \\$1 AND payment_status = \\$2 ORDER BY created_at DESC").
		WithArgs("user-1", string(models.PaymentStatusPaid)).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT checked_in_at FROM attendance_entries WHERE enrollment_id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"checked_in_at"}).AddRow(time.Now()))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM enrollments WHERE user_id = \\$1 AND payment_status = \\$2").
		WithArgs("user-1", string(models.PaymentStatusPaid)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	enrollments, total, err := repo.List(context.Background(), models.EnrollmentFilter{
		UserID:        "user-1",
		PaymentStatus: models.PaymentStatusPaid,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, enrollments, 1)
	assert.Len(t, enrollments[0].Attendance, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
