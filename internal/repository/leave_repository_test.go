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

func TestLeaveCreateForcesPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	mock.ExpectExec("INSERT INTO leave_requests").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := &models.LeaveRequest{
		UserID:       "user-1",
		EnrollmentID: "enr-1",
		StudentName:  "Nong Nam",
		CourseName:   "Course A (Ages 4-6, Group)",
		LeaveDate:    time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Reason:       "family trip",
		Status:       models.LeaveStatusApproved,
	}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.Equal(t, models.LeaveStatusPending, req.Status)
	assert.NotEmpty(t, req.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveDecideFirstWriterWins(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE leave_requests SET status = $2 WHERE id = $1 AND status = $3")).
		WithArgs("leave-1", string(models.LeaveStatusApproved), string(models.LeaveStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE leave_requests SET status = $2 WHERE id = $1 AND status = $3")).
		WithArgs("leave-1", string(models.LeaveStatusRejected), string(models.LeaveStatusPending)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Decide(context.Background(), "leave-1", models.LeaveStatusApproved))
	err := repo.Decide(context.Background(), "leave-1", models.LeaveStatusRejected)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaveListFiltersByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewLeaveRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "enrollment_id", "student_name", "course_name", "leave_date", "reason", "status", "created_at"}).
		AddRow("leave-1", "user-1", "enr-1", "Nong Nam", "Course A", time.Now(), "sick", "PENDING", time.Now())

	mock.ExpectQuery("SELECT (.+) FROM leave_requests WHERE status = \\$1 ORDER BY created_at DESC").
		WithArgs(string(models.LeaveStatusPending)).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM leave_requests WHERE status = \\$1").
		WithArgs(string(models.LeaveStatusPending)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	requests, total, err := repo.List(context.Background(), models.LeaveFilter{Status: models.LeaveStatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, requests, 1)
	assert.Equal(t, models.LeaveStatusPending, requests[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
