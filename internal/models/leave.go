package models

import "time"

// LeaveStatus is the decision state of a leave request.
type LeaveStatus string

// Possible leave statuses. APPROVED and REJECTED are terminal.
const (
	LeaveStatusPending  LeaveStatus = "PENDING"
	LeaveStatusApproved LeaveStatus = "APPROVED"
	LeaveStatusRejected LeaveStatus = "REJECTED"
)

// LeaveRequest is a student's declared absence for one future class date
// against one enrollment. The course name is snapshotted at creation.
type LeaveRequest struct {
	ID           string      `db:"id" json:"id"`
	UserID       string      `db:"user_id" json:"user_id"`
	EnrollmentID string      `db:"enrollment_id" json:"enrollment_id"`
	StudentName  string      `db:"student_name" json:"student_name"`
	CourseName   string      `db:"course_name" json:"course_name"`
	LeaveDate    time.Time   `db:"leave_date" json:"leave_date"`
	Reason       string      `db:"reason" json:"reason"`
	Status       LeaveStatus `db:"status" json:"status"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// LeaveFilter provides filters for listing leave requests.
type LeaveFilter struct {
	UserID   string
	Status   LeaveStatus
	Page     int
	PageSize int
}
