package models

import "time"

// PaymentStatus is the commercial state of an enrollment.
type PaymentStatus string

// Possible payment statuses. New enrollments always start PENDING; an
// administrator may later flip PAID and REJECTED into each other as an
// audited override.
const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRejected PaymentStatus = "REJECTED"
)

// EvaluationResult is the progress evaluation of an enrollment.
type EvaluationResult string

// Possible evaluation results.
const (
	EvaluationPending EvaluationResult = "PENDING"
	EvaluationPass    EvaluationResult = "PASS"
	EvaluationFail    EvaluationResult = "FAIL"
)

// Review is a one-time student rating attached after a PASS evaluation.
type Review struct {
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	ReviewerName string    `json:"reviewer_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Enrollment is one student's registration into one course offering.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	UserID        string           `db:"user_id" json:"user_id"`
	CourseID      string           `db:"course_id" json:"course_id"`
	StudentName   string           `db:"student_name" json:"student_name"`
	Gender        string           `db:"gender" json:"gender"`
	Age           int              `db:"age" json:"age"`
	Weight        string           `db:"weight" json:"weight"`
	Height        string           `db:"height" json:"height"`
	School        string           `db:"school" json:"school"`
	Disease       *string          `db:"disease" json:"disease,omitempty"`
	ADHDCondition bool             `db:"adhd_condition" json:"adhd_condition"`
	Phone         string           `db:"phone" json:"phone"`
	StartDate     time.Time        `db:"start_date" json:"start_date"`
	ExpiryDate    *time.Time       `db:"expiry_date" json:"expiry_date,omitempty"`
	SlipURL       string           `db:"slip_url" json:"slip_url"`
	PaymentStatus PaymentStatus    `db:"payment_status" json:"payment_status"`
	Evaluation    EvaluationResult `db:"evaluation" json:"evaluation"`
	Review        *Review          `db:"-" json:"review,omitempty"`
	Attendance    []time.Time      `db:"-" json:"attendance"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

// EffectiveExpiry returns the expiry date used for alerts: the explicit
// expiry when set, else startDate+3 months for Normal courses, else nil
// (never expiring).
func (e *Enrollment) EffectiveExpiry(courseType CourseType) *time.Time {
	if e.ExpiryDate != nil {
		return e.ExpiryDate
	}
	if courseType == CourseTypeNormal && !e.StartDate.IsZero() {
		d := e.StartDate.AddDate(0, 3, 0)
		return &d
	}
	return nil
}

// CheckedInOn reports whether the enrollment already has an attendance entry
// on the given calendar day.
func (e *Enrollment) CheckedInOn(day time.Time) bool {
	y, m, d := day.Date()
	for _, ts := range e.Attendance {
		ty, tm, td := ts.Date()
		if ty == y && tm == m && td == d {
			return true
		}
	}
	return false
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	UserID        string
	CourseID      string
	PaymentStatus PaymentStatus
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}
