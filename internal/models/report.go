package models

import "time"

// ReportType identifies what a report job renders.
type ReportType string

// Available report types.
const (
	ReportEnrollments ReportType = "enrollments"
	ReportRevenue     ReportType = "revenue"
)

// ReportFormat identifies the output encoding.
type ReportFormat string

// Available report formats.
const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus tracks a report job through the worker queue.
type ReportStatus string

// Possible report statuses.
const (
	ReportStatusQueued    ReportStatus = "QUEUED"
	ReportStatusRunning   ReportStatus = "RUNNING"
	ReportStatusCompleted ReportStatus = "COMPLETED"
	ReportStatusFailed    ReportStatus = "FAILED"
)

// ReportJob is a persisted asynchronous report generation request.
type ReportJob struct {
	ID          string       `db:"id" json:"id"`
	Type        ReportType   `db:"type" json:"type"`
	Format      ReportFormat `db:"format" json:"format"`
	Status      ReportStatus `db:"status" json:"status"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	FilePath    *string      `db:"file_path" json:"-"`
	ErrorText   *string      `db:"error_text" json:"error,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}
