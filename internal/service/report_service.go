package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tswimming/swimschool-api/internal/models"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
	"github.com/tswimming/swimschool-api/pkg/export"
	"github.com/tswimming/swimschool-api/pkg/jobs"
	"github.com/tswimming/swimschool-api/pkg/storage"
)

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, filePath string) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListByRequester(ctx context.Context, userID string) ([]models.ReportJob, error)
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// ReportDownload pairs a signed token with its expiry.
type ReportDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReportService generates enrollment and revenue exports asynchronously.
// Requests enqueue a job; a worker renders the file to local storage and the
// requester later exchanges the job id for a signed download token.
type ReportService struct {
	repo        reportRepository
	queue       reportQueue
	enrollments dashboardEnrollmentSource
	courses     courseLister
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	logger      *zap.Logger
	now         func() time.Time
}

// NewReportService constructs ReportService. The queue is attached afterwards
// via SetQueue because the queue's handler needs the service.
func NewReportService(repo reportRepository, enrollments dashboardEnrollmentSource, courses courseLister, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		store:       store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
		now:         time.Now,
	}
}

// SetQueue wires the worker queue used for asynchronous rendering.
func (s *ReportService) SetQueue(queue reportQueue) {
	s.queue = queue
}

// Request queues a new report job.
func (s *ReportService) Request(ctx context.Context, userID string, reportType models.ReportType, format models.ReportFormat) (*models.ReportJob, error) {
	switch reportType {
	case models.ReportEnrollments, models.ReportRevenue:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report type")
	}
	switch format {
	case models.ReportFormatCSV, models.ReportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report format")
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "report generation is disabled")
	}

	job := &models.ReportJob{Type: reportType, Format: format, RequestedBy: userID}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(reportType)}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "queue unavailable"); markErr != nil {
			s.logger.Error("failed to mark report job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "failed to queue report job")
	}
	s.logger.Info("report queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(reportType)),
		zap.String("format", string(format)))
	return job, nil
}

// Handle renders one queued report. It is the jobs.Queue handler.
func (s *ReportService) Handle(ctx context.Context, job jobs.Job) error {
	stored, err := s.repo.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if stored.Status == models.ReportStatusCompleted {
		return nil
	}
	if err := s.repo.MarkRunning(ctx, job.ID); err != nil {
		return fmt.Errorf("mark report running: %w", err)
	}

	dataset, title, err := s.buildDataset(ctx, stored.Type)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	var payload []byte
	switch stored.Format {
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	filename := fmt.Sprintf("%s-%s.%s", stored.Type, job.ID, stored.Format)
	relPath, err := s.store.Save(filename, payload)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}
	if err := s.repo.MarkCompleted(ctx, job.ID, relPath); err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	s.logger.Info("report rendered",
		zap.String("job_id", job.ID),
		zap.String("file", relPath),
		zap.Int("bytes", len(payload)))
	return nil
}

func (s *ReportService) fail(ctx context.Context, jobID string, cause error) {
	s.logger.Error("report rendering failed", zap.String("job_id", jobID), zap.Error(cause))
	if err := s.repo.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Error("failed to mark report failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ReportService) buildDataset(ctx context.Context, reportType models.ReportType) (export.Dataset, string, error) {
	enrollments, err := s.enrollments.ListAll(ctx)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load enrollments: %w", err)
	}
	courses := make(map[string]models.Course)
	if list, err := s.courses.List(ctx); err == nil {
		for _, course := range list {
			courses[course.ID] = course
		}
	}

	if reportType == models.ReportRevenue {
		return s.revenueDataset(enrollments, courses), "Revenue by course", nil
	}
	return s.enrollmentsDataset(enrollments, courses), "Enrollments", nil
}

func (s *ReportService) enrollmentsDataset(enrollments []models.Enrollment, courses map[string]models.Course) export.Dataset {
	headers := []string{"Student ID", "Name", "Course", "Payment", "Evaluation", "Start Date"}
	rows := make([]map[string]string, 0, len(enrollments))
	for i := range enrollments {
		e := &enrollments[i]
		courseTitle := e.CourseID
		if course, ok := courses[e.CourseID]; ok {
			courseTitle = course.Title
		}
		rows = append(rows, map[string]string{
			"Student ID": e.StudentID,
			"Name":       e.StudentName,
			"Course":     courseTitle,
			"Payment":    string(e.PaymentStatus),
			"Evaluation": string(e.Evaluation),
			"Start Date": e.StartDate.Format("2006-01-02"),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func (s *ReportService) revenueDataset(enrollments []models.Enrollment, courses map[string]models.Course) export.Dataset {
	paidCount := make(map[string]int)
	for i := range enrollments {
		if enrollments[i].PaymentStatus == models.PaymentStatusPaid {
			paidCount[enrollments[i].CourseID]++
		}
	}
	headers := []string{"Course", "Paid Enrollments", "Price", "Revenue"}
	rows := make([]map[string]string, 0, len(paidCount))
	for courseID, count := range paidCount {
		title := courseID
		price := 0
		if course, ok := courses[courseID]; ok {
			title = course.Title
			price = course.Price
		}
		rows = append(rows, map[string]string{
			"Course":           title,
			"Paid Enrollments": strconv.Itoa(count),
			"Price":            strconv.Itoa(price),
			"Revenue":          strconv.Itoa(count * price),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// Get returns a report job visible to its requester.
func (s *ReportService) Get(ctx context.Context, jobID, userID string) (*models.ReportJob, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if job.RequestedBy != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report belongs to another user")
	}
	return job, nil
}

// ListMine returns the caller's report jobs.
func (s *ReportService) ListMine(ctx context.Context, userID string) ([]models.ReportJob, error) {
	reports, err := s.repo.ListByRequester(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reports")
	}
	return reports, nil
}

// DownloadToken issues a signed token for a completed report.
func (s *ReportService) DownloadToken(ctx context.Context, jobID, userID string) (*ReportDownload, error) {
	job, err := s.Get(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusCompleted || job.FilePath == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "report is not ready")
	}
	token, expiresAt, err := s.signer.Generate(job.ID, *job.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download")
	}
	return &ReportDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// Resolve validates a download token and opens the report file.
func (s *ReportService) Resolve(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report file missing")
	}
	return file, relPath, nil
}
