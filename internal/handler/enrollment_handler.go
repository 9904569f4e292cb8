package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tswimming/swimschool-api/internal/models"
	"github.com/tswimming/swimschool-api/internal/service"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
	"github.com/tswimming/swimschool-api/pkg/response"
)

// maxSlipSize bounds uploaded payment slip images.
const maxSlipSize = 10 << 20

// EnrollmentHandler wires HTTP endpoints to the enrollment service.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler creates a new handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Register godoc
// @Summary Register for a course
// @Description Create a pending enrollment with a payment slip upload
// @Tags Enrollments
// @Accept multipart/form-data
// @Produce json
// @Param course_id formData string true "Course ID"
// @Param student_name formData string true "Student name"
// @Param gender formData string true "Gender"
// @Param age formData int true "Age"
// @Param phone formData string true "Contact phone"
// @Param start_date formData string true "Start date (YYYY-MM-DD)"
// @Param slip formData file true "Payment slip image"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req, err := parseRegistrationForm(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	fileHeader, err := c.FormFile("slip")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payment slip image is required"))
		return
	}
	if fileHeader.Size > maxSlipSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "payment slip exceeds the size limit"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read payment slip"))
		return
	}
	defer file.Close()
	req.SlipFilename = fileHeader.Filename
	req.SlipFile = file

	enrollment, err := h.service.Register(c.Request.Context(), claims.UserID, *req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

func parseRegistrationForm(c *gin.Context) (*service.RegisterEnrollmentRequest, error) {
	age, err := strconv.Atoi(c.PostForm("age"))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "age must be a number")
	}
	startDate, err := time.Parse("2006-01-02", c.PostForm("start_date"))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be YYYY-MM-DD")
	}

	req := &service.RegisterEnrollmentRequest{
		CourseID:    c.PostForm("course_id"),
		StudentName: c.PostForm("student_name"),
		Gender:      c.PostForm("gender"),
		Age:         age,
		Weight:      c.PostForm("weight"),
		Height:      c.PostForm("height"),
		School:      c.PostForm("school"),
		Phone:       c.PostForm("phone"),
		StartDate:   startDate,
	}
	if disease := c.PostForm("disease"); disease != "" {
		req.Disease = &disease
	}
	req.ADHDCondition, _ = strconv.ParseBool(c.PostForm("adhd_condition"))
	return req, nil
}

// List godoc
// @Summary List enrollments
// @Description Staff see every enrollment; students see their own
// @Tags Enrollments
// @Produce json
// @Param course_id query string false "Filter by course"
// @Param payment_status query string false "Filter by payment status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.EnrollmentFilter{
		CourseID:      c.Query("course_id"),
		PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
		SortBy:        c.Query("sort_by"),
		SortOrder:     c.Query("sort_order"),
	}
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.PageSize, _ = strconv.Atoi(c.Query("page_size"))
	if claims.Role == models.RoleStudent {
		filter.UserID = claims.UserID
	}

	enrollments, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Get godoc
// @Summary Get enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims.Role == models.RoleStudent && enrollment.UserID != claims.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// DecidePayment godoc
// @Summary Approve or reject a payment
// @Description Two-step decision: the first call arms it, an identical call within the confirmation window executes it
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body object true "Decision payload"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/payment [post]
func (h *EnrollmentHandler) DecidePayment(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Status models.PaymentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "decision status required"))
		return
	}

	meta := service.DecisionMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	enrollment, confirmed, err := h.service.DecidePayment(c.Request.Context(), claims.UserID, c.Param("id"), payload.Status, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !confirmed {
		response.JSON(c, http.StatusAccepted, gin.H{"confirmation_required": true}, nil)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// CheckIn godoc
// @Summary Record attendance
// @Description Check in the selected enrollments; one entry per calendar day
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body object true "Enrollment ids"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enrollments/check-in [post]
func (h *EnrollmentHandler) CheckIn(c *gin.Context) {
	var payload struct {
		EnrollmentIDs []string `json:"enrollment_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "enrollment ids required"))
		return
	}
	result, err := h.service.CheckIn(c.Request.Context(), payload.EnrollmentIDs, time.Now().UTC())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Evaluate godoc
// @Summary Record an evaluation
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body object true "Evaluation result"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/evaluation [post]
func (h *EnrollmentHandler) Evaluate(c *gin.Context) {
	var payload struct {
		Result models.EvaluationResult `json:"result" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "evaluation result required"))
		return
	}
	enrollment, err := h.service.Evaluate(c.Request.Context(), c.Param("id"), payload.Result)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// SubmitReview godoc
// @Summary Submit a course review
// @Description One-time review by the enrollment owner after a passed evaluation
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body service.ReviewRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /enrollments/{id}/review [post]
func (h *EnrollmentHandler) SubmitReview(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	enrollment, err := h.service.SubmitReview(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Delete godoc
// @Summary Delete enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
