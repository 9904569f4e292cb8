package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tswimming/swimschool-api/internal/service"
	appErrors "github.com/tswimming/swimschool-api/pkg/errors"
	"github.com/tswimming/swimschool-api/pkg/response"
)

type imageUploader interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// CourseHandler serves the course catalog.
type CourseHandler struct {
	service *service.CourseService
	images  imageUploader
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(svc *service.CourseService, images imageUploader) *CourseHandler {
	return &CourseHandler{service: svc, images: images}
}

// List godoc
// @Summary List courses
// @Description Return the merged course catalog
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get godoc
// @Summary Get course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Upsert godoc
// @Summary Create or update a course
// @Description Write a course override keyed by id
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body service.UpsertCourseRequest true "Course payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses [put]
func (h *CourseHandler) Upsert(c *gin.Context) {
	var req service.UpsertCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}
	course, err := h.service.Upsert(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// UploadImage godoc
// @Summary Upload a course image
// @Description Host a course image and return its URL; the edit is saved separately with that URL
// @Tags Courses
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "Course image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /courses/image [post]
func (h *CourseHandler) UploadImage(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "course image is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read course image"))
		return
	}
	defer file.Close()

	url, err := h.images.Upload(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "course image upload failed, nothing saved"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"image_url": url}, nil)
}

// Delete godoc
// @Summary Delete a course override
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /courses/{id} [delete]
func (h *CourseHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
