package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tswimming/swimschool-api/internal/models"
	"github.com/tswimming/swimschool-api/internal/service"
)

type fakeCourseRepo struct {
	stored  []models.Course
	listErr error
}

func (f *fakeCourseRepo) List(context.Context) ([]models.Course, error) {
	return f.stored, f.listErr
}

func (f *fakeCourseRepo) FindByID(_ context.Context, id string) (*models.Course, error) {
	for i := range f.stored {
		if f.stored[i].ID == id {
			return &f.stored[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeCourseRepo) Upsert(_ context.Context, course *models.Course) error {
	f.stored = append(f.stored, *course)
	return nil
}

func (f *fakeCourseRepo) Delete(context.Context, string) error {
	return sql.ErrNoRows
}

type courseEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Error map[string]interface{} `json:"error"`
}

func TestCourseHandlerListMergesDefaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(service.NewCourseService(&fakeCourseRepo{}, nil, nil), nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope courseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	var courses []models.Course
	assert.NoError(t, json.Unmarshal(envelope.Data, &courses))
	assert.Len(t, courses, len(models.DefaultCourses()))
}

func TestCourseHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(service.NewCourseService(&fakeCourseRepo{}, nil, nil), nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/courses/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "no-such-course"}}

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCourseHandlerUpsertRejectsBadType(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(service.NewCourseService(&fakeCourseRepo{}, nil, nil), nil)

	body := `{"id":"course-x","title":"Sharks","type":"Olympic"}`
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPut, "/courses", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Upsert(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope courseEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.NotNil(t, envelope.Error)
}

func TestCourseHandlerDeleteMissingOverride(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCourseHandler(service.NewCourseService(&fakeCourseRepo{}, nil, nil), nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodDelete, "/courses/course-a", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-a"}}

	handler.Delete(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
