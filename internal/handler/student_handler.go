package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/service"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/response"
)

const rosterReloadRetries = 2

// StudentHandler handles the student roster and enrollment endpoints.
type StudentHandler struct {
	students   *service.StudentService
	enrollment *service.EnrollmentService
	roster     *service.RosterService
	metrics    *service.MetricsService
}

// NewStudentHandler constructs a student handler.
func NewStudentHandler(students *service.StudentService, enrollment *service.EnrollmentService, roster *service.RosterService, metrics *service.MetricsService) *StudentHandler {
	return &StudentHandler{students: students, enrollment: enrollment, roster: roster, metrics: metrics}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param promotion_id query string false "Filter by promotion"
// @Param level query string false "Filter by level"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.PromotionID = c.Query("promotion_id")
	if level := c.Query("level"); level != "" {
		l := models.StudentLevel(level)
		filter.Level = &l
	}
	filter.Search = searchParam(c)
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	students, total, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, paginationOf(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get student by id
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Assignments godoc
// @Summary List a student's subject assignments
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/assignments [get]
func (h *StudentHandler) Assignments(c *gin.Context) {
	assignments, err := h.students.Assignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Create godoc
// @Summary Enroll a single student
// @Description Creates account and profile, then assigns every subject of the student's promotion. The generated passcode is returned once in the profile.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollment.CreateStudent(c.Request.Context(), req)
	if err != nil {
		h.metrics.RecordEnrollment(false, 0)
		response.Error(c, err)
		return
	}
	assigned := 0
	if result.Assignments != nil {
		assigned = result.Assignments.Created
	}
	h.metrics.RecordEnrollment(true, assigned)

	meta := h.reloadMeta(c)
	if result.Warning != "" {
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["warning"] = result.Warning
	}
	response.Created(c, result, meta)
}

// CreateBulk godoc
// @Summary Enroll students from pasted roster text
// @Description One line per student, "first,last". Lines with fewer than two fields are skipped. Failed records are reported per line; the run never rolls back.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.BulkEnrollmentRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/bulk [post]
func (h *StudentHandler) CreateBulk(c *gin.Context) {
	var req service.BulkEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.enrollment.CreateBulkStudents(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordBulkRun()
	for _, record := range result.Records {
		h.metrics.RecordEnrollment(record.Error == "", record.Assigned)
	}
	response.JSON(c, http.StatusOK, result, nil, h.reloadMeta(c))
}

// Update godoc
// @Summary Update student profile
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil, h.reloadMeta(c))
}

// Deactivate godoc
// @Summary Deactivate student profile
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /students/{id} [delete]
func (h *StudentHandler) Deactivate(c *gin.Context) {
	if err := h.students.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	if meta := h.reloadMeta(c); meta != nil {
		response.JSON(c, http.StatusOK, nil, nil, meta)
		return
	}
	response.NoContent(c)
}

// Roster godoc
// @Summary Current student roster snapshot
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/roster [get]
func (h *StudentHandler) Roster(c *gin.Context) {
	students, err := h.roster.Students(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// reloadMeta refreshes the roster after a mutation and returns response meta
// when the refreshed view is stale. The mutation already succeeded, so a
// stale view is informational only.
func (h *StudentHandler) reloadMeta(c *gin.Context) map[string]interface{} {
	result, err := h.roster.ReloadStudents(c.Request.Context(), rosterReloadRetries)
	if err != nil {
		return map[string]interface{}{"warning": "roster reload failed, the list view may be stale"}
	}
	h.metrics.RecordRosterReload(result.Stale)
	if result.Stale {
		return map[string]interface{}{"warning": "the change was saved but the roster view is stale"}
	}
	return nil
}
