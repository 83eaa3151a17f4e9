package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/service"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/response"
)

// GradeHandler handles grade entry endpoints.
type GradeHandler struct {
	service *service.GradeService
}

// NewGradeHandler constructs a grade handler.
func NewGradeHandler(svc *service.GradeService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param subject_id query string false "Filter by subject"
// @Param category_id query string false "Filter by category"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	var filter models.GradeFilter
	filter.StudentID = c.Query("student_id")
	filter.SubjectID = c.Query("subject_id")
	filter.CategoryID = c.Query("category_id")
	filter.Page, filter.PageSize = pageParams(c)

	// Students only see their own grades.
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}

	grades, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, paginationOf(filter.Page, filter.PageSize, total))
}

// Record godoc
// @Summary Record a grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.RecordGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [post]
func (h *GradeHandler) Record(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.RecordGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.service.Record(c.Request.Context(), claims.UserID, claims.Role == models.RoleAdmin, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Update godoc
// @Summary Correct a recorded grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path string true "Grade ID"
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/{id} [put]
func (h *GradeHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.service.Update(c.Request.Context(), claims.UserID, claims.Role == models.RoleAdmin, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete a grade
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims.UserID, claims.Role == models.RoleAdmin, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Categories godoc
// @Summary List grade categories of a subject
// @Tags Grades
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id}/categories [get]
func (h *GradeHandler) Categories(c *gin.Context) {
	categories, err := h.service.Categories(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories, nil)
}

// CreateCategory godoc
// @Summary Create a grade category
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeCategoryRequest true "Category payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /grade-categories [post]
func (h *GradeHandler) CreateCategory(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.CreateGradeCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	category, err := h.service.CreateCategory(c.Request.Context(), claims.UserID, claims.Role == models.RoleAdmin, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, category)
}

// SubjectStats godoc
// @Summary A student's standing in one subject
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Param subjectId path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/subjects/{subjectId}/stats [get]
func (h *GradeHandler) SubjectStats(c *gin.Context) {
	studentID := c.Param("id")
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent && claims.UserID != studentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	stats, err := h.service.SubjectStats(c.Request.Context(), studentID, c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
