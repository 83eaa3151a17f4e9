package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/motta-superate/grades-api/internal/models"
	"github.com/motta-superate/grades-api/internal/repository"
	"github.com/motta-superate/grades-api/internal/service"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/response"
)

// SubjectHandler handles subject endpoints.
type SubjectHandler struct {
	service *service.SubjectService
	roster  *service.RosterService
}

// NewSubjectHandler constructs a subject handler.
func NewSubjectHandler(svc *service.SubjectService, roster *service.RosterService) *SubjectHandler {
	return &SubjectHandler{service: svc, roster: roster}
}

// List godoc
// @Summary List subjects
// @Tags Subjects
// @Produce json
// @Param teacher_id query string false "Filter by teacher"
// @Param promotion_id query string false "Filter by promotion in the set"
// @Param academic_year query string false "Filter by academic year"
// @Param semester query int false "Filter by semester"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [get]
func (h *SubjectHandler) List(c *gin.Context) {
	var filter models.SubjectFilter
	filter.TeacherID = c.Query("teacher_id")
	filter.PromotionID = c.Query("promotion_id")
	filter.AcademicYear = c.Query("academic_year")
	if semester, err := strconv.Atoi(c.Query("semester")); err == nil {
		filter.Semester = &semester
	}
	filter.Search = searchParam(c)
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	subjects, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, paginationOf(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get subject by id
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [get]
func (h *SubjectHandler) Get(c *gin.Context) {
	subject, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// Create godoc
// @Summary Create subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param payload body service.CreateSubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects [post]
func (h *SubjectHandler) Create(c *gin.Context) {
	var req service.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeySubjects)
	response.Created(c, subject)
}

// Update godoc
// @Summary Update subject
// @Tags Subjects
// @Accept json
// @Produce json
// @Param id path string true "Subject ID"
// @Param payload body service.UpdateSubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /subjects/{id} [put]
func (h *SubjectHandler) Update(c *gin.Context) {
	var req service.UpdateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeySubjects)
	response.JSON(c, http.StatusOK, subject, nil)
}

// AddPromotion godoc
// @Summary Add a promotion to the subject's promotion set
// @Description Future enrollments of that promotion will include this subject. Existing students are not retroactively assigned.
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Param promotionId path string true "Promotion ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /subjects/{id}/promotions/{promotionId} [put]
func (h *SubjectHandler) AddPromotion(c *gin.Context) {
	if err := h.service.AddPromotion(c.Request.Context(), c.Param("id"), c.Param("promotionId")); err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeySubjects)
	response.NoContent(c)
}

// RemovePromotion godoc
// @Summary Remove a promotion from the subject's promotion set
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Param promotionId path string true "Promotion ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /subjects/{id}/promotions/{promotionId} [delete]
func (h *SubjectHandler) RemovePromotion(c *gin.Context) {
	if err := h.service.RemovePromotion(c.Request.Context(), c.Param("id"), c.Param("promotionId")); err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeySubjects)
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete subject
// @Description Removes the subject, its promotion links and every assignment row pointing at it.
// @Tags Subjects
// @Produce json
// @Param id path string true "Subject ID"
// @Success 204 "No Content"
// @Security BearerAuth
// @Router /subjects/{id} [delete]
func (h *SubjectHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeySubjects)
	response.NoContent(c)
}
