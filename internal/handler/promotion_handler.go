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

// PromotionHandler handles promotion endpoints.
type PromotionHandler struct {
	service *service.PromotionService
	roster  *service.RosterService
}

// NewPromotionHandler constructs a promotion handler.
func NewPromotionHandler(svc *service.PromotionService, roster *service.RosterService) *PromotionHandler {
	return &PromotionHandler{service: svc, roster: roster}
}

// List godoc
// @Summary List promotions
// @Tags Promotions
// @Produce json
// @Param turn query string false "Filter by turn (AM/PM)"
// @Param year query int false "Filter by graduation year"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /promotions [get]
func (h *PromotionHandler) List(c *gin.Context) {
	var filter models.PromotionFilter
	if turn := c.Query("turn"); turn != "" {
		t := models.PromotionTurn(turn)
		filter.Turn = &t
	}
	if year, err := strconv.Atoi(c.Query("year")); err == nil {
		filter.Year = &year
	}
	filter.Search = searchParam(c)
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	promotions, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, promotions, paginationOf(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get promotion by id
// @Tags Promotions
// @Produce json
// @Param id path string true "Promotion ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /promotions/{id} [get]
func (h *PromotionHandler) Get(c *gin.Context) {
	promotion, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, promotion, nil)
}

// Create godoc
// @Summary Create promotion
// @Tags Promotions
// @Accept json
// @Produce json
// @Param payload body service.CreatePromotionRequest true "Promotion payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /promotions [post]
func (h *PromotionHandler) Create(c *gin.Context) {
	var req service.CreatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	promotion, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeyPromotions)
	response.Created(c, promotion)
}

// Update godoc
// @Summary Update promotion
// @Tags Promotions
// @Accept json
// @Produce json
// @Param id path string true "Promotion ID"
// @Param payload body service.UpdatePromotionRequest true "Promotion payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /promotions/{id} [put]
func (h *PromotionHandler) Update(c *gin.Context) {
	var req service.UpdatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	promotion, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.roster.Invalidate(c.Request.Context(), repository.CacheKeyPromotions)
	response.JSON(c, http.StatusOK, promotion, nil)
}

// Delete godoc
// @Summary Delete promotion with its cascade
// @Description Detaches the promotion from every subject and deletes its student profiles. Assignment rows and student accounts are left behind.
// @Tags Promotions
// @Produce json
// @Param id path string true "Promotion ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /promotions/{id} [delete]
func (h *PromotionHandler) Delete(c *gin.Context) {
	summary, err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.roster.ReloadAll(c.Request.Context()); err != nil {
		response.JSON(c, http.StatusOK, summary, nil, map[string]interface{}{
			"warning": "deletion finished but the roster view may be stale",
		})
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
