package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/motta-superate/grades-api/internal/service"
	appErrors "github.com/motta-superate/grades-api/pkg/errors"
	"github.com/motta-superate/grades-api/pkg/response"
)

// ExportHandler handles export rendering and signed downloads.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs an export handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// CredentialSheet godoc
// @Summary Export a promotion's initial credentials as CSV
// @Tags Exports
// @Produce json
// @Param id path string true "Promotion ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /promotions/{id}/credentials-export [post]
func (h *ExportHandler) CredentialSheet(c *gin.Context) {
	artifact, err := h.service.CredentialSheet(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

// GradeReport godoc
// @Summary Export a student's grades as PDF
// @Tags Exports
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{id}/grade-report [post]
func (h *ExportHandler) GradeReport(c *gin.Context) {
	artifact, err := h.service.GradeReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

// Download godoc
// @Summary Download an export artifact via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	path, err := h.service.Resolve(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusOK)
	c.File(path)
}
