package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
	"github.com/placementcell/placement-api/pkg/response"
)

type auditService interface {
	Query(ctx context.Context, query dto.AuditQuery) ([]models.AuditEvent, int, error)
	Export(ctx context.Context, query dto.AuditQuery, format string) ([]byte, string, error)
}

// AuditHandler exposes the audit trail endpoints.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler builds a new handler.
func NewAuditHandler(svc auditService) *AuditHandler {
	return &AuditHandler{service: svc}
}

// Query godoc
// @Summary Query the audit trail
// @Tags Audit
// @Produce json
// @Param resourceType query string false "Resource type"
// @Param resourceId query string false "Resource ID"
// @Param actorId query string false "Actor ID"
// @Param action query string false "Action"
// @Success 200 {object} response.Envelope
// @Router /audit [get]
func (h *AuditHandler) Query(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid audit query"))
		return
	}
	events, total, err := h.service.Query(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Export godoc
// @Summary Export the audit trail as CSV or PDF
// @Tags Audit
// @Produce octet-stream
// @Param format query string true "csv or pdf"
// @Success 200 {file} file
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid audit query"))
		return
	}
	format := c.DefaultQuery("format", "csv")
	data, contentType, err := h.service.Export(c.Request.Context(), query, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("audit-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
