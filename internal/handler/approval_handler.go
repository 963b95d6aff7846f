package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/service"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
	"github.com/placementcell/placement-api/pkg/response"
)

type approvalService interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateApprovalRequest) (*models.ApprovalRequest, error)
	Decide(ctx context.Context, actor service.Actor, requestID string, req dto.DecideApprovalRequest) (*models.ApprovalRequest, error)
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, query dto.ApprovalQuery) ([]models.ApprovalRequest, int, error)
	Stats(ctx context.Context) (*models.ApprovalStats, error)
}

// ApprovalHandler exposes the dual-control endpoints.
type ApprovalHandler struct {
	service approvalService
	metrics *service.MetricsService
}

// NewApprovalHandler builds a new handler.
func NewApprovalHandler(svc approvalService, metrics *service.MetricsService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, metrics: metrics}
}

// Create godoc
// @Summary Propose a sensitive action for dual-control approval
// @Tags Approvals
// @Accept json
// @Produce json
// @Param payload body dto.CreateApprovalRequest true "Approval request payload"
// @Success 201 {object} response.Envelope
// @Router /approvals [post]
func (h *ApprovalHandler) Create(c *gin.Context) {
	var req dto.CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
		return
	}
	request, err := h.service.Create(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Decide godoc
// @Summary Approve or reject a pending request
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Approval request ID"
// @Param payload body dto.DecideApprovalRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id}/decide [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	var req dto.DecideApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	request, err := h.service.Decide(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordApprovalDecided(request.Status)
	response.JSON(c, http.StatusOK, request, nil)
}

// Get godoc
// @Summary Get one approval request
// @Tags Approvals
// @Produce json
// @Param id path string true "Approval request ID"
// @Success 200 {object} response.Envelope
// @Router /approvals/{id} [get]
func (h *ApprovalHandler) Get(c *gin.Context) {
	request, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// List godoc
// @Summary List approval requests
// @Tags Approvals
// @Produce json
// @Param status query string false "Status filter"
// @Param type query string false "Type filter"
// @Success 200 {object} response.Envelope
// @Router /approvals [get]
func (h *ApprovalHandler) List(c *gin.Context) {
	var query dto.ApprovalQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval query"))
		return
	}
	requests, total, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Stats godoc
// @Summary Approval workload counts
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/stats [get]
func (h *ApprovalHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
