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

type applicationService interface {
	Submit(ctx context.Context, actor service.Actor, req dto.SubmitApplicationRequest) (*models.Application, error)
	ReviewByDepartment(ctx context.Context, actor service.Actor, applicationID string, req dto.ReviewApplicationRequest) (*models.Application, error)
	ReviewByAdmin(ctx context.Context, actor service.Actor, applicationID string, req dto.ReviewApplicationRequest) (*models.Application, error)
	Withdraw(ctx context.Context, actor service.Actor, applicationID string, req dto.WithdrawApplicationRequest) (*models.Application, error)
	GetByID(ctx context.Context, actor service.Actor, id string) (*models.Application, error)
	List(ctx context.Context, actor service.Actor, query dto.ApplicationQuery) ([]models.Application, int, error)
	CheckEligibility(ctx context.Context, studentID, jobID string) (*models.EligibilityVerdict, error)
}

// ApplicationHandler exposes the application lifecycle endpoints.
type ApplicationHandler struct {
	service applicationService
	metrics *service.MetricsService
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(svc applicationService, metrics *service.MetricsService) *ApplicationHandler {
	return &ApplicationHandler{service: svc, metrics: metrics}
}

// Submit godoc
// @Summary Submit an application to a job posting
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.service.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordApplicationSubmitted()
	response.Created(c, app)
}

// CheckEligibility godoc
// @Summary Evaluate eligibility against a posting without applying
// @Tags Applications
// @Produce json
// @Param jobId query string true "Job posting ID"
// @Success 200 {object} response.Envelope
// @Router /applications/eligibility [get]
func (h *ApplicationHandler) CheckEligibility(c *gin.Context) {
	var query dto.EligibilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid eligibility query"))
		return
	}
	actor := actorFromContext(c)
	verdict, err := h.service.CheckEligibility(c.Request.Context(), actor.ID, query.JobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, verdict, nil)
}

// ReviewByDepartment godoc
// @Summary Record the department tier review decision
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReviewApplicationRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/review/department [post]
func (h *ApplicationHandler) ReviewByDepartment(c *gin.Context) {
	var req dto.ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	app, err := h.service.ReviewByDepartment(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if event, ok := req.Decision.DeptEvent(); ok {
		h.metrics.RecordApplicationTransition(event)
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// ReviewByAdmin godoc
// @Summary Record the placement office review decision
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReviewApplicationRequest true "Review decision"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/review/admin [post]
func (h *ApplicationHandler) ReviewByAdmin(c *gin.Context) {
	var req dto.ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	app, err := h.service.ReviewByAdmin(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if event, ok := req.Decision.AdminEvent(); ok {
		h.metrics.RecordApplicationTransition(event)
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Withdraw godoc
// @Summary Withdraw an open application
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.WithdrawApplicationRequest true "Withdrawal reason"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/withdraw [post]
func (h *ApplicationHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid withdrawal payload"))
		return
	}
	app, err := h.service.Withdraw(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordApplicationTransition(models.EventWithdraw)
	response.JSON(c, http.StatusOK, app, nil)
}

// Get godoc
// @Summary Get one application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.GetByID(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param status query string false "Status filter"
// @Param jobId query string false "Job posting filter"
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	var query dto.ApplicationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application query"))
		return
	}
	apps, total, err := h.service.List(c.Request.Context(), actorFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, apps, pagination)
}
