package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/service"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
	"github.com/placementcell/placement-api/pkg/response"
)

type studentService interface {
	GetByID(ctx context.Context, actor service.Actor, id string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	RecruiterView(ctx context.Context, actor service.Actor, studentID, jobID string) (*models.RecruiterStudentView, error)
}

// StudentHandler exposes student profile endpoints.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler builds a new handler.
func NewStudentHandler(svc studentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// Get godoc
// @Summary Get a student profile
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.service.GetByID(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Param search query string false "Name or roll number search"
// @Param department query string false "Department filter"
// @Param verified query bool false "Verification filter"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Search:     c.Query("search"),
		Department: c.Query("department"),
	}
	if raw := c.Query("verified"); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "verified must be a boolean"))
			return
		}
		filter.Verified = &verified
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	students, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, students, pagination)
}

// RecruiterView godoc
// @Summary Consent-gated student projection for recruiters
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param jobId query string true "Job posting ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/recruiter-view [get]
func (h *StudentHandler) RecruiterView(c *gin.Context) {
	jobID := c.Query("jobId")
	if jobID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "jobId is required"))
		return
	}
	view, err := h.service.RecruiterView(c.Request.Context(), actorFromContext(c), c.Param("id"), jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}
