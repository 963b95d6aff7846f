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

type consentService interface {
	Grant(ctx context.Context, actor service.Actor, req dto.GrantConsentRequest) (*models.Consent, error)
	Revoke(ctx context.Context, actor service.Actor, consentID string, req dto.RevokeConsentRequest) (*models.Consent, error)
	ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Consent, error)
}

// ConsentHandler exposes the consent ledger endpoints.
type ConsentHandler struct {
	service consentService
	metrics *service.MetricsService
}

// NewConsentHandler builds a new handler.
func NewConsentHandler(svc consentService, metrics *service.MetricsService) *ConsentHandler {
	return &ConsentHandler{service: svc, metrics: metrics}
}

// Grant godoc
// @Summary Grant a data-sharing consent
// @Tags Consents
// @Accept json
// @Produce json
// @Param payload body dto.GrantConsentRequest true "Consent payload"
// @Success 201 {object} response.Envelope
// @Router /consents [post]
func (h *ConsentHandler) Grant(c *gin.Context) {
	var req dto.GrantConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid consent payload"))
		return
	}
	consent, err := h.service.Grant(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, consent)
}

// Revoke godoc
// @Summary Revoke a consent
// @Tags Consents
// @Accept json
// @Produce json
// @Param id path string true "Consent ID"
// @Param payload body dto.RevokeConsentRequest true "Revocation reason"
// @Success 200 {object} response.Envelope
// @Router /consents/{id}/revoke [post]
func (h *ConsentHandler) Revoke(c *gin.Context) {
	var req dto.RevokeConsentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid revocation payload"))
		return
	}
	consent, err := h.service.Revoke(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordConsentRevoked()
	response.JSON(c, http.StatusOK, consent, nil)
}

// ListMine godoc
// @Summary List the calling student's consents
// @Tags Consents
// @Produce json
// @Param activeOnly query bool false "Only active grants"
// @Success 200 {object} response.Envelope
// @Router /consents [get]
func (h *ConsentHandler) ListMine(c *gin.Context) {
	var query dto.ConsentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid consent query"))
		return
	}
	actor := actorFromContext(c)
	consents, err := h.service.ListByStudent(c.Request.Context(), actor.ID, query.ActiveOnly)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, consents, nil)
}
