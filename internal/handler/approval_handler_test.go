package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/service"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type approvalServiceMock struct {
	createActor service.Actor
	createReq   dto.CreateApprovalRequest
	decideID    string
	decideReq   dto.DecideApprovalRequest
	decideErr   error
	request     *models.ApprovalRequest
}

func (m *approvalServiceMock) Create(ctx context.Context, actor service.Actor, req dto.CreateApprovalRequest) (*models.ApprovalRequest, error) {
	m.createActor = actor
	m.createReq = req
	return m.request, nil
}

func (m *approvalServiceMock) Decide(ctx context.Context, actor service.Actor, requestID string, req dto.DecideApprovalRequest) (*models.ApprovalRequest, error) {
	m.decideID = requestID
	m.decideReq = req
	if m.decideErr != nil {
		return nil, m.decideErr
	}
	return m.request, nil
}

func (m *approvalServiceMock) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	return m.request, nil
}

func (m *approvalServiceMock) List(ctx context.Context, query dto.ApprovalQuery) ([]models.ApprovalRequest, int, error) {
	return []models.ApprovalRequest{*m.request}, 1, nil
}

func (m *approvalServiceMock) Stats(ctx context.Context) (*models.ApprovalStats, error) {
	return &models.ApprovalStats{Pending: 2}, nil
}

func TestApprovalHandlerCreate(t *testing.T) {
	mock := &approvalServiceMock{request: &models.ApprovalRequest{ID: "req-1", Status: models.ApprovalStatusPending}}
	h := NewApprovalHandler(mock, service.NewMetricsService())

	c, w := newTestContext(t, http.MethodPost, "/approvals", dto.CreateApprovalRequest{
		Type:     models.ApprovalTypeOrgBlacklist,
		TargetID: "org-1",
		Reason:   "repeated ghosting of shortlisted students",
	})
	setClaims(c, "admin-1", models.RoleAdmin, "")

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "admin-1", mock.createActor.ID)
	require.Equal(t, models.ApprovalTypeOrgBlacklist, mock.createReq.Type)
}

func TestApprovalHandlerCreateRequiresReason(t *testing.T) {
	mock := &approvalServiceMock{}
	h := NewApprovalHandler(mock, service.NewMetricsService())

	c, w := newTestContext(t, http.MethodPost, "/approvals", dto.CreateApprovalRequest{
		Type:     models.ApprovalTypeOrgBlacklist,
		TargetID: "org-1",
	})
	setClaims(c, "admin-1", models.RoleAdmin, "")

	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Empty(t, mock.createActor.ID)
}

func TestApprovalHandlerDecide(t *testing.T) {
	mock := &approvalServiceMock{request: &models.ApprovalRequest{ID: "req-1", Status: models.ApprovalStatusApproved}}
	h := NewApprovalHandler(mock, service.NewMetricsService())

	c, w := newTestContext(t, http.MethodPost, "/approvals/req-1/decide",
		dto.DecideApprovalRequest{Approve: true, Note: "confirmed with the recruiter"})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, "admin-2", models.RoleAdmin, "")

	h.Decide(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "req-1", mock.decideID)
	require.True(t, mock.decideReq.Approve)
}

func TestApprovalHandlerDecideMapsSelfApproval(t *testing.T) {
	mock := &approvalServiceMock{decideErr: appErrors.ErrSelfApprovalForbidden}
	h := NewApprovalHandler(mock, service.NewMetricsService())

	c, w := newTestContext(t, http.MethodPost, "/approvals/req-1/decide",
		dto.DecideApprovalRequest{Approve: true})
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	setClaims(c, "admin-1", models.RoleAdmin, "")

	h.Decide(c)
	require.Equal(t, http.StatusForbidden, w.Code)

	var envelope struct {
		Error *appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, appErrors.ErrSelfApprovalForbidden.Code, envelope.Error.Code)
}

func TestApprovalHandlerStats(t *testing.T) {
	mock := &approvalServiceMock{request: &models.ApprovalRequest{ID: "req-1"}}
	h := NewApprovalHandler(mock, service.NewMetricsService())

	c, w := newTestContext(t, http.MethodGet, "/approvals/stats", nil)
	setClaims(c, "admin-1", models.RoleAdmin, "")

	h.Stats(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.ApprovalStats `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, 2, envelope.Data.Pending)
}
