package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/repository"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type approvalStoreStub struct {
	requests     map[string]*models.ApprovalRequest
	created      *models.ApprovalRequest
	notification *models.Notification
}

func newApprovalStoreStub() *approvalStoreStub {
	return &approvalStoreStub{requests: make(map[string]*models.ApprovalRequest)}
}

func (s *approvalStoreStub) Create(ctx context.Context, request *models.ApprovalRequest, audit *models.AuditEvent, notification *models.Notification) error {
	request.ID = "request-1"
	s.created = request
	s.notification = notification
	copy := *request
	s.requests[request.ID] = &copy
	return nil
}

func (s *approvalStoreStub) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	if r, ok := s.requests[id]; ok {
		copy := *r
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *approvalStoreStub) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, int, error) {
	return nil, 0, nil
}

func (s *approvalStoreStub) Stats(ctx context.Context) (*models.ApprovalStats, error) {
	return &models.ApprovalStats{}, nil
}

func (s *approvalStoreStub) Decide(ctx context.Context, id string, fn repository.DecideFunc) (*models.ApprovalRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := *r
	if _, _, err := fn(nil, &working); err != nil {
		return nil, err
	}
	s.requests[id] = &working
	result := working
	return &result, nil
}

type approverDirStub struct {
	ids []string
}

func (s *approverDirStub) ListIDsByRoles(ctx context.Context, roles ...models.UserRole) ([]string, error) {
	return s.ids, nil
}

type recordingApplier struct {
	applied []*models.ApprovalRequest
	err     error
}

func (a *recordingApplier) Apply(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, request)
	return nil
}

func newApprovalFixture() (*ApprovalService, *approvalStoreStub, *recordingApplier) {
	store := newApprovalStoreStub()
	applier := &recordingApplier{}
	appliers := map[models.ApprovalRequestType]ApprovalApplier{
		models.ApprovalTypeOrgBlacklist: applier,
	}
	svc := NewApprovalService(store, &approverDirStub{ids: []string{"admin-1", "admin-2"}}, appliers, zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return svc, store, applier
}

func TestApprovalCreatePendingRequest(t *testing.T) {
	svc, store, _ := newApprovalFixture()
	actor := Actor{ID: "admin-1", Role: models.RoleAdmin}

	request, err := svc.Create(context.Background(), actor, dto.CreateApprovalRequest{
		Type:     models.ApprovalTypeOrgBlacklist,
		TargetID: "org-1",
		Reason:   "repeated offer rescissions",
		Payload:  json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusPending, request.Status)
	require.Equal(t, "organization", request.ResourceType)

	require.NotNil(t, store.notification)
	require.EqualValues(t, []string{"admin-2"}, store.notification.RecipientIDs)
}

func TestApprovalCreateUnknownType(t *testing.T) {
	svc, _, _ := newApprovalFixture()
	actor := Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.Create(context.Background(), actor, dto.CreateApprovalRequest{Type: "MAKE_COFFEE", TargetID: "x", Reason: "r"})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrValidation.Code, typed.Code)
}

func TestApprovalDecideSelfApprovalForbidden(t *testing.T) {
	svc, store, _ := newApprovalFixture()
	store.requests["request-1"] = &models.ApprovalRequest{
		ID:          "request-1",
		Type:        models.ApprovalTypeOrgBlacklist,
		InitiatorID: "admin-1",
		Status:      models.ApprovalStatusPending,
	}
	actor := Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := svc.Decide(context.Background(), actor, "request-1", dto.DecideApprovalRequest{Approve: true})
	require.ErrorIs(t, err, appErrors.ErrSelfApprovalForbidden)
}

func TestApprovalDecideAlreadyDecided(t *testing.T) {
	svc, store, _ := newApprovalFixture()
	store.requests["request-1"] = &models.ApprovalRequest{
		ID:          "request-1",
		Type:        models.ApprovalTypeOrgBlacklist,
		InitiatorID: "admin-1",
		Status:      models.ApprovalStatusApproved,
	}
	actor := Actor{ID: "admin-2", Role: models.RoleAdmin}

	_, err := svc.Decide(context.Background(), actor, "request-1", dto.DecideApprovalRequest{Approve: false})
	require.ErrorIs(t, err, appErrors.ErrRequestNotPending)
}

func TestApprovalDecideApproveRunsApplier(t *testing.T) {
	svc, store, applier := newApprovalFixture()
	store.requests["request-1"] = &models.ApprovalRequest{
		ID:          "request-1",
		Type:        models.ApprovalTypeOrgBlacklist,
		InitiatorID: "admin-1",
		Status:      models.ApprovalStatusPending,
	}
	actor := Actor{ID: "admin-2", Role: models.RoleAdmin}

	request, err := svc.Decide(context.Background(), actor, "request-1", dto.DecideApprovalRequest{Approve: true, Note: "verified the case"})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusApproved, request.Status)
	require.Equal(t, "admin-2", *request.ApproverID)
	require.Equal(t, "verified the case", *request.DecisionNotes)
	require.Len(t, applier.applied, 1)
}

func TestApprovalDecideApplierFailureRollsBack(t *testing.T) {
	svc, store, applier := newApprovalFixture()
	applier.err = errors.New("target row gone")
	store.requests["request-1"] = &models.ApprovalRequest{
		ID:          "request-1",
		Type:        models.ApprovalTypeOrgBlacklist,
		InitiatorID: "admin-1",
		Status:      models.ApprovalStatusPending,
	}
	actor := Actor{ID: "admin-2", Role: models.RoleAdmin}

	_, err := svc.Decide(context.Background(), actor, "request-1", dto.DecideApprovalRequest{Approve: true})
	require.Error(t, err)

	current, getErr := svc.GetByID(context.Background(), "request-1")
	require.NoError(t, getErr)
	require.Equal(t, models.ApprovalStatusPending, current.Status)
}

func TestApprovalDecideRejectSkipsApplier(t *testing.T) {
	svc, store, applier := newApprovalFixture()
	store.requests["request-1"] = &models.ApprovalRequest{
		ID:          "request-1",
		Type:        models.ApprovalTypeOrgBlacklist,
		InitiatorID: "admin-1",
		Status:      models.ApprovalStatusPending,
	}
	actor := Actor{ID: "admin-2", Role: models.RoleAdmin}

	request, err := svc.Decide(context.Background(), actor, "request-1", dto.DecideApprovalRequest{Approve: false})
	require.NoError(t, err)
	require.Equal(t, models.ApprovalStatusRejected, request.Status)
	require.Empty(t, applier.applied)
}
