package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/repository"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type approvalStore interface {
	Create(ctx context.Context, request *models.ApprovalRequest, audit *models.AuditEvent, notification *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, int, error)
	Stats(ctx context.Context) (*models.ApprovalStats, error)
	Decide(ctx context.Context, id string, fn repository.DecideFunc) (*models.ApprovalRequest, error)
}

type approverDirectory interface {
	ListIDsByRoles(ctx context.Context, roles ...models.UserRole) ([]string, error)
}

// ApprovalApplier executes the proposed change of an approved request inside
// the deciding transaction. A returned error rolls back the decision itself,
// so a request never reads APPROVED with its change unapplied.
type ApprovalApplier interface {
	Apply(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error
}

// ApprovalApplierFunc allows using plain functions.
type ApprovalApplierFunc func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error

// Apply implements ApprovalApplier.
func (f ApprovalApplierFunc) Apply(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
	return f(ctx, tx, request)
}

// ApprovalService orchestrates dual-control requests: sensitive actions are
// proposed by one privileged user and take effect only when a different
// authorizer approves.
type ApprovalService struct {
	approvals approvalStore
	approvers approverDirectory
	appliers  map[models.ApprovalRequestType]ApprovalApplier
	logger    *zap.Logger
	now       func() time.Time
}

// NewApprovalService constructs the service with its applier map.
func NewApprovalService(approvals approvalStore, approvers approverDirectory, appliers map[models.ApprovalRequestType]ApprovalApplier, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		approvals: approvals,
		approvers: approvers,
		appliers:  appliers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// resourceTypes maps a request type to the resource it targets.
var resourceTypes = map[models.ApprovalRequestType]string{
	models.ApprovalTypeOrgBlacklist:         "organization",
	models.ApprovalTypeVerificationOverride: "student",
	models.ApprovalTypeDecisionOverride:     "application",
	models.ApprovalTypeOfferRescission:      "application",
	models.ApprovalTypeBulkMutation:         "application",
	models.ApprovalTypePolicyChange:         "policy",
}

// Create records a pending dual-control request. No side effect on the target
// happens here; the proposed change is applied only on approval.
func (s *ApprovalService) Create(ctx context.Context, actor Actor, req dto.CreateApprovalRequest) (*models.ApprovalRequest, error) {
	if !models.ValidApprovalType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown approval request type")
	}
	if _, ok := s.appliers[req.Type]; !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approval request type not enabled")
	}

	request := &models.ApprovalRequest{
		Type:           req.Type,
		ResourceType:   resourceTypes[req.Type],
		ResourceID:     req.TargetID,
		InitiatorID:    actor.ID,
		Justification:  req.Reason,
		ProposedChange: req.Payload,
		Status:         models.ApprovalStatusPending,
	}

	after, err := models.MarshalAuditPayload(models.AuditActionApprovalCreate,
		models.NewApprovalAuditPayload(models.AuditActionApprovalCreate, models.ApprovalAuditPayload{
			Type:          req.Type,
			Status:        models.ApprovalStatusPending,
			InitiatorID:   actor.ID,
			Justification: req.Reason,
		}))
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	audit := &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionApprovalCreate,
		Resource:  "approval_request",
		After:     after,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}

	notification := s.approverNotification(ctx, actor, request)

	if err := s.approvals.Create(ctx, request, audit, notification); err != nil {
		return nil, fmt.Errorf("create approval request: %w", err)
	}

	s.logger.Info("approval request created",
		zap.String("request_id", request.ID),
		zap.String("type", string(request.Type)),
		zap.String("initiator_id", actor.ID))
	return request, nil
}

// approverNotification targets every user holding the approver capability
// except the initiator, who cannot decide the request anyway.
func (s *ApprovalService) approverNotification(ctx context.Context, actor Actor, request *models.ApprovalRequest) *models.Notification {
	ids, err := s.approvers.ListIDsByRoles(ctx, models.ApproverRoles...)
	if err != nil {
		s.logger.Warn("approver lookup failed", zap.Error(err))
		return nil
	}
	recipients := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != actor.ID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return nil
	}
	return &models.Notification{
		RecipientIDs: recipients,
		Kind:         models.NotificationKindApprovalRequested,
		Subject:      "Approval request pending",
		Body:         fmt.Sprintf("%s request on %s awaits a decision", request.Type, request.ResourceType),
	}
}

// Decide approves or rejects a pending request. The self-approval check, the
// status flip and, on approval, the applier all run against the same locked
// row; any applier failure rolls the whole decision back.
func (s *ApprovalService) Decide(ctx context.Context, actor Actor, requestID string, req dto.DecideApprovalRequest) (*models.ApprovalRequest, error) {
	request, err := s.approvals.Decide(ctx, requestID, func(tx *sqlx.Tx, request *models.ApprovalRequest) (*models.AuditEvent, *models.Notification, error) {
		if request.Status != models.ApprovalStatusPending {
			return nil, nil, appErrors.ErrRequestNotPending
		}
		if request.InitiatorID == actor.ID {
			return nil, nil, appErrors.ErrSelfApprovalForbidden
		}

		now := s.now()
		status := models.ApprovalStatusRejected
		if req.Approve {
			status = models.ApprovalStatusApproved
		}
		request.Status = status
		request.ApproverID = &actor.ID
		request.DecidedAt = &now
		if req.Note != "" {
			request.DecisionNotes = &req.Note
		}

		if req.Approve {
			applier, ok := s.appliers[request.Type]
			if !ok {
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, "approval request type not enabled")
			}
			if err := applier.Apply(ctx, tx, request); err != nil {
				return nil, nil, err
			}
		}

		after, err := models.MarshalAuditPayload(models.AuditActionApprovalDecide,
			models.NewApprovalAuditPayload(models.AuditActionApprovalDecide, models.ApprovalAuditPayload{
				Type:        request.Type,
				Status:      status,
				InitiatorID: request.InitiatorID,
				ApproverID:  actor.ID,
				Notes:       req.Note,
			}))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal audit payload: %w", err)
		}
		audit := &models.AuditEvent{
			ActorID:    &actor.ID,
			Action:     models.AuditActionApprovalDecide,
			Resource:   "approval_request",
			ResourceID: &request.ID,
			After:      after,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
		}
		notification := &models.Notification{
			RecipientIDs: []string{request.InitiatorID},
			Kind:         models.NotificationKindApprovalDecided,
			Subject:      "Approval request decided",
			Body:         fmt.Sprintf("Your %s request was %s", request.Type, status),
		}
		return audit, notification, nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		var typed *appErrors.Error
		if errors.As(err, &typed) {
			return nil, typed
		}
		return nil, fmt.Errorf("decide approval request %s: %w", requestID, err)
	}

	s.logger.Info("approval request decided",
		zap.String("request_id", requestID),
		zap.String("status", string(request.Status)),
		zap.String("approver_id", actor.ID))
	return request, nil
}

// GetByID returns one request.
func (s *ApprovalService) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	request, err := s.approvals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "approval request not found")
		}
		return nil, fmt.Errorf("load approval request: %w", err)
	}
	return request, nil
}

// List returns requests matching the filter.
func (s *ApprovalService) List(ctx context.Context, query dto.ApprovalQuery) ([]models.ApprovalRequest, int, error) {
	filter := models.ApprovalFilter{
		Type:        models.ApprovalRequestType(query.Type),
		InitiatorID: query.RequesterID,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	if query.Status != "" {
		filter.Status = []models.ApprovalStatus{models.ApprovalStatus(query.Status)}
	}
	return s.approvals.List(ctx, filter)
}

// Stats returns the pending/approved/rejected counts.
func (s *ApprovalService) Stats(ctx context.Context) (*models.ApprovalStats, error) {
	return s.approvals.Stats(ctx)
}
