package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/repository"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

// The appliers below run inside the deciding transaction; all reads of the
// target use the same tx so the state checked is the state overwritten.

type orgTxStore interface {
	FindByIDIn(ctx context.Context, tx *sqlx.Tx, id string) (*models.Organization, error)
	SetStatusIn(ctx context.Context, tx *sqlx.Tx, id string, status models.OrganizationStatus, reason *string) error
}

// NewOrgBlacklistApplier moves the target organization to BLACKLISTED.
func NewOrgBlacklistApplier(orgs orgTxStore) ApprovalApplier {
	return ApprovalApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
		org, err := orgs.FindByIDIn(ctx, tx, request.ResourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "organization not found")
			}
			return fmt.Errorf("load organization: %w", err)
		}
		if org.Status == models.OrganizationBlacklisted {
			return appErrors.Clone(appErrors.ErrConflict, "organization is already blacklisted")
		}
		reason := request.Justification
		return orgs.SetStatusIn(ctx, tx, org.ID, models.OrganizationBlacklisted, &reason)
	})
}

type studentTxStore interface {
	FindByIDIn(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error)
	SetVerifiedIn(ctx context.Context, tx *sqlx.Tx, id string, verified bool) error
}

type verificationOverrideChange struct {
	Verified bool `json:"verified"`
}

// NewVerificationOverrideApplier forces the verification flag on a student
// profile to the proposed value.
func NewVerificationOverrideApplier(students studentTxStore) ApprovalApplier {
	return ApprovalApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
		var change verificationOverrideChange
		if err := json.Unmarshal(request.ProposedChange, &change); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "malformed verification override payload")
		}
		student, err := students.FindByIDIn(ctx, tx, request.ResourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return fmt.Errorf("load student: %w", err)
		}
		return students.SetVerifiedIn(ctx, tx, student.ID, change.Verified)
	})
}

type applicationTxStore interface {
	FindByIDIn(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error)
	SetStatusIn(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus) error
}

type decisionOverrideChange struct {
	Status string `json:"status"`
}

// NewDecisionOverrideApplier forces an application into the proposed status,
// bypassing the normal transition table. Reserved for correcting review
// mistakes; regular reviews must go through the lifecycle endpoints.
func NewDecisionOverrideApplier(applications applicationTxStore) ApprovalApplier {
	return ApprovalApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
		var change decisionOverrideChange
		if err := json.Unmarshal(request.ProposedChange, &change); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "malformed decision override payload")
		}
		status, err := models.ParseApplicationStatus(change.Status)
		if err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "unknown application status")
		}
		app, err := applications.FindByIDIn(ctx, tx, request.ResourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "application not found")
			}
			return fmt.Errorf("load application: %w", err)
		}
		if app.Status == status {
			return appErrors.Clone(appErrors.ErrConflict, "application already has the proposed status")
		}
		return applications.SetStatusIn(ctx, tx, app.ID, status)
	})
}

// NewOfferRescissionApplier withdraws an extended or accepted offer, moving
// the application to REJECTED_BY_RECRUITER.
func NewOfferRescissionApplier(applications applicationTxStore) ApprovalApplier {
	return ApprovalApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
		app, err := applications.FindByIDIn(ctx, tx, request.ResourceID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "application not found")
			}
			return fmt.Errorf("load application: %w", err)
		}
		if app.Status != models.ApplicationOffered && app.Status != models.ApplicationAccepted {
			return appErrors.Clone(appErrors.ErrConflict, "application holds no offer to rescind")
		}
		return applications.SetStatusIn(ctx, tx, app.ID, models.ApplicationRejectedByCompany)
	})
}

type bulkMutationChange struct {
	Entries []struct {
		ApplicationID string `json:"application_id"`
		Status        string `json:"status"`
	} `json:"entries"`
}

// NewBulkMutationApplier applies a batch of status overrides atomically. One
// bad entry aborts the whole batch together with the approval itself.
func NewBulkMutationApplier(applications applicationTxStore) ApprovalApplier {
	return ApprovalApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
		var change bulkMutationChange
		if err := json.Unmarshal(request.ProposedChange, &change); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "malformed bulk mutation payload")
		}
		if len(change.Entries) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "bulk mutation payload has no entries")
		}
		for _, entry := range change.Entries {
			status, err := models.ParseApplicationStatus(entry.Status)
			if err != nil {
				return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status for application %s", entry.ApplicationID))
			}
			if _, err := applications.FindByIDIn(ctx, tx, entry.ApplicationID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("application %s not found", entry.ApplicationID))
				}
				return fmt.Errorf("load application: %w", err)
			}
			if err := applications.SetStatusIn(ctx, tx, entry.ApplicationID, status); err != nil {
				return err
			}
		}
		return nil
	})
}

type policyTxStore interface {
	UpsertIn(ctx context.Context, tx *sqlx.Tx, policy *models.Policy) error
}

type policyChange struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewPolicyChangeApplier writes a runtime policy override. Only keys from the
// closed policy set are accepted.
func NewPolicyChangeApplier(policies policyTxStore) ApprovalApplier {
	return ApprovalApplierFunc(func(ctx context.Context, tx *sqlx.Tx, request *models.ApprovalRequest) error {
		var change policyChange
		if err := json.Unmarshal(request.ProposedChange, &change); err != nil {
			return appErrors.Clone(appErrors.ErrValidation, "malformed policy change payload")
		}
		if !models.ValidPolicyKey(change.Key) {
			return appErrors.Clone(appErrors.ErrValidation, "unknown policy key")
		}
		if change.Value == "" {
			return appErrors.Clone(appErrors.ErrValidation, "policy value must not be empty")
		}
		updatedBy := request.InitiatorID
		if request.ApproverID != nil {
			updatedBy = *request.ApproverID
		}
		return policies.UpsertIn(ctx, tx, &models.Policy{
			Key:       change.Key,
			Value:     change.Value,
			UpdatedBy: updatedBy,
		})
	})
}

// DefaultApprovalAppliers wires the full applier map from the concrete
// repositories.
func DefaultApprovalAppliers(
	orgs *repository.OrganizationRepository,
	students *repository.StudentRepository,
	applications *repository.ApplicationRepository,
	policies *repository.PolicyRepository,
) map[models.ApprovalRequestType]ApprovalApplier {
	return map[models.ApprovalRequestType]ApprovalApplier{
		models.ApprovalTypeOrgBlacklist:         NewOrgBlacklistApplier(orgs),
		models.ApprovalTypeVerificationOverride: NewVerificationOverrideApplier(students),
		models.ApprovalTypeDecisionOverride:     NewDecisionOverrideApplier(applications),
		models.ApprovalTypeOfferRescission:      NewOfferRescissionApplier(applications),
		models.ApprovalTypeBulkMutation:         NewBulkMutationApplier(applications),
		models.ApprovalTypePolicyChange:         NewPolicyChangeApplier(policies),
	}
}
