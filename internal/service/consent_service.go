package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type consentStore interface {
	Create(ctx context.Context, consent *models.Consent, audit *models.AuditEvent) error
	FindByID(ctx context.Context, id string) (*models.Consent, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Consent, error)
	ListForScope(ctx context.Context, studentID string, scope models.ConsentScope) ([]models.Consent, error)
	Revoke(ctx context.Context, id string, reason *string, revokedAt time.Time, audit *models.AuditEvent) (*models.Consent, bool, error)
}

type auditWriter interface {
	Create(ctx context.Context, event *models.AuditEvent) error
}

// ConsentService owns the consent ledger: grants, revocations and the access
// check the recruiter-facing reads depend on. Audit events ride along into
// the repository so they commit with the grant or revocation they describe.
type ConsentService struct {
	consents consentStore
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewConsentService constructs the service.
func NewConsentService(consents consentStore, ttl time.Duration, logger *zap.Logger) *ConsentService {
	return &ConsentService{
		consents: consents,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Grant records a data-sharing consent. When an active grant with a scope at
// least as broad already exists, that grant is returned unchanged instead of
// stacking a duplicate.
func (s *ConsentService) Grant(ctx context.Context, actor Actor, req dto.GrantConsentRequest) (*models.Consent, error) {
	now := s.now()
	fields := req.DataFields
	if len(fields) == 0 {
		fields = models.ConsentDataFields
	}
	scope := models.ConsentScope{JobID: req.JobID, RecruiterID: req.RecruiterID}

	existing, err := s.consents.ListForScope(ctx, actor.ID, scope)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	for i := range existing {
		c := &existing[i]
		if c.Active(now) && c.Covers(scope, fields) {
			return c, nil
		}
	}

	consent := &models.Consent{
		StudentID:  actor.ID,
		DataFields: fields,
		GrantedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if req.JobID != "" {
		jobID := req.JobID
		consent.JobID = &jobID
	}
	if req.RecruiterID != "" {
		recruiterID := req.RecruiterID
		consent.RecruiterID = &recruiterID
	}
	audit, err := s.grantAudit(actor, consent)
	if err != nil {
		return nil, err
	}
	if err := s.consents.Create(ctx, consent, audit); err != nil {
		return nil, fmt.Errorf("create consent: %w", err)
	}

	s.logger.Info("consent granted",
		zap.String("consent_id", consent.ID),
		zap.String("student_id", actor.ID))
	return consent, nil
}

// grantAudit builds the CONSENT_GRANTED event. The repository links it to
// the grant row once the ID is assigned.
func (s *ConsentService) grantAudit(actor Actor, consent *models.Consent) (*models.AuditEvent, error) {
	payload := models.ConsentAuditPayload{
		DataFields: consent.DataFields,
		ExpiresAt:  consent.ExpiresAt,
	}
	if consent.JobID != nil {
		payload.JobID = *consent.JobID
	}
	if consent.RecruiterID != nil {
		payload.RecruiterID = *consent.RecruiterID
	}
	after, err := models.MarshalAuditPayload(models.AuditActionConsentGrant,
		models.NewConsentAuditPayload(models.AuditActionConsentGrant, payload))
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionConsentGrant,
		Resource:  "consent",
		After:     after,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}, nil
}

// Revoke marks the grant revoked. Revocation is irreversible and immediate;
// re-granting requires a new record. A second revoke returns ALREADY_REVOKED
// without touching the row.
func (s *ConsentService) Revoke(ctx context.Context, actor Actor, consentID string, req dto.RevokeConsentRequest) (*models.Consent, error) {
	now := s.now()
	current, err := s.consents.FindByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consent not found")
		}
		return nil, fmt.Errorf("load consent: %w", err)
	}
	if actor.Role == models.RoleStudent && current.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "consent not found")
	}

	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	after, err := models.MarshalAuditPayload(models.AuditActionConsentRevoke,
		models.NewConsentAuditPayload(models.AuditActionConsentRevoke, models.ConsentAuditPayload{
			Revoked: true,
			Reason:  req.Reason,
		}))
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	audit := &models.AuditEvent{
		ActorID:    &actor.ID,
		Action:     models.AuditActionConsentRevoke,
		Resource:   "consent",
		ResourceID: &consentID,
		After:      after,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}

	consent, alreadyRevoked, err := s.consents.Revoke(ctx, consentID, reason, now, audit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consent not found")
		}
		return nil, fmt.Errorf("revoke consent: %w", err)
	}
	if alreadyRevoked {
		return nil, appErrors.ErrAlreadyRevoked
	}

	s.logger.Info("consent revoked",
		zap.String("consent_id", consentID),
		zap.String("student_id", consent.StudentID))
	return consent, nil
}

// ListByStudent returns the student's grants, optionally only the active ones.
func (s *ConsentService) ListByStudent(ctx context.Context, studentID string, activeOnly bool) ([]models.Consent, error) {
	consents, err := s.consents.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	if !activeOnly {
		return consents, nil
	}
	now := s.now()
	active := consents[:0]
	for i := range consents {
		if consents[i].Active(now) {
			active = append(active, consents[i])
		}
	}
	return active, nil
}

// ActiveGrant returns the grant authorizing the requested scope and fields,
// re-checked at call time. A revoked grant yields CONSENT_REVOKED even when
// the scope would otherwise match; no grant at all yields CONSENT_NOT_FOUND.
func (s *ConsentService) ActiveGrant(ctx context.Context, studentID string, scope models.ConsentScope, fields []string) (*models.Consent, error) {
	consents, err := s.consents.ListForScope(ctx, studentID, scope)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	now := s.now()
	revokedMatch := false
	for i := range consents {
		c := &consents[i]
		if !c.Covers(scope, fields) {
			continue
		}
		if c.Active(now) {
			return c, nil
		}
		if c.Revoked {
			revokedMatch = true
		}
	}
	if revokedMatch {
		return nil, appErrors.ErrConsentRevoked
	}
	return nil, appErrors.ErrConsentNotFound
}
