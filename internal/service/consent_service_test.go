package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type consentStoreStub struct {
	consents  map[string]*models.Consent
	created   []*models.Consent
	audits    []*models.AuditEvent
	createErr error
	nextID    int
}

func newConsentStoreStub() *consentStoreStub {
	return &consentStoreStub{consents: make(map[string]*models.Consent)}
}

func (s *consentStoreStub) Create(ctx context.Context, consent *models.Consent, audit *models.AuditEvent) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	consent.ID = "consent-" + string(rune('0'+s.nextID))
	if audit != nil && audit.ResourceID == nil {
		audit.ResourceID = &consent.ID
	}
	copy := *consent
	s.consents[consent.ID] = &copy
	s.created = append(s.created, &copy)
	if audit != nil {
		s.audits = append(s.audits, audit)
	}
	return nil
}

func (s *consentStoreStub) FindByID(ctx context.Context, id string) (*models.Consent, error) {
	if c, ok := s.consents[id]; ok {
		copy := *c
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *consentStoreStub) ListByStudent(ctx context.Context, studentID string) ([]models.Consent, error) {
	var result []models.Consent
	for _, c := range s.consents {
		if c.StudentID == studentID {
			result = append(result, *c)
		}
	}
	return result, nil
}

func (s *consentStoreStub) ListForScope(ctx context.Context, studentID string, scope models.ConsentScope) ([]models.Consent, error) {
	return s.ListByStudent(ctx, studentID)
}

func (s *consentStoreStub) Revoke(ctx context.Context, id string, reason *string, revokedAt time.Time, audit *models.AuditEvent) (*models.Consent, bool, error) {
	c, ok := s.consents[id]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	if c.Revoked {
		return nil, true, nil
	}
	c.Revoked = true
	c.RevokedAt = &revokedAt
	c.RevokeReason = reason
	copy := *c
	return &copy, false, nil
}

type auditWriterStub struct {
	events []*models.AuditEvent
	err    error
}

func (s *auditWriterStub) Create(ctx context.Context, event *models.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func newConsentFixture() (*ConsentService, *consentStoreStub, time.Time) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	store := newConsentStoreStub()
	svc := NewConsentService(store, 48*time.Hour, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc, store, now
}

func consentActor() Actor {
	return Actor{ID: "student-1", Role: models.RoleStudent}
}

func TestConsentGrantCreatesRecordAndAudit(t *testing.T) {
	svc, store, now := newConsentFixture()

	consent, err := svc.Grant(context.Background(), consentActor(), dto.GrantConsentRequest{
		JobID:       "job-1",
		RecruiterID: "recruiter-1",
	})
	require.NoError(t, err)
	require.EqualValues(t, models.ConsentDataFields, consent.DataFields)
	require.Equal(t, now.Add(48*time.Hour), consent.ExpiresAt)
	require.Len(t, store.created, 1)
	require.Len(t, store.audits, 1)
	require.Equal(t, models.AuditActionConsentGrant, store.audits[0].Action)
	require.Equal(t, consent.ID, *store.audits[0].ResourceID)
}

func TestConsentGrantFailsWhenStoreRejects(t *testing.T) {
	svc, store, _ := newConsentFixture()
	store.createErr = errors.New("audit write rejected")

	_, err := svc.Grant(context.Background(), consentActor(), dto.GrantConsentRequest{
		JobID: "job-1",
	})
	require.Error(t, err)
	require.Empty(t, store.created)
	require.Empty(t, store.audits)
}

func TestConsentGrantIdempotentForCoveredScope(t *testing.T) {
	svc, store, now := newConsentFixture()
	jobID := "job-1"
	recruiterID := "recruiter-1"
	store.consents["consent-0"] = &models.Consent{
		ID:          "consent-0",
		StudentID:   "student-1",
		JobID:       &jobID,
		RecruiterID: &recruiterID,
		DataFields:  models.ConsentDataFields,
		GrantedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(time.Hour),
	}

	consent, err := svc.Grant(context.Background(), consentActor(), dto.GrantConsentRequest{
		JobID:       "job-1",
		RecruiterID: "recruiter-1",
	})
	require.NoError(t, err)
	require.Equal(t, "consent-0", consent.ID)
	require.Empty(t, store.created)
}

func TestConsentRevokeIsIrreversible(t *testing.T) {
	svc, store, now := newConsentFixture()
	store.consents["consent-1"] = &models.Consent{
		ID:        "consent-1",
		StudentID: "student-1",
		GrantedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}

	consent, err := svc.Revoke(context.Background(), consentActor(), "consent-1", dto.RevokeConsentRequest{Reason: "changed my mind"})
	require.NoError(t, err)
	require.True(t, consent.Revoked)
	require.Equal(t, now, *consent.RevokedAt)

	_, err = svc.Revoke(context.Background(), consentActor(), "consent-1", dto.RevokeConsentRequest{})
	require.ErrorIs(t, err, appErrors.ErrAlreadyRevoked)
}

func TestConsentRevokeOtherStudentMasked(t *testing.T) {
	svc, store, now := newConsentFixture()
	store.consents["consent-1"] = &models.Consent{
		ID:        "consent-1",
		StudentID: "student-2",
		GrantedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}

	_, err := svc.Revoke(context.Background(), consentActor(), "consent-1", dto.RevokeConsentRequest{})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestActiveGrantDistinguishesRevokedFromMissing(t *testing.T) {
	svc, store, now := newConsentFixture()
	jobID := "job-1"
	recruiterID := "recruiter-1"
	revokedAt := now.Add(-time.Minute)
	store.consents["consent-1"] = &models.Consent{
		ID:          "consent-1",
		StudentID:   "student-1",
		JobID:       &jobID,
		RecruiterID: &recruiterID,
		DataFields:  models.ConsentDataFields,
		GrantedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(time.Hour),
		Revoked:     true,
		RevokedAt:   &revokedAt,
	}
	scope := models.ConsentScope{JobID: "job-1", RecruiterID: "recruiter-1"}

	_, err := svc.ActiveGrant(context.Background(), "student-1", scope, models.ConsentDataFields)
	require.ErrorIs(t, err, appErrors.ErrConsentRevoked)

	_, err = svc.ActiveGrant(context.Background(), "student-9", scope, models.ConsentDataFields)
	require.ErrorIs(t, err, appErrors.ErrConsentNotFound)
}

func TestActiveGrantExpiredIsMissing(t *testing.T) {
	svc, store, now := newConsentFixture()
	jobID := "job-1"
	recruiterID := "recruiter-1"
	store.consents["consent-1"] = &models.Consent{
		ID:          "consent-1",
		StudentID:   "student-1",
		JobID:       &jobID,
		RecruiterID: &recruiterID,
		DataFields:  models.ConsentDataFields,
		GrantedAt:   now.Add(-48 * time.Hour),
		ExpiresAt:   now.Add(-time.Hour),
	}
	scope := models.ConsentScope{JobID: "job-1", RecruiterID: "recruiter-1"}

	_, err := svc.ActiveGrant(context.Background(), "student-1", scope, models.ConsentDataFields)
	require.ErrorIs(t, err, appErrors.ErrConsentNotFound)
}

func TestConsentListActiveOnly(t *testing.T) {
	svc, store, now := newConsentFixture()
	store.consents["consent-1"] = &models.Consent{
		ID: "consent-1", StudentID: "student-1",
		GrantedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour),
	}
	store.consents["consent-2"] = &models.Consent{
		ID: "consent-2", StudentID: "student-1",
		GrantedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}

	active, err := svc.ListByStudent(context.Background(), "student-1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "consent-1", active[0].ID)
}
