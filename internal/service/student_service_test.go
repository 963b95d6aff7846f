package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/models"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type studentDirStub struct {
	students map[string]*models.Student
}

func (s *studentDirStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s.students[id]; ok {
		copy := *st
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *studentDirStub) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return nil, 0, nil
}

type consentGateStub struct {
	grant *models.Consent
	err   error
	scope models.ConsentScope
}

func (s *consentGateStub) ActiveGrant(ctx context.Context, studentID string, scope models.ConsentScope, fields []string) (*models.Consent, error) {
	s.scope = scope
	if s.err != nil {
		return nil, s.err
	}
	return s.grant, nil
}

type resumeLinkerStub struct{}

func (resumeLinkerStub) ResumeURL(resumeID string) (string, error) {
	return "/api/v1/documents/token-for-" + resumeID, nil
}

func newStudentFixture() (*StudentService, *consentGateStub, *auditWriterStub) {
	resumeID := "resume-1"
	students := &studentDirStub{students: map[string]*models.Student{
		"student-1": {
			ID:         "student-1",
			FullName:   "Asha Rao",
			Email:      "asha@example.edu",
			Phone:      "9999999999",
			Department: "CSE",
			CGPA:       8.4,
			ResumeID:   &resumeID,
		},
	}}
	gate := &consentGateStub{}
	audits := &auditWriterStub{}
	svc := NewStudentService(students, gate, audits, resumeLinkerStub{}, zap.NewNop())
	return svc, gate, audits
}

func TestStudentGetByIDSelfOnly(t *testing.T) {
	svc, _, _ := newStudentFixture()
	actor := Actor{ID: "student-2", Role: models.RoleStudent}

	_, err := svc.GetByID(context.Background(), actor, "student-1")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)

	self := Actor{ID: "student-1", Role: models.RoleStudent}
	student, err := svc.GetByID(context.Background(), self, "student-1")
	require.NoError(t, err)
	require.Equal(t, "Asha Rao", student.FullName)
}

func TestRecruiterViewProjectsConsentedFieldsOnly(t *testing.T) {
	svc, gate, audits := newStudentFixture()
	expires := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	gate.grant = &models.Consent{
		DataFields: []string{"full_name", "department", "resume"},
		ExpiresAt:  expires,
	}
	actor := Actor{ID: "recruiter-1", Role: models.RoleRecruiter}

	view, err := svc.RecruiterView(context.Background(), actor, "student-1", "job-1")
	require.NoError(t, err)
	require.Equal(t, "Asha Rao", view.FullName)
	require.Equal(t, "CSE", view.Department)
	require.Equal(t, "/api/v1/documents/token-for-resume-1", view.ResumeURL)
	require.Empty(t, view.Email)
	require.Empty(t, view.Phone)
	require.Nil(t, view.CGPA)
	require.Equal(t, expires.Format(time.RFC3339), view.ConsentExpires)

	require.Equal(t, models.ConsentScope{JobID: "job-1", RecruiterID: "recruiter-1"}, gate.scope)
	require.Len(t, audits.events, 1)
	require.Equal(t, models.AuditActionDataAccess, audits.events[0].Action)
}

func TestRecruiterViewBlockedWhenRevoked(t *testing.T) {
	svc, gate, _ := newStudentFixture()
	gate.err = appErrors.ErrConsentRevoked
	actor := Actor{ID: "recruiter-1", Role: models.RoleRecruiter}

	_, err := svc.RecruiterView(context.Background(), actor, "student-1", "job-1")
	require.ErrorIs(t, err, appErrors.ErrConsentRevoked)
}

func TestRecruiterViewFailsWhenAuditFails(t *testing.T) {
	svc, gate, audits := newStudentFixture()
	gate.grant = &models.Consent{DataFields: []string{"full_name"}, ExpiresAt: time.Now().Add(time.Hour)}
	audits.err = errors.New("audit store down")
	actor := Actor{ID: "recruiter-1", Role: models.RoleRecruiter}

	_, err := svc.RecruiterView(context.Background(), actor, "student-1", "job-1")
	require.Error(t, err)
}
