package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/models"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
}

type consentGate interface {
	ActiveGrant(ctx context.Context, studentID string, scope models.ConsentScope, fields []string) (*models.Consent, error)
}

type resumeLinker interface {
	ResumeURL(resumeID string) (string, error)
}

// StudentService serves student profiles: plain reads for office staff and
// the consent-gated projection for recruiters.
type StudentService struct {
	students studentDirectory
	consents consentGate
	audits   auditWriter
	resumes  resumeLinker
	logger   *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(students studentDirectory, consents consentGate, audits auditWriter, resumes resumeLinker, logger *zap.Logger) *StudentService {
	return &StudentService{
		students: students,
		consents: consents,
		audits:   audits,
		resumes:  resumes,
		logger:   logger,
	}
}

// GetByID returns the full profile for office staff, or the student's own.
func (s *StudentService) GetByID(ctx context.Context, actor Actor, id string) (*models.Student, error) {
	if actor.Role == models.RoleStudent && actor.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("load student: %w", err)
	}
	return student, nil
}

// List returns students matching the filter. Staff only.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	return s.students.List(ctx, filter)
}

// RecruiterView returns the consent-gated projection of a student for the
// calling recruiter in the context of one posting. Consent is re-checked on
// every call; a grant revoked a second ago already blocks this read. Each
// successful view is recorded in the audit trail.
func (s *StudentService) RecruiterView(ctx context.Context, actor Actor, studentID, jobID string) (*models.RecruiterStudentView, error) {
	scope := models.ConsentScope{JobID: jobID, RecruiterID: actor.ID}
	grant, err := s.consents.ActiveGrant(ctx, studentID, scope, nil)
	if err != nil {
		return nil, err
	}

	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("load student: %w", err)
	}

	view := s.project(student, grant)

	after, err := models.MarshalAuditPayload(models.AuditActionDataAccess, &models.DataAccessAuditPayload{
		StudentID:   studentID,
		JobID:       jobID,
		RecruiterID: actor.ID,
		Fields:      view.SharedFields,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	audit := &models.AuditEvent{
		ActorID:    &actor.ID,
		Action:     models.AuditActionDataAccess,
		Resource:   "student",
		ResourceID: &studentID,
		After:      after,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}
	if err := s.audits.Create(ctx, audit); err != nil {
		return nil, fmt.Errorf("record data access: %w", err)
	}

	return view, nil
}

// project copies only the consented fields onto the recruiter view.
func (s *StudentService) project(student *models.Student, grant *models.Consent) *models.RecruiterStudentView {
	view := &models.RecruiterStudentView{
		StudentID:      student.ID,
		SharedFields:   []string(grant.DataFields),
		ConsentExpires: grant.ExpiresAt.Format(time.RFC3339),
	}
	for _, field := range grant.DataFields {
		switch field {
		case "full_name":
			view.FullName = student.FullName
		case "email":
			view.Email = student.Email
		case "phone":
			view.Phone = student.Phone
		case "department":
			view.Department = student.Department
		case "cgpa":
			cgpa := student.CGPA
			view.CGPA = &cgpa
		case "resume":
			if student.ResumeID == nil || *student.ResumeID == "" {
				continue
			}
			url, err := s.resumes.ResumeURL(*student.ResumeID)
			if err != nil {
				s.logger.Warn("resume link failed", zap.String("resume_id", *student.ResumeID), zap.Error(err))
				continue
			}
			view.ResumeURL = url
		}
	}
	return view
}
