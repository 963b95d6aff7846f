package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/dto"
	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/internal/repository"
	"github.com/placementcell/placement-api/pkg/config"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

// Actor identifies the authenticated principal performing an operation,
// together with the request attributes recorded on audit events.
type Actor struct {
	ID         string
	Role       models.UserRole
	Department string
	IP         string
	UserAgent  string
}

type applicationStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	ExistsNonWithdrawn(ctx context.Context, studentID, jobID string) (bool, error)
	CountSubmittedSince(ctx context.Context, studentID string, since time.Time) (int, error)
	Submit(ctx context.Context, params repository.SubmitParams) error
	Transition(ctx context.Context, id string, fn repository.TransitionFunc) (*models.Application, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type jobReader interface {
	FindByID(ctx context.Context, id string) (*models.JobPosting, error)
}

type organizationReader interface {
	FindByID(ctx context.Context, id string) (*models.Organization, error)
}

type consentScopeReader interface {
	ListForScope(ctx context.Context, studentID string, scope models.ConsentScope) ([]models.Consent, error)
}

type reviewerDirectory interface {
	ListReviewerIDsByDepartment(ctx context.Context, department string) ([]string, error)
}

type policyReader interface {
	Get(ctx context.Context, key string) (*models.Policy, error)
}

// ApplicationService owns the application lifecycle: submission against the
// gatekeeping rules, two-tier review, withdrawal and reads.
type ApplicationService struct {
	applications applicationStore
	students     studentReader
	jobs         jobReader
	orgs         organizationReader
	consents     consentScopeReader
	reviewers    reviewerDirectory
	policies     policyReader
	cfg          config.PlacementConfig
	logger       *zap.Logger
	now          func() time.Time
}

// NewApplicationService constructs the service.
func NewApplicationService(
	applications applicationStore,
	students studentReader,
	jobs jobReader,
	orgs organizationReader,
	consents consentScopeReader,
	reviewers reviewerDirectory,
	policies policyReader,
	cfg config.PlacementConfig,
	logger *zap.Logger,
) *ApplicationService {
	return &ApplicationService{
		applications: applications,
		students:     students,
		jobs:         jobs,
		orgs:         orgs,
		consents:     consents,
		reviewers:    reviewers,
		policies:     policies,
		cfg:          cfg,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// policyInt resolves a runtime policy override, falling back to the
// configured default when no override row exists.
func (s *ApplicationService) policyInt(ctx context.Context, key string, fallback int) int {
	policy, err := s.policies.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("policy lookup failed", zap.String("key", key), zap.Error(err))
		}
		return fallback
	}
	v, err := strconv.Atoi(policy.Value)
	if err != nil {
		s.logger.Warn("policy value not an integer", zap.String("key", key), zap.String("value", policy.Value))
		return fallback
	}
	return v
}

func (s *ApplicationService) submissionCeiling(ctx context.Context) int {
	return s.policyInt(ctx, models.PolicySubmissionCeiling, s.cfg.SemesterSubmissionCeiling)
}

func (s *ApplicationService) consentTTL(ctx context.Context) time.Duration {
	hours := s.policyInt(ctx, models.PolicyConsentTTLHours, int(s.cfg.ConsentTTL.Hours()))
	return time.Duration(hours) * time.Hour
}

func (s *ApplicationService) evaluator(ctx context.Context) *EligibilityEvaluator {
	min := s.policyInt(ctx, models.PolicyMinProfileCompletion, s.cfg.MinProfileCompletion)
	return NewEligibilityEvaluator(EligibilityConfig{MinProfileCompletion: min})
}

// semesterStart returns the beginning of the half-year window the submission
// ceiling is counted over: January 1 for the spring term, July 1 for autumn.
func semesterStart(now time.Time) time.Time {
	year := now.Year()
	if now.Month() >= time.July {
		return time.Date(year, time.July, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

// CheckEligibility evaluates the student against a posting's criteria without
// submitting. All failed reasons are reported, not only the first.
func (s *ApplicationService) CheckEligibility(ctx context.Context, studentID, jobID string) (*models.EligibilityVerdict, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, fmt.Errorf("load student: %w", err)
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job posting not found")
		}
		return nil, fmt.Errorf("load job: %w", err)
	}
	verdict := s.evaluator(ctx).Evaluate(*student, job.Criteria())
	return &verdict, nil
}

// Submit runs the full gatekeeping sequence and, when every check passes,
// atomically creates the application, the implicit consent grant, the audit
// event and the department notification.
func (s *ApplicationService) Submit(ctx context.Context, actor Actor, req dto.SubmitApplicationRequest) (*models.Application, error) {
	now := s.now()

	student, err := s.students.FindByID(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, fmt.Errorf("load student: %w", err)
	}
	job, err := s.jobs.FindByID(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "job posting not found")
		}
		return nil, fmt.Errorf("load job: %w", err)
	}

	if job.Status != models.JobStatusActive {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job posting is not open for applications")
	}
	if !now.Before(job.ApplicationDeadline) {
		return nil, appErrors.ErrDeadlinePassed
	}

	org, err := s.orgs.FindByID(ctx, job.OrganizationID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	if org != nil && org.Status == models.OrganizationBlacklisted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job posting is not open for applications")
	}

	if !student.Verified {
		return nil, appErrors.ErrProfileUnverified
	}
	if student.ResumeID == nil || *student.ResumeID == "" {
		return nil, appErrors.ErrResumeMissing
	}

	verdict := s.evaluator(ctx).Evaluate(*student, job.Criteria())
	if !verdict.Eligible {
		return nil, appErrors.WithDetails(appErrors.ErrNotEligible, verdict.Reasons)
	}

	exists, err := s.applications.ExistsNonWithdrawn(ctx, student.ID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return nil, appErrors.ErrDuplicateApplication
	}

	ceiling := s.submissionCeiling(ctx)
	count, err := s.applications.CountSubmittedSince(ctx, student.ID, semesterStart(now))
	if err != nil {
		return nil, fmt.Errorf("count submissions: %w", err)
	}
	if count >= ceiling {
		return nil, appErrors.ErrQuotaExceeded
	}

	app := &models.Application{
		StudentID:   student.ID,
		JobID:       job.ID,
		ResumeID:    *student.ResumeID,
		Status:      models.ApplicationSubmitted,
		SubmittedAt: now,
	}
	if req.CoverLetter != "" {
		app.CoverLetter = &req.CoverLetter
	}

	consent, err := s.implicitConsent(ctx, student.ID, job, now)
	if err != nil {
		return nil, err
	}

	after, err := models.MarshalAuditPayload(models.AuditActionApplicationSubmit,
		models.NewApplicationAuditPayload(models.AuditActionApplicationSubmit, models.ApplicationAuditPayload{
			Status: models.ApplicationSubmitted,
		}))
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	audit := &models.AuditEvent{
		ActorID:   &actor.ID,
		Action:    models.AuditActionApplicationSubmit,
		Resource:  "application",
		After:     after,
		IPAddress: actor.IP,
		UserAgent: actor.UserAgent,
	}

	notification := s.deptNotification(ctx, student, job)

	params := repository.SubmitParams{
		Application:  app,
		Consent:      consent,
		Audit:        audit,
		Notification: notification,
	}
	if err := s.applications.Submit(ctx, params); err != nil {
		if errors.Is(err, repository.ErrDuplicateApplication) {
			return nil, appErrors.ErrDuplicateApplication
		}
		return nil, fmt.Errorf("submit application: %w", err)
	}

	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("student_id", student.ID),
		zap.String("job_id", job.ID))
	return app, nil
}

// implicitConsent returns the consent row to create alongside the
// application, or nil when an active grant already covers the posting.
func (s *ApplicationService) implicitConsent(ctx context.Context, studentID string, job *models.JobPosting, now time.Time) (*models.Consent, error) {
	scope := models.ConsentScope{JobID: job.ID, RecruiterID: job.RecruiterID}
	existing, err := s.consents.ListForScope(ctx, studentID, scope)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	for i := range existing {
		c := &existing[i]
		if c.Active(now) && c.Covers(scope, models.ConsentDataFields) {
			return nil, nil
		}
	}
	jobID := job.ID
	recruiterID := job.RecruiterID
	return &models.Consent{
		StudentID:   studentID,
		JobID:       &jobID,
		RecruiterID: &recruiterID,
		DataFields:  models.ConsentDataFields,
		GrantedAt:   now,
		ExpiresAt:   now.Add(s.consentTTL(ctx)),
	}, nil
}

// deptNotification builds the outbox row telling the department's reviewers
// about the new submission. A missing reviewer pool is not an error; the
// notification is simply skipped.
func (s *ApplicationService) deptNotification(ctx context.Context, student *models.Student, job *models.JobPosting) *models.Notification {
	reviewerIDs, err := s.reviewers.ListReviewerIDsByDepartment(ctx, student.Department)
	if err != nil {
		s.logger.Warn("reviewer lookup failed", zap.String("department", student.Department), zap.Error(err))
		return nil
	}
	if len(reviewerIDs) == 0 {
		return nil
	}
	return &models.Notification{
		RecipientIDs: reviewerIDs,
		Kind:         models.NotificationKindApplicationReceived,
		Subject:      "New application awaiting review",
		Body:         fmt.Sprintf("%s (%s) applied to %s", student.FullName, student.RollNo, job.Title),
	}
}

// ReviewByDepartment applies the department tier decision. The precondition
// and the status write happen against the same locked row.
func (s *ApplicationService) ReviewByDepartment(ctx context.Context, actor Actor, applicationID string, req dto.ReviewApplicationRequest) (*models.Application, error) {
	event, ok := req.Decision.DeptEvent()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review decision")
	}
	app, err := s.applications.Transition(ctx, applicationID, func(app *models.Application) (*models.AuditEvent, *models.Notification, error) {
		if !models.AwaitingDeptReview(app.Status) {
			return nil, nil, appErrors.ErrInvalidTransition
		}
		if actor.Department != "" {
			student, err := s.students.FindByID(ctx, app.StudentID)
			if err != nil {
				return nil, nil, fmt.Errorf("load student: %w", err)
			}
			if student.Department != actor.Department {
				return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another department")
			}
		}
		return s.applyReview(actor, app, app.Status, event, req.Note, reviewTierDept)
	})
	if err != nil {
		return nil, reviewErr(err, applicationID)
	}
	return app, nil
}

// ReviewByAdmin applies the administrative tier decision. An application that
// never cleared the department tier is rejected before any write.
func (s *ApplicationService) ReviewByAdmin(ctx context.Context, actor Actor, applicationID string, req dto.ReviewApplicationRequest) (*models.Application, error) {
	event, ok := req.Decision.AdminEvent()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review decision")
	}
	app, err := s.applications.Transition(ctx, applicationID, func(app *models.Application) (*models.AuditEvent, *models.Notification, error) {
		if !models.AwaitingAdminReview(app.Status) {
			return nil, nil, appErrors.ErrPriorStageIncomplete
		}
		return s.applyReview(actor, app, app.Status, event, req.Note, reviewTierAdmin)
	})
	if err != nil {
		return nil, reviewErr(err, applicationID)
	}
	return app, nil
}

type reviewTier int

const (
	reviewTierDept reviewTier = iota
	reviewTierAdmin
)

// applyReview mutates the locked application for a validated review event and
// builds the audit event plus the student-facing notification.
func (s *ApplicationService) applyReview(actor Actor, app *models.Application, from models.ApplicationStatus, event models.ApplicationEvent, note string, tier reviewTier) (*models.AuditEvent, *models.Notification, error) {
	next, ok := models.NextStatus(from, event)
	if !ok {
		return nil, nil, appErrors.ErrInvalidTransition
	}
	now := s.now()
	app.Status = next
	action := models.AuditActionDeptReview
	if tier == reviewTierDept {
		app.DeptReviewerID = &actor.ID
		app.DeptReviewedAt = &now
		if note != "" {
			app.DeptNotes = &note
		}
	} else {
		action = models.AuditActionAdminReview
		app.AdminReviewerID = &actor.ID
		app.AdminReviewedAt = &now
		if note != "" {
			app.AdminNotes = &note
		}
	}

	before, err := models.MarshalAuditPayload(action,
		models.NewApplicationAuditPayload(action, models.ApplicationAuditPayload{Status: from}))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	after, err := models.MarshalAuditPayload(action,
		models.NewApplicationAuditPayload(action, models.ApplicationAuditPayload{
			Status:     next,
			Event:      event,
			ReviewerID: actor.ID,
			Notes:      note,
		}))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	audit := &models.AuditEvent{
		ActorID:    &actor.ID,
		Action:     action,
		Resource:   "application",
		ResourceID: &app.ID,
		Before:     before,
		After:      after,
		IPAddress:  actor.IP,
		UserAgent:  actor.UserAgent,
	}

	notification := &models.Notification{
		RecipientIDs: []string{app.StudentID},
		Kind:         models.NotificationKindReviewDecision,
		Subject:      "Application status updated",
		Body:         fmt.Sprintf("Your application moved to %s", next),
	}
	return audit, notification, nil
}

// Withdraw lets the owning student pull a still-open application. The window
// closes permanently once the recruiter shortlists the candidate.
func (s *ApplicationService) Withdraw(ctx context.Context, actor Actor, applicationID string, req dto.WithdrawApplicationRequest) (*models.Application, error) {
	app, err := s.applications.Transition(ctx, applicationID, func(app *models.Application) (*models.AuditEvent, *models.Notification, error) {
		if app.StudentID != actor.ID {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "application belongs to another student")
		}
		from := app.Status
		next, ok := models.NextStatus(from, models.EventWithdraw)
		if !ok {
			return nil, nil, appErrors.ErrWithdrawalNotAllowed
		}
		now := s.now()
		app.Status = next
		app.WithdrawnAt = &now
		if req.Reason != "" {
			app.WithdrawReason = &req.Reason
		}

		before, err := models.MarshalAuditPayload(models.AuditActionApplicationWithdraw,
			models.NewApplicationAuditPayload(models.AuditActionApplicationWithdraw, models.ApplicationAuditPayload{Status: from}))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal audit payload: %w", err)
		}
		after, err := models.MarshalAuditPayload(models.AuditActionApplicationWithdraw,
			models.NewApplicationAuditPayload(models.AuditActionApplicationWithdraw, models.ApplicationAuditPayload{
				Status: next,
				Event:  models.EventWithdraw,
				Reason: req.Reason,
			}))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal audit payload: %w", err)
		}
		audit := &models.AuditEvent{
			ActorID:    &actor.ID,
			Action:     models.AuditActionApplicationWithdraw,
			Resource:   "application",
			ResourceID: &app.ID,
			Before:     before,
			After:      after,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
		}
		return audit, nil, nil
	})
	if err != nil {
		return nil, reviewErr(err, applicationID)
	}
	return app, nil
}

// GetByID returns one application, restricted to its owner for students.
func (s *ApplicationService) GetByID(ctx context.Context, actor Actor, id string) (*models.Application, error) {
	app, err := s.applications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, fmt.Errorf("load application: %w", err)
	}
	if actor.Role == models.RoleStudent && app.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	return app, nil
}

// List returns applications matching the filter. Students are pinned to their
// own records regardless of the requested filter.
func (s *ApplicationService) List(ctx context.Context, actor Actor, query dto.ApplicationQuery) ([]models.Application, int, error) {
	filter := models.ApplicationFilter{
		StudentID:  query.StudentID,
		JobID:      query.JobID,
		Department: query.Department,
		Page:       query.Page,
		PageSize:   query.PageSize,
	}
	if query.Status != "" {
		status, err := models.ParseApplicationStatus(query.Status)
		if err != nil {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "unknown application status")
		}
		filter.Status = status
	}
	if actor.Role == models.RoleStudent {
		filter.StudentID = actor.ID
	}
	if actor.Role == models.RoleDeptReviewer && actor.Department != "" {
		filter.Department = actor.Department
	}
	return s.applications.List(ctx, filter)
}

// reviewErr normalises transition errors: a missing row becomes 404, typed
// domain errors pass through untouched.
func reviewErr(err error, applicationID string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	var typed *appErrors.Error
	if errors.As(err, &typed) {
		return typed
	}
	return fmt.Errorf("transition application %s: %w", applicationID, err)
}
