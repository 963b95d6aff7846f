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
	"github.com/placementcell/placement-api/internal/repository"
	"github.com/placementcell/placement-api/pkg/config"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type appStoreStub struct {
	apps       map[string]*models.Application
	exists     bool
	count      int
	submitted  *repository.SubmitParams
	submitErr  error
	lastFilter models.ApplicationFilter
}

func newAppStoreStub() *appStoreStub {
	return &appStoreStub{apps: make(map[string]*models.Application)}
}

func (s *appStoreStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	if app, ok := s.apps[id]; ok {
		copy := *app
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *appStoreStub) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	s.lastFilter = filter
	return nil, 0, nil
}

func (s *appStoreStub) ExistsNonWithdrawn(ctx context.Context, studentID, jobID string) (bool, error) {
	return s.exists, nil
}

func (s *appStoreStub) CountSubmittedSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	return s.count, nil
}

func (s *appStoreStub) Submit(ctx context.Context, params repository.SubmitParams) error {
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = &params
	params.Application.ID = "app-1"
	return nil
}

func (s *appStoreStub) Transition(ctx context.Context, id string, fn repository.TransitionFunc) (*models.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := *app
	if _, _, err := fn(&working); err != nil {
		return nil, err
	}
	s.apps[id] = &working
	result := working
	return &result, nil
}

type studentReaderStub struct {
	students map[string]*models.Student
}

func (s *studentReaderStub) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if st, ok := s.students[id]; ok {
		copy := *st
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type jobReaderStub struct {
	jobs map[string]*models.JobPosting
}

func (s *jobReaderStub) FindByID(ctx context.Context, id string) (*models.JobPosting, error) {
	if j, ok := s.jobs[id]; ok {
		copy := *j
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type orgReaderStub struct {
	orgs map[string]*models.Organization
}

func (s *orgReaderStub) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	if o, ok := s.orgs[id]; ok {
		copy := *o
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

type consentScopeStub struct {
	consents []models.Consent
}

func (s *consentScopeStub) ListForScope(ctx context.Context, studentID string, scope models.ConsentScope) ([]models.Consent, error) {
	return s.consents, nil
}

type reviewerDirStub struct {
	ids []string
}

func (s *reviewerDirStub) ListReviewerIDsByDepartment(ctx context.Context, department string) ([]string, error) {
	return s.ids, nil
}

type policyReaderStub struct {
	values map[string]string
}

func (s *policyReaderStub) Get(ctx context.Context, key string) (*models.Policy, error) {
	if v, ok := s.values[key]; ok {
		return &models.Policy{Key: key, Value: v}, nil
	}
	return nil, sql.ErrNoRows
}

type appFixture struct {
	svc      *ApplicationService
	apps     *appStoreStub
	students *studentReaderStub
	jobs     *jobReaderStub
	orgs     *orgReaderStub
	consents *consentScopeStub
	policies *policyReaderStub
	now      time.Time
}

func newAppFixture() *appFixture {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	resumeID := "resume-1"
	f := &appFixture{
		apps: newAppStoreStub(),
		students: &studentReaderStub{students: map[string]*models.Student{
			"student-1": {
				ID:                "student-1",
				RollNo:            "21CS001",
				FullName:          "Asha Rao",
				Department:        "CSE",
				CGPA:              8.4,
				GraduationYear:    2026,
				Verified:          true,
				ProfileCompletion: 95,
				ResumeID:          &resumeID,
			},
		}},
		jobs: &jobReaderStub{jobs: map[string]*models.JobPosting{
			"job-1": {
				ID:                  "job-1",
				OrganizationID:      "org-1",
				RecruiterID:         "recruiter-1",
				Title:               "Backend Engineer",
				Status:              models.JobStatusActive,
				MinCGPA:             7.0,
				ApplicationDeadline: now.Add(48 * time.Hour),
			},
		}},
		orgs: &orgReaderStub{orgs: map[string]*models.Organization{
			"org-1": {ID: "org-1", Status: models.OrganizationActive},
		}},
		consents: &consentScopeStub{},
		policies: &policyReaderStub{values: map[string]string{}},
		now:      now,
	}
	f.svc = NewApplicationService(
		f.apps, f.students, f.jobs, f.orgs, f.consents, &reviewerDirStub{ids: []string{"reviewer-1"}}, f.policies,
		config.PlacementConfig{SemesterSubmissionCeiling: 5, ConsentTTL: 24 * time.Hour, MinProfileCompletion: 80},
		zap.NewNop(),
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func studentActor() Actor {
	return Actor{ID: "student-1", Role: models.RoleStudent, IP: "10.0.0.1"}
}

func TestSubmitCreatesApplicationWithConsent(t *testing.T) {
	f := newAppFixture()

	app, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationSubmitted, app.Status)
	require.Equal(t, "resume-1", app.ResumeID)

	require.NotNil(t, f.apps.submitted)
	require.NotNil(t, f.apps.submitted.Consent)
	require.Equal(t, f.now.Add(24*time.Hour), f.apps.submitted.Consent.ExpiresAt)
	require.Equal(t, models.AuditActionApplicationSubmit, f.apps.submitted.Audit.Action)
	require.EqualValues(t, []string{"reviewer-1"}, f.apps.submitted.Notification.RecipientIDs)
}

func TestSubmitSkipsConsentWhenAlreadyCovered(t *testing.T) {
	f := newAppFixture()
	jobID := "job-1"
	recruiterID := "recruiter-1"
	f.consents.consents = []models.Consent{{
		StudentID:   "student-1",
		JobID:       &jobID,
		RecruiterID: &recruiterID,
		DataFields:  models.ConsentDataFields,
		GrantedAt:   f.now.Add(-time.Hour),
		ExpiresAt:   f.now.Add(time.Hour),
	}}

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.NoError(t, err)
	require.Nil(t, f.apps.submitted.Consent)
}

func TestSubmitClosedJobMaskedAsNotFound(t *testing.T) {
	f := newAppFixture()
	f.jobs.jobs["job-1"].Status = models.JobStatusClosed

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestSubmitBlacklistedOrgMaskedAsNotFound(t *testing.T) {
	f := newAppFixture()
	f.orgs.orgs["org-1"].Status = models.OrganizationBlacklisted

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestSubmitDeadlinePassed(t *testing.T) {
	f := newAppFixture()
	f.jobs.jobs["job-1"].ApplicationDeadline = f.now.Add(-time.Minute)

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrDeadlinePassed)
}

func TestSubmitUnverifiedProfile(t *testing.T) {
	f := newAppFixture()
	f.students.students["student-1"].Verified = false

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrProfileUnverified)
}

func TestSubmitResumeMissing(t *testing.T) {
	f := newAppFixture()
	f.students.students["student-1"].ResumeID = nil

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrResumeMissing)
}

func TestSubmitNotEligibleCarriesReasons(t *testing.T) {
	f := newAppFixture()
	f.students.students["student-1"].CGPA = 6.1
	f.students.students["student-1"].ActiveBacklogs = 2
	f.jobs.jobs["job-1"].MaxBacklogs = 0

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotEligible.Code, typed.Code)
	require.Equal(t, []models.EligibilityReason{
		models.ReasonCGPALow,
		models.ReasonBacklogExceeded,
	}, typed.Details)
}

func TestSubmitDuplicateApplication(t *testing.T) {
	f := newAppFixture()
	f.apps.exists = true

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrDuplicateApplication)
}

func TestSubmitDuplicateRaceFromIndex(t *testing.T) {
	f := newAppFixture()
	f.apps.submitErr = repository.ErrDuplicateApplication

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrDuplicateApplication)
}

func TestSubmitQuotaExceeded(t *testing.T) {
	f := newAppFixture()
	f.apps.count = 5

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrQuotaExceeded)
}

func TestSubmitQuotaPolicyOverride(t *testing.T) {
	f := newAppFixture()
	f.policies.values[models.PolicySubmissionCeiling] = "1"
	f.apps.count = 1

	_, err := f.svc.Submit(context.Background(), studentActor(), dto.SubmitApplicationRequest{JobID: "job-1"})
	require.ErrorIs(t, err, appErrors.ErrQuotaExceeded)
}

func TestReviewByDepartmentApprove(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationSubmitted}
	actor := Actor{ID: "reviewer-1", Role: models.RoleDeptReviewer, Department: "CSE"}

	app, err := f.svc.ReviewByDepartment(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionApprove, Note: "strong profile"})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationApprovedByDept, app.Status)
	require.Equal(t, "reviewer-1", *app.DeptReviewerID)
	require.Equal(t, f.now, *app.DeptReviewedAt)
	require.Equal(t, "strong profile", *app.DeptNotes)
}

func TestReviewByDepartmentWrongState(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationApprovedByDept}
	actor := Actor{ID: "reviewer-1", Role: models.RoleDeptReviewer, Department: "CSE"}

	_, err := f.svc.ReviewByDepartment(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionApprove})
	require.ErrorIs(t, err, appErrors.ErrInvalidTransition)
}

func TestReviewByDepartmentOtherDepartment(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationSubmitted}
	actor := Actor{ID: "reviewer-2", Role: models.RoleDeptReviewer, Department: "MECH"}

	_, err := f.svc.ReviewByDepartment(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionApprove})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrForbidden.Code, typed.Code)
}

func TestReviewByAdminRequiresDeptApproval(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationSubmitted}
	actor := Actor{ID: "admin-1", Role: models.RoleAdmin}

	_, err := f.svc.ReviewByAdmin(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionApprove})
	require.ErrorIs(t, err, appErrors.ErrPriorStageIncomplete)
}

func TestReviewByAdminForwards(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationApprovedByDept}
	actor := Actor{ID: "admin-1", Role: models.RoleAdmin}

	app, err := f.svc.ReviewByAdmin(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationForwarded, app.Status)
	require.Equal(t, "admin-1", *app.AdminReviewerID)
}

func TestReviewHoldCanBeRedecided(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationSubmitted}
	actor := Actor{ID: "reviewer-1", Role: models.RoleDeptReviewer, Department: "CSE"}

	app, err := f.svc.ReviewByDepartment(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionHold})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationOnHoldDept, app.Status)

	app, err = f.svc.ReviewByDepartment(context.Background(), actor, "app-1", dto.ReviewApplicationRequest{Decision: models.DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationApprovedByDept, app.Status)
}

func TestWithdrawOpenApplication(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationApprovedByDept}

	app, err := f.svc.Withdraw(context.Background(), studentActor(), "app-1", dto.WithdrawApplicationRequest{Reason: "accepted elsewhere"})
	require.NoError(t, err)
	require.Equal(t, models.ApplicationWithdrawn, app.Status)
	require.Equal(t, f.now, *app.WithdrawnAt)
	require.Equal(t, "accepted elsewhere", *app.WithdrawReason)
}

func TestWithdrawClosedAfterShortlist(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-1", Status: models.ApplicationShortlisted}

	_, err := f.svc.Withdraw(context.Background(), studentActor(), "app-1", dto.WithdrawApplicationRequest{})
	require.ErrorIs(t, err, appErrors.ErrWithdrawalNotAllowed)
}

func TestWithdrawOtherStudentForbidden(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-2", Status: models.ApplicationSubmitted}

	_, err := f.svc.Withdraw(context.Background(), studentActor(), "app-1", dto.WithdrawApplicationRequest{})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrForbidden.Code, typed.Code)
}

func TestGetByIDMasksOtherStudents(t *testing.T) {
	f := newAppFixture()
	f.apps.apps["app-1"] = &models.Application{ID: "app-1", StudentID: "student-2", Status: models.ApplicationSubmitted}

	_, err := f.svc.GetByID(context.Background(), studentActor(), "app-1")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
}

func TestListPinsStudentsToOwnRecords(t *testing.T) {
	f := newAppFixture()

	_, _, err := f.svc.List(context.Background(), studentActor(), dto.ApplicationQuery{StudentID: "student-2"})
	require.NoError(t, err)
	require.Equal(t, "student-1", f.apps.lastFilter.StudentID)
}

func TestListPinsReviewersToDepartment(t *testing.T) {
	f := newAppFixture()
	actor := Actor{ID: "reviewer-1", Role: models.RoleDeptReviewer, Department: "CSE"}

	_, _, err := f.svc.List(context.Background(), actor, dto.ApplicationQuery{Department: "MECH"})
	require.NoError(t, err)
	require.Equal(t, "CSE", f.apps.lastFilter.Department)
}

func TestSemesterStart(t *testing.T) {
	spring := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), semesterStart(spring))

	autumn := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC), semesterStart(autumn))
}

func TestCheckEligibilityUnknownJob(t *testing.T) {
	f := newAppFixture()

	_, err := f.svc.CheckEligibility(context.Background(), "student-1", "missing")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
	require.False(t, errors.Is(err, sql.ErrNoRows))
}
