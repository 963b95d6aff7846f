package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/pkg/config"
)

type housekeepingAppStub struct {
	expired int64
	stale   []models.Application
}

func (s *housekeepingAppStub) ExpireOffers(ctx context.Context, now time.Time) (int64, error) {
	return s.expired, nil
}

func (s *housekeepingAppStub) ListStaleAwaitingReview(ctx context.Context, cutoff time.Time) ([]models.Application, error) {
	return s.stale, nil
}

type housekeepingApprovalStub struct {
	stale []models.ApprovalRequest
}

func (s *housekeepingApprovalStub) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.ApprovalRequest, error) {
	return s.stale, nil
}

type notificationCreatorStub struct {
	created []*models.Notification
}

func (s *notificationCreatorStub) Create(ctx context.Context, notification *models.Notification) error {
	s.created = append(s.created, notification)
	return nil
}

type housekeepingDirStub struct {
	admins    []string
	reviewers []string
}

func (s *housekeepingDirStub) ListIDsByRoles(ctx context.Context, roles ...models.UserRole) ([]string, error) {
	return s.admins, nil
}

func (s *housekeepingDirStub) ListReviewerIDsByDepartment(ctx context.Context, department string) ([]string, error) {
	return s.reviewers, nil
}

func newHousekeepingFixture() (*HousekeepingService, *housekeepingAppStub, *housekeepingApprovalStub, *notificationCreatorStub) {
	apps := &housekeepingAppStub{}
	approvals := &housekeepingApprovalStub{}
	outbox := &notificationCreatorStub{}
	students := &studentReaderStub{students: map[string]*models.Student{
		"student-1": {ID: "student-1", Department: "CSE"},
	}}
	svc := NewHousekeepingService(apps, approvals, students, outbox,
		&housekeepingDirStub{admins: []string{"admin-1"}, reviewers: []string{"reviewer-1"}},
		config.HousekeepingConfig{ReviewReminderAge: 72 * time.Hour},
		zap.NewNop(),
	)
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return svc, apps, approvals, outbox
}

func TestHousekeepingRemindersCarryDailyDedupeKey(t *testing.T) {
	svc, apps, _, outbox := newHousekeepingFixture()
	apps.stale = []models.Application{
		{ID: "app-1", StudentID: "student-1", Status: models.ApplicationSubmitted},
	}

	svc.RunOnce(context.Background())
	require.Len(t, outbox.created, 1)
	require.Equal(t, models.NotificationKindReviewReminder, outbox.created[0].Kind)
	require.Equal(t, "review-reminder:app-1:2026-03-10", *outbox.created[0].DedupeKey)
	require.EqualValues(t, []string{"reviewer-1"}, outbox.created[0].RecipientIDs)
}

func TestHousekeepingAdminTierReminderTargetsAdmins(t *testing.T) {
	svc, apps, _, outbox := newHousekeepingFixture()
	apps.stale = []models.Application{
		{ID: "app-1", StudentID: "student-1", Status: models.ApplicationApprovedByDept},
	}

	svc.RunOnce(context.Background())
	require.Len(t, outbox.created, 1)
	require.EqualValues(t, []string{"admin-1"}, outbox.created[0].RecipientIDs)
}

func TestHousekeepingApprovalReminderSkipsInitiator(t *testing.T) {
	svc, _, approvals, outbox := newHousekeepingFixture()
	approvals.stale = []models.ApprovalRequest{
		{ID: "request-1", Type: models.ApprovalTypeOrgBlacklist, InitiatorID: "admin-1", Status: models.ApprovalStatusPending},
	}

	svc.RunOnce(context.Background())
	require.Empty(t, outbox.created)
}

func TestHousekeepingRunOnceIsQuietWhenNothingStale(t *testing.T) {
	svc, _, _, outbox := newHousekeepingFixture()

	svc.RunOnce(context.Background())
	require.Empty(t, outbox.created)
}
