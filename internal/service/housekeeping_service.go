package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/pkg/config"
)

type housekeepingApplicationStore interface {
	ExpireOffers(ctx context.Context, now time.Time) (int64, error)
	ListStaleAwaitingReview(ctx context.Context, cutoff time.Time) ([]models.Application, error)
}

type housekeepingApprovalStore interface {
	ListStalePending(ctx context.Context, cutoff time.Time) ([]models.ApprovalRequest, error)
}

type notificationCreator interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type housekeepingDirectory interface {
	ListIDsByRoles(ctx context.Context, roles ...models.UserRole) ([]string, error)
	ListReviewerIDsByDepartment(ctx context.Context, department string) ([]string, error)
}

// HousekeepingService runs the periodic freshness sweep: expiring lapsed
// offers and reminding reviewers about stale queues. Every write is
// idempotent, so overlapping or repeated runs cause no duplicate effects.
type HousekeepingService struct {
	applications  housekeepingApplicationStore
	approvals     housekeepingApprovalStore
	students      studentReader
	notifications notificationCreator
	directory     housekeepingDirectory
	cfg           config.HousekeepingConfig
	logger        *zap.Logger
	now           func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewHousekeepingService constructs the service.
func NewHousekeepingService(
	applications housekeepingApplicationStore,
	approvals housekeepingApprovalStore,
	students studentReader,
	notifications notificationCreator,
	directory housekeepingDirectory,
	cfg config.HousekeepingConfig,
	logger *zap.Logger,
) *HousekeepingService {
	return &HousekeepingService{
		applications:  applications,
		approvals:     approvals,
		students:      students,
		notifications: notifications,
		directory:     directory,
		cfg:           cfg,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the sweep loop.
func (s *HousekeepingService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.loop(loopCtx)
}

// Stop halts the sweep loop.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	stopped := s.stopped
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

func (s *HousekeepingService) loop(ctx context.Context) {
	defer close(s.stopped)
	interval := s.cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full sweep. Each step is independent; a failure in
// one is logged and does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	now := s.now()

	expired, err := s.applications.ExpireOffers(ctx, now)
	if err != nil {
		s.logger.Error("offer expiry sweep failed", zap.Error(err))
	} else if expired > 0 {
		s.logger.Info("offers expired", zap.Int64("count", expired))
	}

	if err := s.remindStaleReviews(ctx, now); err != nil {
		s.logger.Error("review reminder sweep failed", zap.Error(err))
	}
	if err := s.remindStaleApprovals(ctx, now); err != nil {
		s.logger.Error("approval reminder sweep failed", zap.Error(err))
	}
}

// remindStaleReviews nudges the tier that owns each application sitting in a
// reviewable state past the reminder age. The dedupe key keeps one reminder
// per application per day no matter how often the sweep runs.
func (s *HousekeepingService) remindStaleReviews(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.cfg.ReviewReminderAge)
	stale, err := s.applications.ListStaleAwaitingReview(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale applications: %w", err)
	}
	day := now.Format("2006-01-02")
	for i := range stale {
		app := &stale[i]
		recipients, err := s.reviewRecipients(ctx, app)
		if err != nil {
			s.logger.Warn("reminder recipient lookup failed", zap.String("application_id", app.ID), zap.Error(err))
			continue
		}
		if len(recipients) == 0 {
			continue
		}
		dedupe := fmt.Sprintf("review-reminder:%s:%s", app.ID, day)
		notification := &models.Notification{
			RecipientIDs: recipients,
			Kind:         models.NotificationKindReviewReminder,
			Subject:      "Application awaiting review",
			Body:         fmt.Sprintf("Application %s has been awaiting review since %s", app.ID, app.UpdatedAt.Format("2006-01-02")),
			DedupeKey:    &dedupe,
		}
		if err := s.notifications.Create(ctx, notification); err != nil {
			s.logger.Warn("reminder enqueue failed", zap.String("application_id", app.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *HousekeepingService) reviewRecipients(ctx context.Context, app *models.Application) ([]string, error) {
	if models.AwaitingAdminReview(app.Status) {
		return s.directory.ListIDsByRoles(ctx, models.RoleAdmin)
	}
	student, err := s.students.FindByID(ctx, app.StudentID)
	if err != nil {
		return nil, fmt.Errorf("load student: %w", err)
	}
	return s.directory.ListReviewerIDsByDepartment(ctx, student.Department)
}

// remindStaleApprovals nudges the approver pool about dual-control requests
// left pending past the reminder age.
func (s *HousekeepingService) remindStaleApprovals(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.cfg.ReviewReminderAge)
	stale, err := s.approvals.ListStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale approvals: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	approvers, err := s.directory.ListIDsByRoles(ctx, models.ApproverRoles...)
	if err != nil {
		return fmt.Errorf("list approvers: %w", err)
	}
	day := now.Format("2006-01-02")
	for i := range stale {
		request := &stale[i]
		recipients := make([]string, 0, len(approvers))
		for _, id := range approvers {
			if id != request.InitiatorID {
				recipients = append(recipients, id)
			}
		}
		if len(recipients) == 0 {
			continue
		}
		dedupe := fmt.Sprintf("approval-reminder:%s:%s", request.ID, day)
		notification := &models.Notification{
			RecipientIDs: recipients,
			Kind:         models.NotificationKindApprovalRequested,
			Subject:      "Approval request still pending",
			Body:         fmt.Sprintf("%s request %s has been pending since %s", request.Type, request.ID, request.CreatedAt.Format("2006-01-02")),
			DedupeKey:    &dedupe,
		}
		if err := s.notifications.Create(ctx, notification); err != nil {
			s.logger.Warn("approval reminder enqueue failed", zap.String("request_id", request.ID), zap.Error(err))
		}
	}
	return nil
}
