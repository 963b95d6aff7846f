package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/placementcell/placement-api/internal/models"
	"github.com/placementcell/placement-api/pkg/config"
	"github.com/placementcell/placement-api/pkg/jobs"
)

type notificationStore interface {
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	FetchPending(ctx context.Context, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, id string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string, exhausted bool) error
}

// Dispatcher delivers a notification to the outside world (mail gateway,
// push relay). The core only records outcomes; delivery is fire-and-forget.
type Dispatcher interface {
	Dispatch(ctx context.Context, notification *models.Notification) error
}

// LogDispatcher writes notifications to the structured log instead of an
// external channel. Used in development and as the default wiring.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher constructs the log-only dispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(_ context.Context, notification *models.Notification) error {
	d.logger.Info("notification dispatched",
		zap.String("notification_id", notification.ID),
		zap.String("kind", notification.Kind),
		zap.Int("recipients", len(notification.RecipientIDs)),
		zap.String("subject", notification.Subject))
	return nil
}

// NotificationService drains the outbox: a pump periodically fetches PENDING
// rows and hands them to a worker pool, which dispatches and records the
// outcome. Re-enqueueing a row already in flight is harmless because the
// handler re-reads the row's status first.
type NotificationService struct {
	notifications notificationStore
	dispatcher    Dispatcher
	queue         *jobs.Queue
	cfg           config.NotificationsConfig
	logger        *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(notifications notificationStore, dispatcher Dispatcher, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	s := &NotificationService{
		notifications: notifications,
		dispatcher:    dispatcher,
		cfg:           cfg,
		logger:        logger,
	}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: 1,
		Logger:     logger,
	})
	return s
}

// Start launches the workers and the outbox pump.
func (s *NotificationService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.queue.Start(pumpCtx)
	go s.pump(pumpCtx)
}

// Stop halts the pump and drains the workers.
func (s *NotificationService) Stop() {
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
	s.queue.Stop()
}

func (s *NotificationService) pump(ctx context.Context) {
	defer close(s.stopped)
	interval := s.cfg.PumpInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PumpOnce(ctx); err != nil {
				s.logger.Error("outbox pump failed", zap.Error(err))
			}
		}
	}
}

// PumpOnce fetches one batch of pending notifications and enqueues them.
func (s *NotificationService) PumpOnce(ctx context.Context) error {
	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	pending, err := s.notifications.FetchPending(ctx, batch)
	if err != nil {
		return fmt.Errorf("fetch pending notifications: %w", err)
	}
	for i := range pending {
		job := jobs.Job{ID: pending[i].ID, Type: "notification", Payload: pending[i].ID}
		if err := s.queue.Enqueue(job); err != nil {
			return fmt.Errorf("enqueue notification: %w", err)
		}
	}
	return nil
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	id, ok := job.Payload.(string)
	if !ok {
		s.logger.Error("notification job carries no id", zap.String("job_id", job.ID))
		return nil
	}
	notification, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load notification: %w", err)
	}
	if notification.Status != models.NotificationPending {
		return nil
	}

	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		attempts := notification.Attempts + 1
		exhausted := attempts >= s.cfg.WorkerRetries && s.cfg.WorkerRetries > 0
		if markErr := s.notifications.MarkFailed(ctx, id, attempts, err.Error(), exhausted); markErr != nil {
			s.logger.Error("mark notification failed", zap.String("notification_id", id), zap.Error(markErr))
		}
		if exhausted {
			s.logger.Error("notification delivery abandoned",
				zap.String("notification_id", id),
				zap.Int("attempts", attempts),
				zap.Error(err))
			return nil
		}
		return fmt.Errorf("dispatch notification %s: %w", id, err)
	}

	if err := s.notifications.MarkSent(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}
