package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
)

// ApprovalRepository persists dual-control approval requests. The decision
// step applies the proposed change and flips the request status in one
// transaction so a partially-applied approval can never be observed.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `id, type, resource_type, resource_id, initiator_id, justification, proposed_change,
        status, approver_id, decision_notes, created_at, decided_at`

// Create persists a new pending request together with its audit event and the
// approver pool notification.
func (r *ApprovalRepository) Create(ctx context.Context, request *models.ApprovalRequest, audit *models.AuditEvent, notification *models.Notification) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.ApprovalStatusPending
	}
	if audit != nil && audit.ResourceID == nil {
		audit.ResourceID = &request.ID
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create approval: %w", err)
	}

	const insert = `INSERT INTO approval_requests (id, type, resource_type, resource_id, initiator_id, justification, proposed_change, status, created_at)
        VALUES (:id, :type, :resource_type, :resource_id, :initiator_id, :justification, :proposed_change, :status, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, request); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert approval request: %w", err)
	}
	if audit != nil {
		if err := CreateAuditIn(ctx, tx, audit); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if notification != nil {
		if err := createNotificationIn(ctx, tx, notification); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create approval: %w", err)
	}
	return nil
}

// GetByID returns a request by its ID.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM approval_requests WHERE id = $1", approvalColumns)
	var request models.ApprovalRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalRequest, int, error) {
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, s)
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Type != "" {
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if filter.InitiatorID != "" {
		conditions = append(conditions, fmt.Sprintf("initiator_id = $%d", len(args)+1))
		args = append(args, filter.InitiatorID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM approval_requests%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		approvalColumns, clause, size, offset)

	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list approval requests: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM approval_requests" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count approval requests: %w", err)
	}
	return requests, total, nil
}

// Stats is a pure projection over request statuses.
func (r *ApprovalRepository) Stats(ctx context.Context) (*models.ApprovalStats, error) {
	const query = `SELECT
        COUNT(*) FILTER (WHERE status = 'PENDING') AS pending,
        COUNT(*) FILTER (WHERE status = 'APPROVED') AS approved,
        COUNT(*) FILTER (WHERE status = 'REJECTED') AS rejected
        FROM approval_requests`
	var stats models.ApprovalStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("approval stats: %w", err)
	}
	return &stats, nil
}

// DecideFunc validates the locked pending request and, on approval, applies
// the proposed change through the supplied transaction. It returns the audit
// event and optional notification persisted atomically with the decision.
// Returning an error aborts the whole decision with no side effects.
type DecideFunc func(tx *sqlx.Tx, request *models.ApprovalRequest) (*models.AuditEvent, *models.Notification, error)

// Decide locks the request row, lets fn validate and apply, then writes the
// decision metadata. The target-resource mutation performed by fn commits or
// rolls back together with the status flip.
func (r *ApprovalRepository) Decide(ctx context.Context, id string, fn DecideFunc) (*models.ApprovalRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin decide: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM approval_requests WHERE id = $1 FOR UPDATE", approvalColumns)
	var request models.ApprovalRequest
	if err := tx.GetContext(ctx, &request, query, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	audit, notification, err := fn(tx, &request)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	const update = `UPDATE approval_requests SET status = :status, approver_id = :approver_id,
        decision_notes = :decision_notes, decided_at = :decided_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, &request); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("update approval request: %w", err)
	}
	if audit != nil {
		if err := CreateAuditIn(ctx, tx, audit); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
	}
	if notification != nil {
		if err := createNotificationIn(ctx, tx, notification); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit decide: %w", err)
	}
	return &request, nil
}

// ListStalePending returns pending requests created before the cutoff.
func (r *ApprovalRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]models.ApprovalRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM approval_requests WHERE status = $1 AND created_at < $2", approvalColumns)
	var requests []models.ApprovalRequest
	if err := r.db.SelectContext(ctx, &requests, query, models.ApprovalStatusPending, cutoff); err != nil {
		return nil, fmt.Errorf("list stale approvals: %w", err)
	}
	return requests, nil
}
