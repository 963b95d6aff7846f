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

// AuditRepository persists the append-only audit trail. No update or delete
// method exists on purpose.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const insertAuditQuery = `INSERT INTO audit_events (id, actor_id, action, resource, resource_id, before_state, after_state, ip_address, user_agent, created_at)
        VALUES (:id, :actor_id, :action, :resource, :resource_id, :before_state, :after_state, :ip_address, :user_agent, :created_at)`

// Create appends an audit event outside any caller-owned transaction.
func (r *AuditRepository) Create(ctx context.Context, event *models.AuditEvent) error {
	prepareAuditEvent(event)
	if _, err := r.db.NamedExecContext(ctx, insertAuditQuery, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

// CreateAuditIn appends an audit event inside the caller's transaction so the
// audit write commits or rolls back with the state change it describes.
func CreateAuditIn(ctx context.Context, tx *sqlx.Tx, event *models.AuditEvent) error {
	prepareAuditEvent(event)
	if _, err := tx.NamedExecContext(ctx, insertAuditQuery, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

func prepareAuditEvent(event *models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

// ListByResource returns the audit trail for a resource, newest first.
func (r *AuditRepository) ListByResource(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Resource != "" {
		conditions = append(conditions, fmt.Sprintf("resource = $%d", len(args)+1))
		args = append(args, filter.Resource)
	}
	if filter.ResourceID != "" {
		conditions = append(conditions, fmt.Sprintf("resource_id = $%d", len(args)+1))
		args = append(args, filter.ResourceID)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.ActorID != "" {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)+1))
		args = append(args, filter.ActorID)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, filter.To)
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
	if size <= 0 || size > 500 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, actor_id, action, resource, resource_id, before_state, after_state, ip_address, user_agent, created_at
        FROM audit_events%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, clause, size, offset)

	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM audit_events" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}
	return events, total, nil
}
