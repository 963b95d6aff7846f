package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
)

// OrganizationRepository persists recruiting organizations. Status changes go
// through the dual-control workflow, so the mutating methods are tx-scoped.
type OrganizationRepository struct {
	db *sqlx.DB
}

// NewOrganizationRepository constructs the repository.
func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

const organizationColumns = `id, name, status, blacklist_reason, created_at, updated_at`

// FindByID returns an organization by ID.
func (r *OrganizationRepository) FindByID(ctx context.Context, id string) (*models.Organization, error) {
	query := fmt.Sprintf("SELECT %s FROM organizations WHERE id = $1", organizationColumns)
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

// FindByIDIn returns a locked organization row inside the caller's transaction.
func (r *OrganizationRepository) FindByIDIn(ctx context.Context, tx *sqlx.Tx, id string) (*models.Organization, error) {
	query := fmt.Sprintf("SELECT %s FROM organizations WHERE id = $1 FOR UPDATE", organizationColumns)
	var org models.Organization
	if err := tx.GetContext(ctx, &org, query, id); err != nil {
		return nil, err
	}
	return &org, nil
}

// SetStatusIn updates the organization standing inside the caller's
// transaction.
func (r *OrganizationRepository) SetStatusIn(ctx context.Context, tx *sqlx.Tx, id string, status models.OrganizationStatus, reason *string) error {
	const query = `UPDATE organizations SET status = $2, blacklist_reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("set organization status: %w", err)
	}
	return nil
}
