package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
)

// PolicyRepository persists placement policy overrides (e.g. the semester
// submission ceiling). Writes only happen through approved POLICY_CHANGE
// dual-control requests.
type PolicyRepository struct {
	db *sqlx.DB
}

// NewPolicyRepository constructs the repository.
func NewPolicyRepository(db *sqlx.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Get fetches a single policy by key.
func (r *PolicyRepository) Get(ctx context.Context, key string) (*models.Policy, error) {
	const query = `SELECT key, value, updated_by, updated_at FROM placement_policies WHERE key = $1`
	var policy models.Policy
	if err := r.db.GetContext(ctx, &policy, query, key); err != nil {
		return nil, err
	}
	return &policy, nil
}

// List returns every policy override.
func (r *PolicyRepository) List(ctx context.Context) ([]models.Policy, error) {
	const query = `SELECT key, value, updated_by, updated_at FROM placement_policies ORDER BY key ASC`
	var policies []models.Policy
	if err := r.db.SelectContext(ctx, &policies, query); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}

// UpsertIn writes a policy override inside the caller's transaction.
func (r *PolicyRepository) UpsertIn(ctx context.Context, tx *sqlx.Tx, policy *models.Policy) error {
	const query = `INSERT INTO placement_policies (key, value, updated_by, updated_at)
        VALUES (:key, :value, :updated_by, :updated_at)
        ON CONFLICT (key)
        DO UPDATE SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	policy.UpdatedAt = time.Now().UTC()
	if _, err := tx.NamedExecContext(ctx, query, policy); err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}
