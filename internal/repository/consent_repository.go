package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
)

// ConsentRepository persists data-sharing grants. Expiry is evaluated at read
// time; no background sweep touches these rows.
type ConsentRepository struct {
	db *sqlx.DB
}

// NewConsentRepository constructs the repository.
func NewConsentRepository(db *sqlx.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

const consentColumns = `id, student_id, job_id, recruiter_id, data_fields, granted_at, expires_at,
        revoked, revoked_at, revoke_reason, created_at`

const insertConsentQuery = `INSERT INTO consents (id, student_id, job_id, recruiter_id, data_fields, granted_at, expires_at, revoked, created_at)
        VALUES (:id, :student_id, :job_id, :recruiter_id, :data_fields, :granted_at, :expires_at, :revoked, :created_at)`

// Create persists a new grant together with its audit event. Both rows
// commit or neither does; a grant without a trail must not exist.
func (r *ConsentRepository) Create(ctx context.Context, consent *models.Consent, audit *models.AuditEvent) error {
	prepareConsent(consent)
	if audit != nil && audit.ResourceID == nil {
		audit.ResourceID = &consent.ID
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create consent: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertConsentQuery, consent); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create consent: %w", err)
	}
	if audit != nil {
		if err := CreateAuditIn(ctx, tx, audit); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create consent: %w", err)
	}
	return nil
}

func createConsentIn(ctx context.Context, tx *sqlx.Tx, consent *models.Consent) error {
	prepareConsent(consent)
	if _, err := tx.NamedExecContext(ctx, insertConsentQuery, consent); err != nil {
		return fmt.Errorf("create consent: %w", err)
	}
	return nil
}

func prepareConsent(consent *models.Consent) {
	now := time.Now().UTC()
	if consent.ID == "" {
		consent.ID = uuid.NewString()
	}
	if consent.GrantedAt.IsZero() {
		consent.GrantedAt = now
	}
	if consent.CreatedAt.IsZero() {
		consent.CreatedAt = now
	}
}

// FindByID returns a consent by its ID.
func (r *ConsentRepository) FindByID(ctx context.Context, id string) (*models.Consent, error) {
	query := fmt.Sprintf("SELECT %s FROM consents WHERE id = $1", consentColumns)
	var consent models.Consent
	if err := r.db.GetContext(ctx, &consent, query, id); err != nil {
		return nil, err
	}
	return &consent, nil
}

// ListByStudent returns every grant a student has made, newest first.
func (r *ConsentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Consent, error) {
	query := fmt.Sprintf("SELECT %s FROM consents WHERE student_id = $1 ORDER BY granted_at DESC", consentColumns)
	var consents []models.Consent
	if err := r.db.SelectContext(ctx, &consents, query, studentID); err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	return consents, nil
}

// ListForScope returns every grant, active or not, whose dimensions could
// match the scope. Activity and field coverage are evaluated by the caller at
// the instant of the read.
func (r *ConsentRepository) ListForScope(ctx context.Context, studentID string, scope models.ConsentScope) ([]models.Consent, error) {
	query := fmt.Sprintf(`SELECT %s FROM consents
        WHERE student_id = $1
          AND (job_id IS NULL OR job_id = $2)
          AND (recruiter_id IS NULL OR recruiter_id = $3)
        ORDER BY granted_at DESC`, consentColumns)
	var consents []models.Consent
	if err := r.db.SelectContext(ctx, &consents, query, studentID, scope.JobID, scope.RecruiterID); err != nil {
		return nil, fmt.Errorf("list consents for scope: %w", err)
	}
	return consents, nil
}

// Revoke sets the revoked flag inside a transaction together with the audit
// event. The locked read distinguishes a missing grant from a double revoke.
func (r *ConsentRepository) Revoke(ctx context.Context, id string, reason *string, revokedAt time.Time, audit *models.AuditEvent) (*models.Consent, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin revoke: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM consents WHERE id = $1 FOR UPDATE", consentColumns)
	var consent models.Consent
	if err := tx.GetContext(ctx, &consent, query, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, false, err
	}
	if consent.Revoked {
		tx.Rollback() //nolint:errcheck
		return &consent, true, nil
	}

	const update = `UPDATE consents SET revoked = TRUE, revoked_at = $2, revoke_reason = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, update, id, revokedAt, reason); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, false, fmt.Errorf("revoke consent: %w", err)
	}
	if audit != nil {
		if err := CreateAuditIn(ctx, tx, audit); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit revoke: %w", err)
	}

	consent.Revoked = true
	consent.RevokedAt = &revokedAt
	consent.RevokeReason = reason
	return &consent, false, nil
}
