package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/placementcell/placement-api/internal/models"
)

// ErrDuplicateApplication signals the partial unique index on
// (student_id, job_id) WHERE status <> 'WITHDRAWN' rejected an insert.
var ErrDuplicateApplication = errors.New("duplicate non-withdrawn application")

// ApplicationRepository handles persistence of applications. All
// state-changing methods run inside a transaction that locks the row, so two
// concurrent reviewers can never both transition the same application out of
// the same source state.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, student_id, job_id, resume_id, cover_letter, status, submitted_at,
        dept_reviewer_id, dept_reviewed_at, dept_notes,
        admin_reviewer_id, admin_reviewed_at, admin_notes,
        withdrawn_at, withdraw_reason, created_at, updated_at`

// FindByID returns an application by its ID.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1", applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications filtered by the provided criteria.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.JobID != "" {
		conditions = append(conditions, fmt.Sprintf("job_id = $%d", len(args)+1))
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("student_id IN (SELECT id FROM students WHERE department = $%d)", len(args)+1))
		args = append(args, filter.Department)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf("SELECT %s FROM applications%s ORDER BY submitted_at %s LIMIT %d OFFSET %d",
		applicationColumns, clause, order, size, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM applications" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// ExistsNonWithdrawn checks the single-active-application invariant for a
// (student, job) pair.
func (r *ApplicationRepository) ExistsNonWithdrawn(ctx context.Context, studentID, jobID string) (bool, error) {
	const query = `SELECT 1 FROM applications WHERE student_id = $1 AND job_id = $2 AND status <> $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, jobID, models.ApplicationWithdrawn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check duplicate application: %w", err)
	}
	return true, nil
}

// CountSubmittedSince counts a student's submissions in the current quota
// window. Withdrawn applications still count against the ceiling.
func (r *ApplicationRepository) CountSubmittedSince(ctx context.Context, studentID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM applications WHERE student_id = $1 AND submitted_at >= $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, since); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

// SubmitParams bundles the rows written atomically on submission.
type SubmitParams struct {
	Application  *models.Application
	Consent      *models.Consent // nil when an active grant already covers the job
	Audit        *models.AuditEvent
	Notification *models.Notification
}

// Submit creates the application, the accompanying consent grant, the audit
// event and the notification outbox row in one transaction. A violation of
// the partial unique index surfaces as ErrDuplicateApplication.
func (r *ApplicationRepository) Submit(ctx context.Context, params SubmitParams) error {
	app := params.Application
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.SubmittedAt.IsZero() {
		app.SubmittedAt = now
	}
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.ApplicationSubmitted
	}
	// The audit row must point at the committed application, so the link is
	// made here where the ID is assigned, not by the caller after commit.
	if params.Audit != nil && params.Audit.ResourceID == nil {
		params.Audit.ResourceID = &app.ID
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit: %w", err)
	}

	const insertApp = `INSERT INTO applications (id, student_id, job_id, resume_id, cover_letter, status, submitted_at, created_at, updated_at)
        VALUES (:id, :student_id, :job_id, :resume_id, :cover_letter, :status, :submitted_at, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insertApp, app); err != nil {
		tx.Rollback() //nolint:errcheck
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateApplication
		}
		return fmt.Errorf("insert application: %w", err)
	}

	if params.Consent != nil {
		if err := createConsentIn(ctx, tx, params.Consent); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if params.Audit != nil {
		if err := CreateAuditIn(ctx, tx, params.Audit); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	if params.Notification != nil {
		if err := createNotificationIn(ctx, tx, params.Notification); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submit: %w", err)
	}
	return nil
}

// TransitionFunc validates the locked application and mutates it in place,
// returning the audit event and optional notification to persist atomically
// with the status change. Returning an error aborts the transaction with no
// side effects.
type TransitionFunc func(app *models.Application) (*models.AuditEvent, *models.Notification, error)

// Transition locks the application row, lets fn validate and apply the state
// change against the locked read, then writes the new state, the audit event
// and the notification in the same transaction.
func (r *ApplicationRepository) Transition(ctx context.Context, id string, fn TransitionFunc) (*models.Application, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transition: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1 FOR UPDATE", applicationColumns)
	var app models.Application
	if err := tx.GetContext(ctx, &app, query, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	audit, notification, err := fn(&app)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	app.UpdatedAt = time.Now().UTC()

	const update = `UPDATE applications SET status = :status,
        dept_reviewer_id = :dept_reviewer_id, dept_reviewed_at = :dept_reviewed_at, dept_notes = :dept_notes,
        admin_reviewer_id = :admin_reviewer_id, admin_reviewed_at = :admin_reviewed_at, admin_notes = :admin_notes,
        withdrawn_at = :withdrawn_at, withdraw_reason = :withdraw_reason, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, &app); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("update application: %w", err)
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
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return &app, nil
}

// FindByIDIn returns a locked application row inside the caller's
// transaction, for dual-control appliers targeting applications.
func (r *ApplicationRepository) FindByIDIn(ctx context.Context, tx *sqlx.Tx, id string) (*models.Application, error) {
	query := fmt.Sprintf("SELECT %s FROM applications WHERE id = $1 FOR UPDATE", applicationColumns)
	var app models.Application
	if err := tx.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// SetStatusIn overrides the status inside the caller's transaction. Reserved
// for approved dual-control requests; regular reviews go through Transition.
func (r *ApplicationRepository) SetStatusIn(ctx context.Context, tx *sqlx.Tx, id string, status models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("set application status: %w", err)
	}
	return nil
}

// ExpireOffers flips OFFERED applications whose posting's offer expiry has
// passed. The WHERE predicate makes re-runs no-ops.
func (r *ApplicationRepository) ExpireOffers(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE applications a SET status = $1, updated_at = $2
        FROM job_postings j
        WHERE a.job_id = j.id AND a.status = $3 AND j.offer_expiry IS NOT NULL AND j.offer_expiry < $2`
	res, err := r.db.ExecContext(ctx, query, models.ApplicationOfferExpired, now, models.ApplicationOffered)
	if err != nil {
		return 0, fmt.Errorf("expire offers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire offers rows: %w", err)
	}
	return affected, nil
}

// ListStaleAwaitingReview returns applications that have sat in a reviewable
// state since before the cutoff, for reminder notifications.
func (r *ApplicationRepository) ListStaleAwaitingReview(ctx context.Context, cutoff time.Time) ([]models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications
        WHERE status IN ($1, $2, $3) AND updated_at < $4`, applicationColumns)
	var apps []models.Application
	err := r.db.SelectContext(ctx, &apps, query,
		models.ApplicationSubmitted, models.ApplicationPendingDeptReview, models.ApplicationApprovedByDept, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale applications: %w", err)
	}
	return apps, nil
}
