package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/placementcell/placement-api/internal/models"
)

// JobRepository reads job postings owned by the recruiter subsystem.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository constructs the repository.
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, organization_id, recruiter_id, title, status, min_cgpa, max_backlogs,
        allowed_departments, allowed_grad_years, application_deadline, offer_expiry, created_at, updated_at`

// FindByID returns a posting by ID.
func (r *JobRepository) FindByID(ctx context.Context, id string) (*models.JobPosting, error) {
	query := fmt.Sprintf("SELECT %s FROM job_postings WHERE id = $1", jobColumns)
	var job models.JobPosting
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByStatus returns postings in the given lifecycle statuses.
func (r *JobRepository) ListByStatus(ctx context.Context, statuses ...models.JobStatus) ([]models.JobPosting, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := fmt.Sprintf("SELECT %s FROM job_postings WHERE status IN (%s) ORDER BY application_deadline ASC",
		jobColumns, strings.Join(placeholders, ","))
	var jobs []models.JobPosting
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list job postings: %w", err)
	}
	return jobs, nil
}
