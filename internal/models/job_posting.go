package models

import (
	"time"

	"github.com/lib/pq"
)

// JobStatus is the lifecycle status of a posting, owned by the recruiter
// subsystem.
type JobStatus string

const (
	JobStatusDraft   JobStatus = "DRAFT"
	JobStatusPending JobStatus = "PENDING"
	JobStatusActive  JobStatus = "ACTIVE"
	JobStatusClosed  JobStatus = "CLOSED"
)

// JobPosting carries the eligibility criteria and deadlines the core reads.
type JobPosting struct {
	ID                  string         `db:"id" json:"id"`
	OrganizationID      string         `db:"organization_id" json:"organization_id"`
	RecruiterID         string         `db:"recruiter_id" json:"recruiter_id"`
	Title               string         `db:"title" json:"title"`
	Status              JobStatus      `db:"status" json:"status"`
	MinCGPA             float64        `db:"min_cgpa" json:"min_cgpa"`
	MaxBacklogs         int            `db:"max_backlogs" json:"max_backlogs"`
	AllowedDepartments  pq.StringArray `db:"allowed_departments" json:"allowed_departments"`
	AllowedGradYears    pq.Int64Array  `db:"allowed_grad_years" json:"allowed_grad_years"`
	ApplicationDeadline time.Time      `db:"application_deadline" json:"application_deadline"`
	OfferExpiry         *time.Time     `db:"offer_expiry" json:"offer_expiry,omitempty"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
}

// Criteria extracts the eligibility criteria for the evaluator.
func (j *JobPosting) Criteria() JobCriteria {
	years := make([]int, 0, len(j.AllowedGradYears))
	for _, y := range j.AllowedGradYears {
		years = append(years, int(y))
	}
	return JobCriteria{
		MinCGPA:            j.MinCGPA,
		MaxBacklogs:        j.MaxBacklogs,
		AllowedDepartments: []string(j.AllowedDepartments),
		AllowedGradYears:   years,
	}
}

// JobCriteria is the evaluator-facing slice of a posting.
type JobCriteria struct {
	MinCGPA            float64  `json:"min_cgpa"`
	MaxBacklogs        int      `json:"max_backlogs"`
	AllowedDepartments []string `json:"allowed_departments"`
	AllowedGradYears   []int    `json:"allowed_grad_years"`
}
