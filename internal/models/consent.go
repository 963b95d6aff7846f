package models

import (
	"time"

	"github.com/lib/pq"
)

// Consent is a data-sharing grant by a student covering a job posting and/or a
// named recruiter for a bounded time. Revocation is irreversible; re-granting
// requires a new record.
type Consent struct {
	ID           string         `db:"id" json:"id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	JobID        *string        `db:"job_id" json:"job_id,omitempty"`
	RecruiterID  *string        `db:"recruiter_id" json:"recruiter_id,omitempty"`
	DataFields   pq.StringArray `db:"data_fields" json:"data_fields"`
	GrantedAt    time.Time      `db:"granted_at" json:"granted_at"`
	ExpiresAt    time.Time      `db:"expires_at" json:"expires_at"`
	Revoked      bool           `db:"revoked" json:"revoked"`
	RevokedAt    *time.Time     `db:"revoked_at" json:"revoked_at,omitempty"`
	RevokeReason *string        `db:"revoke_reason" json:"revoke_reason,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// ConsentScope identifies the counterpart a grant authorizes. An empty JobID
// or RecruiterID means the dimension is unconstrained (broader scope).
type ConsentScope struct {
	JobID       string `json:"job_id,omitempty"`
	RecruiterID string `json:"recruiter_id,omitempty"`
}

// ConsentDataFields is the default field set shared at application time.
var ConsentDataFields = []string{"full_name", "email", "phone", "department", "cgpa", "resume"}

// Active reports whether the consent authorizes access at the given instant.
func (c *Consent) Active(now time.Time) bool {
	return !c.Revoked && now.Before(c.ExpiresAt)
}

// Covers reports whether this grant's scope is equal to or broader than the
// requested scope, and whether every requested field is included. A nil job or
// recruiter dimension on the grant covers any value of that dimension.
func (c *Consent) Covers(scope ConsentScope, fields []string) bool {
	if c.JobID != nil && scope.JobID != *c.JobID {
		return false
	}
	if c.RecruiterID != nil && scope.RecruiterID != *c.RecruiterID {
		return false
	}
	granted := make(map[string]struct{}, len(c.DataFields))
	for _, f := range c.DataFields {
		granted[f] = struct{}{}
	}
	for _, f := range fields {
		if _, ok := granted[f]; !ok {
			return false
		}
	}
	return true
}
