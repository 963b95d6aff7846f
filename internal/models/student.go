package models

import "time"

// Student represents a candidate registered with the placement office. The
// record is owned by the profile subsystem; the core reads it only.
type Student struct {
	ID                string    `db:"id" json:"id"`
	RollNo            string    `db:"roll_no" json:"roll_no"`
	FullName          string    `db:"full_name" json:"full_name"`
	Email             string    `db:"email" json:"email"`
	Phone             string    `db:"phone" json:"phone"`
	Department        string    `db:"department" json:"department"`
	CGPA              float64   `db:"cgpa" json:"cgpa"`
	ActiveBacklogs    int       `db:"active_backlogs" json:"active_backlogs"`
	GraduationYear    int       `db:"graduation_year" json:"graduation_year"`
	Verified          bool      `db:"verified" json:"verified"`
	ProfileCompletion int       `db:"profile_completion" json:"profile_completion"`
	ResumeID          *string   `db:"resume_id" json:"resume_id,omitempty"`
	Active            bool      `db:"active" json:"active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// RecruiterStudentView is the consent-gated projection served to recruiters.
// Only fields covered by an active consent are populated.
type RecruiterStudentView struct {
	StudentID      string   `json:"student_id"`
	FullName       string   `json:"full_name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Department     string   `json:"department,omitempty"`
	CGPA           *float64 `json:"cgpa,omitempty"`
	ResumeURL      string   `json:"resume_url,omitempty"`
	SharedFields   []string `json:"shared_fields"`
	ConsentExpires string   `json:"consent_expires"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search     string
	Department string
	Verified   *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
