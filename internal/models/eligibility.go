package models

// EligibilityReason itemizes why a student fails a posting's criteria. All
// applicable reasons are reported, never just the first.
type EligibilityReason string

const (
	ReasonProfileUnverified    EligibilityReason = "PROFILE_UNVERIFIED"
	ReasonProfileIncomplete    EligibilityReason = "PROFILE_INCOMPLETE"
	ReasonCGPALow              EligibilityReason = "CGPA_LOW"
	ReasonBacklogExceeded      EligibilityReason = "BACKLOG_EXCEEDED"
	ReasonDepartmentNotAllowed EligibilityReason = "DEPARTMENT_NOT_ALLOWED"
	ReasonGradYearNotAllowed   EligibilityReason = "GRAD_YEAR_NOT_ALLOWED"
)

// EligibilityVerdict is the outcome of comparing student attributes to job
// criteria. Reasons are ordered deterministically.
type EligibilityVerdict struct {
	Eligible bool                `json:"eligible"`
	Reasons  []EligibilityReason `json:"reasons"`
}
