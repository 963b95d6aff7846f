package service

import "github.com/placementcell/placement-api/internal/models"

// EligibilityConfig carries the office-wide thresholds that are not part of a
// posting's own criteria.
type EligibilityConfig struct {
	MinProfileCompletion int
}

// EligibilityEvaluator compares student attributes to job criteria. It holds
// no mutable state, so the same inputs always yield the same verdict and the
// same ordered reason set.
type EligibilityEvaluator struct {
	cfg EligibilityConfig
}

// NewEligibilityEvaluator constructs the evaluator.
func NewEligibilityEvaluator(cfg EligibilityConfig) *EligibilityEvaluator {
	return &EligibilityEvaluator{cfg: cfg}
}

// Evaluate returns the verdict with every applicable reason, never just the
// first. Reasons appear in a fixed order: profile checks, then academic
// thresholds, then allow-lists.
func (e *EligibilityEvaluator) Evaluate(student models.Student, criteria models.JobCriteria) models.EligibilityVerdict {
	var reasons []models.EligibilityReason

	if !student.Verified {
		reasons = append(reasons, models.ReasonProfileUnverified)
	}
	if e.cfg.MinProfileCompletion > 0 && student.ProfileCompletion < e.cfg.MinProfileCompletion {
		reasons = append(reasons, models.ReasonProfileIncomplete)
	}
	if student.CGPA < criteria.MinCGPA {
		reasons = append(reasons, models.ReasonCGPALow)
	}
	if student.ActiveBacklogs > criteria.MaxBacklogs {
		reasons = append(reasons, models.ReasonBacklogExceeded)
	}
	if len(criteria.AllowedDepartments) > 0 && !containsString(criteria.AllowedDepartments, student.Department) {
		reasons = append(reasons, models.ReasonDepartmentNotAllowed)
	}
	if len(criteria.AllowedGradYears) > 0 && !containsInt(criteria.AllowedGradYears, student.GraduationYear) {
		reasons = append(reasons, models.ReasonGradYearNotAllowed)
	}

	return models.EligibilityVerdict{Eligible: len(reasons) == 0, Reasons: reasons}
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsInt(values []int, target int) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
