package models

import "time"

// Policy keys writable through POLICY_CHANGE dual-control requests.
const (
	PolicySubmissionCeiling    = "submission_ceiling"
	PolicyConsentTTLHours      = "consent_ttl_hours"
	PolicyMinProfileCompletion = "min_profile_completion"
)

// ValidPolicyKey reports whether the key belongs to the closed policy set.
func ValidPolicyKey(key string) bool {
	switch key {
	case PolicySubmissionCeiling, PolicyConsentTTLHours, PolicyMinProfileCompletion:
		return true
	}
	return false
}

// Policy is a runtime override of a configured placement parameter.
type Policy struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedBy string    `db:"updated_by" json:"updated_by"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
