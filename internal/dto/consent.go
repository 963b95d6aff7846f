package dto

// GrantConsentRequest payload for granting a data-sharing consent. JobID and
// RecruiterID narrow the scope; leaving one empty grants the wider scope.
type GrantConsentRequest struct {
	JobID       string   `json:"jobId" binding:"omitempty,uuid"`
	RecruiterID string   `json:"recruiterId" binding:"omitempty,uuid"`
	DataFields  []string `json:"dataFields"`
}

// RevokeConsentRequest carries the student's revocation reason.
type RevokeConsentRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// ConsentQuery mirrors supported listing filters.
type ConsentQuery struct {
	ActiveOnly bool `form:"activeOnly"`
}
