package dto

import "github.com/placementcell/placement-api/internal/models"

// SubmitApplicationRequest payload for submitting an application to a posting.
type SubmitApplicationRequest struct {
	JobID       string `json:"jobId" binding:"required,uuid"`
	CoverLetter string `json:"coverLetter" binding:"max=5000"`
}

// ReviewApplicationRequest captures a reviewer decision and optional note.
// The same payload serves both the department and the admin tier.
type ReviewApplicationRequest struct {
	Decision models.ReviewDecision `json:"decision" binding:"required,oneof=APPROVE REJECT HOLD"`
	Note     string                `json:"note" binding:"max=1000"`
}

// WithdrawApplicationRequest carries the student's withdrawal reason.
type WithdrawApplicationRequest struct {
	Reason string `json:"reason" binding:"max=1000"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	StudentID  string `form:"studentId"`
	JobID      string `form:"jobId"`
	Status     string `form:"status"`
	Department string `form:"department"`
	Page       int    `form:"page,default=1" binding:"min=1"`
	PageSize   int    `form:"pageSize,default=20" binding:"min=1,max=100"`
}

// EligibilityQuery identifies the posting to evaluate against.
type EligibilityQuery struct {
	JobID string `form:"jobId" binding:"required,uuid"`
}
