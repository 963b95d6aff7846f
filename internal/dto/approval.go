package dto

import (
	"encoding/json"

	"github.com/placementcell/placement-api/internal/models"
)

// CreateApprovalRequest payload for requesting a privileged action that needs
// a second pair of eyes.
type CreateApprovalRequest struct {
	Type     models.ApprovalRequestType `json:"type" binding:"required"`
	TargetID string                     `json:"targetId" binding:"required"`
	Reason   string                     `json:"reason" binding:"required,max=2000"`
	Payload  json.RawMessage            `json:"payload"`
}

// DecideApprovalRequest captures the approver decision and optional note.
type DecideApprovalRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" binding:"max=1000"`
}

// ApprovalQuery mirrors supported listing filters.
type ApprovalQuery struct {
	Status      string `form:"status"`
	Type        string `form:"type"`
	RequesterID string `form:"requesterId"`
	Page        int    `form:"page,default=1" binding:"min=1"`
	PageSize    int    `form:"pageSize,default=20" binding:"min=1,max=100"`
}

// AuditQuery mirrors supported audit trail filters.
type AuditQuery struct {
	ResourceType string `form:"resourceType"`
	ResourceID   string `form:"resourceId"`
	ActorID      string `form:"actorId"`
	Action       string `form:"action"`
	From         string `form:"from"`
	To           string `form:"to"`
	Page         int    `form:"page,default=1" binding:"min=1"`
	PageSize     int    `form:"pageSize,default=50" binding:"min=1,max=500"`
}
