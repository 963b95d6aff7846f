package models

import "time"

// ApprovalRequestType enumerates the closed set of sensitive actions that
// require a second authorizer before taking effect.
type ApprovalRequestType string

const (
	ApprovalTypeOrgBlacklist         ApprovalRequestType = "ORG_BLACKLIST"
	ApprovalTypeVerificationOverride ApprovalRequestType = "VERIFICATION_OVERRIDE"
	ApprovalTypeDecisionOverride     ApprovalRequestType = "APPLICATION_DECISION_OVERRIDE"
	ApprovalTypeOfferRescission      ApprovalRequestType = "OFFER_RESCISSION"
	ApprovalTypeBulkMutation         ApprovalRequestType = "BULK_MUTATION"
	ApprovalTypePolicyChange         ApprovalRequestType = "POLICY_CHANGE"
)

// ValidApprovalType reports whether t belongs to the closed request type set.
func ValidApprovalType(t ApprovalRequestType) bool {
	switch t {
	case ApprovalTypeOrgBlacklist, ApprovalTypeVerificationOverride,
		ApprovalTypeDecisionOverride, ApprovalTypeOfferRescission,
		ApprovalTypeBulkMutation, ApprovalTypePolicyChange:
		return true
	}
	return false
}

// ApprovalStatus captures workflow states for dual-control requests.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "PENDING"
	ApprovalStatusApproved ApprovalStatus = "APPROVED"
	ApprovalStatusRejected ApprovalStatus = "REJECTED"
)

// ApprovalRequest is a proposed sensitive mutation awaiting a second
// authorizer. The proposed change is applied if and only if the request
// reaches APPROVED; a rejected or pending request has no side effects.
type ApprovalRequest struct {
	ID             string              `db:"id" json:"id"`
	Type           ApprovalRequestType `db:"type" json:"type"`
	ResourceType   string              `db:"resource_type" json:"resource_type"`
	ResourceID     string              `db:"resource_id" json:"resource_id"`
	InitiatorID    string              `db:"initiator_id" json:"initiator_id"`
	Justification  string              `db:"justification" json:"justification"`
	ProposedChange []byte              `db:"proposed_change" json:"proposed_change"`
	Status         ApprovalStatus      `db:"status" json:"status"`
	ApproverID     *string             `db:"approver_id" json:"approver_id,omitempty"`
	DecisionNotes  *string             `db:"decision_notes" json:"decision_notes,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
	DecidedAt      *time.Time          `db:"decided_at" json:"decided_at,omitempty"`
}

// ApprovalFilter constrains listing queries.
type ApprovalFilter struct {
	Status      []ApprovalStatus
	Type        ApprovalRequestType
	ResourceID  string
	InitiatorID string
	Page        int
	PageSize    int
}

// ApprovalStats is a pure projection over approval requests.
type ApprovalStats struct {
	Pending  int `db:"pending" json:"pending"`
	Approved int `db:"approved" json:"approved"`
	Rejected int `db:"rejected" json:"rejected"`
}
