package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin               = "LOGIN"
	AuditActionApplicationSubmit   = "APPLICATION_SUBMITTED"
	AuditActionDeptReview          = "APPLICATION_DEPT_REVIEWED"
	AuditActionAdminReview         = "APPLICATION_ADMIN_REVIEWED"
	AuditActionApplicationWithdraw = "APPLICATION_WITHDRAWN"
	AuditActionConsentGrant        = "CONSENT_GRANTED"
	AuditActionConsentRevoke       = "CONSENT_REVOKED"
	AuditActionDataAccess          = "DATA_ACCESSED"
	AuditActionApprovalCreate      = "APPROVAL_REQUEST_CREATED"
	AuditActionApprovalDecide      = "APPROVAL_REQUEST_DECIDED"
)

// AuditEvent is an immutable record of an actor performing an action on a
// resource. The public contract is append-only; no update or delete exists.
type AuditEvent struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Before     []byte    `db:"before_state" json:"before_state,omitempty"`
	After      []byte    `db:"after_state" json:"after_state,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AuditPayload is implemented by every structured payload that may appear in
// an audit event, closing the schema per action kind.
type AuditPayload interface {
	AuditAction() string
}

// ApplicationAuditPayload records a lifecycle transition on an application.
type ApplicationAuditPayload struct {
	Status     ApplicationStatus `json:"status"`
	Event      ApplicationEvent  `json:"event,omitempty"`
	ReviewerID string            `json:"reviewer_id,omitempty"`
	Notes      string            `json:"notes,omitempty"`
	Reason     string            `json:"reason,omitempty"`

	action string
}

// NewApplicationAuditPayload binds the payload to one of the application
// lifecycle actions.
func NewApplicationAuditPayload(action string, p ApplicationAuditPayload) *ApplicationAuditPayload {
	p.action = action
	return &p
}

func (p *ApplicationAuditPayload) AuditAction() string { return p.action }

// ConsentAuditPayload records a grant or revocation on the consent ledger.
type ConsentAuditPayload struct {
	JobID       string    `json:"job_id,omitempty"`
	RecruiterID string    `json:"recruiter_id,omitempty"`
	DataFields  []string  `json:"data_fields,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Revoked     bool      `json:"revoked"`
	Reason      string    `json:"reason,omitempty"`

	action string
}

// NewConsentAuditPayload binds the payload to a consent ledger action.
func NewConsentAuditPayload(action string, p ConsentAuditPayload) *ConsentAuditPayload {
	p.action = action
	return &p
}

func (p *ConsentAuditPayload) AuditAction() string { return p.action }

// DataAccessAuditPayload records a consent-gated read of student data.
type DataAccessAuditPayload struct {
	StudentID   string   `json:"student_id"`
	JobID       string   `json:"job_id,omitempty"`
	RecruiterID string   `json:"recruiter_id"`
	Fields      []string `json:"fields"`
}

func (p *DataAccessAuditPayload) AuditAction() string { return AuditActionDataAccess }

// ApprovalAuditPayload records creation or decision of a dual-control request.
type ApprovalAuditPayload struct {
	Type          ApprovalRequestType `json:"type"`
	Status        ApprovalStatus      `json:"status"`
	InitiatorID   string              `json:"initiator_id"`
	ApproverID    string              `json:"approver_id,omitempty"`
	Justification string              `json:"justification,omitempty"`
	Notes         string              `json:"notes,omitempty"`

	action string
}

// NewApprovalAuditPayload binds the payload to an approval workflow action.
func NewApprovalAuditPayload(action string, p ApprovalAuditPayload) *ApprovalAuditPayload {
	p.action = action
	return &p
}

func (p *ApprovalAuditPayload) AuditAction() string { return p.action }

// auditPayloadActions closes the known action set. Marshalling under an
// unlisted action is rejected.
var auditPayloadActions = map[string]struct{}{
	AuditActionApplicationSubmit:   {},
	AuditActionDeptReview:          {},
	AuditActionAdminReview:         {},
	AuditActionApplicationWithdraw: {},
	AuditActionConsentGrant:        {},
	AuditActionConsentRevoke:       {},
	AuditActionDataAccess:          {},
	AuditActionApprovalCreate:      {},
	AuditActionApprovalDecide:      {},
}

// MarshalAuditPayload serializes a typed payload, enforcing that the payload
// declares the action it is being recorded under.
func MarshalAuditPayload(action string, payload AuditPayload) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	if _, ok := auditPayloadActions[action]; !ok {
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	if payload.AuditAction() != action {
		return nil, fmt.Errorf("payload bound to %q cannot be recorded under %q", payload.AuditAction(), action)
	}
	return json.Marshal(payload)
}

// AuditFilter constrains audit trail queries.
type AuditFilter struct {
	Resource   string
	ResourceID string
	Action     string
	ActorID    string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}
