package models

import (
	"fmt"
	"time"
)

// ApplicationStatus values mirror the application_status enum in PostgreSQL.
type ApplicationStatus string

const (
	ApplicationSubmitted          ApplicationStatus = "SUBMITTED"
	ApplicationPendingDeptReview  ApplicationStatus = "PENDING_DEPT_REVIEW"
	ApplicationApprovedByDept     ApplicationStatus = "APPROVED_BY_DEPT"
	ApplicationRejectedByDept     ApplicationStatus = "REJECTED_BY_DEPT"
	ApplicationOnHoldDept         ApplicationStatus = "ON_HOLD_DEPT"
	ApplicationPendingAdminReview ApplicationStatus = "PENDING_ADMIN_REVIEW"
	ApplicationForwarded          ApplicationStatus = "FORWARDED_TO_RECRUITER"
	ApplicationRejectedByAdmin    ApplicationStatus = "REJECTED_BY_ADMIN"
	ApplicationOnHoldAdmin        ApplicationStatus = "ON_HOLD_ADMIN"
	ApplicationShortlisted        ApplicationStatus = "SHORTLISTED"
	ApplicationOffered            ApplicationStatus = "OFFERED"
	ApplicationOfferExpired       ApplicationStatus = "OFFER_EXPIRED"
	ApplicationAccepted           ApplicationStatus = "ACCEPTED"
	ApplicationRejectedByCompany  ApplicationStatus = "REJECTED_BY_RECRUITER"
	ApplicationWithdrawn          ApplicationStatus = "WITHDRAWN"
)

// ApplicationEvent identifies a transition trigger on an application.
type ApplicationEvent string

const (
	EventDeptApprove     ApplicationEvent = "DEPT_APPROVE"
	EventDeptReject      ApplicationEvent = "DEPT_REJECT"
	EventDeptHold        ApplicationEvent = "DEPT_HOLD"
	EventAdminApprove    ApplicationEvent = "ADMIN_APPROVE"
	EventAdminReject     ApplicationEvent = "ADMIN_REJECT"
	EventAdminHold       ApplicationEvent = "ADMIN_HOLD"
	EventWithdraw        ApplicationEvent = "WITHDRAW"
	EventShortlist       ApplicationEvent = "SHORTLIST"
	EventExtendOffer     ApplicationEvent = "EXTEND_OFFER"
	EventExpireOffer     ApplicationEvent = "EXPIRE_OFFER"
	EventAcceptOffer     ApplicationEvent = "ACCEPT_OFFER"
	EventRecruiterReject ApplicationEvent = "RECRUITER_REJECT"
)

// deptReviewEvents maps a department decision onto the target status.
var deptReviewEvents = map[ApplicationEvent]ApplicationStatus{
	EventDeptApprove: ApplicationApprovedByDept,
	EventDeptReject:  ApplicationRejectedByDept,
	EventDeptHold:    ApplicationOnHoldDept,
}

var adminReviewEvents = map[ApplicationEvent]ApplicationStatus{
	EventAdminApprove: ApplicationForwarded,
	EventAdminReject:  ApplicationRejectedByAdmin,
	EventAdminHold:    ApplicationOnHoldAdmin,
}

// transitions enumerates every allowed (source status × event → target status)
// triple. Statuses absent from the map are terminal. SUBMITTED is treated as
// pending department review; the ON_HOLD_* statuses return control to the same
// review tier, so the same tier events remain valid there.
var transitions = map[ApplicationStatus]map[ApplicationEvent]ApplicationStatus{
	ApplicationSubmitted: {
		EventDeptApprove: ApplicationApprovedByDept,
		EventDeptReject:  ApplicationRejectedByDept,
		EventDeptHold:    ApplicationOnHoldDept,
		EventWithdraw:    ApplicationWithdrawn,
	},
	ApplicationPendingDeptReview: {
		EventDeptApprove: ApplicationApprovedByDept,
		EventDeptReject:  ApplicationRejectedByDept,
		EventDeptHold:    ApplicationOnHoldDept,
		EventWithdraw:    ApplicationWithdrawn,
	},
	ApplicationOnHoldDept: {
		EventDeptApprove: ApplicationApprovedByDept,
		EventDeptReject:  ApplicationRejectedByDept,
		EventDeptHold:    ApplicationOnHoldDept,
		EventWithdraw:    ApplicationWithdrawn,
	},
	ApplicationApprovedByDept: {
		EventAdminApprove: ApplicationForwarded,
		EventAdminReject:  ApplicationRejectedByAdmin,
		EventAdminHold:    ApplicationOnHoldAdmin,
		EventWithdraw:     ApplicationWithdrawn,
	},
	ApplicationPendingAdminReview: {
		EventAdminApprove: ApplicationForwarded,
		EventAdminReject:  ApplicationRejectedByAdmin,
		EventAdminHold:    ApplicationOnHoldAdmin,
		EventWithdraw:     ApplicationWithdrawn,
	},
	ApplicationOnHoldAdmin: {
		EventAdminApprove: ApplicationForwarded,
		EventAdminReject:  ApplicationRejectedByAdmin,
		EventAdminHold:    ApplicationOnHoldAdmin,
		EventWithdraw:     ApplicationWithdrawn,
	},
	ApplicationForwarded: {
		EventShortlist:       ApplicationShortlisted,
		EventRecruiterReject: ApplicationRejectedByCompany,
		EventWithdraw:        ApplicationWithdrawn,
	},
	ApplicationShortlisted: {
		EventExtendOffer:     ApplicationOffered,
		EventRecruiterReject: ApplicationRejectedByCompany,
	},
	ApplicationOffered: {
		EventAcceptOffer:     ApplicationAccepted,
		EventExpireOffer:     ApplicationOfferExpired,
		EventRecruiterReject: ApplicationRejectedByCompany,
	},
}

// NextStatus resolves the target status for an event applied to the given
// source status. The boolean is false when the transition is not allowed.
func NextStatus(from ApplicationStatus, event ApplicationEvent) (ApplicationStatus, bool) {
	allowed, ok := transitions[from]
	if !ok {
		return "", false
	}
	to, ok := allowed[event]
	return to, ok
}

// IsTerminal reports whether no outgoing transition exists for the status.
func IsTerminal(s ApplicationStatus) bool {
	_, ok := transitions[s]
	return !ok
}

// AwaitingDeptReview reports whether the department tier owns the next decision.
func AwaitingDeptReview(s ApplicationStatus) bool {
	switch s {
	case ApplicationSubmitted, ApplicationPendingDeptReview, ApplicationOnHoldDept:
		return true
	}
	return false
}

// AwaitingAdminReview reports whether the administrative tier owns the next decision.
func AwaitingAdminReview(s ApplicationStatus) bool {
	switch s {
	case ApplicationApprovedByDept, ApplicationPendingAdminReview, ApplicationOnHoldAdmin:
		return true
	}
	return false
}

// Withdrawable reports whether the owning student may still withdraw. Once the
// recruiter shortlists the candidate the window closes.
func Withdrawable(s ApplicationStatus) bool {
	to, ok := NextStatus(s, EventWithdraw)
	return ok && to == ApplicationWithdrawn
}

// ParseApplicationStatus validates a raw status string.
func ParseApplicationStatus(raw string) (ApplicationStatus, error) {
	s := ApplicationStatus(raw)
	switch s {
	case ApplicationSubmitted, ApplicationPendingDeptReview, ApplicationApprovedByDept,
		ApplicationRejectedByDept, ApplicationOnHoldDept, ApplicationPendingAdminReview,
		ApplicationForwarded, ApplicationRejectedByAdmin, ApplicationOnHoldAdmin,
		ApplicationShortlisted, ApplicationOffered, ApplicationOfferExpired,
		ApplicationAccepted, ApplicationRejectedByCompany, ApplicationWithdrawn:
		return s, nil
	}
	return "", fmt.Errorf("unknown application status %q", raw)
}

// ReviewDecision is the reviewer-facing decision verb shared by both tiers.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "APPROVE"
	DecisionReject  ReviewDecision = "REJECT"
	DecisionHold    ReviewDecision = "HOLD"
)

// DeptEvent maps a department decision to its FSM event.
func (d ReviewDecision) DeptEvent() (ApplicationEvent, bool) {
	switch d {
	case DecisionApprove:
		return EventDeptApprove, true
	case DecisionReject:
		return EventDeptReject, true
	case DecisionHold:
		return EventDeptHold, true
	}
	return "", false
}

// AdminEvent maps an administrative decision to its FSM event.
func (d ReviewDecision) AdminEvent() (ApplicationEvent, bool) {
	switch d {
	case DecisionApprove:
		return EventAdminApprove, true
	case DecisionReject:
		return EventAdminReject, true
	case DecisionHold:
		return EventAdminHold, true
	}
	return "", false
}

// Application represents one student's candidacy for one job posting.
type Application struct {
	ID              string            `db:"id" json:"id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	JobID           string            `db:"job_id" json:"job_id"`
	ResumeID        string            `db:"resume_id" json:"resume_id"`
	CoverLetter     *string           `db:"cover_letter" json:"cover_letter,omitempty"`
	Status          ApplicationStatus `db:"status" json:"status"`
	SubmittedAt     time.Time         `db:"submitted_at" json:"submitted_at"`
	DeptReviewerID  *string           `db:"dept_reviewer_id" json:"dept_reviewer_id,omitempty"`
	DeptReviewedAt  *time.Time        `db:"dept_reviewed_at" json:"dept_reviewed_at,omitempty"`
	DeptNotes       *string           `db:"dept_notes" json:"dept_notes,omitempty"`
	AdminReviewerID *string           `db:"admin_reviewer_id" json:"admin_reviewer_id,omitempty"`
	AdminReviewedAt *time.Time        `db:"admin_reviewed_at" json:"admin_reviewed_at,omitempty"`
	AdminNotes      *string           `db:"admin_notes" json:"admin_notes,omitempty"`
	WithdrawnAt     *time.Time        `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	WithdrawReason  *string           `db:"withdraw_reason" json:"withdraw_reason,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	StudentID  string
	JobID      string
	Status     ApplicationStatus
	Department string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
