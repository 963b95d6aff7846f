package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStatusReviewTiers(t *testing.T) {
	cases := []struct {
		name  string
		from  ApplicationStatus
		event ApplicationEvent
		want  ApplicationStatus
	}{
		{"submitted dept approve", ApplicationSubmitted, EventDeptApprove, ApplicationApprovedByDept},
		{"submitted dept reject", ApplicationSubmitted, EventDeptReject, ApplicationRejectedByDept},
		{"submitted dept hold", ApplicationSubmitted, EventDeptHold, ApplicationOnHoldDept},
		{"pending dept approve", ApplicationPendingDeptReview, EventDeptApprove, ApplicationApprovedByDept},
		{"hold dept re-decide", ApplicationOnHoldDept, EventDeptReject, ApplicationRejectedByDept},
		{"dept approved admin approve", ApplicationApprovedByDept, EventAdminApprove, ApplicationForwarded},
		{"dept approved admin hold", ApplicationApprovedByDept, EventAdminHold, ApplicationOnHoldAdmin},
		{"admin hold re-decide", ApplicationOnHoldAdmin, EventAdminApprove, ApplicationForwarded},
		{"forwarded shortlist", ApplicationForwarded, EventShortlist, ApplicationShortlisted},
		{"shortlisted offer", ApplicationShortlisted, EventExtendOffer, ApplicationOffered},
		{"offered accept", ApplicationOffered, EventAcceptOffer, ApplicationAccepted},
		{"offered expire", ApplicationOffered, EventExpireOffer, ApplicationOfferExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextStatus(tc.from, tc.event)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextStatusNeverSkipsAdminTier(t *testing.T) {
	// Admin events are only valid from admin-tier source states.
	for _, from := range []ApplicationStatus{
		ApplicationSubmitted,
		ApplicationPendingDeptReview,
		ApplicationOnHoldDept,
		ApplicationForwarded,
		ApplicationShortlisted,
	} {
		for _, event := range []ApplicationEvent{EventAdminApprove, EventAdminReject, EventAdminHold} {
			_, ok := NextStatus(from, event)
			assert.False(t, ok, "admin event %s must not fire from %s", event, from)
		}
	}
}

func TestNextStatusDeptEventsRejectedAfterDeptTier(t *testing.T) {
	for _, from := range []ApplicationStatus{
		ApplicationApprovedByDept,
		ApplicationForwarded,
		ApplicationRejectedByDept,
		ApplicationWithdrawn,
	} {
		for _, event := range []ApplicationEvent{EventDeptApprove, EventDeptReject, EventDeptHold} {
			_, ok := NextStatus(from, event)
			assert.False(t, ok, "dept event %s must not fire from %s", event, from)
		}
	}
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	terminals := []ApplicationStatus{
		ApplicationRejectedByDept,
		ApplicationRejectedByAdmin,
		ApplicationWithdrawn,
		ApplicationAccepted,
		ApplicationRejectedByCompany,
		ApplicationOfferExpired,
	}
	for _, s := range terminals {
		assert.True(t, IsTerminal(s), "%s should be terminal", s)
		for _, e := range []ApplicationEvent{
			EventDeptApprove, EventAdminApprove, EventWithdraw, EventShortlist, EventExtendOffer,
		} {
			_, ok := NextStatus(s, e)
			assert.False(t, ok)
		}
	}
}

func TestWithdrawableClosesAtShortlist(t *testing.T) {
	withdrawable := []ApplicationStatus{
		ApplicationSubmitted,
		ApplicationPendingDeptReview,
		ApplicationOnHoldDept,
		ApplicationApprovedByDept,
		ApplicationPendingAdminReview,
		ApplicationOnHoldAdmin,
		ApplicationForwarded,
	}
	for _, s := range withdrawable {
		assert.True(t, Withdrawable(s), "%s should allow withdrawal", s)
	}
	for _, s := range []ApplicationStatus{
		ApplicationShortlisted,
		ApplicationOffered,
		ApplicationAccepted,
		ApplicationWithdrawn,
		ApplicationRejectedByDept,
	} {
		assert.False(t, Withdrawable(s), "%s should not allow withdrawal", s)
	}
}

func TestParseApplicationStatus(t *testing.T) {
	got, err := ParseApplicationStatus("FORWARDED_TO_RECRUITER")
	require.NoError(t, err)
	assert.Equal(t, ApplicationForwarded, got)

	_, err = ParseApplicationStatus("NOT_A_STATUS")
	assert.Error(t, err)

	_, err = ParseApplicationStatus("")
	assert.Error(t, err)
}

func TestReviewDecisionEventMapping(t *testing.T) {
	ev, ok := DecisionApprove.DeptEvent()
	require.True(t, ok)
	assert.Equal(t, EventDeptApprove, ev)

	ev, ok = DecisionHold.AdminEvent()
	require.True(t, ok)
	assert.Equal(t, EventAdminHold, ev)

	_, ok = ReviewDecision("ESCALATE").DeptEvent()
	assert.False(t, ok)
}

func TestMarshalAuditPayloadEnforcesActionBinding(t *testing.T) {
	payload := NewApplicationAuditPayload(AuditActionDeptReview, ApplicationAuditPayload{
		Status:     ApplicationApprovedByDept,
		Event:      EventDeptApprove,
		ReviewerID: "rev-1",
	})

	data, err := MarshalAuditPayload(AuditActionDeptReview, payload)
	require.NoError(t, err)
	assert.Contains(t, string(data), "APPROVED_BY_DEPT")

	_, err = MarshalAuditPayload(AuditActionAdminReview, payload)
	assert.Error(t, err)

	_, err = MarshalAuditPayload("NOT_AN_ACTION", payload)
	assert.Error(t, err)
}

func TestConsentCoversScopeAndFields(t *testing.T) {
	job := "job-1"
	c := &Consent{JobID: &job, DataFields: []string{"full_name", "email", "cgpa"}}

	assert.True(t, c.Covers(ConsentScope{JobID: "job-1"}, []string{"email"}))
	assert.False(t, c.Covers(ConsentScope{JobID: "job-2"}, []string{"email"}))
	assert.False(t, c.Covers(ConsentScope{JobID: "job-1"}, []string{"phone"}))

	// A grant without a job dimension covers any job.
	broad := &Consent{DataFields: []string{"full_name"}}
	assert.True(t, broad.Covers(ConsentScope{JobID: "job-9"}, []string{"full_name"}))
}
