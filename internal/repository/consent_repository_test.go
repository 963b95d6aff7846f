package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/placementcell/placement-api/internal/models"
)

func newConsentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var consentRowColumns = []string{
	"id", "student_id", "job_id", "recruiter_id", "data_fields", "granted_at", "expires_at",
	"revoked", "revoked_at", "revoke_reason", "created_at",
}

func consentRow(id string, revoked bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(consentRowColumns).
		AddRow(id, "student-1", nil, nil, pq.StringArray(models.ConsentDataFields),
			now, now.Add(24*time.Hour), revoked, nil, nil, now)
}

func TestConsentRepositoryCreateWritesAuditInSameTx(t *testing.T) {
	db, mock, cleanup := newConsentRepoMock(t)
	defer cleanup()

	repo := NewConsentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO consents")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	consent := &models.Consent{
		StudentID:  "student-1",
		DataFields: models.ConsentDataFields,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
	audit := &models.AuditEvent{Action: models.AuditActionConsentGrant, Resource: "consent"}
	require.NoError(t, repo.Create(context.Background(), consent, audit))
	require.NotEmpty(t, consent.ID)
	require.False(t, consent.GrantedAt.IsZero())
	require.NotNil(t, audit.ResourceID)
	require.Equal(t, consent.ID, *audit.ResourceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentRepositoryCreateRollsBackWhenAuditFails(t *testing.T) {
	db, mock, cleanup := newConsentRepoMock(t)
	defer cleanup()

	repo := NewConsentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO consents")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnError(errors.New("audit insert failed"))
	mock.ExpectRollback()

	consent := &models.Consent{
		StudentID:  "student-1",
		DataFields: models.ConsentDataFields,
		ExpiresAt:  time.Now().Add(24 * time.Hour),
	}
	audit := &models.AuditEvent{Action: models.AuditActionConsentGrant, Resource: "consent"}
	require.Error(t, repo.Create(context.Background(), consent, audit))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentRepositoryRevokeWritesAuditInSameTx(t *testing.T) {
	db, mock, cleanup := newConsentRepoMock(t)
	defer cleanup()

	repo := NewConsentRepository(db)
	revokedAt := time.Now().UTC()
	reason := "changed my mind"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM consents WHERE id = $1 FOR UPDATE")).
		WithArgs("consent-1").
		WillReturnRows(consentRow("consent-1", false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE consents SET revoked = TRUE")).
		WithArgs("consent-1", revokedAt, reason).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	consent, alreadyRevoked, err := repo.Revoke(context.Background(), "consent-1", &reason, revokedAt,
		&models.AuditEvent{Action: models.AuditActionConsentRevoke, Resource: "consent"})
	require.NoError(t, err)
	require.False(t, alreadyRevoked)
	require.True(t, consent.Revoked)
	require.Equal(t, &reason, consent.RevokeReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentRepositoryRevokeDetectsDoubleRevoke(t *testing.T) {
	db, mock, cleanup := newConsentRepoMock(t)
	defer cleanup()

	repo := NewConsentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM consents WHERE id = $1 FOR UPDATE")).
		WithArgs("consent-1").
		WillReturnRows(consentRow("consent-1", true))
	mock.ExpectRollback()

	consent, alreadyRevoked, err := repo.Revoke(context.Background(), "consent-1", nil, time.Now().UTC(), nil)
	require.NoError(t, err)
	require.True(t, alreadyRevoked)
	require.True(t, consent.Revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsentRepositoryListForScope(t *testing.T) {
	db, mock, cleanup := newConsentRepoMock(t)
	defer cleanup()

	repo := NewConsentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("(job_id IS NULL OR job_id = $2)")).
		WithArgs("student-1", "job-1", "recruiter-1").
		WillReturnRows(consentRow("consent-1", false))

	consents, err := repo.ListForScope(context.Background(), "student-1",
		models.ConsentScope{JobID: "job-1", RecruiterID: "recruiter-1"})
	require.NoError(t, err)
	require.Len(t, consents, 1)
	require.EqualValues(t, models.ConsentDataFields, consents[0].DataFields)
	require.NoError(t, mock.ExpectationsWereMet())
}
