package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/placementcell/placement-api/internal/models"
	appErrors "github.com/placementcell/placement-api/pkg/errors"
)

type authRepoStub struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	tokens       map[string]*models.RefreshToken
	revokedIDs   []string
}

func newAuthRepoStub() *authRepoStub {
	return &authRepoStub{
		usersByEmail: make(map[string]*models.User),
		usersByID:    make(map[string]*models.User),
		tokens:       make(map[string]*models.RefreshToken),
	}
}

func (r *authRepoStub) addUser(user *models.User) {
	r.usersByEmail[user.Email] = user
	r.usersByID[user.ID] = user
}

func (r *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := r.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := r.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func (r *authRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

func (r *authRepoStub) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	r.tokens[token.Token] = token
	return nil
}

func (r *authRepoStub) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := r.tokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (r *authRepoStub) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	r.revokedIDs = append(r.revokedIDs, id)
	for _, t := range r.tokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func newAuthFixture(t *testing.T) (*AuthService, *authRepoStub, *auditWriterStub) {
	t.Helper()
	repo := newAuthRepoStub()
	audits := &auditWriterStub{}
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)
	dept := "CSE"
	repo.addUser(&models.User{
		ID:           "user-1",
		Email:        "reviewer@campus.edu",
		PasswordHash: string(hash),
		FullName:     "Dept Reviewer",
		Role:         models.RoleDeptReviewer,
		Department:   &dept,
		Active:       true,
	})
	svc := NewAuthService(repo, audits, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "placement-api",
	})
	return svc, repo, audits
}

func TestAuthLoginIssuesTokensAndAudit(t *testing.T) {
	svc, repo, audits := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reviewer@campus.edu",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Contains(t, repo.tokens, resp.RefreshToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleDeptReviewer, claims.Role)
	require.Equal(t, "CSE", claims.Department)

	require.Len(t, audits.events, 1)
	require.Equal(t, models.AuditActionLogin, audits.events[0].Action)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reviewer@campus.edu",
		Password: "wrong",
	})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, typed.Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)
	repo.usersByEmail["reviewer@campus.edu"].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reviewer@campus.edu",
		Password: "s3cret!",
	})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, typed.Code)
}

func TestAuthRefreshRotatesToken(t *testing.T) {
	svc, repo, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reviewer@campus.edu",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.True(t, repo.tokens[login.RefreshToken].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrUnauthorized.Code, typed.Code)
}

func TestAuthLogoutRejectsForeignToken(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "reviewer@campus.edu",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrForbidden.Code, typed.Code)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "user-1"))
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.ValidateToken("not-a-token")
	var typed *appErrors.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, appErrors.ErrUnauthorized.Code, typed.Code)
}
