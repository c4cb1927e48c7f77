package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomato-writer-2024/PulseOpti-HR-sub005/internal/infrastructure/config"
)

func newTestSessionService() *SessionService {
	return NewSessionService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "hr-tenancy",
	})
}

func TestSessionService_IssueAndVerify(t *testing.T) {
	svc := newTestSessionService()

	token, err := svc.Issue(Session{TenantID: "tenant-1", UserID: "user-1", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	session, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", session.TenantID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "admin", session.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)
}

func TestSessionService_Issue_RequiresIdentity(t *testing.T) {
	svc := newTestSessionService()

	_, err := svc.Issue(Session{UserID: "user-1"}, time.Hour)
	assert.ErrorIs(t, err, ErrMissingTenantID)

	_, err = svc.Issue(Session{TenantID: "tenant-1"}, time.Hour)
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestSessionService_Verify_Expired(t *testing.T) {
	svc := newTestSessionService()
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := svc.Issue(Session{TenantID: "tenant-1", UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestSessionService_Verify_WrongSecret(t *testing.T) {
	token, err := newTestSessionService().Issue(Session{TenantID: "tenant-1", UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	other := NewSessionService(config.JWTConfig{Secret: "another-secret-key-at-least-32-chars", Issuer: "hr-tenancy"})
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionService_Verify_WrongIssuer(t *testing.T) {
	token, err := NewSessionService(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "someone-else",
	}).Issue(Session{TenantID: "tenant-1", UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = newTestSessionService().Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionService_Verify_RejectsNoneAlgorithm(t *testing.T) {
	claims := &Claims{TenantID: "tenant-1", UserID: "user-1"}
	claims.Issuer = "hr-tenancy"
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newTestSessionService().Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionService_Verify_MissingTenant(t *testing.T) {
	svc := newTestSessionService()
	claims := &Claims{UserID: "user-1"}
	claims.Issuer = "hr-tenancy"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrMissingTenantID)
}

func TestSessionService_Enabled(t *testing.T) {
	assert.True(t, newTestSessionService().Enabled())
	assert.False(t, NewSessionService(config.JWTConfig{}).Enabled())
}
