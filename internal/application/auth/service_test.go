package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerifyRoundtrip(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.Issue("buyer-1", RoleBuyer)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", principal.Subject)
	assert.Equal(t, RoleBuyer, principal.Role)
	assert.False(t, principal.IsAdmin())
}

func TestIssueDefaultsRole(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.Issue("buyer-1", "")
	require.NoError(t, err)

	principal, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleBuyer, principal.Role)
}

func TestIssueRequiresSubject(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	_, err := svc.Issue("", RoleBuyer)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	token, err := issuer.Issue("buyer-1", RoleBuyer)
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	_, err := svc.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := NewService("test-secret", time.Hour)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := svc.Issue("buyer-1", RoleBuyer)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAdminRole(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	token, err := svc.Issue("ops-1", RoleAdmin)
	require.NoError(t, err)

	principal, err := svc.Verify(token)
	require.NoError(t, err)
	assert.True(t, principal.IsAdmin())
}
