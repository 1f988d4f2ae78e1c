package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerifyRoundTrip(t *testing.T) {
	m := NewTokenMinter([]byte("test-secret"), time.Hour, nil)

	token, err := m.Mint(1, "ingestion-bot", []string{"read", "write"})
	require.NoError(t, err)

	claims, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claims.APIKeyID)
	assert.True(t, claims.HasScope("read"))
	assert.False(t, claims.HasScope("admin"))
}

func TestAdminScopeImpliesAll(t *testing.T) {
	m := NewTokenMinter([]byte("test-secret"), time.Hour, nil)
	token, err := m.Mint(1, "bot", []string{"admin"})
	require.NoError(t, err)

	claims, err := m.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.True(t, claims.HasScope("read"))
	assert.True(t, claims.HasScope("anything"))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	m1 := NewTokenMinter([]byte("secret-one"), time.Hour, nil)
	m2 := NewTokenMinter([]byte("secret-two"), time.Hour, nil)

	token, err := m1.Mint(1, "bot", []string{"read"})
	require.NoError(t, err)

	_, err = m2.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	m := NewTokenMinter([]byte("test-secret"), -time.Minute, nil)
	token, err := m.Mint(1, "bot", []string{"read"})
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), token)
	require.Error(t, err)
}

func TestValidScopeRejectsUnknown(t *testing.T) {
	assert.True(t, ValidScope("read"))
	assert.True(t, ValidScope("powerbi"))
	assert.False(t, ValidScope("superuser"))
}

func TestHasScopeAdminImpliesAll(t *testing.T) {
	assert.True(t, HasScope([]string{"admin"}, "write"))
	assert.True(t, HasScope([]string{"read"}, "read"))
	assert.False(t, HasScope([]string{"read"}, "write"))
}

func TestRevokedTokenFailsVerification(t *testing.T) {
	m := NewTokenMinter([]byte("test-secret"), time.Hour, nil)
	token, err := m.Mint(1, "bot", []string{"read"})
	require.NoError(t, err)

	claims, err := m.Verify(context.Background(), token)
	require.NoError(t, err)

	err = m.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time)
	require.NoError(t, err)

	_, err = m.Verify(context.Background(), token)
	require.Error(t, err)
}
