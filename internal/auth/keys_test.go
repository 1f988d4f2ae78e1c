package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osservatorio-istat/platform/internal/metadatastore"
)

func TestIssueKeyProducesVerifiableMaterial(t *testing.T) {
	issued, err := IssueKey()
	require.NoError(t, err)
	assert.Contains(t, issued.Plaintext, keyNamespace)
	assert.True(t, len(issued.Prefix) <= 12)

	candidate := &metadatastore.APIKey{KeyHash: issued.Hash}
	verified, err := VerifyKey(issued.Plaintext, []*metadatastore.APIKey{candidate}, time.Now())
	require.NoError(t, err)
	assert.Same(t, candidate, verified)
}

func TestVerifyKeyRejectsWrongKey(t *testing.T) {
	issued, err := IssueKey()
	require.NoError(t, err)
	candidate := &metadatastore.APIKey{KeyHash: issued.Hash}

	_, err = VerifyKey("osv_not-the-right-key", []*metadatastore.APIKey{candidate}, time.Now())
	require.Error(t, err)
}

func TestVerifyKeyRejectsExpiredCandidate(t *testing.T) {
	issued, err := IssueKey()
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	candidate := &metadatastore.APIKey{KeyHash: issued.Hash}
	candidate.ExpiresAt.Valid = true
	candidate.ExpiresAt.Time = past

	_, err = VerifyKey(issued.Plaintext, []*metadatastore.APIKey{candidate}, time.Now())
	require.Error(t, err)
}

func TestKeyPrefixTruncatesToTwelveChars(t *testing.T) {
	assert.Equal(t, "osv_abcdefgh", KeyPrefix("osv_abcdefgh12345"))
	assert.Equal(t, "osv_ab", KeyPrefix("osv_ab"))
}
