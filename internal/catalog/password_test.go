package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyRoundTrip(t *testing.T) {
	hash, err := hashPassword("correct-horse")
	require.NoError(t, err)
	assert.Contains(t, hash, "$")

	ok, upgrade := verifyPassword(hash, "correct-horse")
	assert.True(t, ok)
	assert.False(t, upgrade)

	ok, _ = verifyPassword(hash, "wrong")
	assert.False(t, ok)
}

func TestLegacyPlaintextAccepted(t *testing.T) {
	ok, upgrade := verifyPassword("plaintext-secret", "plaintext-secret")
	assert.True(t, ok)
	assert.True(t, upgrade)

	ok, upgrade = verifyPassword("plaintext-secret", "nope")
	assert.False(t, ok)
	assert.False(t, upgrade)
}

func TestEncodeWithSaltDeterministic(t *testing.T) {
	a := encodeWithSalt("pw", "deadbeef")
	b := encodeWithSalt("pw", "deadbeef")
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "deadbeef$"))
}
