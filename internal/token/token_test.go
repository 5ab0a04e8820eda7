package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpaque(t *testing.T) {
	t.Parallel()

	plain, digest, err := NewOpaque()
	require.NoError(t, err)

	assert.Len(t, plain, 64)
	assert.Len(t, digest, 64)
	assert.NotEqual(t, plain, digest)
	assert.Equal(t, digest, Digest(plain), "digest must be re-derivable from the plaintext")

	plain2, digest2, err := NewOpaque()
	require.NoError(t, err)
	assert.NotEqual(t, plain, plain2)
	assert.NotEqual(t, digest, digest2)
}

func TestDigestDeterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Digest("abc"), Digest("abc"))
	assert.NotEqual(t, Digest("abc"), Digest("abd"))
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("super-secret"), time.Hour)

	signed, err := codec.IssueSession("user-123")
	require.NoError(t, err)

	userID, issuedAt, err := codec.VerifySession(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
	assert.WithinDuration(t, time.Now(), issuedAt, 5*time.Second)
}

func TestVerifySessionExpired(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("super-secret"), -time.Minute)

	signed, err := codec.IssueSession("user-123")
	require.NoError(t, err)

	_, _, err = codec.VerifySession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifySessionWrongSecret(t *testing.T) {
	t.Parallel()

	signed, err := NewCodec([]byte("right"), time.Hour).IssueSession("user-123")
	require.NoError(t, err)

	_, _, err = NewCodec([]byte("wrong"), time.Hour).VerifySession(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifySessionMalformed(t *testing.T) {
	t.Parallel()

	codec := NewCodec([]byte("secret"), time.Hour)
	for _, tok := range []string{"", "not.a.jwt", "a.b"} {
		_, _, err := codec.VerifySession(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	}
}
