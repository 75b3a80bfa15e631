package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokenIsStablePerSession(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()

	first, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	second, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NoError(t, m.VerifyToken(context.Background(), sess, first))
}

func TestCSRFRejectsForeignTokens(t *testing.T) {
	m := NewCSRFManager("secret")
	a, b := newSession(), newSession()

	tokenA, err := m.EnsureToken(context.Background(), a)
	require.NoError(t, err)
	_, err = m.EnsureToken(context.Background(), b)
	require.NoError(t, err)

	assert.ErrorIs(t, m.VerifyToken(context.Background(), b, tokenA), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), a, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, m.VerifyToken(context.Background(), newSession(), tokenA), ErrCSRFTokenMissing)
}

func TestCSRFTokenNotValidAfterRotate(t *testing.T) {
	m := NewCSRFManager("secret")
	sess := newSession()
	token, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	sess.Rotate()
	fresh, err := m.EnsureToken(context.Background(), sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, fresh)
	assert.Error(t, m.VerifyToken(context.Background(), sess, token))
}

func TestCSRFDifferentSecretsDisagree(t *testing.T) {
	sess := newSession()
	token, err := NewCSRFManager("one").EnsureToken(context.Background(), sess)
	require.NoError(t, err)

	assert.ErrorIs(t, NewCSRFManager("two").VerifyToken(context.Background(), sess, token), ErrCSRFTokenMismatch)
}
