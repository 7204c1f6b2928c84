package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	_, err := NewJWTManager("", "planhub", time.Hour)
	assert.Error(t, err)
}

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewJWTManager("test-secret", "planhub", time.Hour)
	require.NoError(t, err)

	token, err := m.Generate("DUPONT", "session-abc", time.Now())
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "DUPONT", claims.Subject)
	assert.Equal(t, "session-abc", claims.SessionID)
}

func TestJWTExpired(t *testing.T) {
	m, err := NewJWTManager("test-secret", "planhub", time.Minute)
	require.NoError(t, err)

	token, err := m.Generate("DUPONT", "session-abc", time.Now().Add(-2*time.Minute))
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

func TestJWTWrongSecret(t *testing.T) {
	signer, err := NewJWTManager("secret-one", "planhub", time.Hour)
	require.NoError(t, err)
	verifier, err := NewJWTManager("secret-two", "planhub", time.Hour)
	require.NoError(t, err)

	token, err := signer.Generate("DUPONT", "session-abc", time.Now())
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestJWTWrongIssuer(t *testing.T) {
	signer, err := NewJWTManager("test-secret", "someone-else", time.Hour)
	require.NoError(t, err)
	verifier, err := NewJWTManager("test-secret", "planhub", time.Hour)
	require.NoError(t, err)

	token, err := signer.Generate("DUPONT", "session-abc", time.Now())
	require.NoError(t, err)

	_, err = verifier.Validate(token)
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestJWTGarbage(t *testing.T) {
	m, err := NewJWTManager("test-secret", "planhub", time.Hour)
	require.NoError(t, err)

	_, err = m.Validate("not.a.token")
	assert.True(t, errors.Is(err, ErrTokenInvalid))
}
