package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lte-gateway/enodebd/internal/config"
	"github.com/lte-gateway/enodebd/pkg/crypto"
)

func newManager(t *testing.T) *JWTManager {
	t.Helper()
	hash, err := crypto.HashPassword("operator")
	require.NoError(t, err)
	return NewJWTManager(
		&config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour},
		config.AdminConfig{Username: "admin", PasswordHash: hash},
	)
}

func TestLoginAndValidate(t *testing.T) {
	m := newManager(t)

	token, expires, err := m.Login("admin", "operator")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Subject)
}

func TestLoginRejected(t *testing.T) {
	m := newManager(t)

	_, _, err := m.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = m.Login("root", "operator")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	noPassword := NewJWTManager(&config.JWTConfig{Secret: "x", AccessTokenTTL: time.Hour}, config.AdminConfig{Username: "admin"})
	_, _, err = noPassword.Login("admin", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejects(t *testing.T) {
	m := newManager(t)
	token, _, err := m.GenerateToken("admin")
	require.NoError(t, err)

	other := NewJWTManager(&config.JWTConfig{Secret: "other", AccessTokenTTL: time.Hour}, config.AdminConfig{})
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.ValidateToken(token)
	assert.Error(t, err, "expired")

	_, err = m.ValidateToken("garbage")
	assert.Error(t, err)
}
