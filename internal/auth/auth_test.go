package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_RoundTrip(t *testing.T) {
	token, err := GenerateJWT("s3cret", "admin")
	require.NoError(t, err)

	sub, err := ValidateJWT("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, "admin", sub)
}

func TestJWT_Rejects(t *testing.T) {
	token, err := GenerateJWT("s3cret", "admin")
	require.NoError(t, err)

	_, err = ValidateJWT("other", token)
	assert.Error(t, err, "wrong secret")

	_, err = ValidateJWT("s3cret", "not-a-token")
	assert.Error(t, err, "garbage")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	signed, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ValidateJWT("s3cret", signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "admin"})
	signed, err = noExpiry.SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = ValidateJWT("s3cret", signed)
	assert.Error(t, err, "missing exp")
}

func TestJWT_MissingSecret(t *testing.T) {
	_, err := GenerateJWT("", "admin")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = ValidateJWT("", "anything")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestPasswordHash(t *testing.T) {
	hash, err := PasswordHash("hunter2")
	require.NoError(t, err)
	assert.True(t, CheckPasswordHash("hunter2", hash))
	assert.False(t, CheckPasswordHash("hunter3", hash))

	again, err := PasswordHash(hash)
	require.NoError(t, err)
	assert.Equal(t, hash, again, "existing hashes are kept")

	empty, err := PasswordHash("")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.False(t, CheckPasswordHash("", empty))
	assert.False(t, CheckPasswordHash("anything", empty))
}
