package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewAccessToken(t *testing.T) {
	tok, err := NewAccessToken("s3cret", "user_abc", "admin", time.Minute)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.Exp, 5*time.Second)

	parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) { return []byte("s3cret"), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "user_abc", claims["sub"])
	assert.Equal(t, "ADMIN", claims["role"])

	_, err = NewAccessToken("s3cret", " ", "USER", time.Minute)
	assert.Error(t, err)
}

func TestSecretHashing(t *testing.T) {
	hash, err := HashSecret("cron-token", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifySecret(hash, "cron-token"))
	assert.False(t, VerifySecret(hash, "other"))
	assert.False(t, VerifySecret("", "cron-token"))
}
