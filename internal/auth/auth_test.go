package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupViper(t *testing.T) {
	t.Helper()
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	t.Cleanup(viper.Reset)
}

func TestPasswordHashing(t *testing.T) {
	setupViper(t)

	hashed, err := HashPassword("testpassword")
	assert.NoError(t, err)
	assert.Len(t, strings.Split(hashed, "$"), 2)
	assert.NotContains(t, hashed, "testpassword")

	assert.True(t, VerifyPassword("testpassword", hashed))
	assert.False(t, VerifyPassword("wrongpassword", hashed))

	other, err := HashPassword("testpassword")
	assert.NoError(t, err)
	assert.NotEqual(t, hashed, other, "salts must differ")

	t.Run("malformed hashes never verify", func(t *testing.T) {
		for _, h := range []string{"", "testpassword", "a$b$c", "!!!$AAAA", "AAAA$!!!", "AAAA$"} {
			assert.False(t, VerifyPassword("testpassword", h), h)
		}
	})
}

func TestTokens(t *testing.T) {
	setupViper(t)

	t.Run("round trip", func(t *testing.T) {
		token, expiresAt, err := GenerateToken(123, "admin")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

		claims, err := ParseToken(token)
		require.NoError(t, err)
		assert.Equal(t, int64(123), claims.UserID)
		assert.Equal(t, "admin", claims.Role)
		assert.Equal(t, time.Hour, claims.RemainingTTL(expiresAt.Add(-time.Hour)))
		assert.Equal(t, time.Second, claims.RemainingTTL(expiresAt.Add(time.Hour)))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := GenerateToken(123, "user")
		require.NoError(t, err)

		viper.Set("jwt.secret_key", "rotated")
		defer viper.Set("jwt.secret_key", "test-secret")
		_, err = ParseToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			UserID:           5,
			Role:             "user",
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = ParseToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other signing methods are refused", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: 5, Role: "admin"})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = ParseToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing user id", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "admin"})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = ParseToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	assert.Equal(t, "blacklist:abc", BlacklistKey("abc"))
}
