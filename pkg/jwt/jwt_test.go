package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-access-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, "bh-hunter", time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, "bh-hunter", service.issuer)
	assert.Equal(t, time.Hour, service.accessTokenExpiry)
}

func TestGenerateAccessToken(t *testing.T) {
	service := NewService(testSecret, "bh-hunter", time.Hour)

	token, err := service.GenerateAccessToken(42, "maria", "TENANT")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "maria", claims.Username)
	assert.Equal(t, "TENANT", claims.Role)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "bh-hunter", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateAccessToken_Rejections(t *testing.T) {
	service := NewService(testSecret, "bh-hunter", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewService("another-secret", "bh-hunter", time.Hour)
		token, err := other.GenerateAccessToken(1, "owner", "OWNER")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := service.GenerateAccessTokenWithExpiry(1, "owner", "OWNER", -time.Minute)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
		assert.True(t, service.IsTokenExpired(token))
	})

	t.Run("wrong signing method", func(t *testing.T) {
		claims := Claims{UserID: 1, Role: "ADMIN", TokenType: AccessToken}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		token, err := service.GenerateAccessToken(1, "ghost", "")
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("wrong token type", func(t *testing.T) {
		claims := Claims{
			UserID:    1,
			Role:      "TENANT",
			TokenType: "refresh",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = service.ValidateAccessToken(token)
		assert.ErrorContains(t, err, "invalid token type")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := service.ValidateAccessToken("not-a-token")
		assert.Error(t, err)
		assert.True(t, service.IsTokenExpired("not-a-token"))
	})
}

func TestIsTokenExpired(t *testing.T) {
	service := NewService(testSecret, "bh-hunter", time.Hour)

	token, err := service.GenerateAccessToken(7, "tenant", "TENANT")
	require.NoError(t, err)
	assert.False(t, service.IsTokenExpired(token))
}
