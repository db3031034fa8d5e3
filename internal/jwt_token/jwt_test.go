package jwttoken

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/pkg/domain"
	dErrors "veritas/pkg/domain-errors"
)

var (
	jwtService = NewJWTService("test-signing-key", "test-issuer", "test-audience")
	caller     = domain.MustAddress("0x00000000000000000000000000000000000000c1")
	expiresIn  = time.Hour
)

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(caller, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	got, err := claims.Caller()
	require.NoError(t, err)
	assert.Equal(t, caller, got)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_GenerateAccessToken_ZeroAddress(t *testing.T) {
	_, err := jwtService.GenerateAccessToken(domain.ZeroAddress, expiresIn)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.EqualError(t, err, "invalid token")
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(caller, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.EqualError(t, err, "token has expired")
}

func Test_ValidateToken_WrongAudience(t *testing.T) {
	other := NewJWTService("test-signing-key", "test-issuer", "someone-else")
	token, err := other.GenerateAccessToken(caller, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Adapter_RejectsNonAddressSubject(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    "test-issuer",
			Audience:  []string{"test-audience"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	_, err = NewJWTServiceAdapter(jwtService).ValidateToken(signed)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
