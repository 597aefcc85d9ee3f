package authn

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func validClaims() jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"aud":   "client-123",
		"sub":   "user-1",
		"email": "person@example.com",
		"exp":   float64(now.Add(time.Hour).Unix()),
		"iat":   float64(now.Add(-time.Minute).Unix()),
	}
}

func TestValidateClaimsAccepts(t *testing.T) {
	require.NoError(t, validateClaims(validClaims(), "client-123"))
}

func TestValidateClaimsRejectsWrongAudience(t *testing.T) {
	c := validClaims()
	c["aud"] = "someone-else"
	require.Error(t, validateClaims(c, "client-123"))
}

func TestValidateClaimsRejectsWrongIssuer(t *testing.T) {
	c := validClaims()
	c["iss"] = "https://evil.example.com"
	require.Error(t, validateClaims(c, "client-123"))
}

func TestValidateClaimsRejectsExpiredToken(t *testing.T) {
	c := validClaims()
	c["exp"] = float64(time.Now().Add(-time.Hour).Unix())
	require.Error(t, validateClaims(c, "client-123"))
}

func TestValidateClaimsRejectsFutureIssuedAt(t *testing.T) {
	c := validClaims()
	c["iat"] = float64(time.Now().Add(time.Hour).Unix())
	require.Error(t, validateClaims(c, "client-123"))
}

func TestVerifyGoogleIDTokenRejectsMalformedToken(t *testing.T) {
	_, err := VerifyGoogleIDToken(t.Context(), "client-123", "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidIDToken)
}
