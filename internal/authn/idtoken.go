// Package authn verifies the bearer ID token an API caller presents on
// every request. Token issuance and refresh are out of scope here — a
// caller is assumed to already hold a Google-issued ID token; this
// package only checks that it is genuine, unexpired, and aimed at this
// app's OAuth client before trusting its subject as the acting user.
package authn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

const googleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var ErrInvalidIDToken = errors.New("authn: invalid id token")

// Identity is the verified caller extracted from an ID token's claims.
type Identity struct {
	Subject string
	Email   string
}

// VerifyGoogleIDToken checks tokenString's signature against Google's
// published JWKS, then its issuer/audience/exp/iat, and returns the
// caller it names. audience must match the app's OAuth client id.
func VerifyGoogleIDToken(ctx context.Context, audience, tokenString string) (Identity, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: parse: %v", ErrInvalidIDToken, err)
	}
	kid, ok := unverified.Header["kid"].(string)
	if !ok {
		return Identity{}, fmt.Errorf("%w: missing kid", ErrInvalidIDToken)
	}

	key, err := googlePublicKey(ctx, kid)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: fetch key: %v", ErrInvalidIDToken, err)
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidIDToken
	}
	if err := validateClaims(claims, audience); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("%w: missing sub", ErrInvalidIDToken)
	}
	return Identity{Subject: sub, Email: email}, nil
}

func validateClaims(claims jwt.MapClaims, audience string) error {
	iss, ok := claims["iss"].(string)
	if !ok || !strings.HasPrefix(iss, "https://accounts.google.com") {
		return errors.New("invalid issuer")
	}
	aud, ok := claims["aud"].(string)
	if !ok || aud != audience {
		return errors.New("invalid audience")
	}
	exp, ok := claims["exp"].(float64)
	if !ok || float64(time.Now().Unix()) > exp {
		return errors.New("token expired")
	}
	iat, ok := claims["iat"].(float64)
	if !ok || float64(time.Now().Unix()) < iat {
		return errors.New("token used before issued")
	}
	return nil
}

func googlePublicKey(ctx context.Context, kid string) (interface{}, error) {
	set, err := jwk.Fetch(ctx, googleJWKSURL)
	if err != nil {
		return nil, err
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key id %q not found in JWKS", kid)
	}
	return jwk.PublicKeyOf(key)
}
