package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// KindOf reports whether token is a JWT or an opaque session secret.
func KindOf(token string) string {
	if _, err := Claims(token); err == nil {
		return KindJWT
	}
	return KindSession
}

// Claims decodes a JWT payload without verifying the signature. The client
// never holds the signing key; this is for display and expiry only.
func Claims(token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func expiry(token string) *time.Time {
	claims, err := Claims(token)
	if err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
