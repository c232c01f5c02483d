package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// accessTokenClaims is the subset of JWT claims this library inspects.
type accessTokenClaims struct {
	Issuer   string `json:"iss"`
	Subject  string `json:"sub"`
	Expiry   int64  `json:"exp"`
	TokenUse string `json:"token_use"`
}

// looksLikeJWT reports whether a Bearer value has the three dot-separated
// segments of a compact JWT. Anything else is treated as an opaque token
// id.
func looksLikeJWT(value string) bool {
	return strings.Count(value, ".") == 2
}

// decodeAccessToken decodes and validates a JWT access token's claims.
//
// The signature is NOT verified here. This library sits behind a gateway
// that has already validated the token cryptographically; re-checking the
// claims (issuer, expiry, token use, subject) guards against a
// misconfigured upstream, not a forged token. Deployments without such a
// gateway must not enable the JWT path.
func decodeAccessToken(value string, expectedIssuer string, now time.Time) (*accessTokenClaims, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 3 {
		return nil, malformedCredential("access token is not a compact JWT")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, malformedCredential("unparseable access token payload")
	}

	var claims accessTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, malformedCredential("unparseable access token claims")
	}

	if claims.Issuer != expectedIssuer {
		return nil, accessDenied("access token issuer mismatch")
	}
	if time.Unix(claims.Expiry, 0).Before(now) {
		return nil, &cas.StoreError{
			Code:    cas.ErrExpired,
			Message: "access token expired",
		}
	}
	if claims.TokenUse != "access" {
		return nil, accessDenied("token is not an access token")
	}
	if claims.Subject == "" {
		return nil, accessDenied("access token has no subject")
	}

	return &claims, nil
}

func accessDenied(message string) error {
	return &cas.StoreError{
		Code:    cas.ErrAccessDenied,
		Message: message,
	}
}
