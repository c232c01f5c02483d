package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// Signed-request header names. All three must be present for the signed
// path to engage.
const (
	HeaderPubKey    = "X-Awp-Pubkey"
	HeaderTimestamp = "X-Awp-Timestamp"
	HeaderSignature = "X-Awp-Signature"
)

// DefaultMaxClockSkew bounds how far a signed request's timestamp may lie
// from server time before it is rejected as a replay.
const DefaultMaxClockSkew = 300 * time.Second

// CanonicalString builds the exact byte sequence a signed request covers:
//
//	{timestamp}.{METHOD}.{path+query}.{base64url(sha256(body))}
//
// The method is uppercased and the body hash uses unpadded base64url.
// Field order and separators are fixed for cross-implementation signature
// compatibility.
func CanonicalString(timestamp string, method string, pathAndQuery string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	return timestamp + "." +
		strings.ToUpper(method) + "." +
		pathAndQuery + "." +
		base64.RawURLEncoding.EncodeToString(bodyHash[:])
}

// hasSignedHeaders reports whether any signed-request header is present.
// One header without the others is a malformed attempt, not a fallthrough
// to another scheme.
func hasSignedHeaders(header http.Header) bool {
	return header.Get(HeaderPubKey) != "" ||
		header.Get(HeaderTimestamp) != "" ||
		header.Get(HeaderSignature) != ""
}

// verifySignedRequest checks a request's signature headers against the
// registered key and the clock. It returns the registered key's owning
// user id on success.
func verifySignedRequest(req *Request, key *AuthorizedKey, maxSkew time.Duration, now time.Time) error {
	timestamp := req.Header.Get(HeaderTimestamp)
	signature := req.Header.Get(HeaderSignature)

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return malformedCredential("unparseable signature timestamp: " + timestamp)
	}
	skew := now.Sub(time.Unix(seconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return &cas.StoreError{
			Code:    cas.ErrAccessDenied,
			Message: "signature timestamp outside allowed clock skew",
		}
	}

	publicKey, err := parsePublicKey(key.PublicKey)
	if err != nil {
		return err
	}

	signatureBytes, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return malformedCredential("unparseable request signature")
	}

	payload := sha256.Sum256([]byte(CanonicalString(timestamp, req.Method, req.PathAndQuery, req.Body)))
	if !ecdsa.VerifyASN1(publicKey, payload[:], signatureBytes) {
		return &cas.StoreError{
			Code:    cas.ErrAccessDenied,
			Message: "request signature verification failed",
		}
	}
	return nil
}

// parsePublicKey decodes a base64url PKIX public key and requires it to be
// ECDSA over P-256.
func parsePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, malformedCredential("unparseable public key encoding")
	}
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, malformedCredential("unparseable public key")
	}
	publicKey, ok := parsed.(*ecdsa.PublicKey)
	if !ok || publicKey.Curve != elliptic.P256() {
		return nil, malformedCredential("public key is not ECDSA P-256")
	}
	return publicKey, nil
}

// EncodePublicKey returns the base64url PKIX form of a public key, the
// representation presented in the pubkey header and stored in the
// PubKeyStore.
func EncodePublicKey(publicKey *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(der), nil
}

func malformedCredential(message string) error {
	return &cas.StoreError{
		Code:    cas.ErrInvalidArgument,
		Message: message,
	}
}
