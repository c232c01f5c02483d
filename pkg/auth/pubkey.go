package auth

import (
	"context"
	"time"
)

// AuthorizedKey is a registered signing key. The key material is the
// base64url-encoded PKIX DER form of an ECDSA P-256 public key, exactly as
// presented in the signed-request pubkey header.
type AuthorizedKey struct {
	// PublicKey is the base64url PKIX encoding of the public key
	PublicKey string

	// UserID is the user the key signs for
	UserID string

	// CreatedAt is when the key was registered
	CreatedAt time.Time

	// ExpiresAt is the key's expiry instant. Zero means no expiry.
	ExpiresAt time.Time
}

// Expired reports whether the key is past its expiry at the given instant.
// The boundary is strict, matching token expiry.
func (k *AuthorizedKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && k.ExpiresAt.Before(now)
}

// PubKeyStore persists authorized signing keys, looked up by the exact
// encoded key string a request presents.
//
// Error Contract:
//   - GetKey of an unregistered key returns *cas.StoreError with
//     ErrNotFound.
type PubKeyStore interface {
	// GetKey retrieves a registered key by its encoded form.
	GetKey(ctx context.Context, publicKey string) (*AuthorizedKey, error)

	// PutKey registers or replaces a key.
	PutKey(ctx context.Context, key *AuthorizedKey) error

	// DeleteKey removes a registered key.
	DeleteKey(ctx context.Context, publicKey string) error
}
