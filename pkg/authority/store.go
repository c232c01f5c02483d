package authority

import "context"

// TokenStore persists credentials.
//
// Error Contract:
//   - GetToken/DeleteToken/MutateToken on an absent id return
//     *cas.StoreError with ErrNotFound.
//
// Thread Safety:
// Implementations must be safe for concurrent use. MutateToken must
// serialize mutations per token id: two racing callers observe each other's
// writes, never a stale snapshot. The single-use ticket commit latch
// depends on this.
type TokenStore interface {
	// GetToken retrieves a token by id. Expiry is NOT applied here; the
	// Authority owns the is-live predicate so that every caller applies
	// the same boundary rule.
	GetToken(ctx context.Context, id string) (*Token, error)

	// PutToken stores a token, overwriting any previous record with the
	// same id.
	PutToken(ctx context.Context, token *Token) error

	// DeleteToken removes a token by id.
	DeleteToken(ctx context.Context, id string) error

	// MutateToken atomically applies fn to the stored token and persists
	// the result. If fn returns an error, the token is left unchanged and
	// the error is returned verbatim.
	MutateToken(ctx context.Context, id string, fn func(*Token) error) (*Token, error)
}
