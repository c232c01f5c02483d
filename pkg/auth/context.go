// Package auth normalizes the three credential presentation schemes into
// one capability context.
//
// Authentication is a state machine over scheme detection, not a linear
// pipeline: signed-request headers win when present, then a Bearer value
// shaped like a JWT takes the decode path, and everything else is an
// opaque token id resolved against the token store. Whatever the path,
// the caller receives the same normalized Context and never inspects the
// credential again.
package auth

import (
	"net/http"

	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/cas"
)

// Context is the normalized result of authentication. It is passed to all
// operations that require permission checking; transport handlers never
// look at raw credentials after this point.
type Context struct {
	// Token is the resolved credential for the opaque-token path.
	// Nil for signed-request and JWT authentication.
	Token *authority.Token

	// UserID is the authenticated user. Empty for ticket credentials,
	// which authenticate a capability rather than a person.
	UserID string

	// Realm is the tenant namespace all subsequent checks are scoped to
	Realm string

	// CanRead grants read access within the realm
	CanRead bool

	// CanWrite grants write access within the realm
	CanWrite bool

	// CanIssueTicket grants ticket issuance
	CanIssueTicket bool

	// CanManageUsers grants role administration
	CanManageUsers bool

	// AllowedScope restricts reads to the listed DAG roots and their
	// closures. Nil means unrestricted within the realm; tickets always
	// carry their issuance scope here.
	AllowedScope []cas.Key
}

// ScopeRestricted reports whether reads are limited to AllowedScope.
func (c *Context) ScopeRestricted() bool {
	return c.AllowedScope != nil
}

// Request is the transport-independent view of an incoming request. The
// embedding transport fills it from its own request type; this library
// never reads from the network.
type Request struct {
	// Method is the HTTP method, any case
	Method string

	// PathAndQuery is the request path including the raw query string
	PathAndQuery string

	// Body is the full request body. May be nil for bodyless requests.
	Body []byte

	// Header holds the request headers
	Header http.Header
}
