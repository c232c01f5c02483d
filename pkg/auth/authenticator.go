package auth

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/marmos91/depotfs/internal/ratelimiter"
	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/cas"
)

// Authorization schemes accepted on the opaque-token path. Matching is
// case-insensitive.
const (
	SchemeBearer = "bearer"
	SchemeTicket = "ticket"
	SchemeAgent  = "agent"
)

// AuthenticatorConfig configures credential validation.
type AuthenticatorConfig struct {
	// IssuerURL is the expected identity-provider issuer for JWT access
	// tokens. Empty disables the JWT path.
	IssuerURL string `mapstructure:"issuer_url"`

	// AdminUsers lists user ids bootstrapped directly to the admin role
	// the first time they authenticate.
	AdminUsers []string `mapstructure:"admin_users"`

	// MaxClockSkew bounds signed-request timestamp drift. Zero applies
	// DefaultMaxClockSkew (300s).
	MaxClockSkew time.Duration `mapstructure:"max_clock_skew"`

	// RateLimit throttles authentication attempts (sustained checks per
	// second). Zero disables throttling.
	RateLimit uint `mapstructure:"rate_limit"`

	// RateBurst is the burst capacity when RateLimit is set.
	RateBurst uint `mapstructure:"rate_burst"`
}

// Authenticator resolves incoming requests to a normalized Context.
//
// Scheme selection:
//  1. Signed-request headers present and a pubkey store configured →
//     signature verification against the registered key.
//  2. "Authorization: Bearer <jwt>" with three dot-separated segments →
//     access-token claim validation.
//  3. Any other Bearer/Ticket/Agent value → opaque token lookup.
//
// User and agent credentials then pass through role elevation; tickets do
// not, their capabilities are fixed at issuance.
type Authenticator struct {
	authority *authority.Authority
	roles     RoleStore
	pubkeys   PubKeyStore
	config    AuthenticatorConfig
	limiter   *ratelimiter.RateLimiter
	now       func() time.Time
}

// NewAuthenticator creates an authenticator. The pubkey store may be nil,
// which disables the signed-request path entirely.
func NewAuthenticator(auth *authority.Authority, roles RoleStore, pubkeys PubKeyStore, config AuthenticatorConfig) *Authenticator {
	return NewAuthenticatorWithClock(auth, roles, pubkeys, config, time.Now)
}

// NewAuthenticatorWithClock creates an authenticator with an injected
// clock.
func NewAuthenticatorWithClock(auth *authority.Authority, roles RoleStore, pubkeys PubKeyStore, config AuthenticatorConfig, clock func() time.Time) *Authenticator {
	if config.MaxClockSkew == 0 {
		config.MaxClockSkew = DefaultMaxClockSkew
	}
	return &Authenticator{
		authority: auth,
		roles:     roles,
		pubkeys:   pubkeys,
		config:    config,
		limiter:   ratelimiter.New(config.RateLimit, config.RateBurst),
		now:       clock,
	}
}

// Authenticate resolves the request's credentials to a Context. All
// denial outcomes are typed *cas.StoreError values; the transport maps
// them to wire status codes.
func (a *Authenticator) Authenticate(ctx context.Context, req *Request) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Throttling guards the token and signature checks against
	// brute-force probing.
	if !a.limiter.Allow() {
		return nil, accessDenied("too many authentication attempts")
	}

	if a.pubkeys != nil && hasSignedHeaders(req.Header) {
		return a.authenticateSigned(ctx, req)
	}

	scheme, value, ok := parseAuthorization(req.Header.Get("Authorization"))
	if !ok {
		return nil, accessDenied("no credentials presented")
	}

	if scheme == SchemeBearer && a.config.IssuerURL != "" && looksLikeJWT(value) {
		return a.authenticateJWT(ctx, value)
	}

	return a.authenticateOpaque(ctx, value)
}

// SetRole assigns a user's role. Exposed so an admin surface can promote
// users past the unauthorized default.
func (a *Authenticator) SetRole(ctx context.Context, userID string, role Role) (*RoleRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, malformedCredential("user id must not be empty")
	}
	if !role.Valid() {
		return nil, malformedCredential("unknown role: " + string(role))
	}
	return a.roles.SetRole(ctx, userID, role, a.now())
}

func (a *Authenticator) authenticateSigned(ctx context.Context, req *Request) (*Context, error) {
	pubKey := req.Header.Get(HeaderPubKey)
	if pubKey == "" || req.Header.Get(HeaderTimestamp) == "" || req.Header.Get(HeaderSignature) == "" {
		return nil, malformedCredential("incomplete signed-request headers")
	}

	key, err := a.pubkeys.GetKey(ctx, pubKey)
	if err != nil {
		if cas.IsNotFound(err) {
			return nil, accessDenied("unknown signing key")
		}
		return nil, err
	}
	if key.Expired(a.now()) {
		return nil, &cas.StoreError{
			Code:    cas.ErrExpired,
			Message: "signing key expired",
		}
	}

	if err := verifySignedRequest(req, key, a.config.MaxClockSkew, a.now()); err != nil {
		return nil, err
	}

	return a.elevate(ctx, &Context{
		UserID: key.UserID,
		Realm:  authority.RealmForUser(key.UserID),
	})
}

func (a *Authenticator) authenticateJWT(ctx context.Context, value string) (*Context, error) {
	claims, err := decodeAccessToken(value, a.config.IssuerURL, a.now())
	if err != nil {
		return nil, err
	}

	return a.elevate(ctx, &Context{
		UserID: claims.Subject,
		Realm:  authority.RealmForUser(claims.Subject),
	})
}

func (a *Authenticator) authenticateOpaque(ctx context.Context, tokenID string) (*Context, error) {
	token, err := a.authority.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if token.Type == authority.TokenTypeTicket {
		// Ticket capabilities are fixed at issuance; no role elevation.
		scope := token.Scope
		if scope == nil {
			scope = []cas.Key{}
		}
		return &Context{
			Token:        token,
			Realm:        token.Realm,
			CanRead:      true,
			CanWrite:     token.Commit != nil,
			AllowedScope: scope,
		}, nil
	}

	return a.elevate(ctx, &Context{
		Token:  token,
		UserID: token.UserID,
		Realm:  token.Realm,
	})
}

// elevate applies the user's role to the context. Unknown users are
// bootstrapped on first sight: unauthorized by default, admin when
// allow-listed. The write-on-read is deliberate and idempotent.
func (a *Authenticator) elevate(ctx context.Context, authCtx *Context) (*Context, error) {
	record, err := a.roles.GetRole(ctx, authCtx.UserID)
	if cas.IsNotFound(err) {
		role := RoleUnauthorized
		if slices.Contains(a.config.AdminUsers, authCtx.UserID) {
			role = RoleAdmin
		}
		record, err = a.roles.SetRole(ctx, authCtx.UserID, role, a.now())
	}
	if err != nil {
		return nil, err
	}

	switch record.Role {
	case RoleAuthorized:
		authCtx.CanRead = true
		authCtx.CanWrite = true
		authCtx.CanIssueTicket = true
	case RoleAdmin:
		authCtx.CanRead = true
		authCtx.CanWrite = true
		authCtx.CanIssueTicket = true
		authCtx.CanManageUsers = true
	default:
		// Unauthorized users keep a resolved identity but no capabilities.
	}
	return authCtx, nil
}

// parseAuthorization splits "Scheme value" and normalizes the scheme.
// Unknown schemes do not match.
func parseAuthorization(header string) (scheme string, value string, ok bool) {
	rawScheme, rawValue, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return "", "", false
	}
	scheme = strings.ToLower(rawScheme)
	value = strings.TrimSpace(rawValue)
	if value == "" {
		return "", "", false
	}
	switch scheme {
	case SchemeBearer, SchemeTicket, SchemeAgent:
		return scheme, value, true
	}
	return "", "", false
}
