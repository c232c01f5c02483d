package auth_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/auth"
	authmemory "github.com/marmos91/depotfs/pkg/auth/memory"
	"github.com/marmos91/depotfs/pkg/authority"
	authoritymemory "github.com/marmos91/depotfs/pkg/authority/memory"
	"github.com/marmos91/depotfs/pkg/cas"
)

const testIssuer = "https://idp.example.com/pool"

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type fixture struct {
	authenticator *auth.Authenticator
	authority     *authority.Authority
	pubkeys       *authmemory.PubKeyStore
	clock         *testClock
}

func newFixture(t *testing.T, config auth.AuthenticatorConfig) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	tokens := authoritymemory.NewTokenStore()
	tokenAuthority := authority.NewAuthorityWithClock(tokens, nil, clock.Now)
	pubkeys := authmemory.NewPubKeyStore()
	if config.IssuerURL == "" {
		config.IssuerURL = testIssuer
	}

	return &fixture{
		authenticator: auth.NewAuthenticatorWithClock(tokenAuthority, authmemory.NewRoleStore(), pubkeys, config, clock.Now),
		authority:     tokenAuthority,
		pubkeys:       pubkeys,
		clock:         clock,
	}
}

// accessToken builds a compact JWT with an unsigned placeholder signature
// segment. Claim validation never touches the signature.
func accessToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	header, err := json.Marshal(map[string]string{"alg": "RS256", "typ": "JWT"})
	require.NoError(t, err)
	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(header) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func bearerRequest(token string) *auth.Request {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return &auth.Request{
		Method:       "GET",
		PathAndQuery: "/v1/blobs",
		Header:       header,
	}
}

// signedRequest produces a request carrying valid signature headers for
// the given key.
func signedRequest(t *testing.T, privateKey *ecdsa.PrivateKey, method string, pathAndQuery string, body []byte, issuedAt time.Time) *auth.Request {
	t.Helper()

	encodedKey, err := auth.EncodePublicKey(&privateKey.PublicKey)
	require.NoError(t, err)

	timestamp := fmt.Sprintf("%d", issuedAt.Unix())
	digest := sha256.Sum256([]byte(auth.CanonicalString(timestamp, method, pathAndQuery, body)))
	signature, err := ecdsa.SignASN1(rand.Reader, privateKey, digest[:])
	require.NoError(t, err)

	header := http.Header{}
	header.Set(auth.HeaderPubKey, encodedKey)
	header.Set(auth.HeaderTimestamp, timestamp)
	header.Set(auth.HeaderSignature, base64.RawURLEncoding.EncodeToString(signature))

	return &auth.Request{
		Method:       method,
		PathAndQuery: pathAndQuery,
		Body:         body,
		Header:       header,
	}
}

func TestAuthenticateNoCredentials(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})

	_, err := f.authenticator.Authenticate(context.Background(), &auth.Request{Header: http.Header{}})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}

func TestAuthenticateUnknownScheme(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})

	header := http.Header{}
	header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err := f.authenticator.Authenticate(context.Background(), &auth.Request{Header: header})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}

func TestJWTNewUserIsLockedOut(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	token := accessToken(t, map[string]any{
		"iss":       testIssuer,
		"sub":       "alice",
		"exp":       f.clock.Now().Add(time.Hour).Unix(),
		"token_use": "access",
	})

	authCtx, err := f.authenticator.Authenticate(ctx, bearerRequest(token))
	require.NoError(t, err)
	assert.Equal(t, "alice", authCtx.UserID)
	assert.Equal(t, "usr_alice", authCtx.Realm)
	assert.False(t, authCtx.CanRead)
	assert.False(t, authCtx.CanWrite)
	assert.False(t, authCtx.CanIssueTicket)
	assert.False(t, authCtx.CanManageUsers)
}

func TestJWTRoleElevationAfterPromotion(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	token := accessToken(t, map[string]any{
		"iss":       testIssuer,
		"sub":       "alice",
		"exp":       f.clock.Now().Add(time.Hour).Unix(),
		"token_use": "access",
	})

	_, err := f.authenticator.Authenticate(ctx, bearerRequest(token))
	require.NoError(t, err)

	_, err = f.authenticator.SetRole(ctx, "alice", auth.RoleAuthorized)
	require.NoError(t, err)

	authCtx, err := f.authenticator.Authenticate(ctx, bearerRequest(token))
	require.NoError(t, err)
	assert.True(t, authCtx.CanRead)
	assert.True(t, authCtx.CanWrite)
	assert.True(t, authCtx.CanIssueTicket)
	assert.False(t, authCtx.CanManageUsers)
}

func TestJWTAdminAllowList(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{AdminUsers: []string{"root"}})
	ctx := context.Background()

	token := accessToken(t, map[string]any{
		"iss":       testIssuer,
		"sub":       "root",
		"exp":       f.clock.Now().Add(time.Hour).Unix(),
		"token_use": "access",
	})

	authCtx, err := f.authenticator.Authenticate(ctx, bearerRequest(token))
	require.NoError(t, err)
	assert.True(t, authCtx.CanManageUsers)
}

func TestJWTClaimValidation(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()
	live := f.clock.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims map[string]any
		code   cas.ErrorCode
	}{
		{
			name:   "wrong_issuer",
			claims: map[string]any{"iss": "https://evil.example.com", "sub": "alice", "exp": live, "token_use": "access"},
			code:   cas.ErrAccessDenied,
		},
		{
			name:   "expired",
			claims: map[string]any{"iss": testIssuer, "sub": "alice", "exp": f.clock.Now().Add(-time.Hour).Unix(), "token_use": "access"},
			code:   cas.ErrExpired,
		},
		{
			name:   "wrong_token_use",
			claims: map[string]any{"iss": testIssuer, "sub": "alice", "exp": live, "token_use": "id"},
			code:   cas.ErrAccessDenied,
		},
		{
			name:   "missing_subject",
			claims: map[string]any{"iss": testIssuer, "exp": live, "token_use": "access"},
			code:   cas.ErrAccessDenied,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.authenticator.Authenticate(ctx, bearerRequest(accessToken(t, tt.claims)))
			require.Error(t, err)
			assert.True(t, cas.IsCode(err, tt.code))
		})
	}
}

func TestOpaqueUserToken(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	token, err := f.authority.CreateUserToken(ctx, "alice", "", 0)
	require.NoError(t, err)
	_, err = f.authenticator.SetRole(ctx, "alice", auth.RoleAuthorized)
	require.NoError(t, err)

	authCtx, err := f.authenticator.Authenticate(ctx, bearerRequest(token.ID))
	require.NoError(t, err)
	require.NotNil(t, authCtx.Token)
	assert.Equal(t, token.ID, authCtx.Token.ID)
	assert.Equal(t, "alice", authCtx.UserID)
	assert.True(t, authCtx.CanRead)
	assert.False(t, authCtx.ScopeRestricted())
}

func TestOpaqueTicketHasFixedCapabilities(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	issuer, err := f.authority.CreateUserToken(ctx, "alice", "", 0)
	require.NoError(t, err)

	root := cas.ComputeKey([]byte("scoped tree"))
	ticket, err := f.authority.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_alice",
		IssuerID: issuer.ID,
		Scope:    []cas.Key{root},
	})
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Ticket "+ticket.ID)
	authCtx, err := f.authenticator.Authenticate(ctx, &auth.Request{Header: header})
	require.NoError(t, err)

	// No role record exists for anyone; the ticket still reads its scope.
	assert.True(t, authCtx.CanRead)
	assert.False(t, authCtx.CanWrite)
	assert.False(t, authCtx.CanIssueTicket)
	assert.True(t, authCtx.ScopeRestricted())
	assert.Equal(t, []cas.Key{root}, authCtx.AllowedScope)
	assert.Empty(t, authCtx.UserID)
}

func TestOpaqueExpiredToken(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	token, err := f.authority.CreateUserToken(ctx, "alice", "", 0)
	require.NoError(t, err)

	f.clock.Advance(authority.DefaultUserTokenTTL + time.Second)

	_, err = f.authenticator.Authenticate(ctx, bearerRequest(token.ID))
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrExpired))
}

func TestSignedRequestRoundtrip(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encodedKey, err := auth.EncodePublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, f.pubkeys.PutKey(ctx, &auth.AuthorizedKey{
		PublicKey: encodedKey,
		UserID:    "alice",
		CreatedAt: f.clock.Now(),
	}))
	_, err = f.authenticator.SetRole(ctx, "alice", auth.RoleAuthorized)
	require.NoError(t, err)

	req := signedRequest(t, privateKey, "post", "/v1/blobs?ticket=tkt_1", []byte(`{"content":"hello"}`), f.clock.Now())
	authCtx, err := f.authenticator.Authenticate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "alice", authCtx.UserID)
	assert.Equal(t, "usr_alice", authCtx.Realm)
	assert.True(t, authCtx.CanRead)
	assert.True(t, authCtx.CanWrite)
}

func TestSignedRequestMutationsFail(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encodedKey, err := auth.EncodePublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, f.pubkeys.PutKey(ctx, &auth.AuthorizedKey{
		PublicKey: encodedKey,
		UserID:    "alice",
	}))

	fresh := func() *auth.Request {
		return signedRequest(t, privateKey, "POST", "/v1/blobs", []byte("hello"), f.clock.Now())
	}

	tests := []struct {
		name   string
		mutate func(req *auth.Request)
	}{
		{"method", func(req *auth.Request) { req.Method = "PUT" }},
		{"path", func(req *auth.Request) { req.PathAndQuery = "/v1/blobs2" }},
		{"body", func(req *auth.Request) { req.Body = []byte("Hello") }},
		{"timestamp", func(req *auth.Request) {
			req.Header.Set(auth.HeaderTimestamp, fmt.Sprintf("%d", f.clock.Now().Unix()+1))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := fresh()
			tt.mutate(req)
			_, err := f.authenticator.Authenticate(ctx, req)
			require.Error(t, err)
			assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
		})
	}
}

func TestSignedRequestStaleTimestamp(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encodedKey, err := auth.EncodePublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, f.pubkeys.PutKey(ctx, &auth.AuthorizedKey{
		PublicKey: encodedKey,
		UserID:    "alice",
	}))

	// Validly signed, but 301s old with the default 300s skew.
	req := signedRequest(t, privateKey, "GET", "/v1/blobs", nil, f.clock.Now().Add(-301*time.Second))
	_, err = f.authenticator.Authenticate(ctx, req)
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}

func TestSignedRequestUnknownKey(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	req := signedRequest(t, privateKey, "GET", "/v1/blobs", nil, f.clock.Now())
	_, err = f.authenticator.Authenticate(ctx, req)
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}

func TestSignedRequestExpiredKey(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encodedKey, err := auth.EncodePublicKey(&privateKey.PublicKey)
	require.NoError(t, err)
	require.NoError(t, f.pubkeys.PutKey(ctx, &auth.AuthorizedKey{
		PublicKey: encodedKey,
		UserID:    "alice",
		ExpiresAt: f.clock.Now().Add(-time.Minute),
	}))

	req := signedRequest(t, privateKey, "GET", "/v1/blobs", nil, f.clock.Now())
	_, err = f.authenticator.Authenticate(ctx, req)
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrExpired))
}

func TestSignedRequestIncompleteHeaders(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{})
	ctx := context.Background()

	header := http.Header{}
	header.Set(auth.HeaderTimestamp, fmt.Sprintf("%d", f.clock.Now().Unix()))
	_, err := f.authenticator.Authenticate(ctx, &auth.Request{
		Method:       "GET",
		PathAndQuery: "/v1/blobs",
		Header:       header,
	})
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
}

func TestCanonicalStringFormat(t *testing.T) {
	bodyHash := sha256.Sum256([]byte("hello"))
	expected := "1700000000.POST./v1/blobs?x=1." + base64.RawURLEncoding.EncodeToString(bodyHash[:])
	assert.Equal(t, expected, auth.CanonicalString("1700000000", "post", "/v1/blobs?x=1", []byte("hello")))
}

func TestAuthenticateRateLimited(t *testing.T) {
	f := newFixture(t, auth.AuthenticatorConfig{RateLimit: 1, RateBurst: 1})
	ctx := context.Background()

	token, err := f.authority.CreateUserToken(ctx, "usr_rate", "refresh", 0)
	require.NoError(t, err)

	_, err = f.authenticator.Authenticate(ctx, bearerRequest(token.ID))
	require.NoError(t, err)

	// Burst exhausted; the next attempt is rejected before any lookup.
	_, err = f.authenticator.Authenticate(ctx, bearerRequest(token.ID))
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
}
