package authority_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/authority/memory"
	"github.com/marmos91/depotfs/pkg/cas"
	casmemory "github.com/marmos91/depotfs/pkg/cas/memory"
)

// testClock is a controllable time source for expiry tests.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestAuthority(t *testing.T) (*authority.Authority, *casmemory.DagStore, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	dag := casmemory.NewDagStore()
	auth := authority.NewAuthorityWithClock(memory.NewTokenStore(), dag, clock.Now)
	return auth, dag, clock
}

func TestCreateUserToken_Defaults(t *testing.T) {
	auth, _, clock := newTestAuthority(t)
	ctx := context.Background()

	token, err := auth.CreateUserToken(ctx, "alice", "refresh-123", 0)
	require.NoError(t, err)
	assert.Equal(t, authority.TokenTypeUser, token.Type)
	assert.Regexp(t, "^tok_", token.ID)
	assert.Equal(t, "alice", token.UserID)
	assert.Equal(t, "usr_alice", token.Realm)
	assert.Equal(t, "refresh-123", token.RefreshToken)
	assert.True(t, token.ExpiresAt.Equal(clock.Now().Add(3600*time.Second)))
}

func TestCreateAgentToken_Defaults(t *testing.T) {
	auth, _, clock := newTestAuthority(t)
	ctx := context.Background()

	token, err := auth.CreateAgentToken(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, authority.TokenTypeAgent, token.Type)
	assert.Regexp(t, "^agt_", token.ID)
	assert.Equal(t, "usr_alice", token.Realm)
	assert.True(t, token.ExpiresAt.Equal(clock.Now().Add(30*24*time.Hour)))
}

func TestCreateTicket_DefaultTTLs(t *testing.T) {
	auth, _, clock := newTestAuthority(t)
	ctx := context.Background()

	readTicket, err := auth.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_alice",
		IssuerID: "tok_issuer",
	})
	require.NoError(t, err)
	assert.Regexp(t, "^tkt_", readTicket.ID)
	assert.True(t, readTicket.ExpiresAt.Equal(clock.Now().Add(3600*time.Second)),
		"read-only tickets default to 3600s")

	writeTicket, err := auth.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_alice",
		IssuerID: "tok_issuer",
		Commit:   &authority.CommitConfig{},
	})
	require.NoError(t, err)
	assert.True(t, writeTicket.ExpiresAt.Equal(clock.Now().Add(300*time.Second)),
		"writable tickets default to 300s")
}

func TestGetToken_LazyExpiry(t *testing.T) {
	auth, _, clock := newTestAuthority(t)
	ctx := context.Background()

	token, err := auth.CreateUserToken(ctx, "alice", "", time.Hour)
	require.NoError(t, err)

	// Exactly at the boundary the token is still live: expiry requires
	// expiresAt strictly before now.
	clock.Advance(time.Hour)
	fetched, err := auth.GetToken(ctx, token.ID)
	require.NoError(t, err)
	assert.Equal(t, token.ID, fetched.ID)

	// One instant past the boundary it is expired and purged.
	clock.Advance(time.Nanosecond)
	_, err = auth.GetToken(ctx, token.ID)
	require.Error(t, err)
	assert.True(t, cas.IsCode(err, cas.ErrExpired))

	// The purge means subsequent lookups see not-found, not expired.
	_, err = auth.GetToken(ctx, token.ID)
	require.Error(t, err)
	assert.True(t, cas.IsNotFound(err))
}

func TestVerifyTokenOwnership(t *testing.T) {
	auth, _, _ := newTestAuthority(t)
	ctx := context.Background()

	userToken, err := auth.CreateUserToken(ctx, "alice", "", 0)
	require.NoError(t, err)

	ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
		Realm:    userToken.Realm,
		IssuerID: userToken.ID,
	})
	require.NoError(t, err)

	t.Run("user_token_direct_match", func(t *testing.T) {
		owned, err := auth.VerifyTokenOwnership(ctx, userToken.ID, "alice")
		require.NoError(t, err)
		assert.True(t, owned)

		owned, err = auth.VerifyTokenOwnership(ctx, userToken.ID, "bob")
		require.NoError(t, err)
		assert.False(t, owned)
	})

	t.Run("ticket_resolves_issuer", func(t *testing.T) {
		owned, err := auth.VerifyTokenOwnership(ctx, ticket.ID, "alice")
		require.NoError(t, err)
		assert.True(t, owned)

		owned, err = auth.VerifyTokenOwnership(ctx, ticket.ID, "bob")
		require.NoError(t, err)
		assert.False(t, owned)
	})

	t.Run("ticket_of_ticket_not_verified", func(t *testing.T) {
		// Delegation resolves one level only.
		nested, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    userToken.Realm,
			IssuerID: ticket.ID,
		})
		require.NoError(t, err)

		owned, err := auth.VerifyTokenOwnership(ctx, nested.ID, "alice")
		require.NoError(t, err)
		assert.False(t, owned)
	})
}

func TestTicketStatusDerivation(t *testing.T) {
	output := cas.ComputeKey([]byte("output root"))

	tests := []struct {
		name     string
		output   *cas.Key
		revoked  bool
		expected authority.TicketStatus
	}{
		{"issued", nil, false, authority.TicketStatusIssued},
		{"committed", &output, false, authority.TicketStatusCommitted},
		{"revoked", nil, true, authority.TicketStatusRevoked},
		{"archived", &output, true, authority.TicketStatusArchived},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := &authority.Token{
				Type:      authority.TokenTypeTicket,
				Output:    tt.output,
				IsRevoked: tt.revoked,
			}
			assert.Equal(t, tt.expected, token.Status())
		})
	}
}

func TestCheckReadAccess(t *testing.T) {
	auth, dag, _ := newTestAuthority(t)
	ctx := context.Background()

	// Build root → child so closure containment is observable.
	child := cas.ComputeKey([]byte("child blob"))
	_, err := dag.PutNode(ctx, child, nil, cas.NodeKindFile, 10)
	require.NoError(t, err)
	root := cas.ComputeNodeKey(cas.NodeKindDict, []cas.Key{child})
	_, err = dag.PutNode(ctx, root, []cas.Key{child}, cas.NodeKindDict, 10)
	require.NoError(t, err)

	ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_alice",
		IssuerID: "tok_issuer",
		Scope:    []cas.Key{root},
	})
	require.NoError(t, err)

	t.Run("scope_root_allowed", func(t *testing.T) {
		allowed, err := auth.CheckReadAccess(ctx, ticket, root)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("descendant_allowed", func(t *testing.T) {
		allowed, err := auth.CheckReadAccess(ctx, ticket, child)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("unrelated_denied", func(t *testing.T) {
		allowed, err := auth.CheckReadAccess(ctx, ticket, cas.ComputeKey([]byte("elsewhere")))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("user_token_unrestricted", func(t *testing.T) {
		userToken, err := auth.CreateUserToken(ctx, "alice", "", 0)
		require.NoError(t, err)

		allowed, err := auth.CheckReadAccess(ctx, userToken, cas.ComputeKey([]byte("anything")))
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("revoked_ticket_denied", func(t *testing.T) {
		revoked, err := auth.RevokeTicket(ctx, ticket.ID)
		require.NoError(t, err)

		allowed, err := auth.CheckReadAccess(ctx, revoked, root)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestCheckWritableQuota(t *testing.T) {
	auth, _, _ := newTestAuthority(t)
	ctx := context.Background()

	quota := uint64(1000)

	t.Run("user_token_unconstrained", func(t *testing.T) {
		userToken, err := auth.CreateUserToken(ctx, "alice", "", 0)
		require.NoError(t, err)
		assert.NoError(t, auth.CheckWritableQuota(ctx, userToken, 1<<40))
	})

	t.Run("read_only_ticket_denied", func(t *testing.T) {
		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
		})
		require.NoError(t, err)

		err = auth.CheckWritableQuota(ctx, ticket, 1)
		assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
	})

	t.Run("within_quota", func(t *testing.T) {
		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
			Commit:   &authority.CommitConfig{Quota: &quota},
		})
		require.NoError(t, err)
		assert.NoError(t, auth.CheckWritableQuota(ctx, ticket, 1000))
	})

	t.Run("over_quota", func(t *testing.T) {
		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
			Commit:   &authority.CommitConfig{Quota: &quota},
		})
		require.NoError(t, err)

		err = auth.CheckWritableQuota(ctx, ticket, 1001)
		assert.True(t, cas.IsCode(err, cas.ErrQuotaExceeded))
	})
}

func TestMatchesAccept(t *testing.T) {
	tests := []struct {
		name        string
		accept      []string
		contentType string
		expected    bool
	}{
		{"empty_accepts_all", nil, "video/mp4", true},
		{"exact_match", []string{"image/png"}, "image/png", true},
		{"exact_mismatch", []string{"image/png"}, "image/jpeg", false},
		{"full_wildcard", []string{"*/*"}, "anything/at-all", true},
		{"type_wildcard_match", []string{"image/*"}, "image/webp", true},
		{"type_wildcard_mismatch", []string{"image/*"}, "video/webm", false},
		{"case_insensitive", []string{"Image/PNG"}, "image/png", true},
		{"multiple_patterns", []string{"text/plain", "image/*"}, "image/gif", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, authority.MatchesAccept(tt.accept, tt.contentType))
		})
	}
}

func TestCheckAcceptedMimeType(t *testing.T) {
	auth, _, _ := newTestAuthority(t)
	ctx := context.Background()

	ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
		Realm:    "usr_alice",
		IssuerID: "tok_issuer",
		Commit:   &authority.CommitConfig{Accept: []string{"image/*"}},
	})
	require.NoError(t, err)

	assert.NoError(t, auth.CheckAcceptedMimeType(ctx, ticket, "image/png"))

	err = auth.CheckAcceptedMimeType(ctx, ticket, "application/zip")
	assert.True(t, cas.IsCode(err, cas.ErrUnsupportedMediaType))
}

func TestCommitTicket(t *testing.T) {
	output := cas.ComputeKey([]byte("committed root"))

	t.Run("single_use", func(t *testing.T) {
		auth, _, _ := newTestAuthority(t)
		ctx := context.Background()

		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
			Commit:   &authority.CommitConfig{},
		})
		require.NoError(t, err)

		committed, err := auth.CommitTicket(ctx, ticket.ID, output)
		require.NoError(t, err)
		assert.True(t, committed.Written)
		assert.Equal(t, authority.TicketStatusCommitted, committed.Status())

		// The second attempt gets a definitive conflict regardless of content.
		_, err = auth.CommitTicket(ctx, ticket.ID, cas.ComputeKey([]byte("other root")))
		require.Error(t, err)
		assert.True(t, cas.IsCode(err, cas.ErrConflict))
	})

	t.Run("read_only_rejected", func(t *testing.T) {
		auth, _, _ := newTestAuthority(t)
		ctx := context.Background()

		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
		})
		require.NoError(t, err)

		_, err = auth.CommitTicket(ctx, ticket.ID, output)
		assert.True(t, cas.IsCode(err, cas.ErrAccessDenied))
	})

	t.Run("revoked_rejected", func(t *testing.T) {
		auth, _, _ := newTestAuthority(t)
		ctx := context.Background()

		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
			Commit:   &authority.CommitConfig{},
		})
		require.NoError(t, err)

		_, err = auth.RevokeTicket(ctx, ticket.ID)
		require.NoError(t, err)

		_, err = auth.CommitTicket(ctx, ticket.ID, output)
		assert.True(t, cas.IsCode(err, cas.ErrRevoked))
	})

	t.Run("expired_rejected", func(t *testing.T) {
		auth, _, clock := newTestAuthority(t)
		ctx := context.Background()

		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
			Commit:   &authority.CommitConfig{},
		})
		require.NoError(t, err)

		clock.Advance(301 * time.Second)
		_, err = auth.CommitTicket(ctx, ticket.ID, output)
		assert.True(t, cas.IsCode(err, cas.ErrExpired))
	})

	t.Run("revoke_after_commit_archives", func(t *testing.T) {
		auth, _, _ := newTestAuthority(t)
		ctx := context.Background()

		ticket, err := auth.CreateTicket(ctx, authority.TicketParams{
			Realm:    "usr_alice",
			IssuerID: "tok_issuer",
			Commit:   &authority.CommitConfig{},
		})
		require.NoError(t, err)

		_, err = auth.CommitTicket(ctx, ticket.ID, output)
		require.NoError(t, err)

		archived, err := auth.RevokeTicket(ctx, ticket.ID)
		require.NoError(t, err)
		assert.Equal(t, authority.TicketStatusArchived, archived.Status())
		require.NotNil(t, archived.Output, "revocation must not clear the output")
		assert.Equal(t, output, *archived.Output)
	})
}
