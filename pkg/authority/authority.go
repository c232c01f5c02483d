package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/depotfs/pkg/cas"
)

// Authority issues credentials and evaluates the checks the write and read
// paths depend on: scope containment, write quota, MIME acceptance, and the
// single-use ticket commit.
//
// The DAG store is optional. With one configured, scope containment is a
// full reachability check: a key is in scope if it equals a scope root or
// is reachable from one. Without it, only root equality is checked.
type Authority struct {
	tokens TokenStore
	dag    cas.DagStore
	now    func() time.Time
}

// NewAuthority creates an Authority over the given token store and DAG
// store. The DAG store may be nil to restrict scope checks to root
// equality.
func NewAuthority(tokens TokenStore, dag cas.DagStore) *Authority {
	return NewAuthorityWithClock(tokens, dag, time.Now)
}

// NewAuthorityWithClock creates an Authority with an injected clock. Tests
// use this to step time across expiry boundaries.
func NewAuthorityWithClock(tokens TokenStore, dag cas.DagStore, clock func() time.Time) *Authority {
	return &Authority{
		tokens: tokens,
		dag:    dag,
		now:    clock,
	}
}

// CreateUserToken issues a full-access user token. A zero ttl applies the
// default user token lifetime.
func (a *Authority) CreateUserToken(ctx context.Context, userID string, refreshToken string, ttl time.Duration) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, invalidArgument("user id must not be empty")
	}
	if ttl == 0 {
		ttl = DefaultUserTokenTTL
	}

	now := a.now()
	token := &Token{
		ID:           newUserTokenID(),
		Type:         TokenTypeUser,
		UserID:       userID,
		RefreshToken: refreshToken,
		Realm:        RealmForUser(userID),
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := a.tokens.PutToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// CreateAgentToken issues a delegated agent token inheriting the user's
// capabilities. A zero ttl applies the default agent lifetime (30 days).
func (a *Authority) CreateAgentToken(ctx context.Context, userID string, ttl time.Duration) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, invalidArgument("user id must not be empty")
	}
	if ttl == 0 {
		ttl = DefaultAgentTokenTTL
	}

	now := a.now()
	token := &Token{
		ID:        newAgentTokenID(),
		Type:      TokenTypeAgent,
		UserID:    userID,
		Realm:     RealmForUser(userID),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := a.tokens.PutToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// TicketParams carries the inputs of CreateTicket.
type TicketParams struct {
	// Realm is the tenant namespace the ticket operates in
	Realm string

	// IssuerID is the id of the token creating the ticket
	IssuerID string

	// Scope lists the DAG roots the ticket may read under
	Scope []cas.Key

	// Commit enables writes with the given configuration; nil issues a
	// read-only ticket
	Commit *CommitConfig

	// Config carries structural upload limits
	Config TicketConfig

	// TTL overrides the default lifetime. Zero applies 3600s for read-only
	// tickets and 300s for writable ones.
	TTL time.Duration
}

// CreateTicket issues a scope-restricted ticket.
func (a *Authority) CreateTicket(ctx context.Context, params TicketParams) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if params.Realm == "" {
		return nil, invalidArgument("realm must not be empty")
	}
	if params.IssuerID == "" {
		return nil, invalidArgument("issuer id must not be empty")
	}
	for _, root := range params.Scope {
		if !root.Valid() {
			return nil, invalidArgument(fmt.Sprintf("malformed scope root %q", root))
		}
	}

	ttl := params.TTL
	if ttl == 0 {
		if params.Commit != nil {
			ttl = DefaultWriteTicketTTL
		} else {
			ttl = DefaultReadTicketTTL
		}
	}

	now := a.now()
	token := &Token{
		ID:        newTicketID(),
		Type:      TokenTypeTicket,
		Realm:     params.Realm,
		IssuerID:  params.IssuerID,
		Scope:     append([]cas.Key(nil), params.Scope...),
		Commit:    params.Commit,
		Config:    params.Config,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := a.tokens.PutToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// GetToken retrieves a live token by id. Expired tokens are purged on
// lookup and reported with a typed expired error; callers never observe a
// dead credential.
func (a *Authority) GetToken(ctx context.Context, id string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := a.tokens.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}

	if !token.IsLive(a.now()) {
		// Lazy purge. A delete failure is not surfaced: the credential is
		// equally unusable either way and the next lookup retries.
		_ = a.tokens.DeleteToken(ctx, id)
		return nil, &cas.StoreError{
			Code:    cas.ErrExpired,
			Message: "token expired: " + id,
		}
	}

	return token, nil
}

// DeleteToken removes a token by id.
func (a *Authority) DeleteToken(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.tokens.DeleteToken(ctx, id)
}

// VerifyTokenOwnership reports whether the credential belongs to the given
// user. User and agent tokens match on their UserID; tickets resolve their
// issuing token and match on its owner. The delegation chain is resolved
// one level only: a ticket issued by another ticket does not verify.
func (a *Authority) VerifyTokenOwnership(ctx context.Context, tokenID string, userID string) (bool, error) {
	token, err := a.GetToken(ctx, tokenID)
	if err != nil {
		return false, err
	}

	switch token.Type {
	case TokenTypeUser, TokenTypeAgent:
		return token.UserID == userID, nil
	case TokenTypeTicket:
		issuer, err := a.GetToken(ctx, token.IssuerID)
		if err != nil {
			if cas.IsNotFound(err) || cas.IsCode(err, cas.ErrExpired) {
				return false, nil
			}
			return false, err
		}
		if issuer.Type == TokenTypeTicket {
			return false, nil
		}
		return issuer.UserID == userID, nil
	default:
		return false, nil
	}
}

// IsKeyInScope reports whether key is covered by the ticket's scope: equal
// to a scope root, or reachable from one through the DAG.
func (a *Authority) IsKeyInScope(ctx context.Context, token *Token, key cas.Key) (bool, error) {
	for _, root := range token.Scope {
		if root == key {
			return true, nil
		}
	}
	if a.dag == nil {
		return false, nil
	}

	for _, root := range token.Scope {
		keys, err := cas.CollectKeys(ctx, a.dag, root)
		if err != nil {
			return false, err
		}
		for _, reachable := range keys {
			if reachable == key {
				return true, nil
			}
		}
	}

	return false, nil
}

// CheckReadAccess reports whether the token may read the given key. User
// and agent tokens read everything in their realm; tickets are restricted
// to their scope and denied once revoked.
func (a *Authority) CheckReadAccess(ctx context.Context, token *Token, key cas.Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if token.Type != TokenTypeTicket {
		return true, nil
	}
	if token.IsRevoked {
		return false, nil
	}
	return a.IsKeyInScope(ctx, token, key)
}

// CheckWritableQuota verifies the token may commit content of the given
// size. User and agent tokens are unconstrained. Tickets must carry a
// commit configuration, must not have committed already, and must fit the
// configured quota.
func (a *Authority) CheckWritableQuota(ctx context.Context, token *Token, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if token.Type != TokenTypeTicket {
		return nil
	}
	if token.IsRevoked {
		return &cas.StoreError{
			Code:    cas.ErrRevoked,
			Message: "ticket revoked: " + token.ID,
		}
	}
	if token.Commit == nil {
		return &cas.StoreError{
			Code:    cas.ErrAccessDenied,
			Message: "ticket is read-only: " + token.ID,
		}
	}
	if token.Written {
		return &cas.StoreError{
			Code:    cas.ErrConflict,
			Message: "ticket already committed: " + token.ID,
		}
	}
	if token.Commit.Quota != nil && size > *token.Commit.Quota {
		return &cas.StoreError{
			Code:    cas.ErrQuotaExceeded,
			Message: fmt.Sprintf("content size %d exceeds ticket quota %d", size, *token.Commit.Quota),
		}
	}
	return nil
}

// CheckAcceptedMimeType verifies the token may commit content of the given
// MIME type. Only tickets with a commit accept list constrain the type.
func (a *Authority) CheckAcceptedMimeType(ctx context.Context, token *Token, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if token.Type != TokenTypeTicket || token.Commit == nil {
		return nil
	}
	if !MatchesAccept(token.Commit.Accept, contentType) {
		return &cas.StoreError{
			Code:    cas.ErrUnsupportedMediaType,
			Message: fmt.Sprintf("content type %q not accepted by ticket %s", contentType, token.ID),
		}
	}
	return nil
}

// CommitTicket latches the ticket's single-use commit, recording output as
// the committed root. Racing committers are serialized by the token store;
// exactly one succeeds and the loser receives a definitive conflict.
func (a *Authority) CommitTicket(ctx context.Context, ticketID string, output cas.Key) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !output.Valid() {
		return nil, invalidArgument(fmt.Sprintf("malformed commit output %q", output))
	}

	now := a.now()
	return a.tokens.MutateToken(ctx, ticketID, func(token *Token) error {
		if token.Type != TokenTypeTicket {
			return invalidArgument("token is not a ticket: " + token.ID)
		}
		if !token.IsLive(now) {
			return &cas.StoreError{
				Code:    cas.ErrExpired,
				Message: "ticket expired: " + token.ID,
			}
		}
		if token.IsRevoked {
			return &cas.StoreError{
				Code:    cas.ErrRevoked,
				Message: "ticket revoked: " + token.ID,
			}
		}
		if token.Written {
			return &cas.StoreError{
				Code:    cas.ErrConflict,
				Message: "ticket already committed: " + token.ID,
			}
		}
		if token.Commit == nil {
			return &cas.StoreError{
				Code:    cas.ErrAccessDenied,
				Message: "ticket is read-only: " + token.ID,
			}
		}

		token.Output = &output
		token.Written = true
		return nil
	})
}

// RevokeTicket marks the ticket revoked for new writes. A previously
// committed output is kept, moving the ticket to the archived state.
func (a *Authority) RevokeTicket(ctx context.Context, ticketID string) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return a.tokens.MutateToken(ctx, ticketID, func(token *Token) error {
		if token.Type != TokenTypeTicket {
			return invalidArgument("token is not a ticket: " + token.ID)
		}
		token.IsRevoked = true
		return nil
	})
}

// RealmForUser returns the tenant namespace of a user.
func RealmForUser(userID string) string {
	return "usr_" + userID
}

func invalidArgument(message string) error {
	return &cas.StoreError{
		Code:    cas.ErrInvalidArgument,
		Message: message,
	}
}
