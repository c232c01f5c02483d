// Package authority issues and validates the three bearer credential kinds:
// user tokens, agent tokens, and tickets.
//
// User and agent tokens carry full realm access; tickets are short-lived
// capabilities restricted to a scope of DAG roots, optionally carrying a
// single-use write-commit configuration. Expiry is lazy: nothing sweeps the
// store, and every lookup applies the same strict is-live predicate.
package authority

import (
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/depotfs/pkg/cas"
)

// TokenType discriminates the credential kinds.
type TokenType string

const (
	// TokenTypeUser is a full-access credential tied to a user account.
	TokenTypeUser TokenType = "user"

	// TokenTypeAgent is a delegated credential inheriting its issuing
	// user's capabilities (non-downgradable).
	TokenTypeAgent TokenType = "agent"

	// TokenTypeTicket is a scope-restricted capability credential.
	TokenTypeTicket TokenType = "ticket"
)

// Default credential lifetimes. Writable tickets get the shortest window
// because a live write capability carries the most risk.
const (
	DefaultUserTokenTTL   = 3600 * time.Second
	DefaultAgentTokenTTL  = 30 * 24 * time.Hour
	DefaultReadTicketTTL  = 3600 * time.Second
	DefaultWriteTicketTTL = 300 * time.Second
)

// Token id prefixes. Ticket ids are wire-visible and fixed to "tkt_";
// user/agent token ids follow the same shape.
const (
	userTokenIDPrefix  = "tok_"
	agentTokenIDPrefix = "agt_"
	ticketIDPrefix     = "tkt_"
)

// CommitConfig is a ticket's optional write configuration. A ticket without
// one is read-only.
type CommitConfig struct {
	// Quota is the maximum content size in bytes a single commit may carry.
	// Nil means unlimited.
	Quota *uint64

	// Accept lists the MIME types the commit may declare. Supports exact
	// matches, "*/*", and "type/*" prefix wildcards. Empty means any type.
	Accept []string
}

// TicketConfig carries structural limits applied to uploads performed under
// a ticket.
type TicketConfig struct {
	// NodeLimit caps the number of DAG nodes a single upload may create
	NodeLimit int

	// MaxNameBytes caps the byte length of member names inside dict nodes
	MaxNameBytes int
}

// Token is the stored representation of any credential. Fields beyond the
// common ones are populated according to Type: UserID and RefreshToken for
// user/agent tokens, the ticket block for tickets.
type Token struct {
	// ID is the credential id ("tok_", "agt_", or "tkt_" prefixed)
	ID string

	// Type is the credential kind
	Type TokenType

	// UserID is the owning user (user/agent tokens)
	UserID string

	// RefreshToken is the upstream refresh credential (user tokens only)
	RefreshToken string

	// Realm is the tenant namespace the credential operates in
	Realm string

	// IssuerID is the id of the token that created this ticket
	// (tickets only; delegation chain depth 1)
	IssuerID string

	// Scope lists the DAG roots a ticket may read under (tickets only).
	// Empty scope means the ticket grants no reads.
	Scope []cas.Key

	// Commit is the optional write configuration (tickets only)
	Commit *CommitConfig

	// Config carries structural upload limits (tickets only)
	Config TicketConfig

	// CreatedAt is when the credential was issued
	CreatedAt time.Time

	// ExpiresAt is the expiry instant; the credential is live while
	// now <= ExpiresAt (strict less-than comparison for expiry)
	ExpiresAt time.Time

	// IsRevoked marks a ticket as revoked for new writes
	IsRevoked bool

	// Output is the root committed through the ticket, if any
	Output *cas.Key

	// Written is the single-use commit latch: flipped exactly once by the
	// first successful commit
	Written bool
}

// TicketStatus is the derived lifecycle state of a ticket. It is never
// stored; it is a pure function of Output and IsRevoked.
type TicketStatus string

const (
	// TicketStatusIssued means no commit landed and the ticket is live.
	TicketStatusIssued TicketStatus = "issued"

	// TicketStatusCommitted means a commit landed and the ticket was not
	// revoked.
	TicketStatusCommitted TicketStatus = "committed"

	// TicketStatusRevoked means the ticket was revoked before any commit.
	TicketStatusRevoked TicketStatus = "revoked"

	// TicketStatusArchived means the ticket was both committed and revoked,
	// in either order. Revocation does not retroactively clear the output.
	TicketStatusArchived TicketStatus = "archived"
)

// Status derives the ticket lifecycle state. Meaningful for ticket tokens
// only.
func (t *Token) Status() TicketStatus {
	switch {
	case t.Output != nil && t.IsRevoked:
		return TicketStatusArchived
	case t.Output != nil:
		return TicketStatusCommitted
	case t.IsRevoked:
		return TicketStatusRevoked
	default:
		return TicketStatusIssued
	}
}

// IsLive reports whether the credential has not expired at the given
// instant. The boundary is strict: a credential expiring exactly now is
// still live; it is expired only once ExpiresAt < now.
func (t *Token) IsLive(now time.Time) bool {
	return !t.ExpiresAt.Before(now)
}

// Writable reports whether the token type and configuration permit commits.
// User and agent tokens are unconstrained writers; tickets require a commit
// configuration.
func (t *Token) Writable() bool {
	if t.Type != TokenTypeTicket {
		return true
	}
	return t.Commit != nil
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	clone := *t
	clone.Scope = append([]cas.Key(nil), t.Scope...)
	if t.Commit != nil {
		commit := CommitConfig{
			Accept: append([]string(nil), t.Commit.Accept...),
		}
		if t.Commit.Quota != nil {
			quota := *t.Commit.Quota
			commit.Quota = &quota
		}
		clone.Commit = &commit
	}
	if t.Output != nil {
		output := *t.Output
		clone.Output = &output
	}
	return &clone
}

func newUserTokenID() string {
	return userTokenIDPrefix + uuid.NewString()
}

func newAgentTokenID() string {
	return agentTokenIDPrefix + uuid.NewString()
}

func newTicketID() string {
	return ticketIDPrefix + uuid.NewString()
}
