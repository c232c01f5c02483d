// Package engine sequences the cross-component write and read flows.
//
// Every store keeps per-key atomicity on its own, but there is no
// cross-table transaction: a crash between steps leaves at most an
// orphaned blob, which is harmless. The failure mode to avoid is a
// stored blob without an ownership row, so ownership registration runs
// immediately after blob confirmation, before anything else.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/depotfs/internal/logger"
	"github.com/marmos91/depotfs/pkg/auth"
	"github.com/marmos91/depotfs/pkg/authority"
	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/depot"
	"github.com/marmos91/depotfs/pkg/metrics"
	"github.com/marmos91/depotfs/pkg/ownership"
)

// Engine wires the content store, the ownership ledger, the credential
// authority, and the depot service into the operation flows a transport
// layer exposes.
type Engine struct {
	blobs     cas.BlobStore
	dag       cas.DagStore
	ledger    ownership.Ledger
	authority *authority.Authority
	depots    *depot.Service
	metrics   metrics.EngineMetrics
	now       func() time.Time
}

// Config carries the collaborators an Engine operates on. The DAG store
// may be nil, which disables node operations and restricts scope checks
// to root equality.
type Config struct {
	Blobs     cas.BlobStore
	Dag       cas.DagStore
	Ledger    ownership.Ledger
	Authority *authority.Authority
	Depots    *depot.Service

	// Metrics is optional; nil disables collection.
	Metrics metrics.EngineMetrics
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(config Config) *Engine {
	return NewEngineWithClock(config, time.Now)
}

// NewEngineWithClock creates an engine with an injected clock.
func NewEngineWithClock(config Config, clock func() time.Time) *Engine {
	return &Engine{
		blobs:     config.Blobs,
		dag:       config.Dag,
		ledger:    config.Ledger,
		authority: config.Authority,
		depots:    config.Depots,
		metrics:   config.Metrics,
		now:       clock,
	}
}

// BootstrapRealm idempotently prepares a tenant namespace: the default
// "main" depot pointing at the empty collection.
func (e *Engine) BootstrapRealm(ctx context.Context, realm string) (*depot.Depot, error) {
	d, err := e.depots.EnsureMainDepot(ctx, realm)
	if err != nil {
		return nil, err
	}
	logger.Debug("bootstrapped realm %s with depot %s", realm, d.ID)
	return d, nil
}

// WriteBlobParams carries the inputs of WriteBlob.
type WriteBlobParams struct {
	// Content is the blob bytes
	Content []byte

	// ContentType is the declared MIME type
	ContentType string

	// Metadata holds optional opaque annotations stored with the blob
	Metadata map[string]string

	// Key optionally declares the expected content key. When set the
	// write is integrity-checked and rejected on mismatch.
	Key cas.Key
}

// WriteBlob stores content under the caller's realm: capability checks,
// then the blob write, then the ownership row, in that order.
func (e *Engine) WriteBlob(ctx context.Context, authCtx *auth.Context, params WriteBlobParams) (result *cas.PutResult, err error) {
	defer e.observe("WriteBlob", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !authCtx.CanWrite {
		return nil, accessDenied("credential cannot write")
	}

	if authCtx.Token != nil && authCtx.Token.Type == authority.TokenTypeTicket {
		if err := e.authority.CheckWritableQuota(ctx, authCtx.Token, uint64(len(params.Content))); err != nil {
			return nil, err
		}
		if err := e.authority.CheckAcceptedMimeType(ctx, authCtx.Token, params.ContentType); err != nil {
			return nil, err
		}
	}

	if params.Key != "" {
		result, err = e.blobs.PutWithKey(ctx, params.Key, params.Content, params.ContentType, params.Metadata)
	} else {
		result, err = e.blobs.Put(ctx, params.Content, params.ContentType, params.Metadata)
	}
	if err != nil {
		return nil, err
	}

	// Ownership registration follows blob confirmation immediately so a
	// crash window cannot leave owned-but-unregistered content.
	_, err = e.ledger.AddOwnership(ctx, authCtx.Realm, result.Key, ownership.Attributes{
		CreatedBy:   creatorID(authCtx),
		ContentType: params.ContentType,
		Size:        uint64(len(params.Content)),
	})
	if err != nil {
		return nil, err
	}

	if e.metrics != nil {
		e.metrics.RecordBlobWrite(uint64(len(params.Content)))
	}
	logger.Debug("wrote blob %s in realm %s (new=%v)", result.Key, authCtx.Realm, result.IsNew)
	return result, nil
}

// ReadBlob retrieves content the caller's realm owns. Ownership acts as
// the tenant boundary: content another realm wrote is indistinguishable
// from absent content.
func (e *Engine) ReadBlob(ctx context.Context, authCtx *auth.Context, key cas.Key) (blob *cas.Blob, err error) {
	defer e.observe("ReadBlob", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !authCtx.CanRead {
		return nil, accessDenied("credential cannot read")
	}

	owned, err := e.ledger.HasOwnership(ctx, authCtx.Realm, key)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, &cas.StoreError{
			Code:    cas.ErrNotFound,
			Message: "blob not found",
			Key:     key,
		}
	}

	if authCtx.Token != nil && authCtx.Token.Type == authority.TokenTypeTicket {
		allowed, err := e.authority.CheckReadAccess(ctx, authCtx.Token, key)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, accessDenied("key outside ticket scope")
		}
	}

	blob, err = e.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordBlobRead(uint64(len(blob.Content)))
	}
	return blob, nil
}

// PutNode stores a DAG node after verifying the caller's realm owns every
// child it references. The node's key is derived from its encoding, and
// the key is registered in the ledger so the node is readable and
// garbage-accountable like any blob.
func (e *Engine) PutNode(ctx context.Context, authCtx *auth.Context, kind cas.NodeKind, children []cas.Key, size uint64) (*cas.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.dag == nil {
		return nil, &cas.StoreError{
			Code:    cas.ErrInvalidArgument,
			Message: "no DAG store configured",
		}
	}
	if !authCtx.CanWrite {
		return nil, accessDenied("credential cannot write")
	}

	if len(children) > 0 {
		check, err := e.ledger.CheckOwnership(ctx, authCtx.Realm, children)
		if err != nil {
			return nil, err
		}
		if len(check.Missing) > 0 {
			return nil, &cas.StoreError{
				Code:    cas.ErrInvalidArgument,
				Message: fmt.Sprintf("node references %d unowned children", len(check.Missing)),
			}
		}
	}

	node, err := e.dag.PutNode(ctx, cas.ComputeNodeKey(kind, children), children, kind, size)
	if err != nil {
		return nil, err
	}

	_, err = e.ledger.AddOwnership(ctx, authCtx.Realm, node.Key, ownership.Attributes{
		CreatedBy: creatorID(authCtx),
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// CommitTicket latches the caller's ticket on the committed output root
// and tags the root as a commit in the ticket's realm. The ticket latch
// runs first; if commit tagging fails the latch stays flipped, matching
// the no-cross-table-transaction model.
func (e *Engine) CommitTicket(ctx context.Context, authCtx *auth.Context, output cas.Key, title string) (committed *authority.Token, err error) {
	defer e.observe("CommitTicket", time.Now(), &err)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if authCtx.Token == nil || authCtx.Token.Type != authority.TokenTypeTicket {
		return nil, accessDenied("commit requires a ticket credential")
	}

	ticket, err := e.authority.CommitTicket(ctx, authCtx.Token.ID, output)
	if err != nil {
		return nil, err
	}

	_, err = e.depots.CreateCommit(ctx, ticket.Realm, output, title, ticket.ID)
	if err != nil && !cas.IsCode(err, cas.ErrAlreadyExists) {
		logger.Warn("ticket %s committed but tagging root %s failed: %v", ticket.ID, output, err)
		return ticket, err
	}

	if e.metrics != nil {
		e.metrics.RecordTicketCommit()
	}
	logger.Info("ticket %s committed root %s in realm %s", ticket.ID, output, ticket.Realm)
	return ticket, nil
}

// AdvanceDepot moves a depot to a new root on behalf of the caller.
func (e *Engine) AdvanceDepot(ctx context.Context, authCtx *auth.Context, depotID string, newRoot cas.Key, message string) (*depot.Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !authCtx.CanWrite {
		return nil, accessDenied("credential cannot write")
	}

	return e.depots.UpdateRoot(ctx, authCtx.Realm, depotID, newRoot, message)
}

// IssueTicket creates a scope-restricted ticket on behalf of the caller's
// credential.
func (e *Engine) IssueTicket(ctx context.Context, authCtx *auth.Context, params authority.TicketParams) (*authority.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !authCtx.CanIssueTicket {
		return nil, accessDenied("credential cannot issue tickets")
	}
	if authCtx.Token == nil {
		return nil, accessDenied("ticket issuance requires a token credential")
	}

	params.Realm = authCtx.Realm
	params.IssuerID = authCtx.Token.ID
	return e.authority.CreateTicket(ctx, params)
}

// observe reports a finished operation to the metrics sink, if any.
func (e *Engine) observe(operation string, start time.Time, err *error) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordOperation(operation, time.Since(start), *err)
}

// creatorID identifies the writing credential for provenance rows.
func creatorID(authCtx *auth.Context) string {
	if authCtx.Token != nil {
		return authCtx.Token.ID
	}
	return authCtx.UserID
}

func accessDenied(message string) error {
	return &cas.StoreError{
		Code:    cas.ErrAccessDenied,
		Message: message,
	}
}
