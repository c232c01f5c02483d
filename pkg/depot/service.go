package depot

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/depotfs/pkg/cas"
)

// Service validates inputs, assigns ids and timestamps, and delegates
// persistence to a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService creates a depot service over the given store.
func NewService(store Store) *Service {
	return NewServiceWithClock(store, time.Now)
}

// NewServiceWithClock creates a depot service with an injected clock.
func NewServiceWithClock(store Store, clock func() time.Time) *Service {
	return &Service{
		store: store,
		now:   clock,
	}
}

// CreateParams carries the inputs of Create.
type CreateParams struct {
	// Name is the depot name, unique per realm
	Name string

	// Root is the initial DAG root. Empty defaults to the well-known
	// empty-dict key.
	Root cas.Key

	// Description is optional free text
	Description string
}

// Create registers a new depot at version 1. Creation writes no history
// row; history starts with the first root update.
func (s *Service) Create(ctx context.Context, realm string, params CreateParams) (*Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if realm == "" {
		return nil, invalidArgument("realm must not be empty")
	}
	if params.Name == "" {
		return nil, invalidArgument("depot name must not be empty")
	}

	root := params.Root
	if root == "" {
		root = cas.EmptyDictKey()
	}
	if !root.Valid() {
		return nil, invalidArgument("malformed depot root: " + string(root))
	}

	now := s.now()
	depot := &Depot{
		Realm:       realm,
		ID:          "dpt_" + uuid.NewString(),
		Name:        params.Name,
		Root:        root,
		Version:     1,
		Description: params.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDepot(ctx, depot); err != nil {
		return nil, err
	}
	return depot, nil
}

// UpdateRoot points the depot at newRoot. The version bump and the history
// append are a single atomic step.
func (s *Service) UpdateRoot(ctx context.Context, realm string, depotID string, newRoot cas.Key, message string) (*Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !newRoot.Valid() {
		return nil, invalidArgument("malformed depot root: " + string(newRoot))
	}

	depot, _, err := s.store.AdvanceRoot(ctx, realm, depotID, newRoot, message, s.now())
	if err != nil {
		return nil, err
	}
	return depot, nil
}

// Get retrieves a depot by id.
func (s *Service) Get(ctx context.Context, realm string, depotID string) (*Depot, error) {
	return s.store.GetDepot(ctx, realm, depotID)
}

// GetByName retrieves a depot by its per-realm unique name.
func (s *Service) GetByName(ctx context.Context, realm string, name string) (*Depot, error) {
	return s.store.GetDepotByName(ctx, realm, name)
}

// List returns all of a realm's depots, ordered by name.
func (s *Service) List(ctx context.Context, realm string) ([]*Depot, error) {
	return s.store.ListDepots(ctx, realm)
}

// EnsureMainDepot idempotently bootstraps the realm's default depot at the
// reserved name "main", pointing at the empty-dict key. Concurrent callers
// converge on one depot: the loser of a create race re-reads the winner's.
func (s *Service) EnsureMainDepot(ctx context.Context, realm string) (*Depot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing, err := s.store.GetDepotByName(ctx, realm, MainDepotName)
	if err == nil {
		return existing, nil
	}
	if !cas.IsNotFound(err) {
		return nil, err
	}

	created, err := s.Create(ctx, realm, CreateParams{Name: MainDepotName})
	if err == nil {
		return created, nil
	}
	if cas.IsCode(err, cas.ErrAlreadyExists) {
		return s.store.GetDepotByName(ctx, realm, MainDepotName)
	}
	return nil, err
}

// ListHistory returns one page of the depot's history, newest first.
func (s *Service) ListHistory(ctx context.Context, realm string, depotID string, opts HistoryOptions) (*HistoryPage, error) {
	return s.store.ListHistory(ctx, realm, depotID, opts)
}

// GetHistory retrieves a single history row by version.
func (s *Service) GetHistory(ctx context.Context, realm string, depotID string, version uint64) (*HistoryRecord, error) {
	return s.store.GetHistory(ctx, realm, depotID, version)
}

// CreateCommit tags a root with provenance metadata.
func (s *Service) CreateCommit(ctx context.Context, realm string, root cas.Key, title string, createdBy string) (*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if realm == "" {
		return nil, invalidArgument("realm must not be empty")
	}
	if !root.Valid() {
		return nil, invalidArgument("malformed commit root: " + string(root))
	}

	commit := &Commit{
		Realm:     realm,
		Root:      root,
		Title:     title,
		CreatedBy: createdBy,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateCommit(ctx, commit); err != nil {
		return nil, err
	}
	return commit, nil
}

// GetCommit retrieves a commit by its (realm, root) key.
func (s *Service) GetCommit(ctx context.Context, realm string, root cas.Key) (*Commit, error) {
	return s.store.GetCommit(ctx, realm, root)
}

// ListCommits returns one page of the realm's commits, newest first.
func (s *Service) ListCommits(ctx context.Context, realm string, opts CommitListOptions) (*CommitPage, error) {
	return s.store.ListCommits(ctx, realm, opts)
}

// UpdateCommitTitle replaces the commit's title, the only mutable field.
func (s *Service) UpdateCommitTitle(ctx context.Context, realm string, root cas.Key, title string) (*Commit, error) {
	return s.store.UpdateCommitTitle(ctx, realm, root, title)
}

// DeleteCommit removes a commit. The tagged root and its DAG are untouched.
func (s *Service) DeleteCommit(ctx context.Context, realm string, root cas.Key) error {
	return s.store.DeleteCommit(ctx, realm, root)
}

func invalidArgument(message string) error {
	return &cas.StoreError{
		Code:    cas.ErrInvalidArgument,
		Message: message,
	}
}
