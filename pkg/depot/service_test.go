package depot_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depotfs/pkg/cas"
	"github.com/marmos91/depotfs/pkg/depot"
	"github.com/marmos91/depotfs/pkg/depot/memory"
)

func newTestService() *depot.Service {
	return depot.NewService(memory.NewStore())
}

func TestCreateDefaults(t *testing.T) {
	service := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, "usr_alice", depot.CreateParams{Name: "main"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(created.ID, "dpt_"))
	assert.Equal(t, cas.EmptyDictKey(), created.Root)
	assert.Equal(t, uint64(1), created.Version)

	// Creation writes no history row.
	page, err := service.ListHistory(ctx, "usr_alice", created.ID, depot.HistoryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Records)
}

func TestCreateValidation(t *testing.T) {
	service := newTestService()
	ctx := context.Background()

	_, err := service.Create(ctx, "", depot.CreateParams{Name: "main"})
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))

	_, err = service.Create(ctx, "usr_alice", depot.CreateParams{})
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))

	_, err = service.Create(ctx, "usr_alice", depot.CreateParams{
		Name: "main",
		Root: cas.Key("sha256:nope"),
	})
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
}

func TestUpdateRootSequence(t *testing.T) {
	service := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, "usr_alice", depot.CreateParams{Name: "main"})
	require.NoError(t, err)

	first := cas.ComputeKey([]byte("first tree"))
	updated, err := service.UpdateRoot(ctx, "usr_alice", created.ID, first, "add files")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)
	assert.Equal(t, first, updated.Root)

	second := cas.ComputeKey([]byte("second tree"))
	updated, err = service.UpdateRoot(ctx, "usr_alice", created.ID, second, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), updated.Version)

	page, err := service.ListHistory(ctx, "usr_alice", created.ID, depot.HistoryOptions{})
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, second, page.Records[0].Root)
	assert.Equal(t, first, page.Records[1].Root)
	assert.Equal(t, "add files", page.Records[1].Message)
}

func TestUpdateRootMalformed(t *testing.T) {
	service := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, "usr_alice", depot.CreateParams{Name: "main"})
	require.NoError(t, err)

	_, err = service.UpdateRoot(ctx, "usr_alice", created.ID, cas.Key("not-a-key"), "")
	assert.True(t, cas.IsCode(err, cas.ErrInvalidArgument))
}

func TestConcurrentUpdatesNeverShareVersions(t *testing.T) {
	service := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, "usr_alice", depot.CreateParams{Name: "main"})
	require.NoError(t, err)

	const updates = 16
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root := cas.ComputeKey([]byte{byte(i)})
			_, err := service.UpdateRoot(ctx, "usr_alice", created.ID, root, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	final, err := service.Get(ctx, "usr_alice", created.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(updates+1), final.Version)

	page, err := service.ListHistory(ctx, "usr_alice", created.ID, depot.HistoryOptions{})
	require.NoError(t, err)
	require.Equal(t, updates, page.Total)

	versions := make(map[uint64]bool)
	for _, row := range page.Records {
		assert.False(t, versions[row.Version], "version %d written twice", row.Version)
		versions[row.Version] = true
	}
}

func TestEnsureMainDepotIdempotent(t *testing.T) {
	service := newTestService()
	ctx := context.Background()

	first, err := service.EnsureMainDepot(ctx, "usr_alice")
	require.NoError(t, err)
	assert.Equal(t, depot.MainDepotName, first.Name)
	assert.Equal(t, cas.EmptyDictKey(), first.Root)

	second, err := service.EnsureMainDepot(ctx, "usr_alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	depots, err := service.List(ctx, "usr_alice")
	require.NoError(t, err)
	assert.Len(t, depots, 1)
}

func TestCommitTitleIsOnlyMutableField(t *testing.T) {
	store := memory.NewStore()
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	service := depot.NewServiceWithClock(store, func() time.Time { return clock })
	ctx := context.Background()

	root := cas.ComputeKey([]byte("tagged tree"))
	created, err := service.CreateCommit(ctx, "usr_alice", root, "v1.0", "tok_alice")
	require.NoError(t, err)

	updated, err := service.UpdateCommitTitle(ctx, "usr_alice", root, "v1.0 final")
	require.NoError(t, err)
	assert.Equal(t, "v1.0 final", updated.Title)
	assert.Equal(t, created.CreatedBy, updated.CreatedBy)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, created.Root, updated.Root)
}
