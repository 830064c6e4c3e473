//go:build integration

package persistence_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/persistence"
	"github.com/drydock-pm/drydock/modules/workitems/services"
	"github.com/drydock-pm/drydock/pkg/composables"
)

func newTestPool(tb testing.TB) (context.Context, *pgxpool.Pool) {
	tb.Helper()
	dsn := strings.TrimSpace(os.Getenv("WORKITEMS_TEST_DSN"))
	if dsn == "" {
		tb.Skip("WORKITEMS_TEST_DSN is not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(tb, err)
	tb.Cleanup(pool.Close)

	_, err = persistence.MigrateUp(ctx, pool)
	require.NoError(tb, err)
	_, err = pool.Exec(ctx, `TRUNCATE work_items`)
	require.NoError(tb, err)

	return composables.WithPool(ctx, pool), pool
}

func TestWorkItemRepository_BucketQueries(t *testing.T) {
	ctx, _ := newTestPool(t)
	repo := persistence.NewWorkItemRepository()

	day := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	for _, rec := range []services.WorkItemRecord{
		{ID: "15/03/25/002", ProjectID: "p1", Title: "b", CreatedAt: day.Add(time.Hour)},
		{ID: "15/03/25/001", ProjectID: "p1", Title: "a", CreatedAt: day},
		{ID: "15/03/25/003", ProjectID: "p1", Title: "other day", CreatedAt: day.AddDate(0, 0, 1)},
		{ID: "legacy-1", ProjectID: "p1", Title: "legacy", CreatedAt: day},
	} {
		require.NoError(t, repo.Insert(ctx, rec))
	}

	from := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1).Add(-time.Millisecond)

	ids, err := repo.ListBucketIDs(ctx, "p1", "15/03/25/", from, to)
	require.NoError(t, err)
	require.Equal(t, []string{"15/03/25/001", "15/03/25/002"}, ids)

	n, err := repo.CountBucket(ctx, "p1", "15/03/25/", from, to)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	err = repo.Insert(ctx, services.WorkItemRecord{ID: "15/03/25/001", ProjectID: "p2", CreatedAt: day})
	require.ErrorIs(t, err, services.ErrDuplicateID)
}

func TestMigrator_CommitAgainstPostgres(t *testing.T) {
	ctx, _ := newTestPool(t)
	repo := persistence.NewWorkItemRepository()

	day := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	parent := "old-parent"
	require.NoError(t, repo.Insert(ctx, services.WorkItemRecord{ID: parent, ProjectID: "p", Title: "parent", CreatedAt: day}))
	require.NoError(t, repo.Insert(ctx, services.WorkItemRecord{ID: "old-child", ProjectID: "p", ParentID: &parent, Title: "child", CreatedAt: day.Add(time.Minute)}))
	// the batch starts at count+1 = 002, so old-child's 003 collides and fails alone
	require.NoError(t, repo.Insert(ctx, services.WorkItemRecord{ID: "15/03/25/003", ProjectID: "p", CreatedAt: day}))
	require.NoError(t, repo.Insert(ctx, services.WorkItemRecord{ID: "old-late", ProjectID: "p", CreatedAt: day.Add(time.Hour)}))

	alloc, err := services.NewAllocator(repo, services.AllocatorOptions{Location: time.UTC})
	require.NoError(t, err)
	m, err := services.NewMigrator(repo, persistence.NewTransactor(), alloc, services.MigratorOptions{Location: time.UTC})
	require.NoError(t, err)

	res, err := m.MigrateToNewFormat(ctx, services.MigrateOptions{PreserveHierarchy: true})
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "old-child", res.Errors[0].ID)
	require.Equal(t, 2, res.MigratedCount)

	items, err := repo.ListAll(ctx)
	require.NoError(t, err)
	byID := map[string]services.WorkItemRecord{}
	for _, it := range items {
		byID[it.ID] = it
	}
	require.Contains(t, byID, "15/03/25/002")
	require.Contains(t, byID, "15/03/25/004")
	child := byID["old-child"]
	require.NotNil(t, child.ParentID)
	require.Equal(t, "15/03/25/002", *child.ParentID)
}

func TestSchemaStatus(t *testing.T) {
	ctx, pool := newTestPool(t)
	statuses, err := persistence.SchemaStatus(ctx, pool)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	require.Equal(t, int64(1), statuses[0].Version)
	require.Equal(t, "applied", statuses[0].State)
}
