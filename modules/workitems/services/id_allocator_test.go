package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/drydock-pm/drydock/modules/workitems/domain/workitemid"
	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/memory"
	"github.com/drydock-pm/drydock/modules/workitems/services"
)

var refDay = time.Date(2025, 3, 15, 14, 30, 0, 0, time.UTC)

func newAllocator(t *testing.T, repo services.WorkItemRepository) *services.Allocator {
	t.Helper()
	a, err := services.NewAllocator(repo, services.AllocatorOptions{
		Location: time.UTC,
		Now:      func() time.Time { return refDay },
	})
	require.NoError(t, err)
	return a
}

func seedBucket(projectID string, day time.Time, seqs ...int) []services.WorkItemRecord {
	out := make([]services.WorkItemRecord, 0, len(seqs))
	for i, seq := range seqs {
		out = append(out, services.WorkItemRecord{
			ID:        workitemid.Format(workitemid.DatePrefix(day), seq),
			ProjectID: projectID,
			Title:     fmt.Sprintf("item %d", seq),
			CreatedAt: day.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestGenerateOne_FillsGaps(t *testing.T) {
	cases := []struct {
		name     string
		existing []int
		want     string
	}{
		{name: "empty bucket", existing: nil, want: "15/03/25/001"},
		{name: "gap in the middle", existing: []int{1, 3, 5}, want: "15/03/25/002"},
		{name: "contiguous", existing: []int{1, 2, 3}, want: "15/03/25/004"},
		{name: "missing first", existing: []int{2, 3}, want: "15/03/25/001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New(seedBucket("p1", refDay, tc.existing...)...)
			got, err := newAllocator(t, store).GenerateOne(context.Background(), "p1", refDay)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestGenerateOne_PerProjectIsolation(t *testing.T) {
	store := memory.New(seedBucket("project-C", refDay, 1, 2)...)
	a := newAllocator(t, store)

	gotA, err := a.GenerateOne(context.Background(), "project-A", refDay)
	require.NoError(t, err)
	gotB, err := a.GenerateOne(context.Background(), "project-B", refDay)
	require.NoError(t, err)

	require.Equal(t, "15/03/25/001", gotA)
	require.Equal(t, "15/03/25/001", gotB)
}

func TestGenerateOne_PerDayIsolation(t *testing.T) {
	store := memory.New(seedBucket("p1", refDay, 1, 2, 3)...)
	a := newAllocator(t, store)

	day2 := refDay.AddDate(0, 0, 1)
	got1, err := a.GenerateOne(context.Background(), "p1", refDay)
	require.NoError(t, err)
	got2, err := a.GenerateOne(context.Background(), "p1", day2)
	require.NoError(t, err)

	require.Equal(t, "15/03/25/004", got1)
	require.Equal(t, "16/03/25/001", got2)
}

func TestGenerateOne_IgnoresIDsCreatedOnAnotherDay(t *testing.T) {
	// Textually in the 15/03/25 bucket but created the next day.
	stray := services.WorkItemRecord{ID: "15/03/25/001", ProjectID: "p1", CreatedAt: refDay.AddDate(0, 0, 1)}
	store := memory.New(stray)

	got, err := newAllocator(t, store).GenerateOne(context.Background(), "p1", refDay)
	require.NoError(t, err)
	require.Equal(t, "15/03/25/001", got)
}

func TestGenerateOne_ZeroReferenceUsesNow(t *testing.T) {
	store := memory.New(seedBucket("p1", refDay, 1)...)
	got, err := newAllocator(t, store).GenerateOne(context.Background(), "p1", time.Time{})
	require.NoError(t, err)
	require.Equal(t, "15/03/25/002", got)
}

func TestGenerateOne_FallsBackOnStoreError(t *testing.T) {
	store := memory.New()
	store.SetHook(func(op, key string) error {
		if op == "list_bucket" {
			return errors.New("connection refused")
		}
		return nil
	})

	got, err := newAllocator(t, store).GenerateOne(context.Background(), "p1", refDay)
	require.NoError(t, err)
	require.False(t, workitemid.IsNewFormat(got))
	require.True(t, workitemid.IsFallback(got), got)
	require.Contains(t, got, fmt.Sprintf("WI-%d-", refDay.UnixMilli()))
}

func TestGenerateOne_FallsBackWhenBucketIsFull(t *testing.T) {
	seqs := make([]int, workitemid.MaxSequence)
	for i := range seqs {
		seqs[i] = i + 1
	}
	store := memory.New(seedBucket("p1", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), seqs...)...)

	got, err := newAllocator(t, store).GenerateOne(context.Background(), "p1", refDay)
	require.NoError(t, err)
	require.True(t, workitemid.IsFallback(got), got)
}

func TestGenerateOne_RequiresProject(t *testing.T) {
	_, err := newAllocator(t, memory.New()).GenerateOne(context.Background(), "  ", refDay)
	require.ErrorIs(t, err, services.ErrProjectRequired)
}

type stubRepo struct {
	services.WorkItemRepository
	ids []string
}

func (s stubRepo) ListBucketIDs(context.Context, string, string, time.Time, time.Time) ([]string, error) {
	return s.ids, nil
}

func TestGenerateOne_DiscardsMalformedSequences(t *testing.T) {
	repo := stubRepo{ids: []string{"15/03/25/abc", "15/03/25/000", "15/03/25/001"}}
	got, err := newAllocator(t, repo).GenerateOne(context.Background(), "p1", refDay)
	require.NoError(t, err)
	require.Equal(t, "15/03/25/002", got)
}

func TestGenerateBatch_Monotonic(t *testing.T) {
	t.Run("empty bucket", func(t *testing.T) {
		ids, err := newAllocator(t, memory.New()).GenerateBatch(context.Background(), "p1", 5, refDay)
		require.NoError(t, err)
		require.Equal(t, []string{"15/03/25/001", "15/03/25/002", "15/03/25/003", "15/03/25/004", "15/03/25/005"}, ids)
	})

	t.Run("five existing", func(t *testing.T) {
		store := memory.New(seedBucket("p1", refDay, 1, 2, 3, 4, 5)...)
		ids, err := newAllocator(t, store).GenerateBatch(context.Background(), "p1", 5, refDay)
		require.NoError(t, err)
		require.Equal(t, []string{"15/03/25/006", "15/03/25/007", "15/03/25/008", "15/03/25/009", "15/03/25/010"}, ids)
	})
}

func TestGenerateBatch_AppendsAfterCountWithoutFillingGaps(t *testing.T) {
	store := memory.New(seedBucket("p1", refDay, 1, 3)...)
	ids, err := newAllocator(t, store).GenerateBatch(context.Background(), "p1", 2, refDay)
	require.NoError(t, err)
	require.Equal(t, []string{"15/03/25/003", "15/03/25/004"}, ids)
}

func TestGenerateBatch_EdgeCases(t *testing.T) {
	store := memory.New()
	store.SetHook(func(op, key string) error {
		if op == "count_bucket" {
			return errors.New("db down")
		}
		return nil
	})
	a := newAllocator(t, store)

	ids, err := a.GenerateBatch(context.Background(), "p1", 0, refDay)
	require.NoError(t, err)
	require.Empty(t, ids)

	_, err = a.GenerateBatch(context.Background(), "p1", -1, refDay)
	require.ErrorIs(t, err, services.ErrInvalidCount)

	_, err = a.GenerateBatch(context.Background(), "", 1, refDay)
	require.ErrorIs(t, err, services.ErrProjectRequired)

	_, err = a.GenerateBatch(context.Background(), "p1", 1, refDay)
	require.Error(t, err)
}

func TestGenerateBatch_Exhausted(t *testing.T) {
	store := memory.New(seedBucket("p1", time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), 1, 2)...)
	_, err := newAllocator(t, store).GenerateBatch(context.Background(), "p1", workitemid.MaxSequence-1, refDay)
	require.ErrorIs(t, err, services.ErrBucketExhausted)
}

func TestCreateWithRetry_RetriesOnConflict(t *testing.T) {
	store := memory.New()
	a := newAllocator(t, store)

	calls := 0
	id, err := a.CreateWithRetry(context.Background(), "p1", refDay, func(ctx context.Context, id string) error {
		calls++
		if calls == 1 {
			// a concurrent creator took the id between read and write
			require.NoError(t, store.Insert(ctx, services.WorkItemRecord{ID: id, ProjectID: "p1", CreatedAt: refDay}))
		}
		return store.Insert(ctx, services.WorkItemRecord{ID: id, ProjectID: "p1", Title: "mine", CreatedAt: refDay})
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, "15/03/25/002", id)
}

func TestCreateWithRetry_GivesUp(t *testing.T) {
	a := newAllocator(t, memory.New())
	_, err := a.CreateWithRetry(context.Background(), "p1", refDay, func(context.Context, string) error {
		return services.ErrDuplicateID
	})
	require.ErrorIs(t, err, services.ErrDuplicateID)
}

func TestCreateWithRetry_PropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := newAllocator(t, memory.New()).CreateWithRetry(context.Background(), "p1", refDay, func(context.Context, string) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}
