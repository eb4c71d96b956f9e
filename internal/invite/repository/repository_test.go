package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/smallbiznis/invites/internal/invite/domain"
	"github.com/smallbiznis/invites/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*InvitesKv, kv.Store) {
	t.Helper()
	store, err := kv.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store), store
}

func seed(t *testing.T, repo *InvitesKv, invites ...domain.Invite) {
	t.Helper()
	for _, inv := range invites {
		require.NoError(t, repo.Add(context.Background(), inv))
	}
}

func codes(items []domain.Invite) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Code)
	}
	return out
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)

	who := "alice"
	at := int64(1700000000500)
	seed(t, repo, domain.Invite{Code: "WELCOME", CreatedAt: 1700000000000, RedeemedBy: &who, RedeemedAt: &at})

	got, err := repo.Get(ctx, "WELCOME")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "WELCOME", got.Code)
	assert.Equal(t, int64(1700000000000), got.CreatedAt)
	require.NotNil(t, got.RedeemedBy)
	assert.Equal(t, "alice", *got.RedeemedBy)

	index, err := store.Get(ctx, indexKey(1700000000000, "WELCOME"))
	require.NoError(t, err)
	require.NotNil(t, index)

	var indexed domain.Invite
	require.NoError(t, json.Unmarshal(index.Value, &indexed))
	assert.Equal(t, *got, indexed)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoredShapeUsesNullForUnredeemed(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 1})

	entry, err := store.Get(ctx, primaryKey("A"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.JSONEq(t, `{"code":"A","createdAt":1,"redeemedBy":null,"redeemedAt":null}`, string(entry.Value))
}

func TestDeleteRemovesBothKeys(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 10})

	require.NoError(t, repo.Delete(ctx, "A"))

	got, err := repo.Get(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, got)

	index, err := store.Get(ctx, indexKey(10, "A"))
	require.NoError(t, err)
	assert.Nil(t, index)

	require.NoError(t, repo.Delete(ctx, "A"), "deleting a missing code is a no-op")
}

func TestDeleteMany(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	seed(t, repo,
		domain.Invite{Code: "A", CreatedAt: 1},
		domain.Invite{Code: "B", CreatedAt: 2},
		domain.Invite{Code: "C", CreatedAt: 3},
	)

	require.NoError(t, repo.DeleteMany(ctx, []string{"A", "C", "A", "missing"}))

	resp, err := repo.List(ctx, domain.ListRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, codes(resp.Items))

	require.NoError(t, repo.DeleteMany(ctx, nil))
	require.NoError(t, repo.DeleteMany(ctx, []string{"missing"}))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Consistent())
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	for i := 0; i < 30; i++ {
		seed(t, repo, domain.Invite{Code: fmt.Sprintf("c%02d", i), CreatedAt: int64(i)})
	}

	require.NoError(t, repo.DeleteAll(ctx))

	resp, err := repo.List(ctx, domain.ListRequest{Limit: 100})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
	assert.Empty(t, resp.Cursor)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{}, *stats)

	require.NoError(t, repo.DeleteAll(ctx), "empty store")
}

func TestListOrderingAndPagination(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	seed(t, repo,
		domain.Invite{Code: "d", CreatedAt: 300},
		domain.Invite{Code: "b", CreatedAt: 100},
		domain.Invite{Code: "a", CreatedAt: 100},
		domain.Invite{Code: "c", CreatedAt: 200},
		domain.Invite{Code: "e", CreatedAt: 400},
	)

	walk := func(reverse bool) []string {
		var all []string
		cursor := ""
		for pages := 0; pages < 10; pages++ {
			resp, err := repo.List(ctx, domain.ListRequest{Limit: 2, Reverse: reverse, Cursor: cursor})
			require.NoError(t, err)
			assert.LessOrEqual(t, len(resp.Items), 2)
			all = append(all, codes(resp.Items)...)
			if resp.Cursor == "" {
				return all
			}
			cursor = resp.Cursor
		}
		t.Fatal("pagination did not terminate")
		return nil
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, walk(false))
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, walk(true))
}

func TestListDefaultLimit(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	for i := 0; i < 25; i++ {
		seed(t, repo, domain.Invite{Code: fmt.Sprintf("c%02d", i), CreatedAt: int64(i)})
	}

	resp, err := repo.List(ctx, domain.ListRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.Items, domain.DefaultListLimit)
	assert.NotEmpty(t, resp.Cursor)
}

func TestListInvalidCursor(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.List(context.Background(), domain.ListRequest{Limit: 5, Cursor: "!!"})
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)
}

func TestReindexRepairsMissingEntries(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo,
		domain.Invite{Code: "A", CreatedAt: 1},
		domain.Invite{Code: "B", CreatedAt: 2},
	)

	// simulate a partially written record
	orphan, err := json.Marshal(domain.Invite{Code: "C", CreatedAt: 3})
	require.NoError(t, err)
	_, err = kv.Set(ctx, store, primaryKey("C"), orphan)
	require.NoError(t, err)
	_, err = kv.Delete(ctx, store, indexKey(1, "A"))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Primary: 3, Index: 1, Missing: 2}, *stats)

	resp, err := repo.List(ctx, domain.ListRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, codes(resp.Items))

	count, err := repo.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	resp, err = repo.List(ctx, domain.ListRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, codes(resp.Items))

	count, err = repo.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "reindex is idempotent")

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Consistent())
}

func TestStatsReportsOrphanedIndexEntries(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 1})

	_, err := kv.Delete(ctx, store, primaryKey("A"))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Primary: 0, Index: 1, Orphaned: 1}, *stats)
}

func TestDeleteConflictsWithConcurrentRewrite(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 1})

	op, err := repo.deleteOp(ctx, kv.NewAtomic(), "A")
	require.NoError(t, err)

	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 1})

	res, err := store.Commit(ctx, op)
	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestAddReplacesPreviousIndexEntry(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)
	seed(t, repo,
		domain.Invite{Code: "A", CreatedAt: 1},
		domain.Invite{Code: "A", CreatedAt: 2},
	)

	resp, err := repo.List(ctx, domain.ListRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(2), resp.Items[0].CreatedAt)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Primary: 1, Index: 1}, *stats)

	require.NoError(t, repo.Delete(ctx, "A"))
	resp, err = repo.List(ctx, domain.ListRequest{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestAddConflictsWithConcurrentAdd(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 1})

	entry, err := store.Get(ctx, primaryKey("A"))
	require.NoError(t, err)
	seed(t, repo, domain.Invite{Code: "A", CreatedAt: 2})

	res, err := store.Commit(ctx, kv.NewAtomic().
		Check(kv.Check{Key: primaryKey("A"), Versionstamp: entry.Versionstamp}).
		Delete(indexKey(1, "A")))
	require.NoError(t, err)
	assert.False(t, res.OK, "the second add moved the versionstamp")
}

func TestAddRejectsInvalidInvite(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	var verr *domain.ValidationError
	require.ErrorAs(t, repo.Add(ctx, domain.Invite{Code: "", CreatedAt: 1}), &verr)
	assert.Equal(t, "code", verr.Issues[0].Field)

	require.ErrorAs(t, repo.Add(ctx, domain.Invite{Code: "A", CreatedAt: -1}), &verr)
	assert.Equal(t, "createdAt", verr.Issues[0].Field)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{}, *stats)
}

func TestReindexPrunesStaleEntries(t *testing.T) {
	ctx := context.Background()
	repo, store := newTestRepo(t)
	seed(t, repo,
		domain.Invite{Code: "A", CreatedAt: 1},
		domain.Invite{Code: "B", CreatedAt: 2},
	)

	// an index entry left behind by an older createdAt, and one without a primary
	stale, err := json.Marshal(domain.Invite{Code: "A", CreatedAt: 0})
	require.NoError(t, err)
	_, err = kv.Set(ctx, store, indexKey(0, "A"), stale)
	require.NoError(t, err)
	_, err = kv.Delete(ctx, store, primaryKey("B"))
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.IndexStats{Primary: 1, Index: 3, Orphaned: 2}, *stats)

	count, err := repo.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	resp, err := repo.List(ctx, domain.ListRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, codes(resp.Items))
	assert.Equal(t, int64(1), resp.Items[0].CreatedAt)

	stats, err = repo.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Consistent())
}
