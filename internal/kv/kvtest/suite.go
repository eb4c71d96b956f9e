// Package kvtest holds behaviour tests shared by every kv.Store backend.
package kvtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/smallbiznis/invites/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) kv.Store

// TestStoreSuite runs the shared store contract against factory.
func TestStoreSuite(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s kv.Store)
	}{
		{"GetMissing", testGetMissing},
		{"SetGetDelete", testSetGetDelete},
		{"VersionstampsIncrease", testVersionstampsIncrease},
		{"ListOrderAndPrefix", testListOrderAndPrefix},
		{"ListPagination", testListPagination},
		{"ListReversePagination", testListReversePagination},
		{"ListInvalidCursor", testListInvalidCursor},
		{"CommitChecks", testCommitChecks},
		{"CommitAllOrNothing", testCommitAllOrNothing},
		{"ConcurrentChecks", testConcurrentChecks},
		{"Scan", testScan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustSet(t *testing.T, s kv.Store, key kv.Key, value string) kv.CommitResult {
	t.Helper()
	res, err := kv.Set(context.Background(), s, key, []byte(value))
	require.NoError(t, err)
	require.True(t, res.OK)
	return res
}

func values(entries []kv.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, string(e.Value))
	}
	return out
}

func testGetMissing(t *testing.T, s kv.Store) {
	entry, err := s.Get(context.Background(), kv.Key{"missing", "key"})
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func testSetGetDelete(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{"items", int64(42), "a"}
	res := mustSet(t, s, key, "hello")

	entry, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "hello", string(entry.Value))
	assert.Equal(t, kv.Key{"items", int64(42), "a"}, entry.Key)
	assert.Equal(t, res.Versionstamp, entry.Versionstamp)

	_, err = kv.Delete(ctx, s, key)
	require.NoError(t, err)

	entry, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func testVersionstampsIncrease(t *testing.T, s kv.Store) {
	first := mustSet(t, s, kv.Key{"v", "a"}, "1")
	second := mustSet(t, s, kv.Key{"v", "a"}, "2")
	assert.Less(t, first.Versionstamp, second.Versionstamp)
}

func testListOrderAndPrefix(t *testing.T, s kv.Store) {
	ctx := context.Background()
	mustSet(t, s, kv.Key{"by_time", int64(300), "c"}, "c")
	mustSet(t, s, kv.Key{"by_time", int64(-5), "z"}, "neg")
	mustSet(t, s, kv.Key{"by_time", int64(100), "b"}, "b")
	mustSet(t, s, kv.Key{"by_time", int64(100), "a"}, "a")
	mustSet(t, s, kv.Key{"by_time_other", int64(1), "x"}, "other")
	mustSet(t, s, kv.Key{"by"}, "parent")

	res, err := s.List(ctx, kv.Key{"by_time"}, kv.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"neg", "a", "b", "c"}, values(res.Entries))
	assert.Empty(t, res.Cursor)

	res, err = s.List(ctx, kv.Key{"by_time"}, kv.ListOptions{Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "neg"}, values(res.Entries))

	res, err = s.List(ctx, kv.Key{"nothing"}, kv.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.NotNil(t, res.Entries)
	assert.Empty(t, res.Cursor)
}

func seedOrdered(t *testing.T, s kv.Store, n int) {
	for i := 0; i < n; i++ {
		mustSet(t, s, kv.Key{"page", int64(i)}, fmt.Sprintf("%02d", i))
	}
}

func collect(t *testing.T, s kv.Store, limit int, reverse bool) [][]string {
	t.Helper()
	var pages [][]string
	cursor := ""
	for {
		res, err := s.List(context.Background(), kv.Key{"page"}, kv.ListOptions{
			Limit:   limit,
			Reverse: reverse,
			Cursor:  cursor,
		})
		require.NoError(t, err)
		pages = append(pages, values(res.Entries))
		if res.Cursor == "" {
			return pages
		}
		require.Less(t, len(pages), 100)
		cursor = res.Cursor
	}
}

func testListPagination(t *testing.T, s kv.Store) {
	seedOrdered(t, s, 5)
	pages := collect(t, s, 2, false)
	assert.Equal(t, [][]string{{"00", "01"}, {"02", "03"}, {"04"}}, pages)

	exact := collect(t, s, 5, false)
	assert.Equal(t, [][]string{{"00", "01", "02", "03", "04"}}, exact)
}

func testListReversePagination(t *testing.T, s kv.Store) {
	seedOrdered(t, s, 5)
	pages := collect(t, s, 2, true)
	assert.Equal(t, [][]string{{"04", "03"}, {"02", "01"}, {"00"}}, pages)
}

func testListInvalidCursor(t *testing.T, s kv.Store) {
	ctx := context.Background()
	seedOrdered(t, s, 3)
	mustSet(t, s, kv.Key{"elsewhere", "a"}, "x")
	mustSet(t, s, kv.Key{"elsewhere", "b"}, "y")

	_, err := s.List(ctx, kv.Key{"page"}, kv.ListOptions{Cursor: "%%%not-base64"})
	assert.ErrorIs(t, err, kv.ErrInvalidCursor)

	foreign, err := s.List(ctx, kv.Key{"elsewhere"}, kv.ListOptions{Limit: 1})
	require.NoError(t, err)
	require.NotEmpty(t, foreign.Cursor)

	_, err = s.List(ctx, kv.Key{"page"}, kv.ListOptions{Limit: 1, Cursor: foreign.Cursor})
	assert.ErrorIs(t, err, kv.ErrInvalidCursor)
}

func testCommitChecks(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{"checked", "k"}

	res, err := s.Commit(ctx, kv.NewAtomic().Check(kv.Check{Key: key}).Set(key, []byte("v1")))
	require.NoError(t, err)
	require.True(t, res.OK)

	res2, err := s.Commit(ctx, kv.NewAtomic().Check(kv.Check{Key: key}).Set(key, []byte("dup")))
	require.NoError(t, err)
	assert.False(t, res2.OK, "absence check must fail once the key exists")

	res3, err := s.Commit(ctx, kv.NewAtomic().Check(kv.Check{Key: key, Versionstamp: res.Versionstamp}).Set(key, []byte("v2")))
	require.NoError(t, err)
	assert.True(t, res3.OK)

	stale, err := s.Commit(ctx, kv.NewAtomic().Check(kv.Check{Key: key, Versionstamp: res.Versionstamp}).Delete(key))
	require.NoError(t, err)
	assert.False(t, stale.OK)

	entry, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "v2", string(entry.Value))
}

func testCommitAllOrNothing(t *testing.T, s kv.Store) {
	ctx := context.Background()
	guard := kv.Key{"guard"}
	mustSet(t, s, guard, "present")

	res, err := s.Commit(ctx, kv.NewAtomic().
		Check(kv.Check{Key: guard}).
		Set(kv.Key{"atomic", "a"}, []byte("a")).
		Set(kv.Key{"atomic", "b"}, []byte("b")))
	require.NoError(t, err)
	assert.False(t, res.OK)

	list, err := s.List(ctx, kv.Key{"atomic"}, kv.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Entries)

	res, err = s.Commit(ctx, kv.NewAtomic().
		Set(kv.Key{"atomic", "a"}, []byte("a")).
		Set(kv.Key{"atomic", "b"}, []byte("b")).
		Delete(kv.Key{"atomic", "a"}))
	require.NoError(t, err)
	assert.True(t, res.OK)

	list, err = s.List(ctx, kv.Key{"atomic"}, kv.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, values(list.Entries))
}

func testConcurrentChecks(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{"race", "k"}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Commit(ctx, kv.NewAtomic().Check(kv.Check{Key: key}).Set(key, []byte(fmt.Sprint(i))))
			if err != nil || !res.OK {
				return
			}
			mu.Lock()
			won++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

func testScan(t *testing.T, s kv.Store) {
	ctx := context.Background()
	seedOrdered(t, s, 3)
	mustSet(t, s, kv.Key{"pager"}, "outside")

	var seen []string
	err := s.Scan(ctx, kv.Key{"page"}, func(e kv.Entry) error {
		seen = append(seen, string(e.Value))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"00", "01", "02"}, seen)

	stop := fmt.Errorf("stop")
	count := 0
	err = s.Scan(ctx, kv.Key{"page"}, func(kv.Entry) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}
