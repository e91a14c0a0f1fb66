package history

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing times so ordering never ties.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *fakeClock) Store

func newTestFileStore(t *testing.T, clock *fakeClock) Store {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "history.json"), 1000)
	require.NoError(t, err)
	s.now = clock.Now
	return s
}

func newTestSQLiteStore(t *testing.T, clock *fakeClock) Store {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), 1000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	s.now = clock.Now
	return s
}

func newTestRedisStore(t *testing.T, clock *fakeClock) Store {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test:history:", 24*time.Hour)
	t.Cleanup(func() { _ = s.Close() })
	s.now = clock.Now
	return s
}

var backends = map[string]storeFactory{
	"file":   newTestFileStore,
	"sqlite": newTestSQLiteStore,
	"redis":  newTestRedisStore,
}

func TestStore_Contract(t *testing.T) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t, newFakeClock())

			a, err := store.Append(ctx, Record{Prompt: "A", Model: "flux-schnell", Style: "anime", ImageURLs: []string{"u1", "u2"}, Success: true})
			require.NoError(t, err)
			b, err := store.Append(ctx, Record{Prompt: "B", Model: "flux-1.1-pro", Success: false, Error: "boom"})
			require.NoError(t, err)

			t.Run("append stamps records", func(t *testing.T) {
				assert.Regexp(t, `^\d+-[0-9a-z]{9}$`, a.ID)
				assert.NotEqual(t, a.ID, b.ID)
				assert.NotZero(t, a.Timestamp)
				assert.NotEmpty(t, a.Date)
				assert.Equal(t, 2, a.NumImages)
				assert.Equal(t, "none", b.Style)
				assert.Equal(t, []string{}, b.ImageURLs)
			})

			t.Run("list is newest first", func(t *testing.T) {
				page, err := store.List(ctx, 0, "")
				require.NoError(t, err)
				require.Len(t, page.Records, 2)
				assert.Equal(t, "B", page.Records[0].Prompt)
				assert.Equal(t, "A", page.Records[1].Prompt)
				assert.Equal(t, 2, page.Total)
				assert.False(t, page.HasMore)
				assert.Equal(t, a, page.Records[1], "records are stored unchanged")
			})

			t.Run("pagination", func(t *testing.T) {
				page, err := store.List(ctx, 1, "")
				require.NoError(t, err)
				require.Len(t, page.Records, 1)
				assert.Equal(t, "B", page.Records[0].Prompt)
				assert.True(t, page.HasMore)
				assert.Equal(t, "1", page.NextCursor)

				page, err = store.List(ctx, 1, page.NextCursor)
				require.NoError(t, err)
				require.Len(t, page.Records, 1)
				assert.Equal(t, "A", page.Records[0].Prompt)
				assert.False(t, page.HasMore)

				page, err = store.List(ctx, 10, "99")
				require.NoError(t, err)
				assert.Empty(t, page.Records)
			})

			t.Run("stats", func(t *testing.T) {
				st, err := store.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, 2, st.Total)
				assert.Equal(t, 2, st.TotalImages)
				assert.Equal(t, map[string]int{"flux-schnell": 1, "flux-1.1-pro": 1}, st.ByModel)
				assert.Equal(t, map[string]int{"anime": 1, "none": 1}, st.ByStyle)
				assert.Equal(t, map[string]int{"2025-03-02": 2}, st.ByDay)
			})

			t.Run("delete is exact and idempotent", func(t *testing.T) {
				require.NoError(t, store.Delete(ctx, "does-not-exist"))
				require.NoError(t, store.Delete(ctx, a.ID))
				require.NoError(t, store.Delete(ctx, a.ID))

				all, err := store.Records(ctx)
				require.NoError(t, err)
				require.Len(t, all, 1)
				assert.Equal(t, b.ID, all[0].ID)
			})
		})
	}
}

func TestFileStore_CapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "history.json"), 3)
	require.NoError(t, err)
	s.now = clock.Now

	var ids []string
	for _, p := range []string{"1", "2", "3", "4"} {
		rec, err := s.Append(ctx, Record{Prompt: p})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	all, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ids[3], ids[2], ids[1]}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestSQLiteStore_CapacityEvictsOldest(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), 2)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	s.now = clock.Now

	for _, p := range []string{"old", "mid", "new"} {
		_, err := s.Append(ctx, Record{Prompt: p})
		require.NoError(t, err)
	}
	all, err := s.Records(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new", all[0].Prompt)
	assert.Equal(t, "mid", all[1].Prompt)
}

func TestFileStore_ConcurrentAppendsKeepEveryRecord(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "history.json"), 1000)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Append(ctx, Record{Prompt: "concurrent"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Len(t, all, writers)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	s, err := NewFileStore(path, 10)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err = s.Append(context.Background(), Record{Prompt: "x"})
	assert.ErrorContains(t, err, "failed to parse history file")
}

func TestNewFileStore_InvalidCapacity(t *testing.T) {
	_, err := NewFileStore(filepath.Join(t.TempDir(), "h.json"), 0)
	assert.Error(t, err)
}

func TestRedisStore_ExpiredRecordsDropOut(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	clock := newFakeClock()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "h:", time.Hour)
	s.now = clock.Now
	defer func() { _ = s.Close() }()

	old, err := s.Append(ctx, Record{Prompt: "old"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("h:rec:"+old.ID))
	assert.Equal(t, time.Hour, mr.TTL("h:rec:"+old.ID))

	mr.FastForward(90 * time.Minute)
	clock.Advance(90 * time.Minute)

	_, err = s.Append(ctx, Record{Prompt: "fresh"})
	require.NoError(t, err)

	page, err := s.List(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "fresh", page.Records[0].Prompt)
	assert.Equal(t, 1, page.Total)
}

func TestRedisStore_DanglingIndexEntriesArePruned(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "h:", 0)
	s.now = newFakeClock().Now

	rec, err := s.Append(ctx, Record{Prompt: "gone"})
	require.NoError(t, err)
	mr.Del("h:rec:" + rec.ID)

	all, err := s.Records(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	members, err := client.ZCard(ctx, "h:index").Result()
	require.NoError(t, err)
	assert.Zero(t, members)
}
