package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semble_errors "github.com/dev-mohitbeniwal/semble/errors"
	"github.com/dev-mohitbeniwal/semble/model"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, maxSize int) (*CacheService[string], *testclock.Clock) {
	t.Helper()
	clk := testclock.NewClock(epoch)
	cfg := model.CacheConfig{Enabled: true, DefaultTTL: time.Minute, MaxSize: maxSize, KeyPrefix: "test:"}
	return New[string](cfg, WithClock(clk)), clk
}

func TestCacheService_SetGetWithinTTL(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, 10)

	require.NoError(t, c.Set(ctx, "patient", "p-1", 10*time.Second))

	clk.Advance(10 * time.Second)
	v, ok, err := c.Get(ctx, "patient")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "p-1", v)

	clk.Advance(time.Millisecond)
	_, ok, err = c.Get(ctx, "patient")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size(), "expired entry should be deleted on read")
}

func TestCacheService_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, 10)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	meta, ok := c.EntryMetadata("k")
	require.True(t, ok)
	assert.Equal(t, epoch.Add(time.Minute), meta.ExpiresAt)

	clk.Advance(time.Minute + time.Second)
	assert.False(t, c.Has("k"))
}

func TestCacheService_GetUpdatesAccessMetadata(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, 10)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	assert.True(t, c.Has("k"))

	meta, _ := c.EntryMetadata("k")
	assert.Zero(t, meta.AccessCount, "Has must not count as an access")
	assert.True(t, meta.LastAccessed.IsZero())

	clk.Advance(time.Second)
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "k")

	meta, _ = c.EntryMetadata("k")
	assert.Equal(t, int64(2), meta.AccessCount)
	assert.Equal(t, epoch.Add(time.Second), meta.LastAccessed)
}

func TestCacheService_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, 3)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, k, 0))
		clk.Advance(time.Second)
	}

	// Reading a makes b the oldest.
	_, _, _ = c.Get(ctx, "a")
	clk.Advance(time.Second)

	require.NoError(t, c.Set(ctx, "d", "d", 0))

	assert.Equal(t, 3, c.Size())
	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
	assert.True(t, c.Has("d"))
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCacheService_EvictionTieEvictsLastSeen(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 2)

	require.NoError(t, c.Set(ctx, "a", "a", 0))
	require.NoError(t, c.Set(ctx, "b", "b", 0))
	require.NoError(t, c.Set(ctx, "c", "c", 0))

	assert.Equal(t, []string{"a", "c"}, c.Keys())
}

func TestCacheService_OverwriteAtCapacityDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 2)

	require.NoError(t, c.Set(ctx, "a", "a", 0))
	require.NoError(t, c.Set(ctx, "b", "b", 0))
	require.NoError(t, c.Set(ctx, "a", "a2", 0))

	assert.Equal(t, 2, c.Size())
	v, ok, _ := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, "a2", v)
	assert.Zero(t, c.Stats().Evictions)
}

func TestCacheService_Disabled(t *testing.T) {
	ctx := context.Background()
	c := New[string](model.CacheConfig{Enabled: false, DefaultTTL: time.Minute})

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())
}

func TestCacheService_DeleteClearAndStats(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))

	_, _, _ = c.Get(ctx, "b")
	_, _, _ = c.Get(ctx, "a")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)

	c.Clear()
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func TestGenerateKey(t *testing.T) {
	tests := []struct {
		name     string
		parts    []string
		strategy model.KeyStrategy
		want     string
	}{
		{"simple", []string{"patients", "42"}, model.KeyStrategySimple, "patients_42"},
		{"hierarchical", []string{"patients", "42"}, model.KeyStrategyHierarchical, "patients:42"},
		{"default is hierarchical", []string{"a", "b"}, "", "a:b"},
		{"sanitizes", []string{"user@example.com", "a b"}, model.KeyStrategySimple, "user_example_com_a_b"},
		{"hashed", []string{"a", "b"}, model.KeyStrategyHashed, "hash_97159"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateKey(tt.parts, tt.strategy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateKey_HashedIsDeterministic(t *testing.T) {
	first, err := GenerateKey([]string{"bookings", "2024-03-01", "practitioner-7"}, model.KeyStrategyHashed)
	require.NoError(t, err)
	second, err := GenerateKey([]string{"bookings", "2024-03-01", "practitioner-7"}, model.KeyStrategyHashed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Regexp(t, `^hash_\d+$`, first)
}

func TestGenerateKey_TruncatesParts(t *testing.T) {
	long := ""
	for i := 0; i < 80; i++ {
		long += "x"
	}
	got, err := GenerateKey([]string{long}, model.KeyStrategySimple)
	require.NoError(t, err)
	assert.Len(t, got, 50)
}

func TestGenerateKey_InvalidStrategy(t *testing.T) {
	_, err := GenerateKey([]string{"a"}, "sharded")
	require.Error(t, err)
	assert.Equal(t, semble_errors.CategoryValidation, semble_errors.CategoryOf(err))
	assert.Contains(t, err.Error(), "simple, hierarchical, hashed")
}

func TestCacheService_RefreshEntryCoalesces(t *testing.T) {
	ctx := context.Background()
	c := New[string](model.CacheConfig{Enabled: true, DefaultTTL: time.Minute, MaxSize: 10})

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "fresh", nil
	}

	const n = 10
	results := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, err := c.RefreshEntry(ctx, "schema", fn, 0)
		assert.NoError(t, err)
		results[0] = v
	}()
	<-started

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.RefreshEntry(ctx, "schema", fn, 0)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "fresh", r)
	}
	v, ok, _ := c.Get(ctx, "schema")
	assert.True(t, ok)
	assert.Equal(t, "fresh", v)
}

func TestCacheService_RefreshEntryMarksRefreshing(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10)
	require.NoError(t, c.Set(ctx, "k", "old", 0))

	var during bool
	_, err := c.RefreshEntry(ctx, "k", func(context.Context) (string, error) {
		meta, _ := c.EntryMetadata("k")
		during = meta.Refreshing
		return "new", nil
	}, 0)
	require.NoError(t, err)

	assert.True(t, during)
	meta, _ := c.EntryMetadata("k")
	assert.False(t, meta.Refreshing)
}

func TestCacheService_RefreshEntryFailure(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10)
	require.NoError(t, c.Set(ctx, "k", "old", 0))

	boom := errors.New("upstream down")
	_, err := c.RefreshEntry(ctx, "k", func(context.Context) (string, error) {
		return "", boom
	}, 0)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, semble_errors.CodeCacheRefresh, semble_errors.CodeOf(err))

	meta, ok := c.EntryMetadata("k")
	require.True(t, ok)
	assert.False(t, meta.Refreshing, "refreshing flag must be cleared after failure")
	v, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "old", v)
}

func TestCacheService_RefreshEntryKeepsServiceErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10)

	unauthorized := semble_errors.NewAuthError(semble_errors.CodeUnauthorized, "token rejected")
	_, err := c.RefreshEntry(ctx, "k", func(context.Context) (string, error) {
		return "", unauthorized
	}, 0)

	assert.Same(t, unauthorized, err)
	assert.Equal(t, semble_errors.CategoryAuth, semble_errors.CategoryOf(err))
	assert.Equal(t, semble_errors.CodeUnauthorized, semble_errors.CodeOf(err))
}

func TestCacheService_RefreshEntrySurvivesLeaderCancel(t *testing.T) {
	c, _ := newTestCache(t, 10)

	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "fresh", nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.RefreshEntry(leaderCtx, "k", fn, 0)
		leaderErr <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	assert.Eventually(t, func() bool {
		v, ok, _ := c.Get(context.Background(), "k")
		return ok && v == "fresh"
	}, time.Second, 5*time.Millisecond)
}

func TestCacheService_RefreshAfterShutdownIsNotStored(t *testing.T) {
	c, _ := newTestCache(t, 10)

	started := make(chan struct{})
	release := make(chan struct{})
	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.RefreshEntry(leaderCtx, "k", func(context.Context) (string, error) {
			close(started)
			<-release
			return "late", nil
		}, 0)
		leaderErr <- err
	}()
	<-started
	cancel()
	require.Error(t, <-leaderErr)

	require.NoError(t, c.Shutdown(context.Background()))
	close(release)

	// Joining the same key waits for the detached refresh to finish.
	_, _, _ = c.refreshGroup.Do(c.normalize("k"), func() (any, error) { return nil, nil })
	assert.Equal(t, 0, c.Size())
}

func TestCacheService_RefreshAllContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10)

	result := c.RefreshAll(ctx, map[string]RefreshFunc[string]{
		"a": func(context.Context) (string, error) { return "A", nil },
		"b": func(context.Context) (string, error) { return "", errors.New("nope") },
		"c": func(context.Context) (string, error) { return "C", nil },
	})

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.RefreshedCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "b", result.Errors[0].Key)
	assert.True(t, c.Has("a"))
	assert.True(t, c.Has("c"))
}

func TestCacheService_RefreshExpiredOnlyTouchesExpired(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(t, 10)

	require.NoError(t, c.Set(ctx, "short", "s", time.Second))
	require.NoError(t, c.Set(ctx, "long", "l", time.Hour))
	clk.Advance(2 * time.Second)

	var refreshed []string
	var mu sync.Mutex
	record := func(key string) RefreshFunc[string] {
		return func(context.Context) (string, error) {
			mu.Lock()
			refreshed = append(refreshed, key)
			mu.Unlock()
			return key + "-new", nil
		}
	}

	result := c.RefreshExpired(ctx, map[string]RefreshFunc[string]{
		"short": record("short"),
		"long":  record("long"),
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.RefreshedCount)
	assert.Equal(t, []string{"short"}, refreshed)
}

func TestCacheService_SweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	clk := testclock.NewClock(epoch)
	c := New[string](model.CacheConfig{
		Enabled:             true,
		DefaultTTL:          time.Second,
		MaxSize:             10,
		BackgroundRefresh:   true,
		AutoRefreshInterval: time.Minute,
	}, WithClock(clk))
	defer c.StopAutoRefresh()

	require.NoError(t, c.Set(ctx, "a", "a", 0))
	require.NoError(t, c.Set(ctx, "b", "b", time.Hour))

	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	assert.Eventually(t, func() bool { return c.Size() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"b"}, c.Keys())
}

func TestCacheService_Shutdown(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, 10)
	require.NoError(t, c.Set(ctx, "a", "a", 0))

	require.NoError(t, c.Shutdown(ctx))
	assert.Equal(t, 0, c.Size())

	err := c.Set(ctx, "b", "b", 0)
	assert.ErrorIs(t, err, semble_errors.ErrCacheClosed)
	assert.Equal(t, semble_errors.CategoryCache, semble_errors.CategoryOf(err))

	_, err = c.RefreshEntry(ctx, "b", func(context.Context) (string, error) { return "b", nil }, 0)
	assert.ErrorIs(t, err, semble_errors.ErrCacheClosed)
}

func TestPermissionCache_InvalidateUser(t *testing.T) {
	ctx := context.Background()
	pc := NewPermissionCache(model.CacheConfig{Enabled: true, DefaultTTL: time.Minute, MaxSize: 10})

	perms := &model.ResourcePermissions{Resource: "patients", GlobalPermission: model.PermissionRead}
	require.NoError(t, pc.CachePermissions(ctx, "patients", "u1", perms, 0))
	require.NoError(t, pc.CachePermissions(ctx, "bookings", "u1", perms, 0))
	require.NoError(t, pc.CachePermissions(ctx, "patients", "u2", perms, 0))

	got, ok, err := pc.GetPermissions(ctx, "patients", "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.PermissionRead, got.GlobalPermission)

	assert.Equal(t, 2, pc.InvalidateUser("u1"))
	assert.Equal(t, []string{"patients:u2"}, pc.Keys())
}

func TestPermissionKey_EmptyUser(t *testing.T) {
	assert.Equal(t, "patients:", PermissionKey("patients", ""))
	assert.NotEqual(t, PermissionKey("patients", ""), PermissionKey("patients", "current"))
}

func TestPermissionKey_DistinctUsersNeverCollide(t *testing.T) {
	pairs := [][2]string{
		{"a.b@x.com", "a_b_x_com"},
		{"a:b", "a_b"},
		{"a+b", "a b"},
		{strings.Repeat("u", 50) + "1", strings.Repeat("u", 50) + "2"},
	}
	for _, p := range pairs {
		assert.NotEqual(t, PermissionKey("patients", p[0]), PermissionKey("patients", p[1]), "%q vs %q", p[0], p[1])
	}
	assert.NotEqual(t, PermissionKey("a:b", "c"), PermissionKey("a", "b:c"))
}

func TestPermissionCache_SimilarUserIDsKeepSeparateEntries(t *testing.T) {
	ctx := context.Background()
	pc := NewPermissionCache(model.CacheConfig{Enabled: true, DefaultTTL: time.Minute, MaxSize: 10})

	admin := &model.ResourcePermissions{Resource: "patients", GlobalPermission: model.PermissionAdmin}
	require.NoError(t, pc.CachePermissions(ctx, "patients", "a.b@x.com", admin, 0))

	_, ok, err := pc.GetPermissions(ctx, "patients", "a_b_x_com")
	require.NoError(t, err)
	assert.False(t, ok)

	none := &model.ResourcePermissions{Resource: "patients", GlobalPermission: model.PermissionNone}
	require.NoError(t, pc.CachePermissions(ctx, "patients", "a_b_x_com", none, 0))

	assert.Equal(t, 1, pc.InvalidateUser("a.b@x.com"))
	got, ok, err := pc.GetPermissions(ctx, "patients", "a_b_x_com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.PermissionNone, got.GlobalPermission)
}
