package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// 需要本地 redis。连不上就跳过。
func newTestWatchers(t *testing.T) (WatcherCache, *redis.Client) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable, skip: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return NewRedisWatchers(rdb), rdb
}

func cleanSpace(t *testing.T, rdb *redis.Client, space string, actors ...string) {
	t.Helper()
	ctx := context.Background()
	if err := rdb.Del(ctx, watchKey(space)).Err(); err != nil {
		t.Fatalf("del watch key: %v", err)
	}
	for _, a := range actors {
		if err := rdb.Del(ctx, cursorKey(space, a)).Err(); err != nil {
			t.Fatalf("del cursor key: %v", err)
		}
	}
}

func TestRedisWatchers_AddAndList(t *testing.T) {
	w, rdb := newTestWatchers(t)
	ctx := context.Background()
	space := "test_watch_space"
	cleanSpace(t, rdb, space)
	t.Cleanup(func() { cleanSpace(t, rdb, space) })

	if err := w.AddWatcher(ctx, space, "ben", 600*time.Second); err != nil {
		t.Fatalf("AddWatcher: %v", err)
	}
	if err := w.AddWatcher(ctx, space, "jon", 600*time.Second); err != nil {
		t.Fatalf("AddWatcher: %v", err)
	}

	alive, err := w.GetAliveWatchers(ctx, space)
	if err != nil {
		t.Fatalf("GetAliveWatchers: %v", err)
	}
	if len(alive) != 2 {
		t.Fatalf("alive = %v, want 2 watchers", alive)
	}
}

func TestRedisWatchers_ExpiredAreCleanedUp(t *testing.T) {
	w, rdb := newTestWatchers(t)
	ctx := context.Background()
	space := "test_expire_space"
	cleanSpace(t, rdb, space)
	t.Cleanup(func() { cleanSpace(t, rdb, space) })

	// 负 TTL 造出一个已过期的订阅者
	if err := w.AddWatcher(ctx, space, "ghost", -10*time.Second); err != nil {
		t.Fatalf("AddWatcher: %v", err)
	}
	if err := w.AddWatcher(ctx, space, "ben", 600*time.Second); err != nil {
		t.Fatalf("AddWatcher: %v", err)
	}

	alive, err := w.GetAliveWatchers(ctx, space)
	if err != nil {
		t.Fatalf("GetAliveWatchers: %v", err)
	}
	if len(alive) != 1 || alive[0] != "ben" {
		t.Fatalf("alive = %v, want [ben]", alive)
	}

	// 过期成员应当已经被 lua 清理掉
	n, err := rdb.ZCard(ctx, watchKey(space)).Result()
	if err != nil {
		t.Fatalf("ZCard: %v", err)
	}
	if n != 1 {
		t.Fatalf("zset size = %d, want 1 after cleanup", n)
	}
}

func TestRedisWatchers_RefreshExtendsTTL(t *testing.T) {
	w, rdb := newTestWatchers(t)
	ctx := context.Background()
	space := "test_refresh_space"
	cleanSpace(t, rdb, space)
	t.Cleanup(func() { cleanSpace(t, rdb, space) })

	if err := w.AddWatcher(ctx, space, "ben", 1*time.Second); err != nil {
		t.Fatalf("AddWatcher: %v", err)
	}
	// 心跳重入刷新 score
	if err := w.AddWatcher(ctx, space, "ben", 600*time.Second); err != nil {
		t.Fatalf("AddWatcher refresh: %v", err)
	}

	score, err := rdb.ZScore(ctx, watchKey(space), "ben").Result()
	if err != nil {
		t.Fatalf("ZScore: %v", err)
	}
	if int64(score) < time.Now().Add(500*time.Second).Unix() {
		t.Fatalf("score %v not refreshed", score)
	}
}

func TestRedisWatchers_Cursor(t *testing.T) {
	w, rdb := newTestWatchers(t)
	ctx := context.Background()
	space := "test_cursor_space"
	cleanSpace(t, rdb, space, "ben")
	t.Cleanup(func() { cleanSpace(t, rdb, space, "ben") })

	// 没确认过的游标按 0 处理（从头拉）
	seq, err := w.GetCursor(ctx, space, "ben")
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	if seq != 0 {
		t.Fatalf("cursor = %d, want 0", seq)
	}

	if err := w.SetCursor(ctx, space, "ben", 42, 600*time.Second); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	seq, err = w.GetCursor(ctx, space, "ben")
	if err != nil || seq != 42 {
		t.Fatalf("cursor = %d, %v, want 42", seq, err)
	}
}
