package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// WatcherCache 记录哪些 actor 正在订阅哪些 Record Space（跨实例共享），
// 以及每个订阅者确认到的增量游标。
type WatcherCache interface {
	AddWatcher(ctx context.Context, space, actor string, ttl time.Duration) error
	GetWatchedSpaces(ctx context.Context) ([]string, error)
	GetAliveWatchers(ctx context.Context, space string) ([]string, error)
	SetCursor(ctx context.Context, space, actor string, seq int64, ttl time.Duration) error
	GetCursor(ctx context.Context, space, actor string) (int64, error)
}

// 具体实现：基于 redis 的 WatcherCache
type redisWatchers struct {
	rdb *redis.Client
}

func NewRedisWatchers(rdb *redis.Client) WatcherCache {
	return &redisWatchers{rdb: rdb}
}

func (p *redisWatchers) AddWatcher(ctx context.Context, space, actor string, ttl time.Duration) error {
	// 刷新 TTL 也直接调用 AddWatcher 即可
	// ZSET score 使用 expireAt（Unix 秒），表达“逻辑 TTL”
	expireAt := time.Now().Add(ttl).Unix()
	return p.rdb.ZAdd(ctx, watchKey(space), redis.Z{Score: float64(expireAt), Member: actor}).Err()
}

func (p *redisWatchers) GetWatchedSpaces(ctx context.Context) ([]string, error) {
	var spaces []string
	iter := p.rdb.Scan(ctx, 0, "sync:watch:*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		space := strings.TrimSuffix(strings.TrimPrefix(k, "sync:watch:{space:"), "}")
		if space != "" {
			spaces = append(spaces, space)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return spaces, nil
}

func (p *redisWatchers) GetAliveWatchers(ctx context.Context, space string) ([]string, error) {
	// step1: 清理过期订阅者
	// 约定：score=expireAt（Unix 秒），expireAt <= now 视为过期
	now := time.Now().Unix()
	luaScript := `
	-- KEYS[1] = watchKey(space)   e.g. sync:watch:{space:xx}
	-- ARGV[1] = now (unix seconds)

	local expired = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	if #expired > 0 then
		redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
	end
	return #expired
	`

	script := redis.NewScript(luaScript)
	_, err := script.Run(ctx, p.rdb, []string{watchKey(space)}, now).Int()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	// step2: 查询在线订阅者
	alive, err := p.rdb.ZRangeByScore(ctx, watchKey(space), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now, 10), // > now
		Max: "+inf",
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return alive, nil
}

func (p *redisWatchers) SetCursor(ctx context.Context, space, actor string, seq int64, ttl time.Duration) error {
	return p.rdb.Set(ctx, cursorKey(space, actor), seq, ttl).Err()
}

func (p *redisWatchers) GetCursor(ctx context.Context, space, actor string) (int64, error) {
	v, err := p.rdb.Get(ctx, cursorKey(space, actor)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v, nil
}
