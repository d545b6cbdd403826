package cache

import "fmt"

// 键语义：
// - watchKey(space):        该 Record Space 的在线订阅者（ZSet<actor, expireAtUnix>，score=expireAt）
// - cursorKey(space,actor): 订阅者在该 Space 内确认到的游标（String，seq 数值）

const (
	keyWatchFmt  = "sync:watch:{space:%s}"           // ZSet<actor -> expireAtUnix>
	keyCursorFmt = "sync:cursor:{space:%s}:actor:%s" // String<seq>
)

func watchKey(space string) string         { return fmt.Sprintf(keyWatchFmt, space) }
func cursorKey(space, actor string) string { return fmt.Sprintf(keyCursorFmt, space, actor) }
