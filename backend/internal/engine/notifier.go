package engine

import (
	"context"
	"log"
	"sync"
)

// Listener 变更监听器：每条成功落盘的操作回调一次（fed 事件）。
// 回调在独立 goroutine 里执行，慢的/失败的监听器不会阻塞提交方，
// 也不会回滚已提交的写入。
type Listener interface {
	Fed(ctx context.Context, c Committed)
}

// ListenerFunc 便捷适配
type ListenerFunc func(ctx context.Context, c Committed)

func (f ListenerFunc) Fed(ctx context.Context, c Committed) { f(ctx, c) }

// Notifier 维护监听器集合并异步派发。监听器之间没有顺序保证。
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Listen(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// Notify 提交成功后由引擎调用，每条提交恰好一次。
func (n *Notifier) Notify(c Committed) {
	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, l := range listeners {
		go func(l Listener) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("fed listener panic (space=%s key=%s seq=%d): %v",
						c.Op.Space, c.Op.Key, c.Seq, r)
				}
			}()
			l.Fed(context.Background(), c)
		}(l)
	}
}
