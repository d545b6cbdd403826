package ws

import (
	"context"
	"sync"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/engine"
)

// Hub 维护 Record Space → 连接集合 的订阅关系，并作为 fed 监听器
// 把引擎提交的操作推给本实例上订阅了该 Space 的连接。
// 跨实例的订阅状态落在 WatcherCache（redis）里。
type Hub struct {
	watchers cache.WatcherCache
	// 读写锁保护 rooms，订阅/退订/广播并发进行
	mu sync.RWMutex
	// space -> set of connections
	rooms map[string]map[*Conn]struct{}
}

func NewHub(w cache.WatcherCache) *Hub {
	return &Hub{watchers: w, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定 Space 的订阅集合
func (h *Hub) Join(space string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[space] == nil {
		// 存连接而不是 actor：同一 actor 可能开多个连接（多端/多标签页），
		// 广播要逐连接发
		h.rooms[space] = make(map[*Conn]struct{})
	}
	h.rooms[space][c] = struct{}{}
}

// Leave 将连接从指定 Space 的订阅集合移除
func (h *Hub) Leave(space string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[space]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, space)
		}
	}
}

// Fed 实现 engine.Listener：每条落盘操作推送一次
func (h *Hub) Fed(ctx context.Context, c engine.Committed) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[c.Op.Space]))
	for conn := range h.rooms[c.Op.Space] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	msg := FedMessage{
		Type:  "fed",
		Space: c.Op.Space,
		Key:   c.Op.Key,
		Seq:   c.Seq,
		Op:    c.Op,
		Jrec:  c.Jrec,
	}
	for _, conn := range conns {
		conn.SendMessage_Enqueue(msg)
	}
}
