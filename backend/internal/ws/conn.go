package ws

import (
	"context"
	"log"
	"time"

	"syncServer/backend/internal/engine"

	"github.com/gorilla/websocket"
)

// 订阅的逻辑 TTL，heartbeat 刷新
const watchTTL = 600 * time.Second

type Conn struct {
	ws    *websocket.Conn
	hub   *Hub
	actor string
	// 本连接订阅的 Record Space
	spaces map[string]struct{}
	send   chan OutboundMessage
	svc    engine.Service
	sem    *engine.SemaphoreControl
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string     { return m.Type }
func (m FedMessage) MessageType() string        { return m.Type }
func (m PushResultMessage) MessageType() string { return m.Type }
func (m LogPageMessage) MessageType() string    { return m.Type }

func NewConn(ws *websocket.Conn, hub *Hub, actor string, svc engine.Service, sem *engine.SemaphoreControl) *Conn {
	return &Conn{
		ws:     ws,
		hub:    hub,
		actor:  actor,
		spaces: make(map[string]struct{}),
		send:   make(chan OutboundMessage, 32),
		svc:    svc,
		sem:    sem,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	select {
	case c.send <- msg:
	default:
		// 队列满则丢弃，慢连接自己用 getLog 追平
	}
}

func (c *Conn) handlePush(ctx context.Context, msg ClientMessage) {
	pushCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()

	if err := c.sem.Acquire(pushCtx); err != nil {
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: err.Error()})
		return
	}
	defer c.sem.Release()

	if msg.BasedOnVersion == nil {
		c.SendMessage_Enqueue(PushResultMessage{
			Type: "push_result", Space: msg.Space, Key: msg.Key,
			Status: engine.StatusValidationError,
		})
		return
	}

	op := engine.Operation{
		Space:          msg.Space,
		Key:            msg.Key,
		BasedOnVersion: *msg.BasedOnVersion,
		Actor:          c.actor,
		Kind:           engine.Kind(msg.Kind),
		Payload:        msg.Payload,
		OccurredAt:     msg.OccurredAt,
	}
	res, err := c.svc.Push(pushCtx, op)
	if err != nil {
		log.Printf("ws push error (actor=%s space=%s key=%s): %v", c.actor, op.Space, op.Key, err)
		c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "PUSH_FAILED"})
		return
	}
	out := PushResultMessage{
		Type: "push_result", Space: op.Space, Key: op.Key,
		Status: res.Status, Seq: res.Seq,
	}
	if res.Status == engine.StatusCreated || res.Status == engine.StatusUpdated || res.Status == engine.StatusDuplicate {
		jrec := res.Jrec
		out.Jrec = &jrec
	}
	c.SendMessage_Enqueue(out)
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		// 连接断开时退订全部房间
		for space := range c.spaces {
			c.hub.Leave(space, c)
		}
		close(c.send)
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("read json error (actor=%s): %v", c.actor, err)
			return
		}
		switch msg.Type {
		case "heartbeat":
			// 刷新本连接所有订阅的逻辑 TTL
			for space := range c.spaces {
				if err := c.hub.watchers.AddWatcher(ctx, space, c.actor, watchTTL); err != nil {
					log.Printf("add watcher error: %v", err)
				}
			}
			c.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "Heartbeat received"})

		case "subscribe":
			spaces := msg.Spaces
			if msg.Space != "" {
				spaces = append(spaces, msg.Space)
			}
			for _, space := range spaces {
				if space == "" {
					continue
				}
				c.spaces[space] = struct{}{}
				c.hub.Join(space, c)
				if err := c.hub.watchers.AddWatcher(ctx, space, c.actor, watchTTL); err != nil {
					log.Printf("add watcher error: %v", err)
				}
				c.SendMessage_Enqueue(ServerMessage{Type: "subscribed", Space: space})
			}

		case "unsubscribe":
			spaces := msg.Spaces
			if msg.Space != "" {
				spaces = append(spaces, msg.Space)
			}
			for _, space := range spaces {
				delete(c.spaces, space)
				c.hub.Leave(space, c)
				c.SendMessage_Enqueue(ServerMessage{Type: "unsubscribed", Space: space})
			}

		case "watchers":
			alive, err := c.hub.watchers.GetAliveWatchers(ctx, msg.Space)
			if err != nil {
				log.Printf("get alive watchers error: %v", err)
			}
			c.SendMessage_Enqueue(ServerMessage{Type: "watchers", Space: msg.Space, Watchers: alive})

		case "ack":
			// 订阅者确认消费到的游标，记到 redis（重连后可从这里续传）
			if msg.Space == "" {
				continue
			}
			if err := c.hub.watchers.SetCursor(ctx, msg.Space, c.actor, msg.Cursor, watchTTL); err != nil {
				log.Printf("set cursor error: %v", err)
			}

		case "getLog":
			// 握手/重连后追平：返回 cursor 之后的全部操作
			items, next, err := c.svc.GetQueueitems(ctx, msg.Space, msg.Cursor)
			if err != nil {
				log.Printf("ws getLog error (space=%s): %v", msg.Space, err)
				c.SendMessage_Enqueue(ServerMessage{Type: "error", Content: "GETLOG_FAILED"})
				continue
			}
			c.SendMessage_Enqueue(LogPageMessage{Type: "queueitems", Space: msg.Space, Queueitems: items, Cursor: next})

		case "push":
			c.handlePush(ctx, msg)

		default:
			// 忽略未知类型，回一条提示
			c.SendMessage_Enqueue(ServerMessage{Type: "ignored", Content: "Unknown message type"})
		}
	}
}

func (c *Conn) writeLoop() {
	// 持续消费通道中的出站消息
	for msg := range c.send {
		_ = c.ws.WriteJSON(msg)
	}
}
