package ws

import (
	"log"
	"net/http"
	"strings"

	"syncServer/backend/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// 全局的 WebSocket upgrader（允许本地开发环境的来源）
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" { // 一些环境可能不发送 Origin，或为 "null"
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h   *Hub
	svc engine.Service
	sem *engine.SemaphoreControl
}

func NewManager(h *Hub, svc engine.Service, sem *engine.SemaphoreControl) *Manager {
	return &Manager{h: h, svc: svc, sem: sem}
}

func (m *Manager) WebSocketConnect(c *gin.Context) {
	// actor 由中间件写入 context（边界层负责身份，这里直接信任）
	actor := c.GetString("actor")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.h, actor, m.svc, m.sem)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()
	wsConn.send <- ServerMessage{Type: "welcome", Content: "connected"}

	// 最后进入读循环（阻塞至连接关闭）
	wsConn.readLoop(c.Request.Context())
}
