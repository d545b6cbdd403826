package ws

import (
	"syncServer/backend/internal/engine"
)

type ClientMessage struct {
	Type  string `json:"type"`
	Space string `json:"space,omitempty"`
	// subscribe/unsubscribe 可以一次带多个 space
	Spaces []string `json:"spaces,omitempty"`
	Key    string   `json:"key,omitempty"`
	// push 用。指针用于区分“缺字段”和 0
	BasedOnVersion *int64                 `json:"basedOnVersion,omitempty"`
	Kind           string                 `json:"kind,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	OccurredAt     int64                  `json:"occurredAt,omitempty"`
	// 旧协议里客户端会带 removed 标志，服务端从不读它（removed 由 kind 推导）
	Removed *bool `json:"removed,omitempty"`
	// ack / getLog 用
	Cursor int64 `json:"seqId,omitempty"`
}

type ServerMessage struct {
	Type     string   `json:"type"`
	Space    string   `json:"space,omitempty"`
	Key      string   `json:"key,omitempty"`
	Content  string   `json:"content,omitempty"`
	Watchers []string `json:"watchers,omitempty"`
}

// FedMessage 广播给订阅了该 Record Space 的连接：一条操作已落盘
type FedMessage struct {
	Type  string           `json:"type"` // 固定 "fed"
	Space string           `json:"space"`
	Key   string           `json:"key"`
	Seq   int64            `json:"seqId"`
	Op    engine.Operation `json:"queueitem"`
	Jrec  engine.Jrec      `json:"jrec"`
}

// PushResultMessage 对 push 消息的应答（ack 或冲突结果）
type PushResultMessage struct {
	Type   string        `json:"type"` // 固定 "push_result"
	Space  string        `json:"space"`
	Key    string        `json:"key"`
	Status engine.Status `json:"status"`
	Seq    int64         `json:"seqId,omitempty"`
	Jrec   *engine.Jrec  `json:"jrec,omitempty"`
}

// LogPageMessage 对 getLog 消息的应答
type LogPageMessage struct {
	Type       string             `json:"type"` // 固定 "queueitems"
	Space      string             `json:"space"`
	Queueitems []engine.Committed `json:"queueitems"`
	Cursor     int64              `json:"seqId"`
}
