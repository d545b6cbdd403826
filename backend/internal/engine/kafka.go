package engine

// SyncOpEvent 发往 Kafka 的已提交操作事件，供其他服务订阅同步流
type SyncOpEvent struct {
	EventType string `json:"eventType"` // 固定 "OP_FED"
	Space     string `json:"space"`
	Key       string `json:"key"`
	// Space 内的提交序号（增量拉取游标）
	Seq            int64                  `json:"seq"`
	BasedOnVersion int64                  `json:"basedOnVersion"`
	Actor          string                 `json:"actor"`
	Kind           Kind                   `json:"kind"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	OccurredAt     int64                  `json:"occurredAt"`
	// 本次操作之后的物化视图
	Jrec Jrec `json:"jrec"`
}
