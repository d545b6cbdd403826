package engine

// Kind 操作类型：set 整体覆盖，update 浅合并，remove 删除（墓碑，终态）
type Kind string

const (
	KindSet    Kind = "set"
	KindUpdate Kind = "update"
	KindRemove Kind = "remove"
)

// Operation 一次客户端提交的变更（对应协议里的 queueitem）。
// 一旦被接受写入日志就不可再修改。
type Operation struct {
	Space string `json:"space"`
	Key   string `json:"key"`
	// 客户端提交时假定的基准版本（乐观并发令牌）
	BasedOnVersion int64  `json:"basedOnVersion"`
	Actor          string `json:"actor"`
	Kind           Kind   `json:"kind"`
	// set/update 必填；remove 不需要（即使带了也会被忽略）
	Payload map[string]interface{} `json:"payload,omitempty"`
	// 客户端时间戳（epoch ms），原样存储
	OccurredAt int64 `json:"occurredAt"`
}

// Jrec 一个 Record 的物化视图（派生状态），随每次接受的 Operation 整体替换。
type Jrec struct {
	Data           map[string]interface{} `json:"data"`
	Version        int64                  `json:"version"`
	Removed        bool                   `json:"removed"`
	LastModifiedAt int64                  `json:"lastModifiedAt"`
	LastActor      string                 `json:"lastActor"`
}

// Committed 已落盘的 Operation：带上 Space 内的提交序号和产生的物化视图。
// seq 在同一个 Record Space 内严格递增，可作增量拉取的游标。
type Committed struct {
	Seq  int64     `json:"seq"`
	Op   Operation `json:"queueitem"`
	Jrec Jrec      `json:"jrec"`
}

// Status 对外的结果状态集合
type Status string

const (
	StatusCreated         Status = "created"
	StatusUpdated         Status = "updated"
	StatusStaleConflict   Status = "stale_conflict"
	StatusFutureConflict  Status = "future_conflict"
	StatusGone            Status = "gone"
	StatusDuplicate       Status = "duplicate"
	StatusNotFound        Status = "not_found"
	StatusValidationError Status = "validation_error"
	StatusUnavailable     Status = "unavailable"
)

// PushResult Push 的返回值。冲突类结果不是 error，是正常业务结果。
// StatusDuplicate 时 Seq/Op/Jrec 指向之前已提交的那一条。
type PushResult struct {
	Status Status
	Seq    int64
	Op     Operation
	Jrec   Jrec
}
