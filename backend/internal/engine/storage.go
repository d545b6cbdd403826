package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotFound 指定坐标上没有数据（点查/版本查）
	ErrNotFound = errors.New("NOT_FOUND")
	// ErrHeadChanged Append 时发现头部已被并发写入者推进
	ErrHeadChanged = errors.New("HEAD_CHANGED")
	// ErrUnavailable 后端暂时不可用（连接、超时），调用方可整体重试
	ErrUnavailable = errors.New("STORE_UNAVAILABLE")
)

// Store 存储后端 SPI。接口声明在使用方（引擎）这边，实现在 store 包里，
// 内存版和 MySQL 版必须表现一致。
type Store interface {
	// GetLastOperation 返回该 Record 最近一次落盘的 Operation；没有则返回 (nil, nil)。
	GetLastOperation(ctx context.Context, space, key string) (*Committed, error)

	// Append 原子追加：(space, key, basedOnVersion) 必须唯一，
	// 若已有并发写入者抢先提交则返回 ErrHeadChanged，绝不覆盖。
	// 成功时返回在该 Record Space 内分配的提交序号。
	// jrec 是本次操作产生的物化视图，和操作同一行落盘，整体原子可见。
	Append(ctx context.Context, op Operation, jrec Jrec) (int64, error)

	// GetOperationsSince 返回该 Space 内提交序号大于 cursor 的全部操作（提交序），
	// 以及新的游标。cursor 为 0 表示从头开始。未知 Space 返回空结果，不报错。
	GetOperationsSince(ctx context.Context, space string, cursor int64) ([]Committed, int64, error)

	// GetOperationAtVersion 返回 basedOnVersion == version-1 的那条操作。
	GetOperationAtVersion(ctx context.Context, space, key string, version int64) (Committed, error)

	// GetValue 返回该 Record 当前的物化视图（包括已 removed 的）。
	GetValue(ctx context.Context, space, key string) (Jrec, error)

	// ListSpaces 返回所有已有数据的 Record Space 名
	ListSpaces(ctx context.Context) ([]string, error)
}
