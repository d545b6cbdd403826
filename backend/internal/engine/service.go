package engine

import (
	"context"
	"errors"
	"log"
)

// Service 同步引擎接口
type Service interface {
	// Push 提交一个候选 Operation，走 读头部 → 判定 → 原子追加 → 通知 的流程
	Push(ctx context.Context, op Operation) (PushResult, error)

	// GetQueueitems 增量拉取：返回 space 内 cursor 之后的全部操作和新游标
	GetQueueitems(ctx context.Context, space string, cursor int64) ([]Committed, int64, error)

	// GetMultiQueueitems 批量版：每个 space 独立返回结果，查不到的返回空页
	GetMultiQueueitems(ctx context.Context, queries []SpaceQuery) (map[string]QueueitemsPage, error)

	// GetValue 读某个 Record 当前的物化视图
	GetValue(ctx context.Context, space, key string) (Jrec, error)

	// GetVersion 读某个 Record 指定版本对应的那条操作
	GetVersion(ctx context.Context, space, key string, version int64) (Committed, error)

	ListSpaces(ctx context.Context) ([]string, error)

	// ListenForFed 注册监听器：每条成功落盘的操作回调一次
	ListenForFed(l Listener)
}

type SpaceQuery struct {
	Space  string `json:"s"`
	Cursor int64  `json:"seqId"`
}

type QueueitemsPage struct {
	Queueitems []Committed `json:"queueitems"`
	Cursor     int64       `json:"seqId"`
}

// SyncService Service 的标准实现：存储后端 + 冲突判定 + 变更通知
type SyncService struct {
	store    Store
	notifier *Notifier
}

func NewSyncService(store Store) *SyncService {
	return &SyncService{store: store, notifier: NewNotifier()}
}

func (s *SyncService) ListenForFed(l Listener) {
	s.notifier.Listen(l)
}

// validate 结构完整性校验（字段语法/正则校验在 httpapi 边界层做）。
// 返回 "" 表示通过。
func validateOperation(op Operation) Status {
	if op.Space == "" || op.Key == "" || op.Actor == "" {
		return StatusValidationError
	}
	if op.BasedOnVersion < 0 {
		return StatusValidationError
	}
	switch op.Kind {
	case KindSet, KindUpdate:
		if op.Payload == nil {
			return StatusValidationError
		}
	case KindRemove:
		// payload 忽略
	default:
		return StatusValidationError
	}
	return ""
}

// Push 核心提交流程。
// Append 输掉并发竞争（ErrHeadChanged）时从读头部开始重试一次，
// 第二次仍然输就按 stale 冲突返回，不做无限重试。
func (s *SyncService) Push(ctx context.Context, op Operation) (PushResult, error) {
	if st := validateOperation(op); st != "" {
		return PushResult{Status: st}, nil
	}

	for attempt := 0; attempt < 2; attempt++ {
		last, err := s.store.GetLastOperation(ctx, op.Space, op.Key)
		if err != nil {
			return s.mapStoreFailure("getLast", err)
		}

		verdict := Resolve(last, op)
		switch verdict.Code {
		case VerdictAlreadyApplied:
			// 不是错误：返回之前已提交的那条，不写、不通知
			return PushResult{Status: StatusDuplicate, Seq: last.Seq, Op: last.Op, Jrec: last.Jrec}, nil
		case VerdictStale:
			return PushResult{Status: StatusStaleConflict}, nil
		case VerdictFuture:
			return PushResult{Status: StatusFutureConflict}, nil
		case VerdictRemoved:
			return PushResult{Status: StatusGone}, nil
		}

		seq, err := s.store.Append(ctx, op, verdict.Jrec)
		if errors.Is(err, ErrHeadChanged) {
			// 两次读头部之间有别的写入者提交了，重读再判一次
			continue
		}
		if err != nil {
			return s.mapStoreFailure("append", err)
		}

		committed := Committed{Seq: seq, Op: op, Jrec: verdict.Jrec}
		s.notifier.Notify(committed)

		status := StatusUpdated
		if op.BasedOnVersion == 0 {
			status = StatusCreated
		}
		return PushResult{Status: status, Seq: seq, Op: op, Jrec: verdict.Jrec}, nil
	}

	return PushResult{Status: StatusStaleConflict}, nil
}

// mapStoreFailure 后端瞬时故障 → unavailable；其余视为缺陷原样上抛
func (s *SyncService) mapStoreFailure(phase string, err error) (PushResult, error) {
	if errors.Is(err, ErrUnavailable) {
		log.Printf("sync push: store unavailable during %s: %v", phase, err)
		return PushResult{Status: StatusUnavailable}, nil
	}
	return PushResult{}, err
}

func (s *SyncService) GetQueueitems(ctx context.Context, space string, cursor int64) ([]Committed, int64, error) {
	return s.store.GetOperationsSince(ctx, space, cursor)
}

func (s *SyncService) GetMultiQueueitems(ctx context.Context, queries []SpaceQuery) (map[string]QueueitemsPage, error) {
	out := make(map[string]QueueitemsPage, len(queries))
	for _, q := range queries {
		if q.Space == "" {
			continue
		}
		items, next, err := s.store.GetOperationsSince(ctx, q.Space, q.Cursor)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []Committed{}
		}
		out[q.Space] = QueueitemsPage{Queueitems: items, Cursor: next}
	}
	return out, nil
}

func (s *SyncService) GetValue(ctx context.Context, space, key string) (Jrec, error) {
	return s.store.GetValue(ctx, space, key)
}

func (s *SyncService) GetVersion(ctx context.Context, space, key string, version int64) (Committed, error) {
	return s.store.GetOperationAtVersion(ctx, space, key, version)
}

func (s *SyncService) ListSpaces(ctx context.Context) ([]string, error) {
	return s.store.ListSpaces(ctx)
}
