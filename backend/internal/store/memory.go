package store

import (
	"context"
	"sort"
	"sync"

	"syncServer/backend/internal/engine"
)

// MemoryStore 单进程参考实现。
// 锁分三层：
//   - mu 保护 spaces map
//   - memSpace.mu 保护该 Space 的提交日志和 records map
//   - memRecord.mu 保护单个 Record 的 读头部→追加 临界区
//
// 序号分配和日志追加在同一把 space 锁下完成，保证日志顺序 == 序号顺序。
type MemoryStore struct {
	mu     sync.RWMutex
	spaces map[string]*memSpace
}

type memSpace struct {
	mu  sync.RWMutex
	seq int64
	// 提交序的全量日志
	log     []engine.Committed
	records map[string]*memRecord
}

type memRecord struct {
	mu sync.Mutex
	// 按 basedOnVersion 排列：entries[i].Op.BasedOnVersion == i
	entries []engine.Committed
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{spaces: make(map[string]*memSpace)}
}

func (m *MemoryStore) getSpace(space string) *memSpace {
	m.mu.RLock()
	sp := m.spaces[space]
	m.mu.RUnlock()
	return sp
}

func (m *MemoryStore) getOrCreateSpace(space string) *memSpace {
	if sp := m.getSpace(space); sp != nil {
		return sp
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sp := m.spaces[space]
	if sp == nil {
		sp = &memSpace{records: make(map[string]*memRecord)}
		m.spaces[space] = sp
	}
	return sp
}

func (sp *memSpace) getOrCreateRecord(key string) *memRecord {
	sp.mu.RLock()
	rec := sp.records[key]
	sp.mu.RUnlock()
	if rec != nil {
		return rec
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	rec = sp.records[key]
	if rec == nil {
		rec = &memRecord{}
		sp.records[key] = rec
	}
	return rec
}

func (m *MemoryStore) GetLastOperation(ctx context.Context, space, key string) (*engine.Committed, error) {
	sp := m.getSpace(space)
	if sp == nil {
		return nil, nil
	}
	sp.mu.RLock()
	rec := sp.records[key]
	sp.mu.RUnlock()
	if rec == nil {
		return nil, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.entries) == 0 {
		return nil, nil
	}
	last := rec.entries[len(rec.entries)-1]
	return &last, nil
}

func (m *MemoryStore) Append(ctx context.Context, op engine.Operation, jrec engine.Jrec) (int64, error) {
	sp := m.getOrCreateSpace(op.Space)
	rec := sp.getOrCreateRecord(op.Key)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// (space, key, basedOnVersion) 唯一性：该 Record 的 basedOnVersion 严格递增，
	// 头部 >= 候选的基准版本说明有人抢先提交了
	if len(rec.entries) > 0 {
		head := rec.entries[len(rec.entries)-1]
		if head.Op.BasedOnVersion >= op.BasedOnVersion {
			return 0, engine.ErrHeadChanged
		}
	}

	// 序号分配和日志追加同一把锁，游标全序由此保证
	sp.mu.Lock()
	sp.seq++
	c := engine.Committed{Seq: sp.seq, Op: op, Jrec: jrec}
	sp.log = append(sp.log, c)
	sp.mu.Unlock()

	rec.entries = append(rec.entries, c)
	return c.Seq, nil
}

func (m *MemoryStore) GetOperationsSince(ctx context.Context, space string, cursor int64) ([]engine.Committed, int64, error) {
	sp := m.getSpace(space)
	if sp == nil {
		return []engine.Committed{}, cursor, nil
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	// 日志按 Seq 递增，二分出第一条 > cursor 的
	i := sort.Search(len(sp.log), func(i int) bool { return sp.log[i].Seq > cursor })
	out := make([]engine.Committed, len(sp.log)-i)
	copy(out, sp.log[i:])

	next := cursor
	if len(out) > 0 {
		next = out[len(out)-1].Seq
	}
	return out, next, nil
}

func (m *MemoryStore) GetOperationAtVersion(ctx context.Context, space, key string, version int64) (engine.Committed, error) {
	sp := m.getSpace(space)
	if sp == nil {
		return engine.Committed{}, engine.ErrNotFound
	}
	sp.mu.RLock()
	rec := sp.records[key]
	sp.mu.RUnlock()
	if rec == nil {
		return engine.Committed{}, engine.ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	idx := version - 1
	if idx < 0 || idx >= int64(len(rec.entries)) {
		return engine.Committed{}, engine.ErrNotFound
	}
	return rec.entries[idx], nil
}

func (m *MemoryStore) GetValue(ctx context.Context, space, key string) (engine.Jrec, error) {
	last, err := m.GetLastOperation(ctx, space, key)
	if err != nil {
		return engine.Jrec{}, err
	}
	if last == nil {
		return engine.Jrec{}, engine.ErrNotFound
	}
	return last.Jrec, nil
}

func (m *MemoryStore) ListSpaces(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.spaces))
	for name := range m.spaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
