package engine

import "encoding/json"

// ApplyOperation 把一个被接受的 Operation 作用到旧视图上，算出新视图。
// 纯函数：不做 I/O，也没有失败路径。
//   - prev == nil 视为 {data:{}, version:0, removed:false}
//   - set:    data 整体替换为 payload
//   - update: payload 的键浅合并进旧 data（同名覆盖，其余保留）
//   - remove: data 保持不变，removed 置 true
//
// 任何情况下 version = op.BasedOnVersion + 1。
func ApplyOperation(prev *Jrec, op Operation) Jrec {
	var base map[string]interface{}
	if prev != nil {
		base = prev.Data
	}

	next := Jrec{
		Version:        op.BasedOnVersion + 1,
		LastModifiedAt: op.OccurredAt,
		LastActor:      op.Actor,
	}

	switch op.Kind {
	case KindSet:
		next.Data = cloneData(op.Payload)
	case KindUpdate:
		merged := cloneData(base)
		for k, v := range cloneData(op.Payload) {
			merged[k] = v
		}
		next.Data = merged
	case KindRemove:
		next.Data = cloneData(base)
		next.Removed = true
	}
	return next
}

// cloneData 深拷贝 payload/data，避免视图和调用方共享可变结构。
// 输入都是 JSON 解码出来的 map，round-trip 不会失败。
func cloneData(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		// 不可达：m 来自 JSON 解码
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	_ = json.Unmarshal(b, &out)
	return out
}
