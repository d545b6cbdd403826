package engine

// VerdictCode 冲突判定结果
type VerdictCode int

const (
	VerdictAccepted VerdictCode = iota
	// 同一 actor 对同一基准版本的重复提交（网络重试），幂等放行
	VerdictAlreadyApplied
	// 基准版本落后于当前头部，真正的并发冲突
	VerdictStale
	// 基准版本超前（日志不允许出现空洞）
	VerdictFuture
	// 头部是 remove，墓碑是终态
	VerdictRemoved
)

type Verdict struct {
	Code VerdictCode
	// 仅 VerdictAccepted 时有效：接受后应写入的新视图
	Jrec Jrec
}

// Resolve 判定 candidate 能否追加到 last 之后。
// 判定顺序不能乱：重复检测必须先于 stale，墓碑检测必须后于版本检测，
// 否则 (actor, basedOnVersion) 相同的重试会被误判成冲突。
func Resolve(last *Committed, candidate Operation) Verdict {
	headVersion := int64(-1)
	if last != nil {
		headVersion = last.Op.BasedOnVersion
	}

	if candidate.BasedOnVersion <= headVersion {
		// 当前头部就是同一个 actor 基于同一版本提交的那条 → 重复投递
		if last != nil &&
			last.Op.Actor == candidate.Actor &&
			last.Op.BasedOnVersion == candidate.BasedOnVersion {
			return Verdict{Code: VerdictAlreadyApplied}
		}
		return Verdict{Code: VerdictStale}
	}

	if candidate.BasedOnVersion > headVersion+1 {
		return Verdict{Code: VerdictFuture}
	}

	if last != nil && last.Op.Kind == KindRemove {
		return Verdict{Code: VerdictRemoved}
	}

	var prev *Jrec
	if last != nil {
		prev = &last.Jrec
	}
	return Verdict{Code: VerdictAccepted, Jrec: ApplyOperation(prev, candidate)}
}
