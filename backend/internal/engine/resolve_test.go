package engine

import "testing"

func committed(actor string, basedOn int64, kind Kind) *Committed {
	op := Operation{
		Space: "cars", Key: "ford", BasedOnVersion: basedOn,
		Actor: actor, Kind: kind,
		Payload: map[string]interface{}{"price": "affordable"}, OccurredAt: 1000,
	}
	var prev *Jrec
	if basedOn > 0 {
		prev = &Jrec{Data: map[string]interface{}{}, Version: basedOn}
	}
	return &Committed{Seq: basedOn + 1, Op: op, Jrec: ApplyOperation(prev, op)}
}

func TestResolve_FirstOperationAccepted(t *testing.T) {
	op := Operation{
		Space: "cars", Key: "ford", BasedOnVersion: 0, Actor: "ben",
		Kind: KindSet, Payload: map[string]interface{}{"b": "c"}, OccurredAt: 1,
	}
	v := Resolve(nil, op)
	if v.Code != VerdictAccepted {
		t.Fatalf("Code = %d, want accepted", v.Code)
	}
	if v.Jrec.Version != 1 {
		t.Fatalf("resulting version = %d, want 1", v.Jrec.Version)
	}
}

func TestResolve_FirstOperationMustBaseOnZero(t *testing.T) {
	op := Operation{Space: "cars", Key: "ford", BasedOnVersion: 1, Actor: "ben", Kind: KindSet,
		Payload: map[string]interface{}{}}
	if v := Resolve(nil, op); v.Code != VerdictFuture {
		t.Fatalf("Code = %d, want future", v.Code)
	}
}

func TestResolve_SameActorSameBaseIsDuplicate(t *testing.T) {
	last := committed("ben", 1, KindSet)
	candidate := Operation{Space: "cars", Key: "ford", BasedOnVersion: 1, Actor: "ben", Kind: KindSet,
		Payload: map[string]interface{}{"price": "affordable"}}
	if v := Resolve(last, candidate); v.Code != VerdictAlreadyApplied {
		t.Fatalf("Code = %d, want already applied", v.Code)
	}
}

func TestResolve_DifferentActorSameBaseIsStale(t *testing.T) {
	last := committed("ben", 0, KindSet)
	candidate := Operation{Space: "cars", Key: "ford", BasedOnVersion: 0, Actor: "jon", Kind: KindSet,
		Payload: map[string]interface{}{}}
	if v := Resolve(last, candidate); v.Code != VerdictStale {
		t.Fatalf("Code = %d, want stale", v.Code)
	}
}

func TestResolve_SameActorOlderBaseIsStale(t *testing.T) {
	// 重复检测只认“恰好是当前头部”的那一条；更老的版本即使同 actor 也是 stale
	last := committed("ben", 2, KindSet)
	candidate := Operation{Space: "cars", Key: "ford", BasedOnVersion: 1, Actor: "ben", Kind: KindSet,
		Payload: map[string]interface{}{}}
	if v := Resolve(last, candidate); v.Code != VerdictStale {
		t.Fatalf("Code = %d, want stale", v.Code)
	}
}

func TestResolve_GapIsFuture(t *testing.T) {
	last := committed("ben", 0, KindSet)
	candidate := Operation{Space: "cars", Key: "ford", BasedOnVersion: 3, Actor: "ben", Kind: KindSet,
		Payload: map[string]interface{}{}}
	if v := Resolve(last, candidate); v.Code != VerdictFuture {
		t.Fatalf("Code = %d, want future", v.Code)
	}
}

func TestResolve_TombstoneIsTerminal(t *testing.T) {
	last := committed("jon", 1, KindRemove)
	candidate := Operation{Space: "cars", Key: "bmw", BasedOnVersion: 2, Actor: "jon", Kind: KindSet,
		Payload: map[string]interface{}{}}
	if v := Resolve(last, candidate); v.Code != VerdictRemoved {
		t.Fatalf("Code = %d, want removed", v.Code)
	}
}

func TestResolve_DuplicateWinsOverTombstone(t *testing.T) {
	// 头部是 remove 时，同 actor 同基准版本的重试仍然判 duplicate，不是 gone
	last := committed("jon", 1, KindRemove)
	candidate := Operation{Space: "cars", Key: "bmw", BasedOnVersion: 1, Actor: "jon", Kind: KindRemove}
	if v := Resolve(last, candidate); v.Code != VerdictAlreadyApplied {
		t.Fatalf("Code = %d, want already applied", v.Code)
	}
}

func TestResolve_AcceptedAdvancesVersion(t *testing.T) {
	last := committed("ben", 0, KindSet)
	candidate := Operation{
		Space: "cars", Key: "ford", BasedOnVersion: 1, Actor: "jon", Kind: KindUpdate,
		Payload: map[string]interface{}{"speed": "medium"}, OccurredAt: 2,
	}
	v := Resolve(last, candidate)
	if v.Code != VerdictAccepted {
		t.Fatalf("Code = %d, want accepted", v.Code)
	}
	if v.Jrec.Version != 2 {
		t.Fatalf("resulting version = %d, want 2", v.Jrec.Version)
	}
	if v.Jrec.Data["price"] != "affordable" || v.Jrec.Data["speed"] != "medium" {
		t.Fatalf("merged data = %v", v.Jrec.Data)
	}
}
