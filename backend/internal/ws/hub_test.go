package ws

import (
	"context"
	"testing"

	"syncServer/backend/internal/engine"
)

func testCommitted(space, key string, seq int64) engine.Committed {
	op := engine.Operation{
		Space: space, Key: key, BasedOnVersion: seq - 1, Actor: "ben",
		Kind: engine.KindSet, Payload: map[string]interface{}{"b": "c"}, OccurredAt: 1000,
	}
	return engine.Committed{Seq: seq, Op: op, Jrec: engine.Jrec{
		Data: op.Payload, Version: seq, LastActor: "ben", LastModifiedAt: 1000,
	}}
}

func TestHub_FedReachesSubscribers(t *testing.T) {
	hub := NewHub(nil)
	sub := NewConn(nil, hub, "ben", nil, nil)
	other := NewConn(nil, hub, "jon", nil, nil)
	hub.Join("cars", sub)
	hub.Join("boats", other)

	hub.Fed(context.Background(), testCommitted("cars", "ford", 1))

	select {
	case msg := <-sub.send:
		fed, ok := msg.(FedMessage)
		if !ok {
			t.Fatalf("message type = %T, want FedMessage", msg)
		}
		if fed.Space != "cars" || fed.Key != "ford" || fed.Seq != 1 {
			t.Fatalf("fed = %+v", fed)
		}
		if fed.Jrec.Version != 1 {
			t.Fatalf("fed jrec = %+v", fed.Jrec)
		}
	default:
		t.Fatalf("subscriber got nothing")
	}

	select {
	case msg := <-other.send:
		t.Fatalf("non subscriber got %+v", msg)
	default:
	}
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	conn := NewConn(nil, hub, "ben", nil, nil)
	hub.Join("cars", conn)
	hub.Leave("cars", conn)

	hub.Fed(context.Background(), testCommitted("cars", "ford", 1))

	select {
	case msg := <-conn.send:
		t.Fatalf("got %+v after leave", msg)
	default:
	}
}

func TestHub_MultipleConnsSameActor(t *testing.T) {
	// 同一个 actor 开两个连接（多端），广播逐连接发
	hub := NewHub(nil)
	a := NewConn(nil, hub, "ben", nil, nil)
	b := NewConn(nil, hub, "ben", nil, nil)
	hub.Join("cars", a)
	hub.Join("cars", b)

	hub.Fed(context.Background(), testCommitted("cars", "ford", 1))

	for i, conn := range []*Conn{a, b} {
		select {
		case <-conn.send:
		default:
			t.Fatalf("conn %d got nothing", i)
		}
	}
}

func TestConn_EnqueueDropsWhenFull(t *testing.T) {
	conn := NewConn(nil, nil, "ben", nil, nil)
	// 填满缓冲后再入队不能阻塞
	for i := 0; i < cap(conn.send)+10; i++ {
		conn.SendMessage_Enqueue(ServerMessage{Type: "feedback", Content: "x"})
	}
	if len(conn.send) != cap(conn.send) {
		t.Fatalf("queue length = %d, want %d", len(conn.send), cap(conn.send))
	}
}
