package engine

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/IBM/sarama"
)

// KafkaDispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// 作为 fed 监听器挂在引擎上：
// - Fed 只负责入队，不阻塞提交链路
// - Kafka 短暂抖动靠队列吸收，后台补发
// - 队列满时降级丢弃（同步流不要求每条事件必达，消费方可用 getLog 追平）
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string

	queue chan SyncOpEvent

	// sem 限制并发的 SendMessage 数量
	sem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sem *SemaphoreControl, opt KafkaDispatcherOptions) *KafkaDispatcher {
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan SyncOpEvent, opt.QueueSize),
		sem:         sem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}

	d.Start()
	return d
}

// Fed 实现 Listener：把已提交操作转成事件入队。
// 队列满时等待至 ctx 结束后放弃（fire-and-forget）。
func (d *KafkaDispatcher) Fed(ctx context.Context, c Committed) {
	evt := SyncOpEvent{
		EventType:      "OP_FED",
		Space:          c.Op.Space,
		Key:            c.Op.Key,
		Seq:            c.Seq,
		BasedOnVersion: c.Op.BasedOnVersion,
		Actor:          c.Op.Actor,
		Kind:           c.Op.Kind,
		Payload:        c.Op.Payload,
		OccurredAt:     c.Op.OccurredAt,
		Jrec:           c.Jrec,
	}
	enqueueCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	if err := d.Enqueue(enqueueCtx, evt); err != nil {
		log.Printf("kafka enqueue dropped event space=%s key=%s seq=%d: %v",
			evt.Space, evt.Key, evt.Seq, err)
	}
}

func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt SyncOpEvent) error {
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *KafkaDispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt SyncOpEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sem != nil {
			// worker 允许一直等待（不在提交链路上）
			_ = d.sem.Acquire(context.Background())
		}

		err := d.sendOnce(evt)

		if d.sem != nil {
			_ = d.sem.Release()
		}

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			log.Printf("kafka send failed, drop event space=%s key=%s seq=%d worker=%d err=%v",
				evt.Space, evt.Key, evt.Seq, workerID, err)
			return
		}

		// 指数退避
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *KafkaDispatcher) sendOnce(evt SyncOpEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		// 以 space/key 做 key，同一 Record 的事件落同一分区保序
		Key:   sarama.StringEncoder(evt.Space + "/" + evt.Key),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
