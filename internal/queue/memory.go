package queue

import (
	"context"
	"sync"
	"time"
)

// DeliverFunc handles one delivery. Returning true acknowledges the message.
type DeliverFunc func(ctx context.Context, msg Message, receiveCount int) bool

// MemoryQueue delivers messages in-process. It is used in dev without SQS
// and as a recording fake in tests.
type MemoryQueue struct {
	MaxReceives int
	Backoff     time.Duration

	mu      sync.Mutex
	sent    []Message
	deliver DeliverFunc
	wg      sync.WaitGroup
}

// NewMemoryQueue constructs a queue that only records messages until a consumer is attached.
func NewMemoryQueue(maxReceives int, backoff time.Duration) *MemoryQueue {
	if maxReceives <= 0 {
		maxReceives = 1
	}
	return &MemoryQueue{MaxReceives: maxReceives, Backoff: backoff}
}

// Consume attaches the consumer that receives every subsequent message.
func (q *MemoryQueue) Consume(fn DeliverFunc) {
	q.mu.Lock()
	q.deliver = fn
	q.mu.Unlock()
}

// Send records msg and, when a consumer is attached, delivers it asynchronously
// until acknowledged or MaxReceives deliveries have happened.
func (q *MemoryQueue) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.sent = append(q.sent, msg)
	deliver := q.deliver
	q.mu.Unlock()
	if deliver == nil {
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		bg := context.Background()
		for receive := 1; receive <= q.MaxReceives; receive++ {
			if deliver(bg, msg, receive) {
				return
			}
			if q.Backoff > 0 && receive < q.MaxReceives {
				time.Sleep(q.Backoff)
			}
		}
	}()
	return nil
}

// Sent returns a copy of every message sent so far.
func (q *MemoryQueue) Sent() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.sent))
	copy(out, q.sent)
	return out
}

// Wait blocks until in-flight deliveries finish.
func (q *MemoryQueue) Wait() {
	q.wg.Wait()
}

var _ Client = (*MemoryQueue)(nil)
