package dispatch

import (
	"context"
	"sync"

	"github.com/danmuck/wirelink/internal/protocol/session"
)

// Packet is one decoded message waiting for a consumer.
type Packet struct {
	Session *session.Session
	Opcode  uint16
	Message any
}

// Queue defers handling from session receive goroutines to a consumer that
// drains it on its own schedule, such as a fixed-rate game loop.
type Queue struct {
	mu     sync.Mutex
	items  []Packet
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

func (q *Queue) Push(p Packet) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PopAll removes and returns everything queued, oldest first.
func (q *Queue) PopAll() []Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Ready is signalled after a push. One signal may cover many packets.
func (q *Queue) Ready() <-chan struct{} {
	return q.notify
}

// CustomHandler adapts the queue for Table.SetCustomHandler.
func (q *Queue) CustomHandler() CustomHandler {
	return func(_ context.Context, s *session.Session, opcode uint16, msg any) {
		q.Push(Packet{Session: s, Opcode: opcode, Message: msg})
	}
}

// Drain pops everything queued and runs each packet through t's registered
// handlers. It returns how many packets had a route.
func (q *Queue) Drain(ctx context.Context, t *Table) int {
	handled := 0
	for _, p := range q.PopAll() {
		if t.Invoke(ctx, p.Session, p.Opcode, p.Message) {
			handled++
		}
	}
	return handled
}

// Run drains the queue whenever it is signalled until ctx is done.
func (q *Queue) Run(ctx context.Context, t *Table) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
			q.Drain(ctx, t)
		}
	}
}
