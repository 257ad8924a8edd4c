package comm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"sobelf-go/internal/wire"
)

// queue is an unbounded FIFO with a single-slot wakeup.
type queue struct {
	mu     sync.Mutex
	items  []*wire.Message
	notify chan struct{}
}

func (q *queue) put(m *wire.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) pop() (*wire.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	m := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return m, true
}

// mailbox holds one queue per (sender, channel).
type mailbox struct {
	rank   int
	queues [][]*queue
	done   chan struct{}
	once   sync.Once
	err    error
}

func newMailbox(rank, size int) *mailbox {
	mb := &mailbox{
		rank:   rank,
		queues: make([][]*queue, size),
		done:   make(chan struct{}),
	}
	for from := range mb.queues {
		mb.queues[from] = make([]*queue, wire.NumChannels)
		for ch := range mb.queues[from] {
			mb.queues[from][ch] = &queue{notify: make(chan struct{}, 1)}
		}
	}
	return mb
}

func (mb *mailbox) deliver(m *wire.Message) {
	if m.From < 0 || m.From >= len(mb.queues) {
		log.Error.Printf("rank %d: dropping %s from unknown rank %d", mb.rank, m.Kind, m.From)
		return
	}
	mb.queues[m.From][m.Kind.Channel()].put(m)
}

func (mb *mailbox) recv(ctx context.Context, from int, ch wire.Channel, c *counters) (*wire.Message, error) {
	if from < 0 || from >= len(mb.queues) || ch >= wire.NumChannels {
		return nil, errors.E(errors.Fatal, errors.Invalid, fmt.Sprintf("rank %d: receive from %d on %s", mb.rank, from, ch))
	}
	q := mb.queues[from][ch]
	for {
		if m, ok := q.pop(); ok {
			c.received.Add(1)
			return m, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-mb.done:
			if m, ok := q.pop(); ok {
				c.received.Add(1)
				return m, nil
			}
			return nil, mb.err
		}
	}
}

func (mb *mailbox) close(err error) {
	mb.once.Do(func() {
		if err == nil {
			err = errors.E(errors.Canceled, fmt.Sprintf("rank %d: transport closed", mb.rank))
		}
		mb.err = err
		close(mb.done)
	})
}

var recordErrors, recvErrors atomic.Int64

// logEveryN logs one in n occurrences counted by ctr.
func logEveryN(ctr *atomic.Int64, n int64, format string, args ...any) {
	if ctr.Add(1)%n == 1 || n <= 1 {
		log.Error.Printf(format, args...)
	}
}
