package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sobelf-go/internal/wire"
)

// World is a process group whose ranks are goroutines of one process.
// Messages still cross an encode/decode boundary, so no buffer is ever
// shared between ranks.
type World struct {
	boxes []*mailbox
	opts  options
}

// NewWorld creates a group of size ranks.
func NewWorld(size int, opts ...Option) *World {
	w := &World{boxes: make([]*mailbox, size), opts: newOptions(opts)}
	for r := range w.boxes {
		w.boxes[r] = newMailbox(r, size)
	}
	return w
}

func (w *World) Size() int { return len(w.boxes) }

// Comm returns the handle of rank.
func (w *World) Comm(rank int) Comm {
	if rank < 0 || rank >= len(w.boxes) {
		panic(fmt.Sprintf("comm: rank %d out of range [0,%d)", rank, len(w.boxes)))
	}
	return &local{world: w, rank: rank}
}

// Run calls fn once per rank, each on its own goroutine, and returns the
// first error. A failing rank cancels the context of the others.
func (w *World) Run(ctx context.Context, fn func(ctx context.Context, c Comm) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for r := range w.boxes {
		c := w.Comm(r)
		g.Go(func() error {
			return fn(ctx, c)
		})
	}
	return g.Wait()
}

type local struct {
	world *World
	rank  int
	counters
}

func (l *local) Rank() int { return l.rank }

func (l *local) Size() int { return len(l.world.boxes) }

func (l *local) Send(ctx context.Context, to int, m *wire.Message) error {
	if err := checkPeer(l.rank, l.Size(), to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encode(l.rank, m, &l.world.opts, &l.counters)
	if err != nil {
		return err
	}
	dm, err := wire.Decode(b)
	if err != nil {
		return err
	}
	l.world.boxes[to].deliver(dm)
	return nil
}

func (l *local) Recv(ctx context.Context, from int, ch wire.Channel) (*wire.Message, error) {
	return l.world.boxes[l.rank].recv(ctx, from, ch, &l.counters)
}

func (l *local) Stats() Stats { return l.stats() }

// Close shuts this rank's mailbox; pending receives on it fail.
func (l *local) Close() error {
	l.world.boxes[l.rank].close(nil)
	return nil
}
