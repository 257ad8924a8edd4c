package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"golang.org/x/sync/errgroup"

	"sobelf-go/internal/comm"
	"sobelf-go/internal/filter"
	"sobelf-go/internal/halo"
	"sobelf-go/internal/region"
	"sobelf-go/internal/wire"
)

// Worker is the receive loop of every rank other than 0.
type Worker struct {
	Comm     comm.Comm
	Pipeline filter.Pipeline
	// Workers bounds how many batch regions are filtered at once.
	Workers int
	Metrics *Metrics
}

// Run serves control messages from rank 0 until TERMINATE. Any other
// control message is fatal.
func (w *Worker) Run(ctx context.Context) error {
	rank := w.Comm.Rank()
	served := 0
	for {
		m, err := w.Comm.Recv(ctx, 0, wire.Control)
		if err != nil {
			return err
		}
		switch m.Kind {
		case wire.WorkSplit:
			err = w.split(ctx, m.Frame)
		case wire.WorkBatch:
			err = w.batch(ctx, m.Count)
		case wire.Terminate:
			log.Debug.Printf("rank %d: terminate after %d dispatch(es)", rank, served)
			return nil
		default:
			return errors.E(errors.Fatal, errors.Invalid,
				fmt.Sprintf("rank %d: unknown control message %s from rank %d", rank, m.Kind, m.From))
		}
		if err != nil {
			return err
		}
		served++
	}
}

func (w *Worker) split(ctx context.Context, frame int) error {
	regions, err := w.receive(ctx, 1)
	if err != nil {
		return err
	}
	r := &regions[0]
	if r.FrameID != frame || r.K != w.Comm.Size() || r.ID != w.Comm.Rank() {
		return errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("rank %d: WORK_SPLIT frame %d delivered region %d/%d of frame %d", w.Comm.Rank(), frame, r.ID, r.K, r.FrameID))
	}
	var s filter.Syncer
	if w.Pipeline.Iterative() {
		s = splitSyncer(w.Comm)
	}
	iterations, err := process(ctx, w.Pipeline, r, s, w.Metrics)
	if err != nil {
		return err
	}
	return w.reply(ctx, regions, iterations)
}

func (w *Worker) batch(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	regions, err := w.receive(ctx, n)
	if err != nil {
		return err
	}
	iterations, err := processBatch(ctx, w.Pipeline, regions, w.Workers, w.Metrics)
	if err != nil {
		return err
	}
	return w.reply(ctx, regions, iterations)
}

func (w *Worker) receive(ctx context.Context, n int) ([]region.Region, error) {
	m, err := w.Comm.Recv(ctx, 0, wire.Regions)
	if err != nil {
		return nil, err
	}
	regions, err := wire.Unpack(m.Payload, w.Pipeline.Layout.HaloWidth())
	if err != nil {
		return nil, errors.E(errors.Fatal, fmt.Sprintf("rank %d: regions from coordinator", w.Comm.Rank()), err)
	}
	if len(regions) != n || m.Count != n {
		return nil, errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("rank %d: got %d regions (count %d), want %d", w.Comm.Rank(), len(regions), m.Count, n))
	}
	return regions, nil
}

func (w *Worker) reply(ctx context.Context, regions []region.Region, iterations int) error {
	msg := &wire.Message{
		Kind:    wire.RegionPayload,
		Count:   len(regions),
		Seq:     iterations,
		Payload: wire.Pack(regions),
	}
	if err := w.Comm.Send(ctx, 0, msg); err != nil {
		return err
	}
	for i := range regions {
		regions[i].Release()
	}
	return nil
}

// splitSyncer keeps region i of a frame split over the whole group on
// rank i.
func splitSyncer(c comm.Comm) *halo.Sync {
	group := make([]int, c.Size())
	for i := range group {
		group[i] = i
	}
	return &halo.Sync{Comm: c, Group: group}
}

func process(ctx context.Context, p filter.Pipeline, r *region.Region, s filter.Syncer, m *Metrics) (int, error) {
	start := time.Now()
	st, err := p.Run(ctx, r, s)
	m.observeFilter(time.Since(start), st.Iterations)
	return st.Iterations, err
}

// processBatch filters independent whole-frame regions, at most workers
// at a time, and returns the largest iteration count.
func processBatch(ctx context.Context, p filter.Pipeline, regions []region.Region, workers int, m *Metrics) (int, error) {
	if workers < 1 {
		workers = 1
	}
	iterations := make([]int, len(regions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range regions {
		i := i
		g.Go(func() error {
			n, err := process(ctx, p, &regions[i], nil, m)
			iterations[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	most := 0
	for _, n := range iterations {
		most = max(most, n)
	}
	return most, nil
}
