package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"

	"sobelf-go/internal/assemble"
	"sobelf-go/internal/comm"
	"sobelf-go/internal/filter"
	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
	"sobelf-go/internal/wire"
)

type (
	// LoadFunc produces the frames of a run, frame i carrying Index i.
	LoadFunc func(ctx context.Context) ([]types.Frame, error)
	// StoreFunc persists the processed frames.
	StoreFunc func(ctx context.Context, frames []types.Frame) error
)

// Coordinator runs on rank 0. It decides the path of every frame, ships
// regions to the other ranks, filters its own share inline and collects
// the results.
type Coordinator struct {
	Comm     comm.Comm
	Pipeline filter.Pipeline
	// Workers bounds how many batch regions rank 0 filters at once.
	Workers int
	Metrics *Metrics
	// OnFrame, if set, is called once per finished frame.
	OnFrame func(FrameStat)
}

// Report summarizes a run.
type Report struct {
	Frames int
	Split  int
	Batch  int
	// Local counts split-path frames filtered whole on rank 0.
	Local   int
	Skipped []int
	Load    time.Duration
	Filter  time.Duration
	Store   time.Duration
}

// Run loads, filters and stores one animation. Every worker is sent
// TERMINATE exactly once, including when loading fails, so no rank is
// left waiting on a run that will not happen.
func (c *Coordinator) Run(ctx context.Context, load LoadFunc, store StoreFunc) (Report, error) {
	var rep Report

	start := time.Now()
	frames, err := load(ctx)
	rep.Load = time.Since(start)
	if err != nil {
		c.abort(ctx)
		return rep, err
	}
	rep.Frames = len(frames)
	c.metrics().loadNanos.Add(uint64(rep.Load.Nanoseconds()))
	log.Printf("frames loaded: %d frame(s) in %f s", len(frames), rep.Load.Seconds())

	start = time.Now()
	local := c.metrics().framesLocal.Load()
	res, plan, err := c.Filter(ctx, frames)
	if err != nil {
		c.abort(ctx)
		return rep, err
	}
	if err := c.Terminate(ctx); err != nil {
		return rep, err
	}
	rep.Filter = time.Since(start)
	rep.Split = len(plan.Split)
	rep.Batch = plan.NumBatch()
	rep.Local = int(c.metrics().framesLocal.Load() - local)
	rep.Skipped = res.Skipped
	log.Printf("filter done in %f s (%d split, %d batch, %d local, %d skipped)", rep.Filter.Seconds(), rep.Split, rep.Batch, rep.Local, len(rep.Skipped))

	start = time.Now()
	if err := store(ctx, frames); err != nil {
		return rep, err
	}
	rep.Store = time.Since(start)
	c.metrics().storeNanos.Add(uint64(rep.Store.Nanoseconds()))
	log.Printf("export done in %f s", rep.Store.Seconds())
	return rep, nil
}

// Filter processes frames in place across the group and returns the
// reassembly result along with the plan that was followed. It does not
// terminate the workers.
func (c *Coordinator) Filter(ctx context.Context, frames []types.Frame) (assemble.Result, Plan, error) {
	must.Truef(c.Comm.Rank() == 0, "schedule: coordinator on rank %d", c.Comm.Rank())
	for i := range frames {
		must.Truef(frames[i].Index == i, "schedule: frame at position %d has index %d", i, frames[i].Index)
	}
	plan := NewPlan(len(frames), c.Comm.Size())
	log.Debug.Printf("plan: %d frame(s) on %d slot(s): %d split, %d batch", len(frames), plan.Slots, len(plan.Split), plan.NumBatch())

	var results []region.Region
	for _, i := range plan.Split {
		f := &frames[i]
		split := c.splitFrame
		if !c.Pipeline.Layout.Fits(f.Width, f.Height, c.Comm.Size()) {
			log.Printf("frame %d (%dx%d) is too small for a %d-way %s split with a %d pixel halo; filtering it on rank 0",
				f.Index, f.Width, f.Height, c.Comm.Size(), c.Pipeline.Layout.Name(), c.Pipeline.Layout.HaloWidth())
			split = c.localFrame
		}
		out, err := split(ctx, f)
		if err != nil {
			return assemble.Result{}, plan, err
		}
		results = append(results, out...)
	}
	if plan.NumBatch() > 0 {
		out, err := c.batch(ctx, frames, plan)
		if err != nil {
			return assemble.Result{}, plan, err
		}
		results = append(results, out...)
	}

	res := assemble.Frames(frames, results, c.Pipeline.Layout)
	c.metrics().framesSkipped.Add(uint64(len(res.Skipped)))
	return res, plan, nil
}

func (c *Coordinator) splitFrame(ctx context.Context, f *types.Frame) ([]region.Region, error) {
	start := time.Now()
	k := c.Comm.Size()
	regions := c.Pipeline.Layout.Split(f.Pix, f.Index, f.Width, f.Height, k)
	a := SplitAssignment(regions)

	for rank := 1; rank < k; rank++ {
		if err := c.Comm.Send(ctx, rank, &wire.Message{Kind: wire.WorkSplit, Frame: f.Index}); err != nil {
			return nil, err
		}
	}
	for rank := 1; rank < k; rank++ {
		msg := &wire.Message{Kind: wire.RegionPayload, Frame: f.Index, Count: 1, Payload: wire.Pack(a[rank])}
		if err := c.Comm.Send(ctx, rank, msg); err != nil {
			return nil, err
		}
		regions[rank].Release()
	}

	var s filter.Syncer
	if c.Pipeline.Iterative() {
		s = splitSyncer(c.Comm)
	}
	iterations, err := process(ctx, c.Pipeline, &regions[0], s, c.Metrics)
	if err != nil {
		return nil, err
	}

	out := []region.Region{regions[0]}
	for rank := 1; rank < k; rank++ {
		got, seq, err := c.collect(ctx, rank, 1)
		if err != nil {
			return nil, err
		}
		if got[0].FrameID != f.Index || got[0].ID != rank {
			return nil, errors.E(errors.Fatal, errors.Invalid,
				fmt.Sprintf("schedule: rank %d returned region %d of frame %d, want region %d of frame %d", rank, got[0].ID, got[0].FrameID, rank, f.Index))
		}
		if seq > iterations {
			iterations = seq
		}
		out = append(out, got...)
	}

	c.metrics().framesSplit.Add(1)
	c.finished(FrameStat{
		Frame:      f.Index,
		Strategy:   SplitPath.String(),
		Regions:    k,
		Iterations: iterations,
		Elapsed:    time.Since(start),
	})
	return out, nil
}

// localFrame filters a whole frame on rank 0 without involving the
// workers.
func (c *Coordinator) localFrame(ctx context.Context, f *types.Frame) ([]region.Region, error) {
	start := time.Now()
	regions := c.Pipeline.Layout.Split(f.Pix, f.Index, f.Width, f.Height, 1)
	iterations, err := process(ctx, c.Pipeline, &regions[0], nil, c.Metrics)
	if err != nil {
		return nil, err
	}
	c.metrics().framesLocal.Add(1)
	c.finished(FrameStat{
		Frame:      f.Index,
		Strategy:   LocalPath.String(),
		Regions:    1,
		Iterations: iterations,
		Elapsed:    time.Since(start),
	})
	return regions, nil
}

func (c *Coordinator) batch(ctx context.Context, frames []types.Frame, plan Plan) ([]region.Region, error) {
	start := time.Now()
	size := c.Comm.Size()
	a := make(Assignment, size)
	for slot, idxs := range plan.Batch {
		for _, i := range idxs {
			f := &frames[i]
			a[slot] = append(a[slot], c.Pipeline.Layout.Split(f.Pix, f.Index, f.Width, f.Height, 1)...)
		}
	}

	for rank := 1; rank < size; rank++ {
		n := a.Count(rank)
		if err := c.Comm.Send(ctx, rank, &wire.Message{Kind: wire.WorkBatch, Count: n}); err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		msg := &wire.Message{Kind: wire.RegionPayload, Count: n, Payload: wire.Pack(a[rank])}
		if err := c.Comm.Send(ctx, rank, msg); err != nil {
			return nil, err
		}
		for i := range a[rank] {
			a[rank][i].Release()
		}
	}

	own := a[0]
	iterations, err := processBatch(ctx, c.Pipeline, own, c.Workers, c.Metrics)
	if err != nil {
		return nil, err
	}
	c.batchDone(own, iterations, start)
	out := append([]region.Region(nil), own...)

	for rank := 1; rank < size; rank++ {
		n := a.Count(rank)
		if n == 0 {
			continue
		}
		got, seq, err := c.collect(ctx, rank, n)
		if err != nil {
			return nil, err
		}
		c.batchDone(got, seq, start)
		out = append(out, got...)
	}
	return out, nil
}

func (c *Coordinator) batchDone(regions []region.Region, iterations int, start time.Time) {
	elapsed := time.Since(start)
	for _, r := range regions {
		c.metrics().framesBatch.Add(1)
		c.finished(FrameStat{
			Frame:      r.FrameID,
			Strategy:   BatchPath.String(),
			Regions:    1,
			Iterations: iterations,
			Elapsed:    elapsed,
		})
	}
}

// collect receives one result record set of n regions from rank.
func (c *Coordinator) collect(ctx context.Context, rank, n int) ([]region.Region, int, error) {
	m, err := c.Comm.Recv(ctx, rank, wire.Regions)
	if err != nil {
		return nil, 0, err
	}
	got, err := wire.Unpack(m.Payload, c.Pipeline.Layout.HaloWidth())
	if err != nil {
		return nil, 0, errors.E(errors.Fatal, fmt.Sprintf("schedule: results from rank %d", rank), err)
	}
	if len(got) != n || m.Count != n {
		return nil, 0, errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("schedule: rank %d returned %d regions (count %d), want %d", rank, len(got), m.Count, n))
	}
	log.Debug.Printf("collected %d region(s) from rank %d", n, rank)
	return got, m.Seq, nil
}

// Terminate tells every worker to leave its receive loop.
func (c *Coordinator) Terminate(ctx context.Context) error {
	var first error
	for rank := 1; rank < c.Comm.Size(); rank++ {
		if err := c.Comm.Send(ctx, rank, &wire.Message{Kind: wire.Terminate}); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Coordinator) abort(ctx context.Context) {
	if err := c.Terminate(ctx); err != nil {
		log.Error.Printf("abort: terminate workers: %v", err)
	}
}

func (c *Coordinator) finished(s FrameStat) {
	log.Debug.Printf("frame %d: %s path, %d region(s), %d iteration(s), %s", s.Frame, s.Strategy, s.Regions, s.Iterations, s.Elapsed)
	if c.OnFrame != nil {
		c.OnFrame(s)
	}
}

func (c *Coordinator) metrics() *Metrics {
	if c.Metrics == nil {
		c.Metrics = new(Metrics)
	}
	return c.Metrics
}
