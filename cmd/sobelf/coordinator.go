package main

import (
	"context"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/schollz/progressbar/v3"

	"sobelf-go/internal/comm"
	"sobelf-go/internal/config"
	"sobelf-go/internal/filter"
	"sobelf-go/internal/gifio"
	"sobelf-go/internal/journal"
	"sobelf-go/internal/output"
	"sobelf-go/internal/schedule"
	"sobelf-go/internal/server"
	"sobelf-go/internal/simulator"
	"sobelf-go/internal/types"
)

// files names where rank 0 reads and writes frames.
type files struct {
	input     string
	output    string
	synthetic int
}

func parseIO(args []string) (files, error) {
	if opts.synthetic > 0 {
		if len(args) == 0 {
			return files{}, errors.E(errors.Invalid, "missing OUTPUT")
		}
		return files{input: "synthetic", output: args[len(args)-1], synthetic: opts.synthetic}, nil
	}
	if len(args) != 2 {
		return files{}, errors.E(errors.Invalid, "want INPUT OUTPUT")
	}
	return files{input: args[0], output: args[1]}, nil
}

type frameEvent struct {
	Type string `json:"type"`
	schedule.FrameStat
}

// coordinate runs rank 0 for one animation.
func coordinate(ctx context.Context, cfg config.AppConfig, c comm.Comm, p filter.Pipeline, m *schedule.Metrics, where files) error {
	coord := &schedule.Coordinator{Comm: c, Pipeline: p, Workers: cfg.Workers, Metrics: m}

	var jr *journal.Journal
	var runID string
	if cfg.Journal != "" {
		var err error
		if jr, err = journal.Open(ctx, cfg.Journal); err != nil {
			_ = coord.Terminate(ctx)
			return errors.E(errors.Unavailable, "open journal", err)
		}
		defer jr.Close(context.Background())
		runID, err = jr.Begin(ctx, journal.Run{
			Pipeline:  p.Name,
			BlurSize:  cfg.BlurSize,
			Threshold: cfg.Threshold,
			Ranks:     c.Size(),
			Input:     where.input,
			Output:    where.output,
		})
		if err != nil {
			_ = coord.Terminate(ctx)
			return errors.E("journal run", err)
		}
		log.Printf("journal run %s", runID)
	}

	progress := schedule.NewProgress(0)
	events := make(chan any, 64)
	srvCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	if cfg.StatusPort > 0 {
		srv := server.New(cfg,
			func() map[string]any {
				done, total := progress.Counts()
				return map[string]any{
					"frames_done":  done,
					"frames_total": total,
					"metrics":      m.Snapshot(),
					"comm":         c.Stats(),
				}
			},
			func() any { return progress.SnapshotCopy() })
		go func() {
			if err := srv.Serve(srvCtx, events); err != nil {
				log.Error.Printf("status server stopped: %v", err)
			}
		}()
		go tickProgress(srvCtx, cfg.UIRate, progress, events)
	}

	var bar *progressbar.ProgressBar
	coord.OnFrame = func(s schedule.FrameStat) {
		progress.AddFrame(s)
		if bar != nil {
			_ = bar.Add(1)
		}
		select {
		case events <- frameEvent{Type: "frame", FrameStat: s}:
		default:
		}
	}

	var anim *gifio.Animation
	load := func(ctx context.Context) ([]types.Frame, error) {
		if where.synthetic > 0 {
			anim = &gifio.Animation{Frames: simulator.Frames(simulator.DefaultOptions(where.synthetic))}
		} else {
			var err error
			if anim, err = gifio.Load(ctx, where.input); err != nil {
				return nil, err
			}
		}
		progress.Reset(len(anim.Frames))
		if !cfg.Quiet {
			bar = progressbar.NewOptions(len(anim.Frames),
				progressbar.OptionSetDescription("filtering"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}
		return anim.Frames, nil
	}
	var digests []uint64
	store := func(ctx context.Context, frames []types.Frame) error {
		if bar != nil {
			_ = bar.Finish()
		}
		if jr != nil {
			digests = make([]uint64, len(frames))
			for i := range frames {
				digests[i] = journal.Digest(frames[i])
			}
		}
		anim.Frames = frames
		return gifio.Store(ctx, where.output, anim)
	}

	rep, runErr := coord.Run(ctx, load, store)
	if runErr == nil {
		log.Printf("%d frame(s) written to %s (%d split, %d batch, %d local)", rep.Frames, where.output, rep.Split, rep.Batch, rep.Local)
	}

	if cfg.RecordDir != "" {
		stamp := time.Now().Format("20060102_150405")
		if path, err := output.WriteFrameReport(cfg.RecordDir, stamp, progress.SnapshotCopy()); err != nil {
			log.Error.Printf("frame report: %v", err)
		} else {
			log.Printf("frame report written to %s", path)
		}
	}
	if jr != nil {
		// The run context may already be canceled; the journal still records
		// how the run ended.
		jctx := context.Background()
		if err := jr.Frames(jctx, runID, journalFrames(progress.SnapshotCopy(), digests)); err != nil {
			log.Error.Printf("journal frames: %v", err)
		}
		err := jr.Finish(jctx, runID, journal.Summary{
			Frames:  rep.Frames,
			Split:   rep.Split,
			Batch:   rep.Batch,
			Skipped: len(rep.Skipped),
			Load:    rep.Load,
			Filter:  rep.Filter,
			Store:   rep.Store,
			Err:     runErr,
		})
		if err != nil {
			log.Error.Printf("journal finish: %v", err)
		}
	}
	return runErr
}

func journalFrames(stats []schedule.FrameStat, digests []uint64) []journal.FrameResult {
	out := make([]journal.FrameResult, len(stats))
	for i, s := range stats {
		out[i] = journal.FrameResult{
			Frame:      s.Frame,
			Strategy:   s.Strategy,
			Regions:    s.Regions,
			Iterations: s.Iterations,
			Elapsed:    s.Elapsed,
		}
		if s.Frame < len(digests) {
			out[i].Digest = digests[s.Frame]
		}
	}
	return out
}

func tickProgress(ctx context.Context, every time.Duration, p *schedule.Progress, events chan<- any) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, total := p.Counts()
			select {
			case events <- map[string]any{"type": "progress", "done": done, "total": total}:
			default:
			}
		}
	}
}
