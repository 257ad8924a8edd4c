package main

import (
	"context"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"

	"sobelf-go/internal/comm"
	"sobelf-go/internal/filter"
	"sobelf-go/internal/output"
	"sobelf-go/internal/schedule"
)

var localCmd = &cobra.Command{
	Use:   "local [INPUT] OUTPUT",
	Short: "Run every rank in this process",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		where, err := parseIO(args)
		if err != nil {
			return err
		}
		if err := applyRuntime(cfg, "sobelf: "); err != nil {
			return err
		}
		p, err := filter.Lookup(cfg.Pipeline, cfg.BlurSize, cfg.Threshold)
		if err != nil {
			return err
		}

		copts := []comm.Option{comm.WithLogEvery(cfg.LogEvery)}
		if cfg.RecordDir != "" {
			rl, err := output.NewRecordLog(cfg.RecordDir, "local")
			if err != nil {
				return fmt.Errorf("start record log: %w", err)
			}
			defer func() {
				if err := rl.Close(); err != nil {
					log.Error.Printf("record log close: %v", err)
				}
			}()
			copts = append(copts, comm.WithRecorder(rl))
		}

		world := comm.NewWorld(cfg.Ranks, copts...)
		var metrics schedule.Metrics
		err = world.Run(cmd.Context(), func(ctx context.Context, c comm.Comm) error {
			if c.Rank() == 0 {
				return coordinate(ctx, cfg, c, p, &metrics, where)
			}
			w := &schedule.Worker{Comm: c, Pipeline: p, Workers: cfg.Workers, Metrics: &metrics}
			return w.Run(ctx)
		})
		log.Debug.Printf("metrics: %v", metrics.Snapshot())
		return err
	},
}

func init() {
	localCmd.Flags().IntVar(&opts.flags.Ranks, "ranks", opts.flags.Ranks, "number of ranks")
}
