package main

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"

	"sobelf-go/internal/comm"
	"sobelf-go/internal/filter"
	"sobelf-go/internal/output"
	"sobelf-go/internal/schedule"
)

var rank int

var runCmd = &cobra.Command{
	Use:   "run [INPUT] OUTPUT",
	Short: "Run one rank of a group connected over ZeroMQ",
	Long: `Run one rank of a group. Every rank is started with the same
--endpoints list; rank R binds endpoints[R]. Rank 0 reads INPUT, coordinates
the group and writes OUTPUT. The other ranks ignore both.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		if len(cfg.Endpoints) == 0 {
			return fmt.Errorf("--endpoints is required")
		}
		if rank < 0 || rank >= len(cfg.Endpoints) {
			return fmt.Errorf("--rank %d out of range for %d endpoints", rank, len(cfg.Endpoints))
		}
		var where files
		if rank == 0 {
			if where, err = parseIO(args); err != nil {
				return err
			}
		}
		if err := applyRuntime(cfg, fmt.Sprintf("rank %d: ", rank)); err != nil {
			return err
		}
		p, err := filter.Lookup(cfg.Pipeline, cfg.BlurSize, cfg.Threshold)
		if err != nil {
			return err
		}

		copts := []comm.Option{comm.WithLogEvery(cfg.LogEvery)}
		if cfg.RecordDir != "" {
			rl, err := output.NewRecordLog(cfg.RecordDir, fmt.Sprintf("rank%d", rank))
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
		c, err := comm.Dial(rank, cfg.Endpoints, copts...)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx := cmd.Context()
		var metrics schedule.Metrics
		if rank == 0 {
			err = coordinate(ctx, cfg, c, p, &metrics, where)
		} else {
			w := &schedule.Worker{Comm: c, Pipeline: p, Workers: cfg.Workers, Metrics: &metrics}
			err = w.Run(ctx)
		}
		s := c.Stats()
		log.Printf("%d message(s) sent, %d received, %d byte(s)", s.Sent, s.Received, s.Bytes)
		return err
	},
}

func init() {
	runCmd.Flags().IntVar(&rank, "rank", 0, "rank of this process")
	runCmd.Flags().StringSliceVar(&opts.flags.Endpoints, "endpoints", nil, "zmq endpoint of every rank, in rank order")
}
