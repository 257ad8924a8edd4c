// Command sobelf filters the frames of a GIF animation across a group of
// cooperating ranks: grayscale, an iterative blur that stops when it
// converges, then Sobel edge detection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/grailbio/base/log"
	"github.com/spf13/cobra"

	"sobelf-go/internal/config"
)

// Version is the application version.
const Version = "0.3.0"

type options struct {
	configPath string
	flags      config.AppConfig
	synthetic  int
}

var opts = options{flags: config.Default()}

var rootCmd = &cobra.Command{
	Use:           "sobelf",
	Short:         "Distributed grayscale, blur and Sobel filter for GIF animations",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file; flags override it")
	pf.StringVar(&opts.flags.Pipeline, "pipeline", opts.flags.Pipeline, "filter pipeline: composite or edge")
	pf.IntVar(&opts.flags.BlurSize, "blur-size", opts.flags.BlurSize, "blur half window, also the column halo")
	pf.IntVar(&opts.flags.Threshold, "threshold", opts.flags.Threshold, "blur convergence threshold; <= 0 runs one pass")
	pf.IntVar(&opts.flags.Threads, "threads", opts.flags.Threads, "GOMAXPROCS per rank, 0 keeps the runtime default")
	pf.IntVar(&opts.flags.Workers, "workers", opts.flags.Workers, "batch regions filtered concurrently per rank")
	pf.IntVar(&opts.flags.StatusPort, "status-port", opts.flags.StatusPort, "HTTP port of the status server on rank 0, 0 disables it")
	pf.DurationVar(&opts.flags.UIRate, "ui-rate", opts.flags.UIRate, "status broadcast interval")
	pf.StringVar(&opts.flags.RecordDir, "record-dir", opts.flags.RecordDir, "directory for wire record logs and frame reports, empty disables them")
	pf.StringVar(&opts.flags.Journal, "journal", opts.flags.Journal, "PostgreSQL connection string of the run journal, empty disables it")
	pf.IntVar(&opts.flags.LogEvery, "log-every", opts.flags.LogEvery, "log every Nth repeated transport error")
	pf.IntVar(&opts.synthetic, "synthetic", 0, "filter N synthetic frames instead of reading INPUT")
	pf.BoolVar(&opts.flags.Quiet, "quiet", false, "errors only, no progress bar")
	pf.BoolVar(&opts.flags.Debug, "debug", false, "debug logging")

	log.AddFlags()
	pf.AddGoFlagSet(flag.CommandLine)

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	rootCmd.AddCommand(runCmd, localCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
