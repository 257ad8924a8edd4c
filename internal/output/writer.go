package output

import (
	"fmt"
	"os"
	"path/filepath"

	"sobelf-go/internal/schedule"
)

// WriteFrameReport writes one line per finished frame to
// <dir>/<runTimestamp>_frames.txt and returns the path.
func WriteFrameReport(dir, runTimestamp string, frames []schedule.FrameStat) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_frames.txt", runTimestamp))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	_, _ = fmt.Fprintln(f, "frame, strategy, regions, iterations, elapsed_ms")
	for _, s := range frames {
		_, _ = fmt.Fprintf(f, "%d, %s, %d, %d, %.3f\n",
			s.Frame, s.Strategy, s.Regions, s.Iterations,
			float64(s.Elapsed.Microseconds())/1e3)
	}
	return path, f.Close()
}
