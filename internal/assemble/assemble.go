// Package assemble puts filtered regions back into their frames.
package assemble

import (
	"github.com/grailbio/base/log"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

// Result reports what Frames did.
type Result struct {
	Combined int
	// Skipped lists frames for which no region came back. Their buffers
	// are left as they were.
	Skipped []int
}

// Frames sorts regions by (frame id, region id) and combines every
// frame's run with layout. frames[i] is expected to carry Index i. Region
// buffers are released once combined.
func Frames(frames []types.Frame, regions []region.Region, layout region.Layout) Result {
	region.Sort(regions)

	var res Result
	next := 0
	for i := range frames {
		f := &frames[i]
		// Regions of frames that are not in the set are ignored.
		for next < len(regions) && regions[next].FrameID < f.Index {
			log.Error.Printf("assemble: dropping region %d of unknown frame %d", regions[next].ID, regions[next].FrameID)
			next++
		}
		start := next
		for next < len(regions) && regions[next].FrameID == f.Index {
			next++
		}
		run := regions[start:next]
		if len(run) == 0 {
			log.Error.Printf("assemble: no regions found for frame %d", f.Index)
			res.Skipped = append(res.Skipped, f.Index)
			continue
		}
		k := run[0].K
		f.Pix = layout.Combine(run, f.Width, f.Height, k)
		for j := range run {
			run[j].Release()
		}
		res.Combined++
	}
	return res
}
