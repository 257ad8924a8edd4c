package filter

import (
	"context"
	"fmt"

	"sobelf-go/internal/region"
)

const (
	CompositeName = "composite"
	EdgeName      = "edge"
)

// Pipeline is a fixed sequence of kernels together with the decomposition
// its stencils need.
type Pipeline struct {
	Name   string
	Layout region.Layout
	Gray   bool
	Blur   *Blur
	Edge   bool
}

// Stats describes one region's pass through a pipeline.
type Stats struct {
	Iterations int
}

// Composite is grayscale, then blur, then edge detection, split in column
// strips whose halo covers the blur window.
func Composite(size, threshold int) Pipeline {
	return Pipeline{
		Name:   CompositeName,
		Layout: region.Columns{Halo: size},
		Gray:   true,
		Blur:   &Blur{Size: size, Threshold: threshold},
		Edge:   true,
	}
}

// EdgeOnly is the single-pass edge detector on a 2-D grid with a one pixel
// halo.
func EdgeOnly() Pipeline {
	return Pipeline{
		Name:   EdgeName,
		Layout: region.Grid{Halo: region.EdgeHalo},
		Edge:   true,
	}
}

// Lookup resolves a pipeline by name.
func Lookup(name string, blurSize, threshold int) (Pipeline, error) {
	switch name {
	case CompositeName, "":
		return Composite(blurSize, threshold), nil
	case EdgeName:
		return EdgeOnly(), nil
	default:
		return Pipeline{}, fmt.Errorf("unknown pipeline %q", name)
	}
}

// Iterative reports whether split regions need the halo exchange.
func (p Pipeline) Iterative() bool {
	return p.Blur != nil
}

// HaloFor returns the halo width of a region split k ways.
func (p Pipeline) HaloFor(k int) int {
	if k <= 1 {
		return 0
	}
	return p.Layout.HaloWidth()
}

// Run applies the pipeline to r. s may be nil for unsplit regions.
func (p Pipeline) Run(ctx context.Context, r *region.Region, s Syncer) (Stats, error) {
	var stats Stats
	if p.Gray {
		Grayscale(r)
	}
	if p.Blur != nil {
		n, err := p.Blur.Apply(ctx, r, s)
		stats.Iterations = n
		if err != nil {
			return stats, fmt.Errorf("blur frame %d region %d: %w", r.FrameID, r.ID, err)
		}
	}
	if p.Edge {
		Sobel(r)
	}
	return stats, nil
}
