package filter

import (
	"context"

	"github.com/grailbio/base/log"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

// Syncer runs the cross-region step of a split region after each blur
// iteration: refresh the halo from the neighbors, then vote. It returns
// true when every region of the frame converged.
type Syncer interface {
	Sync(ctx context.Context, r *region.Region, iteration int, converged bool) (bool, error)
}

// Blur is the iterative box blur. Only the top and bottom tenth of a region
// are blurred; the middle rows pass through unchanged.
type Blur struct {
	Size      int
	Threshold int
}

// Apply iterates until every pixel (outermost ring excluded) moves by at
// most Threshold on every channel, or exactly once if Threshold <= 0. For
// a split region (K > 1) each iteration is followed by s.Sync and the loop
// stops only on a global decision.
func (b Blur) Apply(ctx context.Context, r *region.Region, s Syncer) (int, error) {
	next := make([]types.Pixel, len(r.Pix))
	iterations := 0
	for {
		local := b.iterate(r, next)
		// The old buffer becomes scratch for the next pass.
		r.Pix, next = next, r.Pix
		iterations++

		done := local
		if r.K > 1 && s != nil {
			var err error
			done, err = s.Sync(ctx, r, iterations, local)
			if err != nil {
				return iterations, err
			}
		}
		if b.Threshold <= 0 || done {
			log.Debug.Printf("blur: frame %d region %d finished after %d iterations", r.FrameID, r.ID, iterations)
			return iterations, nil
		}
	}
}

// iterate writes one blur pass of r.Pix into next and reports whether the
// region converged locally.
func (b Blur) iterate(r *region.Region, next []types.Pixel) bool {
	w, h := r.Width, r.Height
	p := r.Pix
	size := b.Size
	copy(next, p)

	side := 2*size + 1
	denom := side * side
	blurRows := func(y0, y1 int) bool {
		for y := y0; y < y1; y++ {
			for x := size; x < w-size; x++ {
				var tr, tg, tb int
				for sy := -size; sy <= size; sy++ {
					row := (y + sy) * w
					for sx := -size; sx <= size; sx++ {
						q := p[row+x+sx]
						tr += int(q.R)
						tg += int(q.G)
						tb += int(q.B)
					}
				}
				next[y*w+x] = types.Pixel{
					R: types.Clamp(tr / denom),
					G: types.Clamp(tg / denom),
					B: types.Clamp(tb / denom),
				}
			}
		}
		return true
	}
	forRows(size, h/10-size, blurRows)
	forRows(int(float64(h)*0.9)+size, h-size, blurRows)

	return forRows(1, h-1, func(y0, y1 int) bool {
		ok := true
		for y := y0; y < y1 && ok; y++ {
			for x := 1; x < w-1; x++ {
				i := y*w + x
				if exceeds(next[i].R, p[i].R, b.Threshold) ||
					exceeds(next[i].G, p[i].G, b.Threshold) ||
					exceeds(next[i].B, p[i].B, b.Threshold) {
					ok = false
					break
				}
			}
		}
		return ok
	})
}

func exceeds(a, b uint8, threshold int) bool {
	d := int(a) - int(b)
	return d > threshold || -d > threshold
}
