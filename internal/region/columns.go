package region

import (
	"github.com/grailbio/base/must"

	"sobelf-go/internal/types"
)

// Columns splits a frame into full-height column strips. Strip i covers
// [i*w/k, (i+1)*w/k) and the last strip absorbs the width remainder.
type Columns struct {
	Halo int
}

func (c Columns) Name() string { return "columns" }

func (c Columns) HaloWidth() int { return c.Halo }

// Fits reports whether every strip can carry the full halo.
func (c Columns) Fits(width, height, k int) bool {
	return k == 1 || width/k >= c.Halo
}

// halo is the halo of a width-wide frame cut into k strips: no strip
// borrows more columns than its narrowest neighbor owns.
func (c Columns) halo(width, k int) int {
	if k <= 1 {
		return 0
	}
	return min(c.Halo, width/k)
}

func (c Columns) Split(pix []types.Pixel, frameID, width, height, k int) []Region {
	checkSource(pix, frameID, width, height, k)
	base := width / k
	halo := c.halo(width, k)

	regions := make([]Region, k)
	for i := 0; i < k; i++ {
		x0, x1 := span(i, k, base, width)
		bx0, bx1 := x0, x1
		if x0 > 0 {
			bx0 -= halo
		}
		if x1 < width {
			bx1 += halo
		}
		w := bx1 - bx0
		r := New(frameID, i, w, height, k, halo)
		for y := 0; y < height; y++ {
			copy(r.Pix[y*w:(y+1)*w], pix[y*width+bx0:y*width+bx1])
		}
		regions[i] = r
	}
	return regions
}

func (c Columns) Combine(regions []Region, width, height, k int) []types.Pixel {
	checkSet(regions, k)
	base := width / k
	halo := c.halo(width, k)

	out := make([]types.Pixel, width*height)
	for i := range regions {
		r := &regions[i]
		x0, x1 := span(i, k, base, width)
		off := 0
		if x0 > 0 {
			off = halo
		}
		n := x1 - x0
		must.Truef(r.Height == height && r.Width >= off+n, "region: strip %d of frame %d is %dx%d, too small for %d columns", r.ID, r.FrameID, r.Width, r.Height, n)
		for y := 0; y < height; y++ {
			src := y*r.Width + off
			copy(out[y*width+x0:y*width+x1], r.Pix[src:src+n])
		}
	}
	return out
}
