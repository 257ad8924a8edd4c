package region

import (
	"math"

	"github.com/grailbio/base/must"

	"sobelf-go/internal/types"
)

// Grid splits a frame into rows×cols tiles with a halo on every internal
// side, corners included. Region ids are row-major.
type Grid struct {
	Halo int
}

// Dims returns the most square factorization of k with cols >= rows.
func Dims(k int) (rows, cols int) {
	rows = int(math.Sqrt(float64(k)))
	if rows < 1 {
		rows = 1
	}
	for rows > 1 && k%rows != 0 {
		rows--
	}
	return rows, k / rows
}

func (g Grid) Name() string { return "grid" }

func (g Grid) HaloWidth() int { return g.Halo }

// Fits reports whether every tile can carry the full halo.
func (g Grid) Fits(width, height, k int) bool {
	return k == 1 || g.halo(width, height, k) == g.Halo
}

// halo is the halo of a width×height frame cut into k tiles, limited by
// the narrowest tile across an internal edge.
func (g Grid) halo(width, height, k int) int {
	if k <= 1 {
		return 0
	}
	rows, cols := Dims(k)
	h := g.Halo
	if cols > 1 {
		h = min(h, width/cols)
	}
	if rows > 1 {
		h = min(h, height/rows)
	}
	return h
}

func (g Grid) Split(pix []types.Pixel, frameID, width, height, k int) []Region {
	checkSource(pix, frameID, width, height, k)
	rows, cols := Dims(k)
	baseW, baseH := width/cols, height/rows
	halo := g.halo(width, height, k)

	regions := make([]Region, 0, k)
	for row := 0; row < rows; row++ {
		y0, y1 := span(row, rows, baseH, height)
		by0, by1 := y0, y1
		if y0 > 0 {
			by0 -= halo
		}
		if y1 < height {
			by1 += halo
		}
		for col := 0; col < cols; col++ {
			x0, x1 := span(col, cols, baseW, width)
			bx0, bx1 := x0, x1
			if x0 > 0 {
				bx0 -= halo
			}
			if x1 < width {
				bx1 += halo
			}
			w, h := bx1-bx0, by1-by0
			r := New(frameID, row*cols+col, w, h, k, halo)
			for y := 0; y < h; y++ {
				src := (by0+y)*width + bx0
				copy(r.Pix[y*w:(y+1)*w], pix[src:src+w])
			}
			regions = append(regions, r)
		}
	}
	return regions
}

func (g Grid) Combine(regions []Region, width, height, k int) []types.Pixel {
	checkSet(regions, k)
	rows, cols := Dims(k)
	baseW, baseH := width/cols, height/rows
	halo := g.halo(width, height, k)

	out := make([]types.Pixel, width*height)
	for i := range regions {
		r := &regions[i]
		row, col := i/cols, i%cols
		x0, x1 := span(col, cols, baseW, width)
		y0, y1 := span(row, rows, baseH, height)
		offX, offY := 0, 0
		if x0 > 0 {
			offX = halo
		}
		if y0 > 0 {
			offY = halo
		}
		n := x1 - x0
		must.Truef(r.Width >= offX+n && r.Height >= offY+(y1-y0), "region: tile %d of frame %d is %dx%d, too small", r.ID, r.FrameID, r.Width, r.Height)
		for y := y0; y < y1; y++ {
			src := (y-y0+offY)*r.Width + offX
			copy(out[y*width+x0:y*width+x1], r.Pix[src:src+n])
		}
	}
	return out
}
