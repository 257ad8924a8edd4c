package filter

import (
	"math"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

const edgeThreshold = 50

var (
	white = types.Pixel{R: 255, G: 255, B: 255}
	black = types.Pixel{}
)

// Grayscale replaces every pixel with the clamped integer mean of its
// channels.
func Grayscale(r *region.Region) {
	p := r.Pix
	w := r.Width
	forRows(0, r.Height, func(y0, y1 int) bool {
		for i := y0 * w; i < y1*w; i++ {
			m := types.Clamp((int(p[i].R) + int(p[i].G) + int(p[i].B)) / 3)
			p[i] = types.Pixel{R: m, G: m, B: m}
		}
		return true
	})
}

// Sobel thresholds the blue-channel gradient magnitude of every interior
// pixel to white or black. The outermost ring is left as is.
func Sobel(r *region.Region) {
	w, h := r.Width, r.Height
	p := r.Pix
	out := make([]types.Pixel, len(p))
	copy(out, p)

	forRows(1, h-1, func(y0, y1 int) bool {
		for y := y0; y < y1; y++ {
			for x := 1; x < w-1; x++ {
				nw := int(p[(y-1)*w+x-1].B)
				n := int(p[(y-1)*w+x].B)
				ne := int(p[(y-1)*w+x+1].B)
				sw := int(p[(y+1)*w+x-1].B)
				s := int(p[(y+1)*w+x].B)
				se := int(p[(y+1)*w+x+1].B)
				west := int(p[y*w+x-1].B)
				east := int(p[y*w+x+1].B)

				dx := float64(-nw + ne - 2*west + 2*east - sw + se)
				dy := float64(se + 2*s + sw - ne - 2*n - nw)
				if math.Sqrt(dx*dx+dy*dy)/4 > edgeThreshold {
					out[y*w+x] = white
				} else {
					out[y*w+x] = black
				}
			}
		}
		return true
	})
	r.Pix = out
}
