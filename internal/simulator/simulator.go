// Package simulator synthesizes animations for runs without an input file.
package simulator

import (
	"math"
	"math/rand"

	"sobelf-go/internal/types"
)

// Options shape a synthetic animation.
type Options struct {
	Frames int
	Width  int
	Height int
	// Noise is the standard deviation of the per-pixel noise.
	Noise float64
	Seed  int64
}

// DefaultOptions returns a small animation that still has room for the
// blur bands and a few column strips.
func DefaultOptions(frames int) Options {
	return Options{Frames: frames, Width: 160, Height: 120, Noise: 12, Seed: 1}
}

// Frames renders a radial glow with a bright square drifting to the right,
// plus Gaussian noise. The same options always give the same frames.
func Frames(opt Options) []types.Frame {
	rng := rand.New(rand.NewSource(opt.Seed))
	w, h := opt.Width, opt.Height

	base := make([]float64, w*h)
	cx, cy := float64(w)/2, float64(h)/2
	spread := float64(w*h) / 20
	for i := range base {
		dx := float64(i%w) - cx
		dy := float64(i/w) - cy
		base[i] = 200 * math.Exp(-(dx*dx+dy*dy)/spread)
	}

	side := max(h/4, 1)
	out := make([]types.Frame, opt.Frames)
	for n := range out {
		x0 := (n * 3) % max(w-side, 1)
		y0 := (h - side) / 2
		pix := make([]types.Pixel, w*h)
		for i := range pix {
			x, y := i%w, i/w
			v := base[i] + rng.NormFloat64()*opt.Noise
			r, g, b := v, v*0.8, v*0.6
			if x >= x0 && x < x0+side && y >= y0 && y < y0+side {
				r, g, b = 255, 240, 255
			}
			pix[i] = types.Pixel{R: clamp(r), G: clamp(g), B: clamp(b)}
		}
		out[n] = types.Frame{Index: n, Width: w, Height: h, Pix: pix}
	}
	return out
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
