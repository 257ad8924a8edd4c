package types

// Pixel is one RGB triple. Channels are stored as bytes and widened to int
// for filter arithmetic.
type Pixel struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Frame is one raster of an animation, row-major.
type Frame struct {
	Index  int     `json:"index"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Pix    []Pixel `json:"-"`
}

func (f Frame) At(x, y int) Pixel {
	return f.Pix[y*f.Width+x]
}

// Clone returns a frame with its own pixel buffer.
func (f Frame) Clone() Frame {
	pix := make([]Pixel, len(f.Pix))
	copy(pix, f.Pix)
	f.Pix = pix
	return f
}

// Clamp converts an int channel value back to a byte.
func Clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
