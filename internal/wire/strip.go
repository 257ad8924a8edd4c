package wire

import (
	"fmt"

	"github.com/grailbio/base/errors"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

// PackColumns copies columns [x0, x0+cols) of r, row by row, into a new
// buffer of RGB triples.
func PackColumns(r *region.Region, x0, cols int) []byte {
	b := make([]byte, cols*r.Height*PixelSize)
	off := 0
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*r.Width+x0 : y*r.Width+x0+cols]
		for _, p := range row {
			b[off] = p.R
			b[off+1] = p.G
			b[off+2] = p.B
			off += PixelSize
		}
	}
	return b
}

// UnpackColumns overwrites columns [x0, x0+cols) of r with a strip packed
// by PackColumns.
func UnpackColumns(b []byte, r *region.Region, x0, cols int) error {
	if want := cols * r.Height * PixelSize; len(b) != want {
		return errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("strip for frame %d region %d: %d bytes, want %d", r.FrameID, r.ID, len(b), want))
	}
	off := 0
	for y := 0; y < r.Height; y++ {
		row := r.Pix[y*r.Width+x0 : y*r.Width+x0+cols]
		for i := range row {
			row[i] = types.Pixel{R: b[off], G: b[off+1], B: b[off+2]}
			off += PixelSize
		}
	}
	return nil
}
