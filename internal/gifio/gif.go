// Package gifio loads animations into RGB frames and stores them back.
// Locations are local paths or s3://bucket/key.
package gifio

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"

	"github.com/grailbio/base/errors"
	"golang.org/x/image/draw"

	"sobelf-go/internal/types"
)

// Animation is a decoded GIF. Frames hold the raw frame rectangles, not a
// composited canvas, so Store can write them back with the same bounds.
type Animation struct {
	Frames []types.Frame
	Bounds []image.Rectangle

	Delay           []int
	Disposal        []byte
	LoopCount       int
	BackgroundIndex byte
	Config          image.Config
}

// Load reads and decodes location. A frame with its own color table is an
// unsupported input.
func Load(ctx context.Context, location string) (*Animation, error) {
	b, err := readLocation(ctx, location)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// Decode converts a GIF stream into frames through its global palette.
func Decode(b []byte) (*Animation, error) {
	l, err := scan(b)
	if err != nil {
		return nil, err
	}
	if !l.global {
		return nil, errors.E(errors.NotSupported, "gif: no global color table")
	}
	for i, local := range l.local {
		if local {
			return nil, errors.E(errors.NotSupported, fmt.Sprintf("gif: frame %d has a local color table", i))
		}
	}

	g, err := gif.DecodeAll(bytes.NewReader(b))
	if err != nil {
		return nil, errors.E(errors.Invalid, "gif: decode", err)
	}
	global, _ := g.Config.ColorModel.(color.Palette)

	anim := &Animation{
		Frames:          make([]types.Frame, len(g.Image)),
		Bounds:          make([]image.Rectangle, len(g.Image)),
		Delay:           g.Delay,
		Disposal:        g.Disposal,
		LoopCount:       g.LoopCount,
		BackgroundIndex: g.BackgroundIndex,
		Config:          g.Config,
	}
	for i, img := range g.Image {
		bounds := img.Bounds()
		w, h := bounds.Dx(), bounds.Dy()
		pix := make([]types.Pixel, w*h)
		for y := 0; y < h; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+w]
			for x, c := range row {
				// Indexing the global table keeps the transparent entry's
				// RGB, which image/gif blanks in the frame palette.
				var rgb color.Color = color.Black
				if int(c) < len(global) {
					rgb = global[c]
				}
				r, gg, bb, _ := rgb.RGBA()
				pix[y*w+x] = types.Pixel{R: uint8(r >> 8), G: uint8(gg >> 8), B: uint8(bb >> 8)}
			}
		}
		anim.Frames[i] = types.Frame{Index: i, Width: w, Height: h, Pix: pix}
		anim.Bounds[i] = bounds
	}
	return anim, nil
}

// Store encodes anim and writes it to location.
func Store(ctx context.Context, location string, anim *Animation) error {
	b, err := Encode(anim)
	if err != nil {
		return err
	}
	return writeLocation(ctx, location, b)
}

// Encode writes every frame with one shared palette: the exact set of
// colors when it fits in 256 entries, Plan 9 with Floyd-Steinberg
// dithering otherwise.
func Encode(anim *Animation) ([]byte, error) {
	for i, f := range anim.Frames {
		if len(f.Pix) != f.Width*f.Height {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("gif: frame %d has %d pixels, want %dx%d", i, len(f.Pix), f.Width, f.Height))
		}
	}
	pal, exact := exactPalette(anim.Frames)
	if !exact {
		pal = palette.Plan9
	}

	out := &gif.GIF{
		Image:           make([]*image.Paletted, len(anim.Frames)),
		Delay:           make([]int, len(anim.Frames)),
		Disposal:        make([]byte, len(anim.Frames)),
		LoopCount:       anim.LoopCount,
		BackgroundIndex: anim.BackgroundIndex,
		Config:          anim.Config,
	}
	out.Config.ColorModel = pal
	if int(out.BackgroundIndex) >= len(pal) {
		out.BackgroundIndex = 0
	}
	for i, f := range anim.Frames {
		bounds := image.Rect(0, 0, f.Width, f.Height)
		if i < len(anim.Bounds) && anim.Bounds[i].Dx() == f.Width && anim.Bounds[i].Dy() == f.Height {
			bounds = anim.Bounds[i]
		}
		out.Config.Width = max(out.Config.Width, bounds.Max.X)
		out.Config.Height = max(out.Config.Height, bounds.Max.Y)

		dst := image.NewPaletted(bounds, pal)
		if exact {
			fillExact(dst, f, pal)
		} else {
			draw.FloydSteinberg.Draw(dst, bounds, toNRGBA(f, bounds), bounds.Min)
		}
		out.Image[i] = dst
		if i < len(anim.Delay) {
			out.Delay[i] = anim.Delay[i]
		}
		if i < len(anim.Disposal) {
			out.Disposal[i] = anim.Disposal[i]
		}
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		return nil, errors.E(errors.Invalid, "gif: encode", err)
	}
	return buf.Bytes(), nil
}

// exactPalette collects the distinct colors of frames if there are at
// most 256 of them.
func exactPalette(frames []types.Frame) (color.Palette, bool) {
	seen := make(map[types.Pixel]struct{})
	var pal color.Palette
	for _, f := range frames {
		for _, p := range f.Pix {
			if _, ok := seen[p]; ok {
				continue
			}
			if len(pal) == 256 {
				return nil, false
			}
			seen[p] = struct{}{}
			pal = append(pal, color.RGBA{R: p.R, G: p.G, B: p.B, A: 0xff})
		}
	}
	if len(pal) == 0 {
		pal = append(pal, color.RGBA{A: 0xff})
	}
	// image/gif pads palettes to a power of two; keep at least two entries.
	if len(pal) == 1 {
		pal = append(pal, pal[0])
	}
	return pal, true
}

func fillExact(dst *image.Paletted, f types.Frame, pal color.Palette) {
	index := make(map[types.Pixel]uint8, len(pal))
	for i := len(pal) - 1; i >= 0; i-- {
		c := pal[i].(color.RGBA)
		index[types.Pixel{R: c.R, G: c.G, B: c.B}] = uint8(i)
	}
	for y := 0; y < f.Height; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+f.Width]
		for x := range row {
			row[x] = index[f.Pix[y*f.Width+x]]
		}
	}
}

func toNRGBA(f types.Frame, bounds image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(bounds)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			p := f.Pix[y*f.Width+x]
			i := y*img.Stride + x*4
			img.Pix[i] = p.R
			img.Pix[i+1] = p.G
			img.Pix[i+2] = p.B
			img.Pix[i+3] = 0xff
		}
	}
	return img
}
