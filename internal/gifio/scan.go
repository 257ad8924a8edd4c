package gifio

import (
	"github.com/grailbio/base/errors"
)

// layout is what the block structure of a GIF says about its color tables.
// image/gif resolves palettes during decoding and does not report which
// frames carried their own.
type layout struct {
	global bool
	local  []bool
}

const (
	blockExtension = 0x21
	blockImage     = 0x2c
	blockTrailer   = 0x3b

	flagColorTable = 0x80
)

// scan walks the blocks of a GIF stream without decoding any raster.
func scan(b []byte) (layout, error) {
	var l layout
	short := errors.E(errors.Invalid, "gif: stream truncated")
	if len(b) < 13 || (string(b[:6]) != "GIF87a" && string(b[:6]) != "GIF89a") {
		return l, errors.E(errors.Invalid, "gif: bad header")
	}
	flags := b[10]
	off := 13
	if flags&flagColorTable != 0 {
		l.global = true
		off += 3 << ((flags & 7) + 1)
	}
	for {
		if off >= len(b) {
			return l, short
		}
		switch b[off] {
		case blockTrailer:
			return l, nil
		case blockExtension:
			off += 2
			n, err := skipSubBlocks(b, off)
			if err != nil {
				return l, err
			}
			off = n
		case blockImage:
			if off+10 > len(b) {
				return l, short
			}
			flags := b[off+9]
			off += 10
			local := flags&flagColorTable != 0
			if local {
				off += 3 << ((flags & 7) + 1)
			}
			l.local = append(l.local, local)
			// LZW minimum code size, then the raster sub-blocks.
			off++
			n, err := skipSubBlocks(b, off)
			if err != nil {
				return l, err
			}
			off = n
		default:
			return l, errors.E(errors.Invalid, "gif: unknown block")
		}
	}
}

func skipSubBlocks(b []byte, off int) (int, error) {
	for {
		if off >= len(b) {
			return off, errors.E(errors.Invalid, "gif: sub-block truncated")
		}
		n := int(b[off])
		off++
		if n == 0 {
			return off, nil
		}
		off += n
	}
}
