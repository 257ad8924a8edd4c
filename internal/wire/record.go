package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

// A record is five little-endian int32 header fields (frame id, region id,
// width, height, k) followed by width*height RGB triples.
const (
	headerFields = 5
	HeaderSize   = headerFields * 4
	PixelSize    = 3
)

// Header is the fixed part of a packed record.
type Header struct {
	FrameID int
	ID      int
	Width   int
	Height  int
	K       int
}

// RecordSize is the packed size of one region.
func RecordSize(r *region.Region) int {
	return HeaderSize + r.Width*r.Height*PixelSize
}

// PackedSize is the exact size of the packed form of regions.
func PackedSize(regions []region.Region) int {
	n := 0
	for i := range regions {
		n += RecordSize(&regions[i])
	}
	return n
}

// Pack serializes regions back to back into a single buffer.
func Pack(regions []region.Region) []byte {
	buf := make([]byte, PackedSize(regions))
	off := 0
	for i := range regions {
		off += putRecord(buf[off:], &regions[i])
	}
	return buf
}

func putRecord(b []byte, r *region.Region) int {
	le := binary.LittleEndian
	le.PutUint32(b[0:], uint32(int32(r.FrameID)))
	le.PutUint32(b[4:], uint32(int32(r.ID)))
	le.PutUint32(b[8:], uint32(int32(r.Width)))
	le.PutUint32(b[12:], uint32(int32(r.Height)))
	le.PutUint32(b[16:], uint32(int32(r.K)))
	off := HeaderSize
	for _, p := range r.Pix[:r.Width*r.Height] {
		b[off] = p.R
		b[off+1] = p.G
		b[off+2] = p.B
		off += PixelSize
	}
	return off
}

// ReadHeader decodes the header at the start of b.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.E(errors.Invalid, fmt.Sprintf("record header truncated: %d bytes", len(b)))
	}
	le := binary.LittleEndian
	h := Header{
		FrameID: int(int32(le.Uint32(b[0:]))),
		ID:      int(int32(le.Uint32(b[4:]))),
		Width:   int(int32(le.Uint32(b[8:]))),
		Height:  int(int32(le.Uint32(b[12:]))),
		K:       int(int32(le.Uint32(b[16:]))),
	}
	if h.Width < 0 || h.Height < 0 || h.K < 1 {
		return Header{}, errors.E(errors.Invalid, fmt.Sprintf("record header malformed: %+v", h))
	}
	return h, nil
}

// size returns the packed size of the record h heads, or false when it
// does not fit in avail bytes. Hostile dimensions cannot overflow it.
func (h Header) size(avail int) (int, bool) {
	room := (avail - HeaderSize) / PixelSize
	if h.Height > 0 && h.Width > room/h.Height {
		return 0, false
	}
	return HeaderSize + h.Width*h.Height*PixelSize, true
}

// Headers walks a packed buffer and returns only the record headers.
func Headers(b []byte) ([]Header, error) {
	var out []Header
	for off := 0; off < len(b); {
		h, err := ReadHeader(b[off:])
		if err != nil {
			return nil, err
		}
		size, ok := h.size(len(b) - off)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("record %d/%d truncated", h.FrameID, h.ID))
		}
		out = append(out, h)
		off += size
	}
	return out, nil
}

// Unpack decodes every record in b, in order, into freshly allocated
// regions. halo is the layout halo applied to records with k > 1.
func Unpack(b []byte, halo int) ([]region.Region, error) {
	var out []region.Region
	for off := 0; off < len(b); {
		h, err := ReadHeader(b[off:])
		if err != nil {
			return nil, err
		}
		size, ok := h.size(len(b) - off)
		if !ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("record %d/%d truncated: %dx%d pixels, have %d bytes", h.FrameID, h.ID, h.Width, h.Height, len(b)-off))
		}
		rh := 0
		if h.K > 1 {
			rh = halo
		}
		r := region.New(h.FrameID, h.ID, h.Width, h.Height, h.K, rh)
		src := b[off+HeaderSize : off+size]
		for i := range r.Pix {
			j := i * PixelSize
			r.Pix[i] = types.Pixel{R: src[j], G: src[j+1], B: src[j+2]}
		}
		out = append(out, r)
		off += size
	}
	return out, nil
}
