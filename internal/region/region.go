package region

import (
	"sort"

	"github.com/grailbio/base/must"

	"sobelf-go/internal/types"
)

// Halo widths of the two filter families.
const (
	BlurHalo = 5
	EdgeHalo = 1
)

// Region is a frame or a fragment of one. A fragment carries Halo extra
// pixels on every internal edge; those pixels are scratch and never reach
// the combined output.
type Region struct {
	FrameID int
	ID      int
	Width   int
	Height  int
	K       int
	Halo    int
	Pix     []types.Pixel
}

// New allocates a region with a zeroed pixel buffer.
func New(frameID, id, width, height, k, halo int) Region {
	return Region{
		FrameID: frameID,
		ID:      id,
		Width:   width,
		Height:  height,
		K:       k,
		Halo:    halo,
		Pix:     make([]types.Pixel, width*height),
	}
}

func (r *Region) Index(x, y int) int {
	return y*r.Width + x
}

// Release drops the region's pixel buffer.
func (r *Region) Release() {
	r.Pix = nil
}

// Sort orders regions by frame id, then region id.
func Sort(regions []Region) {
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].FrameID != regions[j].FrameID {
			return regions[i].FrameID < regions[j].FrameID
		}
		return regions[i].ID < regions[j].ID
	})
}

// Layout is a decomposition strategy. Split and Combine are inverses on the
// non-halo interior of every region. A frame too narrow for the full halo
// still splits, with the halo cut down to the narrowest partition; Fits
// reports whether that happens.
type Layout interface {
	Name() string
	HaloWidth() int
	Fits(width, height, k int) bool
	Split(pix []types.Pixel, frameID, width, height, k int) []Region
	Combine(regions []Region, width, height, k int) []types.Pixel
}

// Split divides a frame into k column strips with the blur halo.
func Split(pix []types.Pixel, frameID, width, height, k int) []Region {
	return Columns{Halo: BlurHalo}.Split(pix, frameID, width, height, k)
}

// Combine is the inverse of Split.
func Combine(regions []Region, width, height, k int) []types.Pixel {
	return Columns{Halo: BlurHalo}.Combine(regions, width, height, k)
}

// span returns the interior bounds of partition i when total is divided
// into k parts of size base, the last one absorbing the remainder.
func span(i, k, base, total int) (lo, hi int) {
	lo = i * base
	hi = lo + base
	if i == k-1 {
		hi = total
	}
	return lo, hi
}

func checkSource(pix []types.Pixel, frameID, width, height, k int) {
	must.Truef(k > 0, "region: frame %d split into %d partitions", frameID, k)
	must.Truef(pix != nil, "region: frame %d has no pixel buffer", frameID)
	must.Truef(len(pix) == width*height, "region: frame %d buffer holds %d pixels, want %dx%d", frameID, len(pix), width, height)
}

// checkSet enforces the Combine preconditions: k regions sorted by id,
// all agreeing on k, each with a full buffer.
func checkSet(regions []Region, k int) {
	must.Truef(k > 0, "region: combine with %d partitions", k)
	must.Truef(regions != nil, "region: combine of absent region set")
	must.Truef(len(regions) == k, "region: combine got %d regions, want %d", len(regions), k)
	for i := range regions {
		r := &regions[i]
		must.Truef(r.ID == i, "region: combine set unsorted or incomplete: position %d holds region %d", i, r.ID)
		must.Truef(r.K == k, "region: region %d of frame %d has k=%d, want %d", r.ID, r.FrameID, r.K, k)
		must.Truef(r.FrameID == regions[0].FrameID, "region: combine set mixes frames %d and %d", regions[0].FrameID, r.FrameID)
		must.Truef(len(r.Pix) == r.Width*r.Height, "region: region %d of frame %d has %d pixels, want %dx%d", r.ID, r.FrameID, len(r.Pix), r.Width, r.Height)
	}
}
