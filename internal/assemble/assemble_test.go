package assemble

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

func testFrames(seed int64, n, width, height int) []types.Frame {
	fz := fuzz.NewWithSeed(seed)
	frames := make([]types.Frame, n)
	for i := range frames {
		pix := make([]types.Pixel, width*height)
		for j := range pix {
			fz.Fuzz(&pix[j])
		}
		frames[i] = types.Frame{Index: i, Width: width, Height: height, Pix: pix}
	}
	return frames
}

func cloneFrames(frames []types.Frame) []types.Frame {
	out := make([]types.Frame, len(frames))
	for i, f := range frames {
		out[i] = f.Clone()
	}
	return out
}

func TestFramesIndependentOfArrivalOrder(t *testing.T) {
	layout := region.Columns{Halo: region.BlurHalo}
	frames := testFrames(1, 4, 40, 6)
	want := cloneFrames(frames)

	var regions []region.Region
	for i, f := range frames {
		k := 1
		if i < 2 {
			k = 3
		}
		regions = append(regions, layout.Split(f.Pix, f.Index, f.Width, f.Height, k)...)
		frames[i].Pix = make([]types.Pixel, len(f.Pix))
	}
	rand.New(rand.NewSource(5)).Shuffle(len(regions), func(i, j int) {
		regions[i], regions[j] = regions[j], regions[i]
	})

	res := Frames(frames, regions, layout)
	if res.Combined != 4 || len(res.Skipped) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if diff := cmp.Diff(want, frames); diff != "" {
		t.Fatalf("reassembled frames differ (-want +got):\n%s", diff)
	}
	for _, r := range regions {
		if r.Pix != nil {
			t.Fatalf("region %d/%d not released", r.FrameID, r.ID)
		}
	}
}

func TestFramesSkipsMissingFrame(t *testing.T) {
	layout := region.Grid{Halo: region.EdgeHalo}
	frames := testFrames(2, 3, 12, 12)
	original := cloneFrames(frames)

	var regions []region.Region
	for _, i := range []int{0, 2} {
		f := frames[i]
		regions = append(regions, layout.Split(f.Pix, f.Index, f.Width, f.Height, 4)...)
	}
	frames[1].Pix[0] = types.Pixel{R: 1, G: 2, B: 3}
	untouched := frames[1].Clone()

	res := Frames(frames, regions, layout)
	if res.Combined != 2 {
		t.Fatalf("combined %d frames, want 2", res.Combined)
	}
	if diff := cmp.Diff([]int{1}, res.Skipped); diff != "" {
		t.Fatalf("skipped (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(untouched, frames[1]); diff != "" {
		t.Fatalf("skipped frame modified (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(original[2], frames[2]); diff != "" {
		t.Fatalf("frame 2 (-want +got):\n%s", diff)
	}
}

func TestFramesIncompleteRunIsFatal(t *testing.T) {
	layout := region.Columns{Halo: 2}
	frames := testFrames(3, 1, 20, 2)
	regions := layout.Split(frames[0].Pix, 0, 20, 2, 4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for incomplete region set")
		}
	}()
	Frames(frames, regions[:3], layout)
}
