package simulator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFramesDeterministic(t *testing.T) {
	opt := DefaultOptions(3)
	a, b := Frames(opt), Frames(opt)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("frames differ for the same seed:\n%s", diff)
	}
	opt.Seed = 2
	if cmp.Equal(a, Frames(opt)) {
		t.Fatal("different seeds gave the same frames")
	}
}

func TestFramesShape(t *testing.T) {
	opt := Options{Frames: 4, Width: 20, Height: 12, Seed: 3}
	frames := Frames(opt)
	if len(frames) != 4 {
		t.Fatalf("got %d frames", len(frames))
	}
	for i, f := range frames {
		if f.Index != i || f.Width != 20 || f.Height != 12 || len(f.Pix) != 240 {
			t.Fatalf("frame %d: unexpected shape %d %dx%d (%d pixels)", i, f.Index, f.Width, f.Height, len(f.Pix))
		}
	}
	// The square moves, so consecutive frames differ even without noise.
	if cmp.Equal(frames[0].Pix, frames[1].Pix) {
		t.Fatal("square did not move")
	}
}
