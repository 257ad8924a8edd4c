package filter

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"

	"sobelf-go/internal/region"
	"sobelf-go/internal/types"
)

func frameRegion(width, height int, pix []types.Pixel) *region.Region {
	r := region.New(0, 0, width, height, 1, 0)
	copy(r.Pix, pix)
	return &r
}

func randomRegion(seed int64, width, height int) *region.Region {
	fz := fuzz.NewWithSeed(seed)
	r := region.New(0, 0, width, height, 1, 0)
	for i := range r.Pix {
		fz.Fuzz(&r.Pix[i])
	}
	return &r
}

func TestGrayscale(t *testing.T) {
	r := frameRegion(3, 1, []types.Pixel{
		{R: 255, G: 255, B: 255},
		{R: 10, G: 20, B: 31},
		{R: 0, G: 0, B: 2},
	})
	Grayscale(r)
	want := []types.Pixel{
		{R: 255, G: 255, B: 255},
		{R: 20, G: 20, B: 20},
		{R: 0, G: 0, B: 0},
	}
	if diff := cmp.Diff(want, r.Pix); diff != "" {
		t.Fatalf("grayscale mismatch (-want +got):\n%s", diff)
	}
}

func TestGrayscaleIdempotent(t *testing.T) {
	r := randomRegion(1, 17, 9)
	Grayscale(r)
	once := append([]types.Pixel(nil), r.Pix...)
	Grayscale(r)
	if diff := cmp.Diff(once, r.Pix); diff != "" {
		t.Fatalf("second pass changed pixels (-once +twice):\n%s", diff)
	}
}

func TestSobelOutlinesSquare(t *testing.T) {
	const n = 12
	inSquare := func(x, y int) bool { return x >= 3 && x < 8 && y >= 3 && y < 8 }
	r := region.New(0, 0, n, n, 1, 0)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if inSquare(x, y) {
				r.Pix[y*n+x] = white
			}
		}
	}
	Sobel(&r)

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			// An interior pixel is on the outline when its 3x3 window sees
			// both sides of the square's border.
			want := black
			if x > 0 && y > 0 && x < n-1 && y < n-1 {
				in, out := false, false
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						if inSquare(x+dx, y+dy) {
							in = true
						} else {
							out = true
						}
					}
				}
				if in && out {
					want = white
				}
			}
			if got := r.Pix[y*n+x]; got != want {
				t.Fatalf("pixel (%d,%d): got %v, want %v", x, y, got, want)
			}
		}
	}
}

func TestSobelOutputIsBinary(t *testing.T) {
	r := randomRegion(5, 20, 20)
	border := make([]types.Pixel, 0, 4*20)
	for x := 0; x < 20; x++ {
		border = append(border, r.Pix[x], r.Pix[19*20+x])
	}
	Sobel(r)
	for y := 1; y < 19; y++ {
		for x := 1; x < 19; x++ {
			if p := r.Pix[y*20+x]; p != white && p != black {
				t.Fatalf("pixel (%d,%d) = %v is not black or white", x, y, p)
			}
		}
	}
	for x := 0; x < 20; x++ {
		if r.Pix[x] != border[2*x] || r.Pix[19*20+x] != border[2*x+1] {
			t.Fatalf("border column %d changed", x)
		}
	}
}

func TestBlurSingleIteration(t *testing.T) {
	r := randomRegion(3, 30, 120)
	n, err := Blur{Size: 2, Threshold: 0}.Apply(context.Background(), r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("threshold 0 ran %d iterations, want 1", n)
	}
}

func TestBlurConverges(t *testing.T) {
	a := randomRegion(4, 40, 120)
	b := &region.Region{Width: a.Width, Height: a.Height, K: 1, Pix: append([]types.Pixel(nil), a.Pix...)}
	blur := Blur{Size: 3, Threshold: 2}
	n, err := blur.Apply(context.Background(), a, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Noise does not settle in one pass.
	if n < 2 {
		t.Fatalf("ran %d iterations, want more than one", n)
	}

	// Replay pass by pass: only the last pass may move every interior pixel
	// by at most the threshold.
	next := make([]types.Pixel, len(b.Pix))
	var prev []types.Pixel
	for i := 1; i <= n; i++ {
		prev = append(prev[:0], b.Pix...)
		converged := blur.iterate(b, next)
		b.Pix, next = next, b.Pix
		if converged != (i == n) {
			t.Fatalf("pass %d of %d: converged=%v", i, n, converged)
		}
	}
	if diff := cmp.Diff(b.Pix, a.Pix); diff != "" {
		t.Fatalf("replay mismatch (-replay +converged):\n%s", diff)
	}
	w := a.Width
	for y := 1; y < a.Height-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			for _, d := range []int{
				int(a.Pix[i].R) - int(prev[i].R),
				int(a.Pix[i].G) - int(prev[i].G),
				int(a.Pix[i].B) - int(prev[i].B),
			} {
				if d > blur.Threshold || -d > blur.Threshold {
					t.Fatalf("pixel (%d,%d) moved by %d in the last pass", x, y, d)
				}
			}
		}
	}
}

func TestBlurLeavesMiddleRows(t *testing.T) {
	const w, h, size = 30, 120, 2
	r := randomRegion(8, w, h)
	before := append([]types.Pixel(nil), r.Pix...)
	if _, err := (Blur{Size: size, Threshold: 0}).Apply(context.Background(), r, nil); err != nil {
		t.Fatal(err)
	}
	// Rows outside [size, h/10-size) and [int(0.9h)+size, h-size) pass through.
	for y := h/10 - size; y < int(float64(h)*0.9)+size; y++ {
		for x := 0; x < w; x++ {
			if r.Pix[y*w+x] != before[y*w+x] {
				t.Fatalf("pixel (%d,%d) changed", x, y)
			}
		}
	}
	for y := 0; y < h; y++ {
		for _, x := range []int{0, 1, w - 2, w - 1} {
			if r.Pix[y*w+x] != before[y*w+x] {
				t.Fatalf("border pixel (%d,%d) changed", x, y)
			}
		}
	}
}

func TestBlurUniformFrameIsFixedPoint(t *testing.T) {
	const w, h = 25, 110
	pix := make([]types.Pixel, w*h)
	for i := range pix {
		pix[i] = types.Pixel{R: 90, G: 91, B: 92}
	}
	r := frameRegion(w, h, pix)
	n, err := Blur{Size: 1, Threshold: 1}.Apply(context.Background(), r, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("uniform frame took %d iterations", n)
	}
	if diff := cmp.Diff(pix, r.Pix); diff != "" {
		t.Fatalf("uniform frame changed (-want +got):\n%s", diff)
	}
}

type countingSyncer struct {
	calls  int
	stopAt int
}

func (s *countingSyncer) Sync(_ context.Context, _ *region.Region, iteration int, _ bool) (bool, error) {
	s.calls++
	return iteration >= s.stopAt, nil
}

func TestBlurFollowsGlobalDecision(t *testing.T) {
	pix := make([]types.Pixel, 20*110)
	r := region.New(0, 1, 20, 110, 3, 2)
	copy(r.Pix, pix)
	s := &countingSyncer{stopAt: 4}
	// A uniform region converges locally at once; only the syncer ends the loop.
	n, err := Blur{Size: 2, Threshold: 5}.Apply(context.Background(), &r, s)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || s.calls != 4 {
		t.Fatalf("got %d iterations and %d syncs, want 4 and 4", n, s.calls)
	}
}

func TestLookup(t *testing.T) {
	p, err := Lookup("composite", 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Gray || !p.Edge || p.Blur == nil || p.Blur.Size != 4 || p.Layout.HaloWidth() != 4 {
		t.Fatalf("unexpected composite pipeline %+v", p)
	}
	if p.HaloFor(1) != 0 || p.HaloFor(3) != 4 {
		t.Fatalf("composite halo: %d %d", p.HaloFor(1), p.HaloFor(3))
	}
	e, err := Lookup("edge", 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	if e.Iterative() || e.Layout.HaloWidth() != region.EdgeHalo {
		t.Fatalf("unexpected edge pipeline %+v", e)
	}
	if _, err := Lookup("emboss", 1, 1); err == nil {
		t.Fatal("expected error for unknown pipeline")
	}
}

func TestCompositeUnsplitMatchesStages(t *testing.T) {
	a := randomRegion(9, 32, 120)
	b := &region.Region{Width: a.Width, Height: a.Height, K: 1, Pix: append([]types.Pixel(nil), a.Pix...)}

	p := Composite(2, 3)
	if _, err := p.Run(context.Background(), a, nil); err != nil {
		t.Fatal(err)
	}

	Grayscale(b)
	if _, err := (Blur{Size: 2, Threshold: 3}).Apply(context.Background(), b, nil); err != nil {
		t.Fatal(err)
	}
	Sobel(b)
	if diff := cmp.Diff(b.Pix, a.Pix); diff != "" {
		t.Fatalf("pipeline differs from staged kernels (-staged +pipeline):\n%s", diff)
	}
}
