package filter

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forRows runs fn over [lo, hi) split into contiguous row chunks, one
// goroutine per chunk, and returns the AND of the chunk results. Each chunk
// must write only its own rows of a buffer that no chunk reads.
func forRows(lo, hi int, fn func(y0, y1 int) bool) bool {
	n := hi - lo
	if n <= 0 {
		return true
	}
	chunks := runtime.GOMAXPROCS(0)
	if chunks > n {
		chunks = n
	}
	if chunks <= 1 {
		return fn(lo, hi)
	}

	step := (n + chunks - 1) / chunks
	results := make([]bool, chunks)
	var g errgroup.Group
	for c := 0; c < chunks; c++ {
		c := c
		y0 := lo + c*step
		y1 := y0 + step
		if y1 > hi {
			y1 = hi
		}
		if y0 >= y1 {
			results[c] = true
			continue
		}
		g.Go(func() error {
			results[c] = fn(y0, y1)
			return nil
		})
	}
	_ = g.Wait()

	ok := true
	for _, r := range results {
		ok = ok && r
	}
	return ok
}
