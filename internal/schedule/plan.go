// Package schedule distributes frames over ranks. Rank 0 coordinates and
// also counts as a worker slot.
package schedule

import (
	"fmt"

	"sobelf-go/internal/region"
)

// Strategy is how a frame is processed.
type Strategy int

const (
	// SplitPath cuts a frame into one region per slot, kept in step by
	// the halo exchange.
	SplitPath Strategy = iota
	// BatchPath hands a whole frame to one slot.
	BatchPath
	// LocalPath filters a split-path frame whole on rank 0 because its
	// partitions are too narrow for the halo.
	LocalPath
)

func (s Strategy) String() string {
	switch s {
	case SplitPath:
		return "split"
	case BatchPath:
		return "batch"
	case LocalPath:
		return "local"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// Plan is the per-frame decision for N frames on W slots.
type Plan struct {
	Slots int
	// Split lists the frames that take the split path, in order.
	Split []int
	// Batch[w] lists the whole frames assigned to slot w.
	Batch [][]int
}

// NewPlan splits every frame when there are fewer frames than slots.
// Otherwise the first n mod w frames are split so that the rest divide
// evenly, and those are dealt round robin.
func NewPlan(n, w int) Plan {
	if w < 1 {
		panic(fmt.Sprintf("schedule: %d slots", w))
	}
	p := Plan{Slots: w, Batch: make([][]int, w)}
	if n < w {
		for i := 0; i < n; i++ {
			p.Split = append(p.Split, i)
		}
		return p
	}
	rem := n % w
	for i := 0; i < rem; i++ {
		p.Split = append(p.Split, i)
	}
	for j, i := 0, rem; i < n; i, j = i+1, j+1 {
		slot := j % w
		p.Batch[slot] = append(p.Batch[slot], i)
	}
	return p
}

// Strategy reports the path of frame i.
func (p Plan) Strategy(i int) Strategy {
	for _, s := range p.Split {
		if s == i {
			return SplitPath
		}
	}
	return BatchPath
}

// NumBatch is the number of frames on the batch path.
func (p Plan) NumBatch() int {
	n := 0
	for _, b := range p.Batch {
		n += len(b)
	}
	return n
}

// Assignment maps a rank to the regions it must process in one dispatch.
type Assignment map[int][]region.Region

// SplitAssignment gives region i of a split frame to rank i.
func SplitAssignment(regions []region.Region) Assignment {
	a := make(Assignment, len(regions))
	for i := range regions {
		a[i] = regions[i : i+1 : i+1]
	}
	return a
}

// Count is the number of regions assigned to rank.
func (a Assignment) Count(rank int) int {
	return len(a[rank])
}
