package schedule

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics are process-wide counters, safe for concurrent use.
type Metrics struct {
	framesSplit      atomic.Uint64
	framesBatch      atomic.Uint64
	framesLocal      atomic.Uint64
	framesSkipped    atomic.Uint64
	regionsProcessed atomic.Uint64
	iterations       atomic.Uint64
	filterCount      atomic.Uint64
	filterNanos      atomic.Uint64
	loadNanos        atomic.Uint64
	storeNanos       atomic.Uint64
}

func (m *Metrics) observeFilter(d time.Duration, iterations int) {
	if m == nil {
		return
	}
	m.regionsProcessed.Add(1)
	m.iterations.Add(uint64(iterations))
	m.filterCount.Add(1)
	m.filterNanos.Add(uint64(d.Nanoseconds()))
}

func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"frames_split_total":      m.framesSplit.Load(),
		"frames_batch_total":      m.framesBatch.Load(),
		"frames_local_total":      m.framesLocal.Load(),
		"frames_skipped_total":    m.framesSkipped.Load(),
		"regions_processed_total": m.regionsProcessed.Load(),
		"blur_iterations_total":   m.iterations.Load(),
		"filter_total":            m.filterCount.Load(),
		"filter_nanos_total":      m.filterNanos.Load(),
		"load_nanos_total":        m.loadNanos.Load(),
		"store_nanos_total":       m.storeNanos.Load(),
	}
}

// FrameStat is the outcome of one frame.
type FrameStat struct {
	Frame      int           `json:"frame"`
	Strategy   string        `json:"strategy"`
	Regions    int           `json:"regions"`
	Iterations int           `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Progress accumulates frame outcomes of a run for status reporting.
type Progress struct {
	mu     sync.Mutex
	total  int
	done   int
	frames []FrameStat
	seen   []bool
}

func NewProgress(total int) *Progress {
	return &Progress{
		total:  total,
		frames: make([]FrameStat, total),
		seen:   make([]bool, total),
	}
}

// AddFrame records s and reports whether every frame is now accounted for.
// Out of range and repeated frames are ignored.
func (p *Progress) AddFrame(s FrameStat) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.Frame < 0 || s.Frame >= p.total || p.seen[s.Frame] {
		return p.done >= p.total
	}
	p.frames[s.Frame] = s
	p.seen[s.Frame] = true
	p.done++
	return p.done >= p.total
}

// Reset starts a new run of total frames.
func (p *Progress) Reset(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.done = 0
	p.frames = make([]FrameStat, total)
	p.seen = make([]bool, total)
}

// Counts returns the number of finished frames and the run size.
func (p *Progress) Counts() (done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done, p.total
}

// SnapshotCopy returns the finished frames in frame order.
func (p *Progress) SnapshotCopy() []FrameStat {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FrameStat, 0, p.done)
	for i, ok := range p.seen {
		if ok {
			out = append(out, p.frames[i])
		}
	}
	return out
}
