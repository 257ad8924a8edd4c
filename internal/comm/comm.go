// Package comm carries wire messages between ranks. A rank only ever
// blocks waiting for a specific peer on a specific channel.
package comm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/grailbio/base/errors"

	"sobelf-go/internal/wire"
)

// Comm is a rank's handle on the process group. Rank 0 is the coordinator.
type Comm interface {
	Rank() int
	Size() int
	// Send encodes m and queues it for rank to. The caller may reuse m
	// and its payload once Send returns.
	Send(ctx context.Context, to int, m *wire.Message) error
	// Recv blocks until a message from rank from is available on ch. The
	// returned message is freshly decoded and owned by the caller.
	Recv(ctx context.Context, from int, ch wire.Channel) (*wire.Message, error)
	Stats() Stats
	Close() error
}

// Recorder receives a copy of every encoded envelope a rank sends.
type Recorder interface {
	Record(payload []byte) error
}

// Stats counts traffic originated by one rank.
type Stats struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
	Bytes    int64 `json:"bytes"`
}

type Option func(*options)

type options struct {
	recorder Recorder
	logEvery int64
}

func newOptions(opts []Option) options {
	o := options{logEvery: 100}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithLogEvery logs one in n repeated transport errors.
func WithLogEvery(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.logEvery = int64(n)
		}
	}
}

// WithRecorder captures every sent envelope.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

type counters struct {
	sent, received, bytes atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{Sent: c.sent.Load(), Received: c.received.Load(), Bytes: c.bytes.Load()}
}

func checkPeer(rank, size, peer int) error {
	if peer < 0 || peer >= size {
		return errors.E(errors.Fatal, errors.Invalid, fmt.Sprintf("rank %d: peer %d out of range [0,%d)", rank, peer, size))
	}
	if peer == rank {
		return errors.E(errors.Fatal, errors.Invalid, fmt.Sprintf("rank %d: message to self", rank))
	}
	return nil
}

// encode stamps the sender, marshals m and hands the bytes to the recorder.
func encode(rank int, m *wire.Message, o *options, c *counters) ([]byte, error) {
	env := *m
	env.From = rank
	b, err := wire.Encode(&env)
	if err != nil {
		return nil, err
	}
	c.sent.Add(1)
	c.bytes.Add(int64(len(b)))
	if o.recorder != nil {
		if err := o.recorder.Record(b); err != nil {
			logEveryN(&recordErrors, o.logEvery, "rank %d: record log: %v", rank, err)
		}
	}
	return b, nil
}
