package comm

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/pebbe/zmq4"

	"sobelf-go/internal/wire"
)

const (
	recvPoll = 200 * time.Millisecond
	linger   = 2 * time.Second
)

// ZMQ connects ranks that live in separate processes. Every rank binds a
// PULL socket on its own endpoint and pushes to each peer's endpoint.
type ZMQ struct {
	rank      int
	endpoints []string
	opts      options

	zctx *zmq4.Context
	pull *zmq4.Socket

	pushMu []sync.Mutex
	push   []*zmq4.Socket

	box  *mailbox
	stop chan struct{}
	wg   sync.WaitGroup
	counters
}

// Dial binds endpoints[rank] and connects to every other endpoint.
func Dial(rank int, endpoints []string, opts ...Option) (*ZMQ, error) {
	if rank < 0 || rank >= len(endpoints) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("rank %d out of range for %d endpoints", rank, len(endpoints)))
	}
	zctx, err := zmq4.NewContext()
	if err != nil {
		return nil, errors.E(errors.Net, "zmq context", err)
	}
	z := &ZMQ{
		rank:      rank,
		endpoints: endpoints,
		zctx:      zctx,
		pushMu:    make([]sync.Mutex, len(endpoints)),
		push:      make([]*zmq4.Socket, len(endpoints)),
		box:       newMailbox(rank, len(endpoints)),
		stop:      make(chan struct{}),
		opts:      newOptions(opts),
	}
	if err := z.open(); err != nil {
		z.closeSockets()
		return nil, err
	}

	z.wg.Add(1)
	go z.receive()
	log.Printf("rank %d: listening on %s, %d peers", rank, endpoints[rank], len(endpoints)-1)
	return z, nil
}

func (z *ZMQ) open() error {
	pull, err := z.zctx.NewSocket(zmq4.PULL)
	if err != nil {
		return errors.E(errors.Net, "zmq pull socket", err)
	}
	z.pull = pull
	if err := pull.SetRcvtimeo(recvPoll); err != nil {
		return errors.E(errors.Net, "zmq set receive timeout", err)
	}
	if err := pull.Bind(z.endpoints[z.rank]); err != nil {
		return errors.E(errors.Net, fmt.Sprintf("bind %s", z.endpoints[z.rank]), err)
	}
	for peer, endpoint := range z.endpoints {
		if peer == z.rank {
			continue
		}
		s, err := z.zctx.NewSocket(zmq4.PUSH)
		if err != nil {
			return errors.E(errors.Net, "zmq push socket", err)
		}
		z.push[peer] = s
		if err := s.SetLinger(linger); err != nil {
			return errors.E(errors.Net, "zmq set linger", err)
		}
		if err := s.Connect(endpoint); err != nil {
			return errors.E(errors.Net, fmt.Sprintf("connect %s", endpoint), err)
		}
	}
	return nil
}

// receive owns the PULL socket and feeds the mailbox until Close.
func (z *ZMQ) receive() {
	defer z.wg.Done()
	for {
		select {
		case <-z.stop:
			return
		default:
		}
		b, err := z.pull.RecvBytes(0)
		if err != nil {
			if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
				continue
			}
			logEveryN(&recvErrors, z.opts.logEvery, "rank %d: zmq receive: %v", z.rank, err)
			continue
		}
		m, err := wire.Decode(b)
		if err != nil {
			// A corrupt envelope cannot be attributed to a queue; fail
			// every pending receive.
			log.Error.Printf("rank %d: %v", z.rank, err)
			z.box.close(err)
			return
		}
		z.box.deliver(m)
	}
}

func (z *ZMQ) Rank() int { return z.rank }

func (z *ZMQ) Size() int { return len(z.endpoints) }

func (z *ZMQ) Send(ctx context.Context, to int, m *wire.Message) error {
	if err := checkPeer(z.rank, z.Size(), to); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := encode(z.rank, m, &z.opts, &z.counters)
	if err != nil {
		return err
	}
	z.pushMu[to].Lock()
	defer z.pushMu[to].Unlock()
	if _, err := z.push[to].SendBytes(b, 0); err != nil {
		return errors.E(errors.Fatal, errors.Net, fmt.Sprintf("rank %d: send %s to %d", z.rank, m.Kind, to), err)
	}
	return nil
}

func (z *ZMQ) Recv(ctx context.Context, from int, ch wire.Channel) (*wire.Message, error) {
	return z.box.recv(ctx, from, ch, &z.counters)
}

func (z *ZMQ) Stats() Stats { return z.stats() }

// Close stops the receiver, closes every socket and terminates the zmq
// context. Queued outgoing messages are flushed for up to the linger period.
func (z *ZMQ) Close() error {
	select {
	case <-z.stop:
		return nil
	default:
	}
	close(z.stop)
	z.wg.Wait()
	z.box.close(nil)
	return z.closeSockets()
}

func (z *ZMQ) closeSockets() error {
	if z.pull != nil {
		_ = z.pull.Close()
	}
	for peer, s := range z.push {
		if s == nil {
			continue
		}
		z.pushMu[peer].Lock()
		_ = s.Close()
		z.pushMu[peer].Unlock()
	}
	return z.zctx.Term()
}
