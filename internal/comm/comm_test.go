package comm

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/errors"

	"sobelf-go/internal/wire"
)

type memRecorder struct {
	mu      sync.Mutex
	records [][]byte
}

func (m *memRecorder) Record(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, append([]byte(nil), payload...))
	return nil
}

func TestLocalSendRecvOrder(t *testing.T) {
	ctx := context.Background()
	w := NewWorld(2)
	a, b := w.Comm(0), w.Comm(1)
	for i := 0; i < 5; i++ {
		if err := a.Send(ctx, 1, &wire.Message{Kind: wire.WorkBatch, Count: i}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		m, err := b.Recv(ctx, 0, wire.Control)
		if err != nil {
			t.Fatal(err)
		}
		if m.Count != i || m.From != 0 {
			t.Fatalf("message %d: got count %d from %d", i, m.Count, m.From)
		}
	}
	if s := a.Stats(); s.Sent != 5 || s.Bytes == 0 {
		t.Fatalf("sender stats %+v", s)
	}
	if s := b.Stats(); s.Received != 5 {
		t.Fatalf("receiver stats %+v", s)
	}
}

func TestLocalChannelsDoNotBlockEachOther(t *testing.T) {
	ctx := context.Background()
	w := NewWorld(3)
	c0, c2 := w.Comm(0), w.Comm(2)
	if err := c0.Send(ctx, 2, &wire.Message{Kind: wire.HaloPayload, Seq: 1, Payload: []byte{1}}); err != nil {
		t.Fatal(err)
	}
	if err := c0.Send(ctx, 2, &wire.Message{Kind: wire.ConvergenceVote, Seq: 1, Vote: true}); err != nil {
		t.Fatal(err)
	}
	// The vote is received before the halo strip that was sent first.
	v, err := c2.Recv(ctx, 0, wire.Votes)
	if err != nil || !v.Vote {
		t.Fatalf("vote: %v %v", v, err)
	}
	h, err := c2.Recv(ctx, 0, wire.Halo)
	if err != nil || h.Payload[0] != 1 {
		t.Fatalf("halo: %v %v", h, err)
	}

	// Nothing from rank 1.
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := c2.Recv(tctx, 1, wire.Halo); err != context.DeadlineExceeded {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestLocalSendOwnership(t *testing.T) {
	ctx := context.Background()
	w := NewWorld(2)
	payload := []byte{1, 2, 3}
	if err := w.Comm(0).Send(ctx, 1, &wire.Message{Kind: wire.RegionPayload, Payload: payload}); err != nil {
		t.Fatal(err)
	}
	payload[0] = 9
	m, err := w.Comm(1).Recv(ctx, 0, wire.Regions)
	if err != nil {
		t.Fatal(err)
	}
	if m.Payload[0] != 1 {
		t.Fatalf("receiver sees sender's later write")
	}
}

func TestSendRejectsBadPeer(t *testing.T) {
	ctx := context.Background()
	c := NewWorld(2).Comm(0)
	for _, to := range []int{0, -1, 2} {
		if err := c.Send(ctx, to, &wire.Message{Kind: wire.Terminate}); !errors.Is(errors.Invalid, err) {
			t.Errorf("send to %d: got %v", to, err)
		}
	}
}

func TestCloseUnblocksRecv(t *testing.T) {
	w := NewWorld(2)
	c := w.Comm(1)
	done := make(chan error, 1)
	go func() {
		_, err := c.Recv(context.Background(), 0, wire.Control)
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("receive on closed mailbox returned no error")
		}
	case <-time.After(time.Second):
		t.Fatal("receive still blocked after Close")
	}
}

func TestRequestsWaitAll(t *testing.T) {
	ctx := context.Background()
	w := NewWorld(2)
	err := w.Run(ctx, func(ctx context.Context, c Comm) error {
		peer := 1 - c.Rank()
		send := Isend(ctx, c, peer, &wire.Message{Kind: wire.HaloPayload, Seq: c.Rank(), Payload: []byte{byte(c.Rank())}})
		recv := Irecv(ctx, c, peer, wire.Halo)
		if err := WaitAll(send, recv); err != nil {
			return err
		}
		m, _ := recv.Wait()
		if m.Seq != peer || m.Payload[0] != byte(peer) {
			return fmt.Errorf("rank %d: got %v", c.Rank(), m)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWorldRunCancelsOnFailure(t *testing.T) {
	w := NewWorld(3)
	err := w.Run(context.Background(), func(ctx context.Context, c Comm) error {
		if c.Rank() == 2 {
			return fmt.Errorf("rank 2 failed")
		}
		_, err := c.Recv(ctx, 2, wire.Control)
		return err
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRecorderSeesEveryEnvelope(t *testing.T) {
	ctx := context.Background()
	rec := &memRecorder{}
	w := NewWorld(2, WithRecorder(rec))
	for i := 0; i < 3; i++ {
		if err := w.Comm(1).Send(ctx, 0, &wire.Message{Kind: wire.ConvergenceVote, Seq: i}); err != nil {
			t.Fatal(err)
		}
	}
	if len(rec.records) != 3 {
		t.Fatalf("recorded %d envelopes", len(rec.records))
	}
	m, err := wire.Decode(rec.records[2])
	if err != nil {
		t.Fatal(err)
	}
	if m.From != 1 || m.Seq != 2 {
		t.Fatalf("unexpected recorded envelope %v", m)
	}
}

func TestZMQPair(t *testing.T) {
	if testing.Short() {
		t.Skip("binds tcp ports")
	}
	endpoints := []string{"tcp://127.0.0.1:47311", "tcp://127.0.0.1:47312"}
	z0, err := Dial(0, endpoints)
	if err != nil {
		t.Fatal(err)
	}
	defer z0.Close()
	z1, err := Dial(1, endpoints)
	if err != nil {
		t.Fatal(err)
	}
	defer z1.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := z0.Send(ctx, 1, &wire.Message{Kind: wire.RegionPayload, Count: 1, Payload: []byte("pixels")}); err != nil {
		t.Fatal(err)
	}
	m, err := z1.Recv(ctx, 0, wire.Regions)
	if err != nil {
		t.Fatal(err)
	}
	if string(m.Payload) != "pixels" || m.From != 0 {
		t.Fatalf("unexpected message %v", m)
	}
	if err := z1.Send(ctx, 0, &wire.Message{Kind: wire.Terminate}); err != nil {
		t.Fatal(err)
	}
	if m, err := z0.Recv(ctx, 1, wire.Control); err != nil || m.Kind != wire.Terminate {
		t.Fatalf("got %v %v", m, err)
	}
}
