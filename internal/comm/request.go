package comm

import (
	"context"

	"sobelf-go/internal/wire"
)

// Request is an outstanding non-blocking send or receive.
type Request struct {
	done chan struct{}
	msg  *wire.Message
	err  error
}

// Isend starts a send of m to rank to.
func Isend(ctx context.Context, c Comm, to int, m *wire.Message) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.err = c.Send(ctx, to, m)
	}()
	return r
}

// Irecv starts a receive from rank from on ch.
func Irecv(ctx context.Context, c Comm, from int, ch wire.Channel) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		defer close(r.done)
		r.msg, r.err = c.Recv(ctx, from, ch)
	}()
	return r
}

// Wait blocks until r completes. For a receive it returns the message.
func (r *Request) Wait() (*wire.Message, error) {
	<-r.done
	return r.msg, r.err
}

// WaitAll blocks until every request completes and returns the first error.
func WaitAll(reqs ...*Request) error {
	var first error
	for _, r := range reqs {
		if r == nil {
			continue
		}
		if _, err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
