// Package halo keeps the ghost columns of a split frame current between
// blur iterations and decides, by unanimous vote, when the frame is done.
package halo

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"

	"sobelf-go/internal/comm"
	"sobelf-go/internal/region"
	"sobelf-go/internal/wire"
)

// Sync is the filter.Syncer of one column strip. Group[i] is the rank that
// holds region i of the frame.
type Sync struct {
	Comm  comm.Comm
	Group []int
}

// Sync exchanges halo columns with the neighbors of r, then votes.
func (s *Sync) Sync(ctx context.Context, r *region.Region, iteration int, converged bool) (bool, error) {
	if len(s.Group) != r.K {
		return false, errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("halo: frame %d has %d regions, group lists %d ranks", r.FrameID, r.K, len(s.Group)))
	}
	if err := s.Exchange(ctx, r, iteration); err != nil {
		return false, err
	}
	return s.Vote(ctx, r, iteration, converged)
}

// Exchange sends the innermost Halo columns on each internal edge of r to
// the neighbor across it and overwrites r's halo with what the neighbors
// sent. All sends are started before any receive is consumed.
func (s *Sync) Exchange(ctx context.Context, r *region.Region, iteration int) error {
	h := r.Halo
	if h <= 0 {
		return errors.E(errors.Fatal, errors.Invalid, fmt.Sprintf("halo: frame %d region %d has no halo", r.FrameID, r.ID))
	}
	hasLeft := r.ID > 0
	hasRight := r.ID < r.K-1

	var sends []*comm.Request
	if hasLeft {
		sends = append(sends, comm.Isend(ctx, s.Comm, s.Group[r.ID-1], s.strip(r, iteration, wire.Left, h)))
	}
	if hasRight {
		sends = append(sends, comm.Isend(ctx, s.Comm, s.Group[r.ID+1], s.strip(r, iteration, wire.Right, r.Width-2*h)))
	}

	var fromLeft, fromRight *comm.Request
	if hasLeft {
		fromLeft = comm.Irecv(ctx, s.Comm, s.Group[r.ID-1], wire.Halo)
	}
	if hasRight {
		fromRight = comm.Irecv(ctx, s.Comm, s.Group[r.ID+1], wire.Halo)
	}
	if err := comm.WaitAll(append(sends, fromLeft, fromRight)...); err != nil {
		return err
	}

	if hasLeft {
		m, _ := fromLeft.Wait()
		if err := s.apply(r, m, iteration, wire.Left); err != nil {
			return err
		}
	}
	if hasRight {
		m, _ := fromRight.Wait()
		if err := s.apply(r, m, iteration, wire.Right); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sync) strip(r *region.Region, iteration int, side wire.Side, x0 int) *wire.Message {
	return &wire.Message{
		Kind:    wire.HaloPayload,
		Frame:   r.FrameID,
		Seq:     iteration,
		Side:    side,
		Width:   r.Halo,
		Height:  r.Height,
		Payload: wire.PackColumns(r, x0, r.Halo),
	}
}

// apply stores a neighbor's strip in the halo on side at of r. The
// neighbor tags the strip with the side it was sent towards, so the tag
// must be the opposite of at.
func (s *Sync) apply(r *region.Region, m *wire.Message, iteration int, at wire.Side) error {
	if m.Kind != wire.HaloPayload || m.Frame != r.FrameID || m.Seq != iteration || m.Side.Opposite() != at {
		return errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("halo: frame %d region %d iteration %d: unexpected %s side %s frame %d seq %d from rank %d",
				r.FrameID, r.ID, iteration, m.Kind, m.Side, m.Frame, m.Seq, m.From))
	}
	if m.Width != r.Halo || m.Height != r.Height {
		return errors.E(errors.Fatal, errors.Invalid,
			fmt.Sprintf("halo: frame %d region %d: strip is %dx%d, want %dx%d", r.FrameID, r.ID, m.Width, m.Height, r.Halo, r.Height))
	}
	x0 := 0
	if at == wire.Right {
		x0 = r.Width - r.Halo
	}
	return wire.UnpackColumns(m.Payload, r, x0, r.Halo)
}

// Vote is the AND of converged over every region of the frame. Each member
// of the group sends its flag to every other member and reduces what it
// receives, so all members reach the same decision.
func (s *Sync) Vote(ctx context.Context, r *region.Region, iteration int, converged bool) (bool, error) {
	me := s.Comm.Rank()
	var reqs []*comm.Request
	for _, peer := range s.Group {
		if peer == me {
			continue
		}
		reqs = append(reqs, comm.Isend(ctx, s.Comm, peer, &wire.Message{
			Kind:  wire.ConvergenceVote,
			Frame: r.FrameID,
			Seq:   iteration,
			Vote:  converged,
		}))
	}
	var recvs []*comm.Request
	for _, peer := range s.Group {
		if peer == me {
			continue
		}
		recvs = append(recvs, comm.Irecv(ctx, s.Comm, peer, wire.Votes))
	}
	if err := comm.WaitAll(append(reqs, recvs...)...); err != nil {
		return false, err
	}

	all := converged
	for _, req := range recvs {
		m, _ := req.Wait()
		if m.Kind != wire.ConvergenceVote || m.Frame != r.FrameID || m.Seq != iteration {
			return false, errors.E(errors.Fatal, errors.Invalid,
				fmt.Sprintf("halo: frame %d iteration %d: unexpected %s frame %d seq %d from rank %d",
					r.FrameID, iteration, m.Kind, m.Frame, m.Seq, m.From))
		}
		all = all && m.Vote
	}
	if !all {
		log.Debug.Printf("halo: frame %d iteration %d: not converged", r.FrameID, iteration)
	}
	return all, nil
}
