package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/grailbio/base/errors"
	"github.com/spaolacci/murmur3"
)

// Kind is the closed set of messages exchanged between ranks.
type Kind uint8

const (
	KindInvalid Kind = iota
	WorkSplit
	WorkBatch
	Terminate
	RegionPayload
	HaloPayload
	ConvergenceVote
)

var kindNames = [...]string{
	KindInvalid:     "INVALID",
	WorkSplit:       "WORK_SPLIT",
	WorkBatch:       "WORK_BATCH",
	Terminate:       "TERMINATE",
	RegionPayload:   "REGION_PAYLOAD",
	HaloPayload:     "HALO_PAYLOAD",
	ConvergenceVote: "CONVERGENCE_VOTE",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// Valid reports whether k is a member of the enumeration.
func (k Kind) Valid() bool {
	return k > KindInvalid && k <= ConvergenceVote
}

// Channel is a receive queue. A receiver always names the peer and channel
// it waits on, so messages of different channels never reorder each other.
type Channel uint8

const (
	Control Channel = iota
	Regions
	Halo
	Votes
	NumChannels
)

func (c Channel) String() string {
	switch c {
	case Control:
		return "control"
	case Regions:
		return "regions"
	case Halo:
		return "halo"
	case Votes:
		return "votes"
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

// Channel returns the queue messages of kind k are delivered to. Anything
// outside the enumeration lands on Control, where a worker rejects it.
func (k Kind) Channel() Channel {
	switch k {
	case RegionPayload:
		return Regions
	case HaloPayload:
		return Halo
	case ConvergenceVote:
		return Votes
	default:
		return Control
	}
}

// Side tags a halo strip with the boundary it crosses, from the sender's
// point of view.
type Side uint8

const (
	NoSide Side = iota
	Left
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "none"
}

// Opposite is the side the receiver stores the strip on.
func (s Side) Opposite() Side {
	switch s {
	case Left:
		return Right
	case Right:
		return Left
	}
	return NoSide
}

// Message is the envelope of every transfer.
type Message struct {
	Kind    Kind   `cbor:"kind"`
	From    int    `cbor:"from"`
	Frame   int    `cbor:"frame,omitempty"`
	Seq     int    `cbor:"seq,omitempty"`
	Count   int    `cbor:"count,omitempty"`
	Side    Side   `cbor:"side,omitempty"`
	Vote    bool   `cbor:"vote,omitempty"`
	Width   int    `cbor:"width,omitempty"`
	Height  int    `cbor:"height,omitempty"`
	Payload []byte `cbor:"payload,omitempty"`
	Sum     uint32 `cbor:"sum,omitempty"`
}

func (m *Message) String() string {
	return fmt.Sprintf("%s from %d frame %d seq %d count %d (%d bytes)", m.Kind, m.From, m.Frame, m.Seq, m.Count, len(m.Payload))
}

// Encode marshals m with a checksum of its payload.
func Encode(m *Message) ([]byte, error) {
	env := *m
	env.Sum = 0
	if len(env.Payload) > 0 {
		env.Sum = murmur3.Sum32(env.Payload)
	}
	b, err := cbor.Marshal(&env)
	if err != nil {
		return nil, errors.E(errors.Fatal, errors.Invalid, fmt.Sprintf("encode %s", m.Kind), err)
	}
	return b, nil
}

// Decode unmarshals an envelope and verifies its payload checksum. The
// returned message owns its payload.
func Decode(b []byte) (*Message, error) {
	m := new(Message)
	if err := cbor.Unmarshal(b, m); err != nil {
		return nil, errors.E(errors.Fatal, errors.Invalid, "decode message", err)
	}
	if len(m.Payload) > 0 {
		if sum := murmur3.Sum32(m.Payload); sum != m.Sum {
			return nil, errors.E(errors.Fatal, errors.Integrity,
				fmt.Sprintf("%s from %d: payload checksum %08x, envelope says %08x", m.Kind, m.From, sum, m.Sum))
		}
	}
	return m, nil
}
