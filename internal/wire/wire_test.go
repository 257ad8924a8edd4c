package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"

	"sobelf-go/internal/region"
)

func randomRegions(seed int64, n int) []region.Region {
	fz := fuzz.NewWithSeed(seed)
	out := make([]region.Region, n)
	for i := range out {
		var w, h uint8
		fz.Fuzz(&w)
		fz.Fuzz(&h)
		r := region.New(i/2, i%2, 1+int(w)%13, int(h)%7, 2, 0)
		for j := range r.Pix {
			fz.Fuzz(&r.Pix[j])
		}
		out[i] = r
	}
	return out
}

func TestPackUnpack(t *testing.T) {
	regions := randomRegions(42, 6)
	buf := Pack(regions)
	if got, want := len(buf), PackedSize(regions); got != want {
		t.Fatalf("packed %d bytes, PackedSize says %d", got, want)
	}
	sum := 0
	for i := range regions {
		sum += HeaderSize + regions[i].Width*regions[i].Height*3
	}
	if sum != len(buf) {
		t.Fatalf("packed %d bytes, records sum to %d", len(buf), sum)
	}

	got, err := Unpack(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(regions, got); diff != "" {
		t.Fatalf("unpack mismatch (-want +got):\n%s", diff)
	}

	// Unpacked regions own their storage.
	buf[HeaderSize] ^= 0xff
	if got[0].Width*got[0].Height > 0 && got[0].Pix[0] != regions[0].Pix[0] {
		t.Fatalf("unpacked region aliases the packed buffer")
	}
}

func TestUnpackAppliesHalo(t *testing.T) {
	split := region.New(0, 1, 4, 2, 3, 0)
	whole := region.New(1, 0, 4, 2, 1, 0)
	got, err := Unpack(Pack([]region.Region{split, whole}), 5)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Halo != 5 || got[1].Halo != 0 {
		t.Fatalf("halo %d,%d want 5,0", got[0].Halo, got[1].Halo)
	}
}

func TestUnpackTruncated(t *testing.T) {
	buf := Pack(randomRegions(1, 2))
	for _, n := range []int{1, HeaderSize - 1, HeaderSize + 1, len(buf) - 1} {
		if _, err := Unpack(buf[:n], 0); !errors.Is(errors.Invalid, err) {
			t.Errorf("unpack of %d/%d bytes: got %v, want invalid", n, len(buf), err)
		}
	}
	if got, err := Unpack(nil, 0); err != nil || len(got) != 0 {
		t.Fatalf("empty buffer: %v %v", got, err)
	}
}

func TestUnpackHugeDimensions(t *testing.T) {
	tests := []struct{ width, height int32 }{
		{math.MaxInt32, math.MaxInt32},
		{math.MaxInt32, 2},
		{1 << 16, 1 << 16},
		{3, 1},
	}
	for _, tt := range tests {
		buf := make([]byte, HeaderSize+8)
		le := binary.LittleEndian
		le.PutUint32(buf[8:], uint32(tt.width))
		le.PutUint32(buf[12:], uint32(tt.height))
		le.PutUint32(buf[16:], 1)
		if _, err := Unpack(buf, 0); !errors.Is(errors.Invalid, err) {
			t.Errorf("unpack %dx%d: got %v, want invalid", tt.width, tt.height, err)
		}
		if _, err := Headers(buf); !errors.Is(errors.Invalid, err) {
			t.Errorf("headers %dx%d: got %v, want invalid", tt.width, tt.height, err)
		}
	}
}

func TestHeaders(t *testing.T) {
	regions := randomRegions(3, 4)
	hs, err := Headers(Pack(regions))
	if err != nil {
		t.Fatal(err)
	}
	if len(hs) != len(regions) {
		t.Fatalf("got %d headers", len(hs))
	}
	for i, h := range hs {
		r := regions[i]
		want := Header{FrameID: r.FrameID, ID: r.ID, Width: r.Width, Height: r.Height, K: r.K}
		if h != want {
			t.Fatalf("header %d: got %+v, want %+v", i, h, want)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	msg := &Message{
		Kind:    RegionPayload,
		From:    3,
		Count:   2,
		Payload: Pack(randomRegions(9, 2)),
	}
	b, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != msg.Kind || got.From != 3 || got.Count != 2 {
		t.Fatalf("unexpected envelope %v", got)
	}
	if diff := cmp.Diff(msg.Payload, got.Payload); diff != "" {
		t.Fatalf("payload mismatch:\n%s", diff)
	}
	if msg.Sum != 0 {
		t.Fatalf("Encode modified its argument")
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6}
	b, err := Encode(&Message{Kind: HaloPayload, From: 1, Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	// The payload bytes are stored verbatim; corrupt one of them.
	i := bytes.Index(b, payload)
	if i < 0 {
		t.Fatal("payload not found in envelope")
	}
	b[i+len(payload)-1] = 7
	if _, err := Decode(b); !errors.Is(errors.Integrity, err) {
		t.Fatalf("got %v, want integrity error", err)
	}
}

func TestKindChannel(t *testing.T) {
	tests := []struct {
		kind Kind
		ch   Channel
	}{
		{WorkSplit, Control},
		{WorkBatch, Control},
		{Terminate, Control},
		{RegionPayload, Regions},
		{HaloPayload, Halo},
		{ConvergenceVote, Votes},
		{Kind(99), Control},
	}
	for _, tt := range tests {
		if got := tt.kind.Channel(); got != tt.ch {
			t.Errorf("%s: channel %s, want %s", tt.kind, got, tt.ch)
		}
	}
	if Kind(99).Valid() || KindInvalid.Valid() || !Terminate.Valid() {
		t.Fatal("Valid mismatch")
	}
}

func TestColumnsStrip(t *testing.T) {
	src := region.New(0, 0, 6, 4, 2, 0)
	for i := range src.Pix {
		src.Pix[i].R = uint8(i)
	}
	dst := region.New(0, 1, src.Width, src.Height, 2, 0)
	strip := PackColumns(&src, 1, 2)
	if err := UnpackColumns(strip, &dst, 0, 2); err != nil {
		t.Fatal(err)
	}
	for y := 0; y < src.Height; y++ {
		for x := 0; x < 2; x++ {
			if dst.Pix[y*dst.Width+x] != src.Pix[y*src.Width+x+1] {
				t.Fatalf("pixel (%d,%d) not copied", x, y)
			}
		}
	}
	if err := UnpackColumns(strip[:len(strip)-1], &dst, 0, 2); err == nil {
		t.Fatal("expected error for short strip")
	}
}
