package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{FlowID: 7, FlowSize: 1500, FlowTOS: DSCPToToS(46), FlowRate: 100}

	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("expected %d bytes on the wire, got %d", HeaderSize, buf.Len())
	}

	var got Header
	if err := got.Read(&buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderLittleEndianLayout(t *testing.T) {
	h := Header{FlowID: 1, FlowSize: 0x01020304, FlowTOS: 0, FlowRate: 0}
	var buf bytes.Buffer
	if err := h.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	b := buf.Bytes()
	// flow_size occupies bytes [4:8]; little-endian means the low byte
	// comes first.
	if b[4] != 0x04 || b[5] != 0x03 || b[6] != 0x02 || b[7] != 0x01 {
		t.Fatalf("expected little-endian byte order, got % x", b[4:8])
	}
}

func TestHeaderReadShort(t *testing.T) {
	var h Header
	err := h.Read(bytes.NewReader([]byte{1, 2, 3}))
	if err == nil {
		t.Fatal("expected error on short read")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		t.Fatalf("expected an EOF-flavored error, got %v", err)
	}
}

func TestIsTerminator(t *testing.T) {
	if !(Header{FlowID: Terminator}).IsTerminator() {
		t.Error("flow id 0 must be a terminator")
	}
	if (Header{FlowID: 1}).IsTerminator() {
		t.Error("flow id 1 must not be a terminator")
	}
}

func TestDSCPToToS(t *testing.T) {
	cases := map[int]uint32{0: 0, 1: 4, 46: 184, 63: 252}
	for dscp, want := range cases {
		if got := DSCPToToS(dscp); got != want {
			t.Errorf("DSCPToToS(%d) = %d, want %d", dscp, got, want)
		}
	}
}
