// Package wire implements the 16-byte flow descriptor exchanged between
// incastgen and the peer server on every leased connection.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderSize is the fixed on-wire size of a Header: four little-endian u32s.
const HeaderSize = 16

// Terminator is the reserved flow id meaning "close this connection after
// responding."
const Terminator uint32 = 0

// Header is the flow descriptor sent client->server and echoed back as the
// first 16 bytes of the server's response.
type Header struct {
	FlowID   uint32
	FlowSize uint32
	FlowTOS  uint32
	FlowRate uint32
}

// Read decodes a Header from exactly 16 bytes read off r. A short read or
// I/O error is returned unwrapped so callers can distinguish it from a
// successful decode.
func (h *Header) Read(r io.Reader) error {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	h.FlowID = binary.LittleEndian.Uint32(buf[0:4])
	h.FlowSize = binary.LittleEndian.Uint32(buf[4:8])
	h.FlowTOS = binary.LittleEndian.Uint32(buf[8:12])
	h.FlowRate = binary.LittleEndian.Uint32(buf[12:16])
	return nil
}

// Write encodes the Header as exactly 16 little-endian bytes and writes
// them to w in a single call.
func (h Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.FlowID)
	binary.LittleEndian.PutUint32(buf[4:8], h.FlowSize)
	binary.LittleEndian.PutUint32(buf[8:12], h.FlowTOS)
	binary.LittleEndian.PutUint32(buf[12:16], h.FlowRate)
	n, err := w.Write(buf[:])
	if err != nil {
		return err
	}
	if n != HeaderSize {
		return fmt.Errorf("wire: short header write: wrote %d of %d bytes", n, HeaderSize)
	}
	return nil
}

// IsTerminator reports whether h signals connection teardown.
func (h Header) IsTerminator() bool {
	return h.FlowID == Terminator
}

// DSCPToToS maps a 6-bit DSCP value into the IP ToS byte by shifting it
// left by 2 bits, per the differentiated-services encoding.
func DSCPToToS(dscp int) uint32 {
	return uint32(dscp) << 2
}
