package hci

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ocfSetACLPriority is the vendor OCF carrying a per-link scheduling hint
// to the controller.
const ocfSetACLPriority = 0x11A

type CustomCommand struct {
	Payload interface{}
	opCode  int
	length  int
}

func (c *CustomCommand) OpCode() int {
	return c.opCode
}

func (c *CustomCommand) Len() int {
	return c.length
}

func (c *CustomCommand) Marshal(b []byte) error {
	buf := bytes.NewBuffer(b)
	buf.Reset()
	if buf.Cap() < c.Len() {
		return io.ErrShortBuffer
	}

	return binary.Write(buf, binary.LittleEndian, c.Payload)
}

func (c *CustomCommand) String() string {
	ogf := (c.opCode & 0xFC00) >> 10
	ocf := c.opCode & 0x3FF

	return fmt.Sprintf("Custom Command (0x%02x|0x%04x); Payload (%02x)", ogf, ocf, c.Payload)
}

// VendorOpcode builds a full opcode in the vendor-specific OGF.
func VendorOpcode(ocf uint16) int {
	return (ogfVendorSpecificDebug << ogfBitShift) | int(ocf)
}

// RequestLinkPriority asks the controller to prefer (or stop preferring)
// a handle's traffic when scheduling over the air. The command is fire
// and forget; cb receives the eventual command status.
func (c *DataChannel) RequestLinkPriority(handle uint16, hint Priority, cb func(error)) {
	params := struct {
		ConnectionHandle uint16
		Priority         uint8
	}{handle, uint8(hint)}

	c.cmder.SendCommandAsync(VendorOpcode(ocfSetACLPriority), 3, params, func(b []byte, err error) {
		if cb == nil {
			return
		}
		if err == nil && len(b) > 0 && b[0] != 0x00 {
			err = errors.Errorf("set acl priority failed with status 0x%02X", b[0])
		}
		cb(err)
	})
}
