// Package cmd holds the HCI commands the host issues during bring-up and
// teardown, marshalled little-endian per [Vol 2, Part E, 5.4.1].
package cmd

import (
	"bytes"
	"encoding/binary"
	"io"
)

func marshal(v interface{}, b []byte) error {
	buf := bytes.NewBuffer(b)
	buf.Reset()
	if buf.Cap() < binary.Size(v) {
		return io.ErrShortBuffer
	}
	return binary.Write(buf, binary.LittleEndian, v)
}

func unmarshal(v interface{}, b []byte) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}

// Reset (0x03|0x0003)
type Reset struct{}

func (c *Reset) OpCode() int { return 0x0C03 }
func (c *Reset) Len() int { return 0 }
func (c *Reset) Marshal(b []byte) error { return marshal(c, b) }

// ResetRP ...
type ResetRP struct {
	Status uint8
}

func (r *ResetRP) Unmarshal(b []byte) error { return unmarshal(r, b) }

// SetEventMask (0x03|0x0001)
type SetEventMask struct {
	EventMask uint64
}

func (c *SetEventMask) OpCode() int { return 0x0C01 }
func (c *SetEventMask) Len() int { return 8 }
func (c *SetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// SetEventMaskRP ...
type SetEventMaskRP struct {
	Status uint8
}

func (r *SetEventMaskRP) Unmarshal(b []byte) error { return unmarshal(r, b) }

// ReadBufferSize (0x04|0x0005)
type ReadBufferSize struct{}

func (c *ReadBufferSize) OpCode() int { return 0x1005 }
func (c *ReadBufferSize) Len() int { return 0 }
func (c *ReadBufferSize) Marshal(b []byte) error { return marshal(c, b) }

// ReadBufferSizeRP ...
type ReadBufferSizeRP struct {
	Status                           uint8
	HCACLDataPacketLength            uint16
	HCSynchronousDataPacketLength    uint8
	HCTotalNumACLDataPackets         uint16
	HCTotalNumSynchronousDataPackets uint16
}

func (r *ReadBufferSizeRP) Unmarshal(b []byte) error { return unmarshal(r, b) }

// LEReadBufferSize (0x08|0x0002)
type LEReadBufferSize struct{}

func (c *LEReadBufferSize) OpCode() int { return 0x2002 }
func (c *LEReadBufferSize) Len() int { return 0 }
func (c *LEReadBufferSize) Marshal(b []byte) error { return marshal(c, b) }

// LEReadBufferSizeRP ...
type LEReadBufferSizeRP struct {
	Status                  uint8
	HCLEDataPacketLength    uint16
	HCTotalNumLEDataPackets uint8
}

func (r *LEReadBufferSizeRP) Unmarshal(b []byte) error { return unmarshal(r, b) }

// LESetEventMask (0x08|0x0001)
type LESetEventMask struct {
	LEEventMask uint64
}

func (c *LESetEventMask) OpCode() int { return 0x2001 }
func (c *LESetEventMask) Len() int { return 8 }
func (c *LESetEventMask) Marshal(b []byte) error { return marshal(c, b) }

// LESetEventMaskRP ...
type LESetEventMaskRP struct {
	Status uint8
}

func (r *LESetEventMaskRP) Unmarshal(b []byte) error { return unmarshal(r, b) }

// Disconnect (0x01|0x0006)
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c *Disconnect) OpCode() int { return 0x0406 }
func (c *Disconnect) Len() int { return 3 }
func (c *Disconnect) Marshal(b []byte) error { return marshal(c, b) }
