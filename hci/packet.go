package hci

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Packet is an HCI ACL Data Packet as read off the transport, with the
// 1-byte HCI packet type already stripped [Vol 2, Part E, 5.4.2].
// Packet boundary flags: bit[5:6] of the handle field's MSB.
// Broadcast flags: bit[7:8] of the handle field's MSB.
type Packet []byte

func (p Packet) Handle() uint16 { return uint16(p[0]) | (uint16(p[1]&0x0f) << 8) }
func (p Packet) PBF() int       { return (int(p[1]) >> 4) & 0x3 }
func (p Packet) BCF() int       { return (int(p[1]) >> 6) & 0x3 }
func (p Packet) DataLen() int   { return int(p[2]) | (int(p[3]) << 8) }
func (p Packet) Data() []byte   { return p[aclHeaderSize:] }

// validate checks the fixed header against the bytes actually read.
func (p Packet) validate() error {
	if len(p) < aclHeaderSize {
		return errors.Errorf("acl packet too short: %d bytes", len(p))
	}
	if p.DataLen() != len(p.Data()) {
		return errors.Errorf("acl length field %d != payload %d", p.DataLen(), len(p.Data()))
	}
	return nil
}

// buildACLPacket writes a complete outbound wire packet into buf:
// HCI packet type, ACL header (handle|flags, length), payload.
func buildACLPacket(buf *bytes.Buffer, handle uint16, flags uint16, payload []byte) error {
	if err := binary.Write(buf, binary.LittleEndian, pktTypeACLData); err != nil {
		return errors.Wrap(err, "buildACLPacket")
	}
	if err := binary.Write(buf, binary.LittleEndian, handle|(flags<<8)); err != nil {
		return errors.Wrap(err, "buildACLPacket")
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(payload))); err != nil {
		return errors.Wrap(err, "buildACLPacket")
	}
	if err := binary.Write(buf, binary.LittleEndian, payload); err != nil {
		return errors.Wrap(err, "buildACLPacket")
	}
	return nil
}
