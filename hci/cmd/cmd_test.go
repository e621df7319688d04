package cmd

import (
	"bytes"
	"testing"
)

type command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

func TestMarshalCommands(t *testing.T) {
	for _, tt := range []struct {
		name   string
		c      command
		opcode int
		want   []byte
	}{
		{"reset", &Reset{}, 0x0C03, []byte{}},
		{"set event mask", &SetEventMask{EventMask: 0x3dbff807fffbffff}, 0x0C01,
			[]byte{0xff, 0xff, 0xfb, 0xff, 0x07, 0xf8, 0xbf, 0x3d}},
		{"read buffer size", &ReadBufferSize{}, 0x1005, []byte{}},
		{"le read buffer size", &LEReadBufferSize{}, 0x2002, []byte{}},
		{"le set event mask", &LESetEventMask{LEEventMask: 0x1f}, 0x2001,
			[]byte{0x1f, 0, 0, 0, 0, 0, 0, 0}},
		{"disconnect", &Disconnect{ConnectionHandle: 0x0040, Reason: 0x13}, 0x0406,
			[]byte{0x40, 0x00, 0x13}},
	} {
		if tt.c.OpCode() != tt.opcode {
			t.Errorf("%s: opcode %04X, want %04X", tt.name, tt.c.OpCode(), tt.opcode)
		}
		if tt.c.Len() != len(tt.want) {
			t.Errorf("%s: len %d, want %d", tt.name, tt.c.Len(), len(tt.want))
		}
		b := make([]byte, 0, 64)
		if err := tt.c.Marshal(b); err != nil {
			t.Errorf("%s: marshal: %v", tt.name, err)
			continue
		}
		if !bytes.Equal(b[:tt.c.Len()], tt.want) {
			t.Errorf("%s: marshalled % X, want % X", tt.name, b[:tt.c.Len()], tt.want)
		}
	}
}

func TestMarshalShortBuffer(t *testing.T) {
	c := &SetEventMask{EventMask: 1}
	if err := c.Marshal(make([]byte, 0, 4)); err == nil {
		t.Fatal("no error marshalling into a short buffer")
	}
}

func TestUnmarshalReadBufferSizeRP(t *testing.T) {
	b := []byte{
		0x00,       // status
		0x36, 0x01, // acl data packet length 310
		0x40,       // sco data packet length
		0x0A, 0x00, // total acl packets 10
		0x08, 0x00, // total sco packets
	}
	var rp ReadBufferSizeRP
	if err := rp.Unmarshal(b); err != nil {
		t.Fatal(err)
	}
	if rp.Status != 0 || rp.HCACLDataPacketLength != 310 || rp.HCTotalNumACLDataPackets != 10 {
		t.Fatalf("rp %+v", rp)
	}
}

func TestUnmarshalLEReadBufferSizeRP(t *testing.T) {
	var rp LEReadBufferSizeRP
	if err := rp.Unmarshal([]byte{0x00, 0xFB, 0x00, 0x08}); err != nil {
		t.Fatal(err)
	}
	if rp.HCLEDataPacketLength != 251 || rp.HCTotalNumLEDataPackets != 8 {
		t.Fatalf("rp %+v", rp)
	}

	if err := rp.Unmarshal([]byte{0x00, 0xFB}); err == nil {
		t.Fatal("no error on truncated return parameters")
	}
}
