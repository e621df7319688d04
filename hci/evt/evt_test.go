package evt

import "testing"

func TestNumberOfCompletedPacketsInterleaved(t *testing.T) {
	// two handles, interleaved pair layout as seen on the wire
	e := NumberOfCompletedPackets{0x02, 0x40, 0x00, 0x01, 0x00, 0x41, 0x00, 0x03, 0x00}

	if e.NumberOfHandles() != 2 {
		t.Fatalf("handles %d", e.NumberOfHandles())
	}
	if e.ConnectionHandle(0) != 0x0040 || e.HCNumOfCompletedPackets(0) != 1 {
		t.Fatalf("entry 0: handle %04X count %d", e.ConnectionHandle(0), e.HCNumOfCompletedPackets(0))
	}
	if e.ConnectionHandle(1) != 0x0041 || e.HCNumOfCompletedPackets(1) != 3 {
		t.Fatalf("entry 1: handle %04X count %d", e.ConnectionHandle(1), e.HCNumOfCompletedPackets(1))
	}
}

func TestNumberOfCompletedPacketsTruncated(t *testing.T) {
	// claims two entries but carries only one
	e := NumberOfCompletedPackets{0x02, 0x40, 0x00, 0x01, 0x00}

	if _, err := e.ConnectionHandleWErr(1); err == nil {
		t.Fatal("no error reading past the payload")
	}
	if v, _ := e.ConnectionHandleWErr(1); v != 0xffff {
		t.Fatalf("default %04X, want ffff", v)
	}
	if v, _ := e.HCNumOfCompletedPacketsWErr(1); v != 0 {
		t.Fatalf("default count %d, want 0", v)
	}
}

func TestCommandComplete(t *testing.T) {
	e := CommandComplete{0x01, 0x05, 0x10, 0x00, 0x1B, 0x00}

	if e.NumHCICommandPackets() != 1 {
		t.Fatalf("num packets %d", e.NumHCICommandPackets())
	}
	if e.CommandOpcode() != 0x1005 {
		t.Fatalf("opcode %04X", e.CommandOpcode())
	}
	rp := e.ReturnParameters()
	if len(rp) != 3 || rp[0] != 0x00 {
		t.Fatalf("return params % X", rp)
	}
}

func TestCommandStatus(t *testing.T) {
	e := CommandStatus{0x0C, 0x01, 0x06, 0x04}

	if !e.Valid() {
		t.Fatal("valid payload reported invalid")
	}
	if e.Status() != 0x0C || e.CommandOpcode() != 0x0406 {
		t.Fatalf("status %02X opcode %04X", e.Status(), e.CommandOpcode())
	}
	if CommandStatus([]byte{0x0C}).Valid() {
		t.Fatal("truncated payload reported valid")
	}
}

func TestDisconnectionComplete(t *testing.T) {
	e := DisconnectionComplete{0x00, 0x40, 0x00, 0x13}

	if e.Status() != 0 || e.ConnectionHandle() != 0x0040 || e.Reason() != 0x13 {
		t.Fatalf("status %02X handle %04X reason %02X", e.Status(), e.ConnectionHandle(), e.Reason())
	}
}

func TestDataBufferOverflow(t *testing.T) {
	if DataBufferOverflow([]byte{0x01}).LinkType() != 0x01 {
		t.Fatal("link type")
	}
	if v, err := DataBufferOverflow(nil).LinkTypeWErr(); err == nil || v != 0xff {
		t.Fatalf("empty payload: %02X, %v", v, err)
	}
}

func TestHardwareError(t *testing.T) {
	if HardwareError([]byte{0x42}).Code() != 0x42 {
		t.Fatal("code")
	}
}
