package h4

import (
	"bytes"
	"testing"
	"time"
)

func newTestAssembler() (*assembler, chan []byte) {
	out := make(chan []byte, 16)
	return newAssembler(out), out
}

func recvFrame(t *testing.T, out chan []byte) []byte {
	t.Helper()
	select {
	case f := <-out:
		return f
	default:
		t.Fatal("no frame assembled")
		return nil
	}
}

func noFrame(t *testing.T, out chan []byte) {
	t.Helper()
	select {
	case f := <-out:
		t.Fatalf("unexpected frame % X", f)
	default:
	}
}

func TestAssembleEventFrame(t *testing.T) {
	a, out := newTestAssembler()

	frame := []byte{eventPacket, 0x0E, 0x04, 0x01, 0x03, 0x0C, 0x00}
	a.write(frame)

	if got := recvFrame(t, out); !bytes.Equal(got, frame) {
		t.Fatalf("frame % X, want % X", got, frame)
	}
	noFrame(t, out)
}

func TestAssembleSplitAcrossWrites(t *testing.T) {
	a, out := newTestAssembler()

	frame := []byte{aclPacket, 0x40, 0x20, 0x03, 0x00, 0xAA, 0xBB, 0xCC}
	for _, b := range frame[:len(frame)-1] {
		a.write([]byte{b})
		noFrame(t, out)
	}
	a.write(frame[len(frame)-1:])

	if got := recvFrame(t, out); !bytes.Equal(got, frame) {
		t.Fatalf("frame % X, want % X", got, frame)
	}
}

func TestAssembleSkipsLeadingGarbage(t *testing.T) {
	a, out := newTestAssembler()

	frame := []byte{eventPacket, 0x13, 0x05, 0x01, 0x40, 0x00, 0x01, 0x00}
	a.write(append([]byte{0x00, 0xFF, 0x13}, frame...))

	if got := recvFrame(t, out); !bytes.Equal(got, frame) {
		t.Fatalf("frame % X, want % X", got, frame)
	}
}

func TestAssembleBackToBackFrames(t *testing.T) {
	a, out := newTestAssembler()

	f1 := []byte{eventPacket, 0x0E, 0x01, 0x01}
	f2 := []byte{aclPacket, 0x40, 0x20, 0x01, 0x00, 0xAA}
	a.write(append(append([]byte{}, f1...), f2...))

	if got := recvFrame(t, out); !bytes.Equal(got, f1) {
		t.Fatalf("first frame % X, want % X", got, f1)
	}
	if got := recvFrame(t, out); !bytes.Equal(got, f2) {
		t.Fatalf("second frame % X, want % X", got, f2)
	}
	noFrame(t, out)
}

func TestAssembleAbandonsStaleFrame(t *testing.T) {
	a, out := newTestAssembler()

	// a partial frame past its deadline is discarded on the next write
	a.write([]byte{aclPacket, 0x40, 0x20, 0x03, 0x00})
	a.deadline = time.Now().Add(-time.Second)

	frame := []byte{eventPacket, 0x10, 0x01, 0x42}
	a.write(frame)

	if got := recvFrame(t, out); !bytes.Equal(got, frame) {
		t.Fatalf("frame % X, want % X", got, frame)
	}
	noFrame(t, out)
}

func TestAssembleIgnoresPureGarbage(t *testing.T) {
	a, out := newTestAssembler()

	a.write([]byte{0x00, 0xFF, 0xFE})
	noFrame(t, out)
	if len(a.b) != 0 {
		t.Fatalf("garbage buffered: % X", a.b)
	}
}
