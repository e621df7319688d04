package h4

import "time"

// HCI packet types appearing on the wire ahead of each frame.
const (
	cmdPacket   = 0x01
	aclPacket   = 0x02
	eventPacket = 0x04
)

const (
	aclHeaderLength   = 5 // type + handle/flags + 16-bit length
	eventHeaderLength = 3 // type + code + 8-bit length
	assembleTimeout   = 500 * time.Millisecond
)

// assembler splits the H4 byte stream back into complete HCI packets.
// Bytes that can't start a frame are discarded until a packet type byte
// shows up; a partial frame older than assembleTimeout is abandoned.
type assembler struct {
	b        []byte
	deadline time.Time
	out      chan []byte
}

func newAssembler(out chan []byte) *assembler {
	return &assembler{
		b:   make([]byte, 0, 256),
		out: out,
	}
}

func (a *assembler) write(b []byte) {
	if len(b) == 0 {
		return
	}
	if len(a.b) > 0 && !a.deadline.IsZero() && time.Now().After(a.deadline) {
		a.reset()
	}

	if len(a.b) == 0 {
		b = a.seekStart(b)
		if b == nil {
			return
		}
		a.deadline = time.Now().Add(assembleTimeout)
	}
	a.b = append(a.b, b...)

	for {
		f := a.complete()
		if f == nil {
			return
		}
		out := make([]byte, len(f))
		copy(out, f)
		a.out <- out

		rem := a.b[len(f):]
		a.reset()
		if len(rem) == 0 {
			return
		}
		rem = a.seekStart(rem)
		if rem == nil {
			return
		}
		a.deadline = time.Now().Add(assembleTimeout)
		a.b = append(a.b, rem...)
	}
}

func (a *assembler) reset() {
	a.b = a.b[:0]
	a.deadline = time.Time{}
}

// seekStart drops leading garbage and returns the slice from the first
// recognizable packet type byte, or nil when none is present.
func (a *assembler) seekStart(b []byte) []byte {
	for i, v := range b {
		if v == eventPacket || v == aclPacket {
			return b[i:]
		}
	}
	return nil
}

// frameLength reports the full length of the buffered frame, or -1 when
// the header isn't complete yet.
func (a *assembler) frameLength() int {
	switch a.b[0] {
	case aclPacket:
		if len(a.b) < aclHeaderLength {
			return -1
		}
		return aclHeaderLength + (int(a.b[3]) | int(a.b[4])<<8)
	case eventPacket:
		if len(a.b) < eventHeaderLength {
			return -1
		}
		return eventHeaderLength + int(a.b[2])
	default:
		return -1
	}
}

func (a *assembler) complete() []byte {
	if len(a.b) == 0 {
		return nil
	}
	tl := a.frameLength()
	if tl < 0 || len(a.b) < tl {
		return nil
	}
	return a.b[:tl]
}
