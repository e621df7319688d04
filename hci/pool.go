package hci

import (
	"bytes"

	"github.com/pkg/errors"
)

// Pool hands out fixed-capacity buffers for building outbound packets and
// receiving inbound ones. It is an allocator only; flow control against
// the controller's buffers is the data channel's job.
type Pool struct {
	free chan *bytes.Buffer
	sz   int
}

// NewPool pre-allocates cnt buffers of sz bytes capacity each.
func NewPool(sz, cnt int) (*Pool, error) {
	if sz <= 0 || cnt <= 0 {
		return nil, errors.Errorf("invalid pool geometry: sz %d, cnt %d", sz, cnt)
	}
	p := &Pool{
		free: make(chan *bytes.Buffer, cnt),
		sz:   sz,
	}
	for i := 0; i < cnt; i++ {
		b := &bytes.Buffer{}
		b.Grow(sz)
		p.free <- b
	}
	return p, nil
}

// Get returns an empty buffer. When the free list is exhausted a fresh
// buffer is allocated rather than blocking the caller.
func (p *Pool) Get() *bytes.Buffer {
	select {
	case b := <-p.free:
		b.Reset()
		return b
	default:
		b := &bytes.Buffer{}
		b.Grow(p.sz)
		return b
	}
}

// Put returns a buffer to the free list, dropping it if the list is full.
func (p *Pool) Put(b *bytes.Buffer) {
	if b == nil {
		return
	}
	select {
	case p.free <- b:
	default:
	}
}

// BufferSize reports the capacity buffers are grown to.
func (p *Pool) BufferSize() int { return p.sz }
