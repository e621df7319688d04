// Package h4 exposes an H4 (UART transport layer) controller as an
// io.ReadWriteCloser delivering one complete HCI packet per Read.
package h4

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

const (
	rxQueueSize = 64
	readTimeout = time.Second
)

type h4 struct {
	sp  io.ReadWriteCloser
	rmu sync.Mutex
	wmu sync.Mutex

	asm     *assembler
	rxQueue chan []byte

	done chan struct{}
	cmu  sync.Mutex
}

// DefaultSerialOptions returns the UART settings controllers ship with.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}
}

// NewSerial opens an H4 controller on a serial port.
func NewSerial(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	// the assembler needs short reads to flow, not block
	opts.MinimumReadSize = 0
	if opts.InterCharacterTimeout == 0 {
		opts.InterCharacterTimeout = 100
	}

	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}
	return New(sp), nil
}

// NewSocket connects to an H4 controller served over TCP, e.g. a zephyr
// hci_uart bridged by socat.
func NewSocket(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, errors.Wrap(err, "can't dial h4 socket")
	}
	return New(&connWithTimeout{c: c, timeout: timeout}), nil
}

// New wraps a raw H4 byte stream with frame reassembly.
func New(rwc io.ReadWriteCloser) io.ReadWriteCloser {
	rx := make(chan []byte, rxQueueSize)
	h := &h4{
		sp:      rwc,
		asm:     newAssembler(rx),
		rxQueue: rx,
		done:    make(chan struct{}),
	}
	go h.rxLoop()
	return h
}

// Read returns one complete HCI packet, or (0, nil) on timeout so the
// caller's read loop can poll its own shutdown.
func (h *h4) Read(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.rmu.Lock()
	defer h.rmu.Unlock()

	select {
	case f, ok := <-h.rxQueue:
		if !ok {
			return 0, io.EOF
		}
		if len(p) < len(f) {
			return 0, errors.Errorf("buffer too small: %d < %d", len(p), len(f))
		}
		return copy(p, f), nil

	case <-h.done:
		return 0, io.EOF

	case <-time.After(readTimeout):
		return 0, nil
	}
}

func (h *h4) Write(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.wmu.Lock()
	defer h.wmu.Unlock()
	n, err := h.sp.Write(p)
	return n, errors.Wrap(err, "can't write h4")
}

func (h *h4) Close() error {
	h.cmu.Lock()
	defer h.cmu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
		close(h.done)
		err := h.sp.Close()
		return errors.Wrap(err, "can't close h4")
	}
}

func (h *h4) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return h.sp != nil
	}
}

func (h *h4) rxLoop() {
	defer close(h.rxQueue)

	tmp := make([]byte, 512)
	for {
		select {
		case <-h.done:
			return
		default:
		}

		n, err := h.sp.Read(tmp)
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		h.asm.write(tmp[:n])
	}
}
