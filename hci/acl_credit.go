package hci

import "fmt"

// BufferInfo describes one controller ACL buffer pool as reported by
// ReadBufferSize / LEReadBufferSize.
type BufferInfo struct {
	MTU        int // largest payload a single ACL data packet may carry
	MaxPackets int // number of packets the controller can hold
}

// creditPool tracks outstanding packets against a controller buffer pool.
// Host to Controller packet-based data flow control [Vol 2, Part E, 4.1.1].
type creditPool struct {
	mtu      int
	capacity int
	inFlight int
}

func newCreditPool(info BufferInfo) *creditPool {
	return &creditPool{mtu: info.MTU, capacity: info.MaxPackets}
}

func (p *creditPool) available() int {
	return p.capacity - p.inFlight
}

// reserve consumes n credits. The scheduler must never ask for more than
// available(); doing so means the admission logic itself is broken.
func (p *creditPool) reserve(n int) {
	if n > p.available() {
		panic(fmt.Sprintf("hci: reserving %d acl credits with %d available", n, p.available()))
	}
	p.inFlight += n
}

// release returns n credits. Returning more than are in flight means the
// host's and controller's books disagree; the count is clamped and the
// mismatch reported to the caller.
func (p *creditPool) release(n int) (clamped bool) {
	if n > p.inFlight {
		p.inFlight = 0
		return true
	}
	p.inFlight -= n
	return false
}

// pendingCredits records packets handed to the transport for one
// connection handle and not yet acknowledged by the controller.
type pendingCredits struct {
	linkType    LinkType
	outstanding int
}
