package hci

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/litebt/bthost"
	"github.com/litebt/bthost/hci/evt"
)

// DataTransport is the duplex channel the data channel moves ACL packets
// over. StartReading registers the inbound sink; rx is invoked once per
// readable ACL unit (HCI packet type already stripped), sequentially and
// in read order. closed fires at most once, when a hard read error has
// permanently stopped delivery.
type DataTransport interface {
	WritePacket(b []byte) (int, error)
	StartReading(rx func(b []byte), closed func(error)) error
	StopReading()
}

// EventBus delivers controller events by event code.
type EventBus interface {
	Subscribe(code int, h func(b []byte) error) int
	Unsubscribe(id int)
}

// Commander issues HCI commands without blocking; the result arrives on cb.
type Commander interface {
	SendCommandAsync(opcode int, plen int, params interface{}, cb func(b []byte, err error))
}

// ReceiveHandler is called synchronously, in read order, with each valid
// inbound ACL packet.
type ReceiveHandler func(p Packet)

// DataChannel multiplexes outbound ACL traffic from any number of
// connection handles onto one transport while honoring the controller's
// per-pool packet buffer credits [Vol 2, Part E, 4.1.1]. Inbound packets
// are validated and fanned out to a single receive handler.
//
// One mutex guards the queue, registry and credit state; every exported
// method may be called from any goroutine.
type DataChannel struct {
	mu    sync.Mutex
	xp    DataTransport
	bus   EventBus
	cmder Commander
	log   bthost.Logger

	strict       bool
	errorHandler func(error)

	initialized bool
	classic     *creditPool
	le          *creditPool
	pool        *Pool

	links   map[uint16]LinkType
	queue   outboundQueue
	pending map[uint16]*pendingCredits

	recv ReceiveHandler

	subCompleted int
	subOverflow  int

	rxDead   bool
	chClosed chan struct{}
}

// NewDataChannel wires a data channel to its collaborators. The channel
// does nothing until Initialize is called with the controller's buffer
// geometry.
func NewDataChannel(xp DataTransport, bus EventBus, cmder Commander, log bthost.Logger) *DataChannel {
	if log == nil {
		log = bthost.GetLogger()
	}
	return &DataChannel{
		xp:       xp,
		bus:      bus,
		cmder:    cmder,
		log:      log.ChildLogger(map[string]interface{}{"pkg": "acl"}),
		chClosed: make(chan struct{}),
	}
}

// SetErrorHandler sets the callback receiving asynchronous failures, in
// particular the permanent loss of the inbound pipeline.
func (c *DataChannel) SetErrorHandler(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandler = h
}

// SetStrictAccounting makes credit bookkeeping mismatches panic instead of
// clamp-and-log.
func (c *DataChannel) SetStrictAccounting(strict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strict = strict
}

// SetReceiveHandler registers the single inbound packet callback,
// replacing any previous one.
func (c *DataChannel) SetReceiveHandler(h ReceiveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recv = h
}

// Initialize creates the credit pools from the controller's reported
// buffer geometry, registers the inbound sink with the transport and
// subscribes to the flow control events. At least one of the two buffer
// infos must be present; a missing LE pool means LE traffic is accounted
// against the classic pool (and vice versa for LE-only controllers).
func (c *DataChannel) Initialize(classicInfo, leInfo *BufferInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return errors.New("acl: data channel already initialized")
	}
	if classicInfo == nil && leInfo == nil {
		return errors.New("acl: no buffer info for either link type")
	}

	var classic, le *creditPool
	mtu, cnt := 0, 0
	if classicInfo != nil {
		classic = newCreditPool(*classicInfo)
		mtu, cnt = classicInfo.MTU, classicInfo.MaxPackets
	}
	if leInfo != nil {
		le = newCreditPool(*leInfo)
		if leInfo.MTU > mtu {
			mtu = leInfo.MTU
		}
		cnt += leInfo.MaxPackets
	}

	pool, err := NewPool(1+aclHeaderSize+mtu, cnt)
	if err != nil {
		return errors.Wrap(err, "acl: buffer pool")
	}

	if err := c.xp.StartReading(c.handleRx, c.readStopped); err != nil {
		return errors.Wrap(err, "acl: can't start reading")
	}

	c.classic = classic
	c.le = le
	c.pool = pool
	c.links = make(map[uint16]LinkType)
	c.pending = make(map[uint16]*pendingCredits)
	c.queue.clear()
	c.rxDead = false
	c.chClosed = make(chan struct{})

	c.subCompleted = c.bus.Subscribe(evt.NumberOfCompletedPacketsCode, c.handleNumberOfCompletedPackets)
	c.subOverflow = c.bus.Subscribe(evt.DataBufferOverflowCode, c.handleDataBufferOverflow)

	c.initialized = true
	return nil
}

// ShutDown cancels inbound delivery, unsubscribes the event handlers and
// discards every piece of accounting state. No-op when not initialized.
func (c *DataChannel) ShutDown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}

	c.xp.StopReading()
	c.bus.Unsubscribe(c.subCompleted)
	c.bus.Unsubscribe(c.subOverflow)

	for _, p := range c.queue.drop(func(*QueuedPacket) bool { return true }) {
		c.pool.Put(p.wire)
	}
	c.links = nil
	c.pending = nil
	c.classic = nil
	c.le = nil
	c.pool = nil
	c.recv = nil
	c.initialized = false

	if !c.rxDead {
		c.rxDead = true
		close(c.chClosed)
	}
}

// Closed is closed once no further inbound packets will ever be
// delivered, either after ShutDown or after a hard transport read error.
func (c *DataChannel) Closed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chClosed
}

// poolFor maps a link type to its credit pool, falling back to the one
// present pool when the controller has no dedicated buffers for the type.
func (c *DataChannel) poolFor(t LinkType) *creditPool {
	if t == LinkLowEnergy && c.le != nil {
		return c.le
	}
	if c.classic != nil {
		return c.classic
	}
	return c.le
}

// GetBufferInfo reports the MTU and capacity of the pool serving the
// given link type. ok is false before Initialize.
func (c *DataChannel) GetBufferInfo(t LinkType) (info BufferInfo, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return BufferInfo{}, false
	}
	p := c.poolFor(t)
	return BufferInfo{MTU: p.mtu, MaxPackets: p.capacity}, true
}

// RegisterLink makes a connection handle eligible for data transfer.
// Registering a handle twice is a soft failure.
func (c *DataChannel) RegisterLink(handle uint16, t LinkType) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.links == nil {
		c.log.Warnf("register link %04X: channel not initialized", handle)
		return
	}
	if existing, ok := c.links[handle]; ok {
		c.log.Warnf("register link %04X: already registered as %v", handle, existing)
		return
	}
	c.links[handle] = t
}

// UnregisterLink removes a handle and drops its still-queued packets.
// Packets already handed to the controller stay accounted until
// ClearControllerPacketCount reconciles them.
func (c *DataChannel) UnregisterLink(handle uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.links[handle]; !ok {
		c.log.Warnf("unregister link %04X: not registered", handle)
		return
	}
	delete(c.links, handle)
	c.dropQueuedLocked(func(p *QueuedPacket) bool { return p.Handle == handle })
}

// DropQueuedPackets removes every queued-but-untransmitted packet matching
// pred and returns how many were removed.
func (c *DataChannel) DropQueuedPackets(pred func(*QueuedPacket) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropQueuedLocked(pred)
}

func (c *DataChannel) dropQueuedLocked(pred func(*QueuedPacket) bool) int {
	dropped := c.queue.drop(pred)
	for _, p := range dropped {
		c.pool.Put(p.wire)
	}
	return len(dropped)
}

// SendPacket queues one payload for the handle and kicks the scheduler.
// It reports false, without queueing, when the channel is uninitialized,
// the handle is not registered, or the payload exceeds the pool MTU.
func (c *DataChannel) SendPacket(payload []byte, handle uint16, pri Priority) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.admissibleLocked(payload, handle) {
		return false
	}
	c.enqueueLocked(payload, handle, pri)
	c.trySendNextQueuedPacketsLocked()
	return true
}

// SendPackets queues a batch for the handle. Admission is all-or-nothing:
// if any payload is rejected, none are queued.
func (c *DataChannel) SendPackets(payloads [][]byte, handle uint16, pri Priority) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, payload := range payloads {
		if !c.admissibleLocked(payload, handle) {
			return false
		}
	}
	for _, payload := range payloads {
		c.enqueueLocked(payload, handle, pri)
	}
	c.trySendNextQueuedPacketsLocked()
	return true
}

func (c *DataChannel) admissibleLocked(payload []byte, handle uint16) bool {
	if !c.initialized {
		c.log.Warnf("send to %04X: channel not initialized", handle)
		return false
	}
	if _, ok := c.links[handle]; !ok {
		c.log.Warnf("send to %04X: link not registered", handle)
		return false
	}
	if mtu := c.poolFor(c.links[handle]).mtu; len(payload) > mtu {
		c.log.Warnf("send to %04X: payload %d exceeds mtu %d", handle, len(payload), mtu)
		return false
	}
	return true
}

func (c *DataChannel) enqueueLocked(payload []byte, handle uint16, pri Priority) {
	buf := c.pool.Get()
	if err := buildACLPacket(buf, handle, uint16(pbfHostToControllerStart<<4), payload); err != nil {
		// bytes.Buffer writes don't fail; kept for symmetry with the codec.
		c.log.Errorf("build packet for %04X: %v", handle, err)
		c.pool.Put(buf)
		return
	}
	c.queue.push(&QueuedPacket{
		Handle:   handle,
		LinkType: c.links[handle],
		Priority: pri,
		wire:     buf,
	})
}

// trySendNextQueuedPacketsLocked is the admission pass: give every pool a
// tentative budget equal to its free credits, pick queued packets in
// order while skipping those whose pool is spent, then write the picks in
// selection order. A successful write commits one credit and bumps the
// handle's outstanding count; a failed write drops the packet and leaves
// the credit unconsumed.
func (c *DataChannel) trySendNextQueuedPacketsLocked() {
	if !c.initialized {
		return
	}

	budget := make(map[*creditPool]int, 2)
	if c.classic != nil {
		budget[c.classic] = c.classic.available()
	}
	if c.le != nil {
		budget[c.le] = c.le.available()
	}

	for _, p := range c.queue.selectReady(c.poolFor, budget) {
		if _, err := c.xp.WritePacket(p.wire.Bytes()); err != nil {
			c.log.Errorf("write for %04X failed, dropping packet: %v", p.Handle, err)
			c.pool.Put(p.wire)
			continue
		}

		c.poolFor(p.LinkType).reserve(1)
		ent := c.pending[p.Handle]
		if ent == nil {
			ent = &pendingCredits{linkType: p.LinkType}
			c.pending[p.Handle] = ent
		}
		ent.outstanding++
		c.pool.Put(p.wire)
	}
}

// handleNumberOfCompletedPackets reconciles controller acknowledgements
// with the pending table and returns the freed credits to their pools.
// When a connection disconnects, packets that were sent but never acked
// are recycled through ClearControllerPacketCount instead [Vol 2, Part E, 4.3].
func (c *DataChannel) handleNumberOfCompletedPackets(b []byte) error {
	e := evt.NumberOfCompletedPackets(b)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return nil
	}

	freed := make(map[LinkType]int, 2)
	for i := 0; i < int(e.NumberOfHandles()); i++ {
		handle := e.ConnectionHandle(i)
		n := int(e.HCNumOfCompletedPackets(i))

		ent, ok := c.pending[handle]
		if !ok {
			c.log.Warnf("completion for unknown handle %04X (%d packets)", handle, n)
			continue
		}
		if n > ent.outstanding {
			c.escalateLocked("completion count %d exceeds outstanding %d for handle %04X", n, ent.outstanding, handle)
			n = ent.outstanding
		}
		ent.outstanding -= n
		freed[ent.linkType] += n
		if ent.outstanding == 0 {
			delete(c.pending, handle)
		}
	}

	for t, n := range freed {
		c.releaseLocked(t, n)
	}
	c.trySendNextQueuedPacketsLocked()
	return nil
}

// ClearControllerPacketCount releases the credits still held by a handle
// that will never see another completion event. The link must already be
// unregistered: releasing credits for a live link would under-count its
// future completions, so that is a programming error.
func (c *DataChannel) ClearControllerPacketCount(handle uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, registered := c.links[handle]; registered {
		panic(fmt.Sprintf("hci: ClearControllerPacketCount(%04X) with link still registered", handle))
	}
	ent, ok := c.pending[handle]
	if !ok {
		return
	}
	delete(c.pending, handle)
	c.releaseLocked(ent.linkType, ent.outstanding)
	c.trySendNextQueuedPacketsLocked()
}

func (c *DataChannel) releaseLocked(t LinkType, n int) {
	p := c.poolFor(t)
	if p == nil || n == 0 {
		return
	}
	if p.release(n) {
		c.escalateLocked("releasing %d credits with fewer in flight on %v pool", n, t)
	}
}

// handleDataBufferOverflow means the controller saw more packets than it
// has buffers for: host and controller bookkeeping have diverged and no
// corrective action exists.
func (c *DataChannel) handleDataBufferOverflow(b []byte) error {
	e := evt.DataBufferOverflow(b)
	c.log.Errorf("controller data buffer overflow (link type %d)", e.LinkType())
	panic("hci: acl data buffer overflow, credit accounting diverged")
}

func (c *DataChannel) escalateLocked(format string, args ...interface{}) {
	if c.strict {
		panic("hci: " + fmt.Sprintf(format, args...))
	}
	c.log.Errorf(format, args...)
}

// handleRx validates one inbound readable unit and hands it to the
// receive handler. Malformed packets are dropped; delivery continues with
// the next unit.
func (c *DataChannel) handleRx(b []byte) {
	c.mu.Lock()
	if !c.initialized || c.rxDead {
		c.mu.Unlock()
		return
	}
	p := Packet(b)
	if err := p.validate(); err != nil {
		c.log.Warnf("dropping malformed inbound packet: %v", err)
		c.mu.Unlock()
		return
	}
	recv := c.recv
	c.mu.Unlock()

	if recv != nil {
		recv(p)
	}
}

// readStopped marks the inbound pipeline permanently dead after a hard
// transport read error.
func (c *DataChannel) readStopped(err error) {
	c.mu.Lock()
	if c.rxDead {
		c.mu.Unlock()
		return
	}
	c.rxDead = true
	if c.chClosed != nil {
		close(c.chClosed)
	}
	eh := c.errorHandler
	c.mu.Unlock()

	c.log.Errorf("inbound pipeline stopped: %v", err)
	if eh != nil {
		eh(errors.Wrap(err, "acl inbound pipeline stopped"))
	}
}
