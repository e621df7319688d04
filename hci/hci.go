package hci

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/litebt/bthost"
	"github.com/litebt/bthost/hci/cmd"
	"github.com/litebt/bthost/hci/evt"
)

// Command ...
type Command interface {
	OpCode() int
	Len() int
	Marshal([]byte) error
}

// CommandRP ...
type CommandRP interface {
	Unmarshal(b []byte) error
}

type handlerFn func(b []byte) error

type pkt struct {
	cmd  Command
	done chan []byte
}

// NewHCI returns a hci host bound to the transport selected by opts.
func NewHCI(opts ...bthost.Option) (*HCI, error) {
	h := &HCI{
		log: bthost.GetLogger().ChildLogger(map[string]interface{}{"pkg": "hci"}),

		chCmdBufs: make(chan []byte, chCmdBufChanSize),
		sent:      make(map[int]*pkt),
		muSent:    sync.Mutex{},

		evth:     map[int]handlerFn{},
		subs:     map[int]map[int]handlerFn{},
		subCodes: map[int]int{},

		muClose:   sync.Mutex{},
		done:      make(chan bool),
		sktRxChan: make(chan []byte, 16),
	}
	if err := h.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}

	return h, nil
}

// HCI owns the controller transport: one goroutine reads it, one
// dispatches what was read, commands flow out through a credit-gated
// buffer channel [Vol 2, Part E, 4.4], and ACL data is delegated to the
// DataChannel.
type HCI struct {
	log bthost.Logger

	transport transport
	skt       io.ReadWriteCloser

	// Host to Controller command flow control [Vol 2, Part E, 4.4]
	chCmdBufs chan []byte
	muSent    sync.Mutex
	sent      map[int]*pkt

	// internal event handlers plus external subscriptions by event code
	evth      map[int]handlerFn
	muSubs    sync.Mutex
	subs      map[int]map[int]handlerFn
	subCodes  map[int]int
	nextSubID int

	acl *DataChannel

	// inbound ACL sink registered by the data channel
	muACL     sync.Mutex
	aclRx     func([]byte)
	aclClosed func(error)

	strict       bool
	errorHandler func(error)
	err          error

	muClose sync.Mutex
	done    chan bool

	sktRxChan chan []byte
}

// Init opens the transport, starts the socket loops, runs the controller
// bring-up sequence and initializes the ACL data channel from the
// controller's reported buffer geometry.
func (h *HCI) Init() error {
	h.evth[evt.CommandCompleteCode] = h.handleCommandComplete
	h.evth[evt.CommandStatusCode] = h.handleCommandStatus
	h.evth[evt.DisconnectionCompleteCode] = h.handleDisconnectionComplete
	h.evth[evt.HardwareErrorCode] = h.handleHardwareError

	var err error
	h.skt, err = getTransport(h.transport)
	if err != nil {
		return err
	}
	h.setAllowedCommands(1)

	go h.sktReadLoop()
	go h.sktProcessLoop()

	h.acl = NewDataChannel(h, h, h, h.log)
	h.acl.SetStrictAccounting(h.strict)
	if h.errorHandler != nil {
		h.acl.SetErrorHandler(h.errorHandler)
	}

	return h.init()
}

func (h *HCI) init() error {
	h.log.Info("hci reset")
	h.Send(&cmd.Reset{}, nil)
	h.Send(&cmd.SetEventMask{EventMask: 0x3dbff807fffbffff}, nil)

	// Per Core Spec 5.0, Part E, 7.4.5 ReadBufferSize is not supported
	// by LE-only controllers; a command error here just means there is
	// no classic pool.
	var classic, le *BufferInfo
	rbs := cmd.ReadBufferSizeRP{}
	if err := h.Send(&cmd.ReadBufferSize{}, &rbs); err == nil && rbs.HCTotalNumACLDataPackets > 0 {
		classic = &BufferInfo{
			MTU:        int(rbs.HCACLDataPacketLength),
			MaxPackets: int(rbs.HCTotalNumACLDataPackets),
		}
	}

	lrbs := cmd.LEReadBufferSizeRP{}
	if err := h.Send(&cmd.LEReadBufferSize{}, &lrbs); err == nil && lrbs.HCTotalNumLEDataPackets > 0 {
		le = &BufferInfo{
			MTU:        int(lrbs.HCLEDataPacketLength),
			MaxPackets: int(lrbs.HCTotalNumLEDataPackets),
		}
	}

	if h.err != nil {
		return h.err
	}
	return h.acl.Initialize(classic, le)
}

// ACL returns the data channel. Valid after Init.
func (h *HCI) ACL() *DataChannel {
	return h.acl
}

// Close shuts the host down.
func (h *HCI) Close() error {
	h.muClose.Lock()
	defer h.muClose.Unlock()

	select {
	case <-h.done:
		//already closed, nothing to do
	default:
		close(h.done)
	}

	return nil
}

// Error reports the first hard failure seen by the socket loops.
func (h *HCI) Error() error {
	return h.err
}

// Option sets the options specified.
func (h *HCI) Option(opts ...bthost.Option) error {
	var err error
	for _, opt := range opts {
		err = opt(h)
	}
	return err
}

func (h *HCI) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Subscribe registers an external handler for an event code and returns
// a token for Unsubscribe.
func (h *HCI) Subscribe(code int, fn func(b []byte) error) int {
	h.muSubs.Lock()
	defer h.muSubs.Unlock()

	h.nextSubID++
	id := h.nextSubID
	if h.subs[code] == nil {
		h.subs[code] = map[int]handlerFn{}
	}
	h.subs[code][id] = fn
	h.subCodes[id] = code
	return id
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (h *HCI) Unsubscribe(id int) {
	h.muSubs.Lock()
	defer h.muSubs.Unlock()

	code, ok := h.subCodes[id]
	if !ok {
		return
	}
	delete(h.subCodes, id)
	delete(h.subs[code], id)
}

// WritePacket sends one pre-built packet to the controller.
func (h *HCI) WritePacket(b []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}
	return h.skt.Write(b)
}

// StartReading registers the sink receiving inbound ACL data units.
func (h *HCI) StartReading(rx func(b []byte), closed func(error)) error {
	h.muACL.Lock()
	defer h.muACL.Unlock()

	if h.skt == nil {
		return errors.New("hci: transport not open")
	}
	if h.aclRx != nil {
		return errors.New("hci: acl sink already registered")
	}
	h.aclRx = rx
	h.aclClosed = closed
	return nil
}

// StopReading cancels the inbound ACL sink.
func (h *HCI) StopReading() {
	h.muACL.Lock()
	defer h.muACL.Unlock()
	h.aclRx = nil
	h.aclClosed = nil
}

// Send issues a command and blocks for its return parameters.
func (h *HCI) Send(c Command, r CommandRP) error {
	b, err := h.send(c)
	if err != nil {
		return err
	}
	if len(b) > 0 && b[0] != 0x00 {
		return errors.Errorf("command 0x%04X failed with status 0x%02X", c.OpCode(), b[0])
	}
	if r != nil {
		return r.Unmarshal(b)
	}
	return nil
}

// SendCommandAsync issues a command without blocking the caller; cb gets
// the raw return parameters or the transport error.
func (h *HCI) SendCommandAsync(opcode int, plen int, params interface{}, cb func(b []byte, err error)) {
	c := &CustomCommand{
		opCode:  opcode,
		length:  plen,
		Payload: params,
	}
	go func() {
		b, err := h.send(c)
		if cb != nil {
			cb(b, err)
		}
	}()
}

func (h *HCI) checkOpCodeFree(opCode int) error {
	h.muSent.Lock()
	defer h.muSent.Unlock()

	_, ok := h.sent[opCode]
	if ok {
		return fmt.Errorf("command with opcode %v pending", opCode)
	}

	return nil
}

func (h *HCI) send(c Command) ([]byte, error) {
	if h.err != nil {
		return nil, h.err
	}

	p := &pkt{c, make(chan []byte)}

	//verify opcode is free before asking for the command buffer
	//this ensures that the command buffer is only taken if
	//the command can be sent
	if err := h.checkOpCodeFree(c.OpCode()); err != nil {
		return nil, err
	}

	// get buffer w/timeout
	var b []byte
	select {
	case <-h.done:
		return nil, fmt.Errorf("hci closed")
	case b = <-h.chCmdBufs:
		//ok
	case <-time.After(chCmdBufTimeout):
		err := fmt.Errorf("chCmdBufs get timeout")
		h.dispatchError(err)
		return nil, err
	}

	//HCI header
	b[0] = pktTypeCommand
	b[1] = byte(c.OpCode())
	b[2] = byte(c.OpCode() >> 8)
	b[3] = byte(c.Len())
	if err := c.Marshal(b[4:]); err != nil {
		h.close(fmt.Errorf("hci: failed to marshal cmd"))
	}

	h.muSent.Lock()
	h.sent[c.OpCode()] = p
	h.muSent.Unlock()

	if !h.isOpen() {
		return nil, fmt.Errorf("hci closed")
	} else if n, err := h.skt.Write(b[:4+c.Len()]); err != nil {
		h.close(fmt.Errorf("hci: failed to send cmd"))
	} else if n != 4+c.Len() {
		h.close(fmt.Errorf("hci: failed to send whole cmd pkt to hci socket"))
	}

	var ret []byte
	var err error

	// emergency timeout to prevent calls from locking up if the HCI
	// interface doesn't respond. Responses should normally be fast;
	// a timeout indicates a major problem with HCI.
	select {
	case <-time.After(cmdResponseTimeout):
		err = fmt.Errorf("hci: no response to command 0x%04X", c.OpCode())
		h.dispatchError(err)
		ret = nil
	case <-h.done:
		err = h.err
		ret = nil
	case b := <-p.done:
		err = nil
		ret = b
	}

	// clear sent table when done, we sometimes get command complete or
	// command status messages with no matching send, which can attempt to
	// access stale packets in sent and fail or lock up.
	h.muSent.Lock()
	delete(h.sent, c.OpCode())
	h.muSent.Unlock()

	return ret, err
}

func (h *HCI) sktProcessLoop() {
	defer h.cleanup()
	defer h.dispatchError(h.err)

	for {
		var p []byte
		var ok bool

		select {
		case <-h.done:
			h.log.Debug("close requested")
			h.err = io.EOF
			return

		case p, ok = <-h.sktRxChan:
			if !ok {
				h.log.Debug("socket rx closed")
				if h.err == nil {
					h.err = io.EOF
				}
				return
			}
			// will process the bytes below
		}

		if err := h.handlePkt(p); err != nil {
			// Some bluetooth devices append vendor specific packets; simply
			// ignore them and keep the loop alive.
			h.log.Warnf("skt: %v", err)
		}
	}
}

func (h *HCI) sktReadLoop() {
	defer close(h.sktRxChan)

	b := make([]byte, 4096)

	for {
		n, err := h.skt.Read(b)

		switch {
		case n == 0 && err == nil:
			// read timeout
			select {
			case <-h.done:
				//exit!
				return
			default:
				continue
			}

		//callers depend on detecting io.EOF, don't wrap it.
		case err == io.EOF:
			h.err = err
			return

		case err != nil:
			h.err = fmt.Errorf("skt read error: %v", err)
			return

		default:
			// ok
			p := make([]byte, n)
			copy(p, b)
			h.sktRxChan <- p
		}
	}
}

func (h *HCI) cleanup() {
	//close the socket
	h.close(h.err)

	// the inbound acl pipeline is done for good; tell the data channel
	h.muACL.Lock()
	closed := h.aclClosed
	h.aclRx = nil
	h.aclClosed = nil
	h.muACL.Unlock()
	if closed != nil {
		err := h.err
		if err == nil {
			err = io.EOF
		}
		closed(err)
	}

	// clean out all sent commands
	h.muSent.Lock()
	for k := range h.sent {
		delete(h.sent, k)
	}
	h.muSent.Unlock()
}

func (h *HCI) close(err error) error {
	h.err = err
	if h.skt != nil {
		return h.skt.Close()
	}
	return nil
}

func (h *HCI) handlePkt(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("empty packet")
	}
	// Strip the 1-byte HCI header and pass down the rest of the packet.
	t, b := b[0], b[1:]
	switch t {
	case pktTypeACLData:
		return h.handleACL(b)
	case pktTypeEvent:
		return h.handleEvt(b)
	case pktTypeCommand:
		return fmt.Errorf("unmanaged cmd: % X", b)
	case pktTypeSCOData:
		return fmt.Errorf("unsupported sco packet: % X", b)
	case pktTypeVendor:
		return fmt.Errorf("unsupported vendor packet: % X", b)
	default:
		return fmt.Errorf("invalid packet: 0x%02X % X", t, b)
	}
}

func (h *HCI) handleACL(b []byte) error {
	h.muACL.Lock()
	rx := h.aclRx
	h.muACL.Unlock()

	if rx == nil {
		h.log.Warnf("acl data with no sink registered: % X", b)
		return nil
	}
	rx(b)
	return nil
}

func (h *HCI) handleEvt(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("invalid event packet: % X", b)
	}
	code, plen := int(b[0]), int(b[1])
	if plen != len(b[2:]) {
		return fmt.Errorf("invalid event packet: % X", b)
	}
	payload := b[2:]

	handled := false
	if f := h.evth[code]; f != nil {
		handled = true
		if err := f(payload); err != nil {
			return err
		}
	}

	h.muSubs.Lock()
	fns := make([]handlerFn, 0, len(h.subs[code]))
	for _, f := range h.subs[code] {
		fns = append(fns, f)
	}
	h.muSubs.Unlock()

	for _, f := range fns {
		handled = true
		if err := f(payload); err != nil {
			return err
		}
	}

	if !handled && code != 0xff { // Ignore vendor events
		h.log.Debugf("unhandled event packet: % X", b)
	}
	return nil
}

func (h *HCI) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)
	h.setAllowedCommands(int(e.NumHCICommandPackets()))

	// NOP command, used for flow control purpose [Vol 2, Part E, 4.4]
	// no handling other than setAllowedCommands needed
	if e.CommandOpcode() == 0x0000 {
		return nil
	}

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()

	if !found {
		h.log.Warnf("no pending cmd for command complete: % X", b)
		return nil
	}

	select {
	case <-h.done:
		return fmt.Errorf("hci closed")
	case p.done <- e.ReturnParameters():
		return nil
	}
}

func (h *HCI) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)

	if !e.Valid() {
		err := fmt.Errorf("invalid command status: % X", b)
		h.dispatchError(err)
		return err
	}

	h.setAllowedCommands(int(e.NumHCICommandPackets()))

	h.muSent.Lock()
	p, found := h.sent[int(e.CommandOpcode())]
	h.muSent.Unlock()

	if !found {
		h.log.Warnf("no pending cmd for command status: % X", b)
		return nil
	}

	select {
	case <-h.done:
		return fmt.Errorf("hci closed")
	case p.done <- []byte{e.Status()}:
		return nil
	}
}

// handleDisconnectionComplete tears the link down and reconciles the
// credits the controller will never acknowledge: unregister first, then
// force-clear the handle's packet count [Vol 2, Part E, 4.3].
func (h *HCI) handleDisconnectionComplete(b []byte) error {
	e := evt.DisconnectionComplete(b)
	ch := e.ConnectionHandle()
	h.log.Debugf("disconnect complete for handle %04X, reason 0x%02X", ch, e.Reason())

	h.acl.UnregisterLink(ch)
	h.acl.ClearControllerPacketCount(ch)
	return nil
}

func (h *HCI) handleHardwareError(b []byte) error {
	e := evt.HardwareError(b)
	err := fmt.Errorf("hci: controller hardware error 0x%02X", e.Code())
	h.dispatchError(err)
	return nil
}

func (h *HCI) setAllowedCommands(n int) {
	if n > chCmdBufChanSize {
		h.log.Warnf("setAllowedCommands: defaulting %d -> %d", n, chCmdBufChanSize)
		n = chCmdBufChanSize
	}

	//put with timeout
	for len(h.chCmdBufs) < n {
		select {
		case <-h.done:
			//closed
			return
		case h.chCmdBufs <- make([]byte, chCmdBufElementSize):
			//ok
		case <-time.After(chCmdBufTimeout):
			h.dispatchError(fmt.Errorf("chCmdBufs put timeout"))
			return
		}
	}
}

func (h *HCI) dispatchError(e error) {
	switch {
	case e == nil:
		//nothing to report
	case h.errorHandler == nil:
		h.log.Errorf("%v", e)
	case !h.isOpen():
		//don't dispatch
		h.log.Debugf("hci closing: %v", e)
	default:
		h.errorHandler(e)
	}
}
