// Package evt provides byte-slice views over HCI event payloads. Each
// event type is the raw payload with the 2-byte event header stripped;
// accessors come in a plain form and a WErr form that reports short or
// corrupt payloads instead of returning a default.
package evt

// Event codes [Vol 2, Part E, 7.7].
const (
	DisconnectionCompleteCode    = 0x05
	CommandCompleteCode          = 0x0E
	CommandStatusCode            = 0x0F
	HardwareErrorCode            = 0x10
	NumberOfCompletedPacketsCode = 0x13
	DataBufferOverflowCode       = 0x1A
)

type (
	CommandComplete          []byte
	CommandStatus            []byte
	DisconnectionComplete    []byte
	HardwareError            []byte
	NumberOfCompletedPackets []byte
	DataBufferOverflow       []byte
)

func (e CommandComplete) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandComplete) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

func (e CommandComplete) ReturnParameters() []byte {
	v, _ := e.ReturnParametersWErr()
	return v
}

func (e CommandStatus) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e CommandStatus) NumHCICommandPackets() uint8 {
	v, _ := e.NumHCICommandPacketsWErr()
	return v
}

func (e CommandStatus) CommandOpcode() uint16 {
	v, _ := e.CommandOpcodeWErr()
	return v
}

// Valid reports whether the payload is long enough to hold every field.
func (e CommandStatus) Valid() bool {
	_, err := e.CommandOpcodeWErr()
	return err == nil
}

func (e DisconnectionComplete) Status() uint8 {
	v, _ := e.StatusWErr()
	return v
}

func (e DisconnectionComplete) ConnectionHandle() uint16 {
	v, _ := e.ConnectionHandleWErr()
	return v
}

func (e DisconnectionComplete) Reason() uint8 {
	v, _ := e.ReasonWErr()
	return v
}

func (e HardwareError) Code() uint8 {
	v, _ := e.CodeWErr()
	return v
}

// Per-spec [Vol 2, Part E, 7.7.19], the packet structure should be:
//
//     NumOfHandle, HandleA, HandleB, CompPktNumA, CompPktNumB
//
// But controllers in the field (BCM20702A1 among others) interleave the
// pairs instead:
//
//     NumOfHandle, HandleA, CompPktNumA, HandleB, CompPktNumB
//              02,   40 00,       01 00,   41 00,       01 00

func (e NumberOfCompletedPackets) NumberOfHandles() uint8 {
	v, _ := e.NumberOfHandlesWErr()
	return v
}

func (e NumberOfCompletedPackets) ConnectionHandle(i int) uint16 {
	v, _ := e.ConnectionHandleWErr(i)
	return v
}

func (e NumberOfCompletedPackets) HCNumOfCompletedPackets(i int) uint16 {
	v, _ := e.HCNumOfCompletedPacketsWErr(i)
	return v
}

func (e DataBufferOverflow) LinkType() uint8 {
	v, _ := e.LinkTypeWErr()
	return v
}
