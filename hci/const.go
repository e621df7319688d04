package hci

import "time"

// HCI packet types
const (
	pktTypeCommand uint8 = 0x01
	pktTypeACLData uint8 = 0x02
	pktTypeSCOData uint8 = 0x03
	pktTypeEvent   uint8 = 0x04
	pktTypeVendor  uint8 = 0xFF
)

// Packet boundary flags of HCI ACL Data Packet [Vol 2, Part E, 5.4.2].
const (
	pbfHostToControllerStart = 0x00 // Start of a non-automatically-flushable from host to controller.
	pbfContinuing            = 0x01 // Continuing fragment.
	pbfControllerToHostStart = 0x02 // Start of a non-automatically-flushable from controller to host.
	pbfCompleteL2CAPPDU      = 0x03 // An automatically flushable complete PDU. (Not used in LE-U).
)

// aclHeaderSize is the ACL data header: 2 bytes handle+flags, 2 bytes length.
const aclHeaderSize = 4

// LinkType is the logical transport a connection handle belongs to. Each
// link type may have its own controller buffer pool and MTU.
type LinkType int

const (
	LinkClassic LinkType = iota // BR/EDR ACL-U
	LinkLowEnergy               // LE-U
)

func (t LinkType) String() string {
	switch t {
	case LinkClassic:
		return "classic"
	case LinkLowEnergy:
		return "le"
	default:
		return "unknown"
	}
}

// Priority controls where an outbound packet is inserted in the send queue.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityHigh
)

const (
	chCmdBufChanSize    = 16
	chCmdBufElementSize = 64
	chCmdBufTimeout     = time.Second * 5
	cmdResponseTimeout  = time.Second * 3
)

const (
	ogfVendorSpecificDebug = 0x3F
	ogfBitShift            = 10
	maxHciPayload          = 0xFF
)
