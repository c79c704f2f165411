// Package wsc decodes and encodes Wi-Fi Simple Configuration attributes
// carried inside EAP-WSC frames.
package wsc

import "fmt"

// MessageType is the value of the Message-Type attribute.
type MessageType uint8

const (
	MsgUnknown MessageType = 0x00
	MsgBeacon  MessageType = 0x01
	MsgProbe   MessageType = 0x02
	MsgM1      MessageType = 0x04
	MsgM2      MessageType = 0x05
	MsgM2D     MessageType = 0x06
	MsgM3      MessageType = 0x07
	MsgM4      MessageType = 0x08
	MsgM5      MessageType = 0x09
	MsgM6      MessageType = 0x0A
	MsgM7      MessageType = 0x0B
	MsgM8      MessageType = 0x0C
	MsgAck     MessageType = 0x0D
	MsgNack    MessageType = 0x0E
	MsgDone    MessageType = 0x0F
)

var messageNames = map[MessageType]string{
	MsgBeacon: "BEACON",
	MsgProbe:  "PROBE",
	MsgM1:     "M1",
	MsgM2:     "M2",
	MsgM2D:    "M2D",
	MsgM3:     "M3",
	MsgM4:     "M4",
	MsgM5:     "M5",
	MsgM6:     "M6",
	MsgM7:     "M7",
	MsgM8:     "M8",
	MsgAck:    "WSC_ACK",
	MsgNack:   "WSC_NACK",
	MsgDone:   "WSC_DONE",
}

func (m MessageType) String() string {
	if s, ok := messageNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MSG(0x%02X)", uint8(m))
}

// Opcode is the EAP-WSC opcode following the expanded-type header.
type Opcode uint8

const (
	OpStart   Opcode = 0x01
	OpAck     Opcode = 0x02
	OpNack    Opcode = 0x03
	OpMsg     Opcode = 0x04
	OpDone    Opcode = 0x05
	OpFragAck Opcode = 0x06
)

// OpcodeFor returns the opcode a registrar uses to carry msg.
func OpcodeFor(msg MessageType) Opcode {
	switch msg {
	case MsgAck:
		return OpAck
	case MsgNack:
		return OpNack
	case MsgDone:
		return OpDone
	default:
		return OpMsg
	}
}

// Configuration Error values seen in NACKs.
const (
	ConfigErrorNone           uint16 = 0
	ConfigErrorSetupLocked    uint16 = 15
	ConfigErrorMessageTimeout uint16 = 16
)

// EAP expanded-type identifiers for WSC.
const (
	EAPTypeExpanded = 254
	VendorWFA       = 0x00372A
	VendorTypeWSC   = 1
	RegistrarID     = "WFA-SimpleConfig-Registrar-1-0"
)
