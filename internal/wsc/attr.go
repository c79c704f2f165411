package wsc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Attribute type codes.
const (
	AttrConfigError       uint16 = 0x1009
	AttrDeviceName        uint16 = 0x1011
	AttrEnrolleeNonce     uint16 = 0x101A
	AttrManufacturer      uint16 = 0x1021
	AttrMessageType       uint16 = 0x1022
	AttrModelName         uint16 = 0x1023
	AttrModelNumber       uint16 = 0x1024
	AttrRegistrarNonce    uint16 = 0x1039
	AttrRequestType       uint16 = 0x103A
	AttrSelectedRegistrar uint16 = 0x1041
	AttrSerialNumber      uint16 = 0x1042
	AttrWPSState          uint16 = 0x1044
	AttrVersion           uint16 = 0x104A
	AttrVendorExtension   uint16 = 0x1049
	AttrAPSetupLocked     uint16 = 0x1057
)

const (
	nonceLen  = 16
	tlvHeader = 4
)

var ErrTruncated = errors.New("wsc: truncated attribute")

// Attributes holds the decoded fields the engine acts on. Raw keeps every
// attribute by type for callers that need more.
type Attributes struct {
	MessageType       MessageType
	ConfigError       uint16
	HasConfigError    bool
	EnrolleeNonce     []byte
	RegistrarNonce    []byte
	Version           uint8
	WPSState          uint8
	APSetupLocked     bool
	SelectedRegistrar bool
	DeviceName        string
	Manufacturer      string
	ModelName         string
	ModelNumber       string
	Raw               map[uint16][]byte
}

// Parse walks a WSC TLV list. Attributes whose declared length overruns
// the buffer end the walk with ErrTruncated; what was decoded so far is
// still returned.
func Parse(data []byte) (Attributes, error) {
	a := Attributes{Raw: make(map[uint16][]byte)}
	for i := 0; i+tlvHeader <= len(data); {
		typ := binary.BigEndian.Uint16(data[i:])
		n := int(binary.BigEndian.Uint16(data[i+2:]))
		i += tlvHeader
		if n > len(data)-i {
			return a, fmt.Errorf("%w: type 0x%04X len %d", ErrTruncated, typ, n)
		}
		v := data[i : i+n]
		i += n

		a.Raw[typ] = v
		switch typ {
		case AttrMessageType:
			if n == 1 {
				a.MessageType = MessageType(v[0])
			}
		case AttrConfigError:
			if n == 2 {
				a.ConfigError = binary.BigEndian.Uint16(v)
				a.HasConfigError = true
			}
		case AttrEnrolleeNonce:
			a.EnrolleeNonce = v
		case AttrRegistrarNonce:
			a.RegistrarNonce = v
		case AttrVersion:
			if n == 1 {
				a.Version = v[0]
			}
		case AttrWPSState:
			if n == 1 {
				a.WPSState = v[0]
			}
		case AttrAPSetupLocked:
			a.APSetupLocked = n == 1 && v[0] != 0
		case AttrSelectedRegistrar:
			a.SelectedRegistrar = n == 1 && v[0] != 0
		case AttrDeviceName:
			a.DeviceName = string(v)
		case AttrManufacturer:
			a.Manufacturer = string(v)
		case AttrModelName:
			a.ModelName = string(v)
		case AttrModelNumber:
			a.ModelNumber = string(v)
		}
	}
	return a, nil
}

// Encoder appends TLVs to a buffer.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Put(typ uint16, v []byte) *Encoder {
	e.buf = binary.BigEndian.AppendUint16(e.buf, typ)
	e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(v)))
	e.buf = append(e.buf, v...)
	return e
}

func (e *Encoder) PutByte(typ uint16, v byte) *Encoder {
	return e.Put(typ, []byte{v})
}

func (e *Encoder) PutUint16(typ uint16, v uint16) *Encoder {
	return e.Put(typ, binary.BigEndian.AppendUint16(nil, v))
}

func (e *Encoder) Bytes() []byte { return e.buf }

// BuildNack returns the body of a WSC_NACK carrying reason. Missing nonces
// are zero-filled; the AP is told the transaction is over either way.
func BuildNack(enrolleeNonce, registrarNonce []byte, reason uint16) []byte {
	var e Encoder
	e.PutByte(AttrVersion, 0x10).
		PutByte(AttrMessageType, byte(MsgNack)).
		Put(AttrEnrolleeNonce, padNonce(enrolleeNonce)).
		Put(AttrRegistrarNonce, padNonce(registrarNonce)).
		PutUint16(AttrConfigError, reason)
	return e.Bytes()
}

func padNonce(n []byte) []byte {
	out := make([]byte, nonceLen)
	copy(out, n)
	return out
}
