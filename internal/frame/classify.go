package frame

import (
	"bytes"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

// Kind is the coarse classification of a received frame.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDeauth
	KindIdentityRequest
	KindEAPFailure
	KindWSC
	KindBeacon
	KindAuthResponse
	KindAssocResponse
)

func (k Kind) String() string {
	switch k {
	case KindDeauth:
		return "deauth"
	case KindIdentityRequest:
		return "identity-request"
	case KindEAPFailure:
		return "eap-failure"
	case KindWSC:
		return "wsc"
	case KindBeacon:
		return "beacon"
	case KindAuthResponse:
		return "auth-response"
	case KindAssocResponse:
		return "assoc-response"
	default:
		return "unknown"
	}
}

// Beacon carries what a beacon or probe response says about the AP.
type Beacon struct {
	SSID    string
	Channel int
	HasWPS  bool
	Locked  bool
	Attrs   wsc.Attributes
}

// Frame is a classified frame. Only the fields relevant to Kind are set.
type Frame struct {
	Kind   Kind
	EAPID  uint8
	Opcode wsc.Opcode
	Body   []byte
	Attrs  wsc.Attributes
	Status uint16
	Beacon *Beacon
}

// Msg is the WSC message type of a KindWSC frame.
func (f Frame) Msg() wsc.MessageType { return f.Attrs.MessageType }

var decodeOpts = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

// Classify decodes a radiotap frame captured on a monitor interface. Frames
// not exchanged between self and bssid come back as KindUnknown, except
// beacons from bssid.
func Classify(data []byte, self, bssid net.HardwareAddr) Frame {
	p := gopacket.NewPacket(data, layers.LayerTypeRadioTap, decodeOpts)
	l := p.Layer(layers.LayerTypeDot11)
	if l == nil {
		return Frame{}
	}
	d := l.(*layers.Dot11)
	if !bytes.Equal(d.Address3, bssid) {
		return Frame{}
	}

	if d.Type == layers.Dot11TypeMgmtBeacon || d.Type == layers.Dot11TypeMgmtProbeResp {
		return Frame{Kind: KindBeacon, Beacon: parseBeacon(p)}
	}
	if !bytes.Equal(d.Address1, self) {
		return Frame{}
	}

	switch d.Type {
	case layers.Dot11TypeMgmtDeauthentication:
		return Frame{Kind: KindDeauth}
	case layers.Dot11TypeMgmtAuthentication:
		if a, ok := p.Layer(layers.LayerTypeDot11MgmtAuthentication).(*layers.Dot11MgmtAuthentication); ok {
			return Frame{Kind: KindAuthResponse, Status: uint16(a.Status)}
		}
	case layers.Dot11TypeMgmtAssociationResp:
		if a, ok := p.Layer(layers.LayerTypeDot11MgmtAssociationResp).(*layers.Dot11MgmtAssociationResp); ok {
			return Frame{Kind: KindAssocResponse, Status: uint16(a.Status)}
		}
	case layers.Dot11TypeData, layers.Dot11TypeDataQOSData:
		return classifyEAP(p)
	}
	return Frame{}
}

func classifyEAP(p gopacket.Packet) Frame {
	eap, ok := p.Layer(layers.LayerTypeEAP).(*layers.EAP)
	if !ok {
		return Frame{}
	}
	switch eap.Code {
	case layers.EAPCodeFailure:
		return Frame{Kind: KindEAPFailure, EAPID: eap.Id}
	case layers.EAPCodeRequest:
	default:
		return Frame{}
	}

	if eap.Type == layers.EAPTypeIdentity {
		return Frame{Kind: KindIdentityRequest, EAPID: eap.Id}
	}
	if eap.Type != wsc.EAPTypeExpanded {
		return Frame{}
	}

	td := eap.TypeData
	if n := int(eap.Length) - 5; n >= 0 && n < len(td) {
		td = td[:n]
	}
	// vendor id (3) + vendor type (4) + opcode + flags
	if len(td) < 9 {
		return Frame{}
	}
	vendor := uint32(td[0])<<16 | uint32(td[1])<<8 | uint32(td[2])
	vtype := uint32(td[3])<<24 | uint32(td[4])<<16 | uint32(td[5])<<8 | uint32(td[6])
	if vendor != wsc.VendorWFA || vtype != wsc.VendorTypeWSC {
		return Frame{}
	}
	op, flags := wsc.Opcode(td[7]), td[8]
	body := td[9:]
	if flags&0x02 != 0 {
		if len(body) < 2 {
			return Frame{}
		}
		body = body[2:]
	}

	f := Frame{Kind: KindWSC, EAPID: eap.Id, Opcode: op, Body: body}
	// A truncated tail still leaves a usable message type.
	f.Attrs, _ = wsc.Parse(body)
	return f
}

func parseBeacon(p gopacket.Packet) *Beacon {
	b := &Beacon{}
	var wps []byte
	for _, l := range p.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		switch ie.ID {
		case layers.Dot11InformationElementIDSSID:
			b.SSID = string(ie.Info)
		case layers.Dot11InformationElementIDDSSet:
			if len(ie.Info) > 0 {
				b.Channel = int(ie.Info[0])
			}
		case layers.Dot11InformationElementIDVendor:
			// gopacket splits vendor IEs into OUI (with type byte) and Info.
			body := append(append([]byte(nil), ie.OUI...), ie.Info...)
			if bytes.HasPrefix(body, wpsOUI) {
				wps = append(wps, body[len(wpsOUI):]...)
			}
		}
	}
	if wps != nil {
		b.HasWPS = true
		b.Attrs, _ = wsc.Parse(wps)
		b.Locked = b.Attrs.APSetupLocked
	}
	return b
}
