// Package frame builds and classifies the 802.11 frames of a WPS
// registration: radiotap, 802.11, LLC/SNAP, EAPOL and EAP.
package frame

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

// Minimal radiotap header: version 0, length 8, no present fields.
var radiotapHeader = []byte{0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}

var supportedRates = []byte{0x82, 0x84, 0x8b, 0x96, 0x0c, 0x12, 0x18, 0x24}

// WPS vendor IE prefix: Microsoft OUI, type 4.
var wpsOUI = []byte{0x00, 0x50, 0xF2, 0x04}

// EAP codes and types the registrar emits.
const (
	eapCodeResponse = 2
	eapCodeFailure  = 4
	eapTypeIdentity = 1

	dot11IDSSID    = 0
	dot11IDRates   = 1
	dot11IDVendor  = 221
	capabilityInfo = 0x0431
	listenInterval = 0x0064
)

// Builder creates frames from the registrar (our MAC) to one BSSID.
// Every method returns a freshly allocated slice.
type Builder struct {
	mu    sync.Mutex
	src   net.HardwareAddr
	bssid net.HardwareAddr
	seq   uint16
	opts  gopacket.SerializeOptions
	buf   gopacket.SerializeBuffer
}

// NewBuilder initializes a builder for src talking to bssid.
func NewBuilder(src, bssid net.HardwareAddr) *Builder {
	return &Builder{
		src:   append(net.HardwareAddr(nil), src...),
		bssid: append(net.HardwareAddr(nil), bssid...),
		// Lengths are written explicitly; EAP length fixing is not
		// reliable across gopacket releases.
		opts: gopacket.SerializeOptions{},
		buf:  gopacket.NewSerializeBuffer(),
	}
}

// SetSource changes the transmitter address, used after MAC rotation.
func (b *Builder) SetSource(mac net.HardwareAddr) {
	b.mu.Lock()
	b.src = append(net.HardwareAddr(nil), mac...)
	b.mu.Unlock()
}

func (b *Builder) Source() net.HardwareAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(net.HardwareAddr(nil), b.src...)
}

// EAPOLStart asks the AP to begin an EAP session.
func (b *Builder) EAPOLStart() ([]byte, error) {
	return b.eapol(layers.EAPOLTypeStart, nil)
}

// IdentityResponse answers an EAP identity request with the registrar id.
func (b *Builder) IdentityResponse(id uint8) ([]byte, error) {
	eap := eapPacket(eapCodeResponse, id, eapTypeIdentity, []byte(wsc.RegistrarID))
	return b.eapol(layers.EAPOLTypeEAP, eap)
}

// WSC wraps a WSC message body in an EAP expanded-type response.
func (b *Builder) WSC(id uint8, op wsc.Opcode, body []byte) ([]byte, error) {
	data := make([]byte, 0, 9+len(body))
	data = append(data, byte(wsc.VendorWFA>>16&0xff), byte(wsc.VendorWFA>>8&0xff), byte(wsc.VendorWFA&0xff))
	data = binary.BigEndian.AppendUint32(data, wsc.VendorTypeWSC)
	data = append(data, byte(op), 0x00)
	data = append(data, body...)
	eap := eapPacket(eapCodeResponse, id, wsc.EAPTypeExpanded, data)
	return b.eapol(layers.EAPOLTypeEAP, eap)
}

// EAPFailure terminates the EAP session.
func (b *Builder) EAPFailure(id uint8) ([]byte, error) {
	eap := []byte{eapCodeFailure, id, 0x00, 0x04}
	return b.eapol(layers.EAPOLTypeEAP, eap)
}

// Authentication is an open-system authentication request.
func (b *Builder) Authentication() ([]byte, error) {
	body := make([]byte, 6)
	binary.LittleEndian.PutUint16(body[0:], 0) // open system
	binary.LittleEndian.PutUint16(body[2:], 1) // sequence
	return b.management(layers.Dot11TypeMgmtAuthentication, body)
}

// AssociationRequest associates to ssid, announcing a WPS registrar.
func (b *Builder) AssociationRequest(ssid string) ([]byte, error) {
	body := make([]byte, 4, 64)
	binary.LittleEndian.PutUint16(body[0:], capabilityInfo)
	binary.LittleEndian.PutUint16(body[2:], listenInterval)
	body = appendIE(body, dot11IDSSID, []byte(ssid))
	body = appendIE(body, dot11IDRates, supportedRates)

	var e wsc.Encoder
	e.PutByte(wsc.AttrVersion, 0x10).PutByte(wsc.AttrRequestType, 0x02)
	body = appendIE(body, dot11IDVendor, append(append([]byte(nil), wpsOUI...), e.Bytes()...))
	return b.management(layers.Dot11TypeMgmtAssociationReq, body)
}

func (b *Builder) eapol(typ layers.EAPOLType, eap []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dot11 := b.header(layers.Dot11TypeData, layers.Dot11FlagsToDS)
	llc := layers.LLC{DSAP: 0xAA, SSAP: 0xAA, Control: 0x03}
	snap := layers.SNAP{OrganizationalCode: []byte{0, 0, 0}, Type: layers.EthernetTypeEAPOL}
	eapol := layers.EAPOL{Version: 1, Type: typ, Length: uint16(len(eap))}

	return b.serialize(&dot11, &llc, &snap, &eapol, gopacket.Payload(eap))
}

func (b *Builder) management(typ layers.Dot11Type, body []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	dot11 := b.header(typ, 0)
	return b.serialize(&dot11, gopacket.Payload(body))
}

func (b *Builder) header(typ layers.Dot11Type, flags layers.Dot11Flags) layers.Dot11 {
	b.seq = (b.seq + 1) & 0x0FFF
	return layers.Dot11{
		Type:           typ,
		Flags:          flags,
		DurationID:     0x013A,
		Address1:       b.bssid,
		Address2:       b.src,
		Address3:       b.bssid,
		SequenceNumber: b.seq,
	}
}

func (b *Builder) serialize(l ...gopacket.SerializableLayer) ([]byte, error) {
	b.buf.Clear()
	if err := gopacket.SerializeLayers(b.buf, b.opts, l...); err != nil {
		return nil, err
	}
	raw := b.buf.Bytes()
	out := make([]byte, len(radiotapHeader)+len(raw))
	copy(out, radiotapHeader)
	copy(out[len(radiotapHeader):], raw)
	return out, nil
}

func eapPacket(code, id, typ uint8, data []byte) []byte {
	p := make([]byte, 5, 5+len(data))
	p[0], p[1] = code, id
	binary.BigEndian.PutUint16(p[2:], uint16(5+len(data)))
	p[4] = typ
	return append(p, data...)
}

func appendIE(b []byte, id uint8, v []byte) []byte {
	b = append(b, id, uint8(len(v)))
	return append(b, v...)
}
