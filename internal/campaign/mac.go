package campaign

import (
	"encoding/binary"
	"net"
)

// NextMAC returns mac with its low four bytes incremented as a big-endian
// counter, skipping values whose last byte is 0x00 or 0xFF.
func NextMAC(mac net.HardwareAddr) net.HardwareAddr {
	next := append(net.HardwareAddr(nil), mac...)
	if len(next) < 6 {
		return next
	}
	low := binary.BigEndian.Uint32(next[2:6])
	for {
		low++
		if b := low & 0xff; b != 0x00 && b != 0xff {
			break
		}
	}
	binary.BigEndian.PutUint32(next[2:6], low)
	return next
}
