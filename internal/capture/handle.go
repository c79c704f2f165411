// Package capture owns the monitor-mode interface: reading radiotap frames,
// injecting frames and the link-level steps around a WPS exchange.
package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Handle abstracts AF_PACKET (linux), pcap (darwin) and capture files.
type Handle interface {
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData(data []byte) error
	Close()
}

var (
	// ErrReadTimeout means the poll interval expired with nothing to read.
	ErrReadTimeout = errors.New("capture: read timeout")
	ErrNotMonitor  = errors.New("capture: interface is not in monitor mode")
)

// OfflineHandle replays a pcap file of radiotap frames. Transmitted frames
// are appended to an optional pcap writer so a run can be inspected later.
type OfflineHandle struct {
	mu     sync.Mutex
	file   *os.File
	reader *pcapgo.Reader
	tx     *pcapgo.Writer
}

// OpenOffline opens path for replay. tx may be nil to discard writes.
func OpenOffline(path string, tx io.Writer) (*OfflineHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	h, err := NewOfflineHandle(f, tx)
	if err != nil {
		f.Close()
		return nil, err
	}
	h.file = f
	return h, nil
}

// NewOfflineHandle reads pcap data from r.
func NewOfflineHandle(r io.Reader, tx io.Writer) (*OfflineHandle, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("pcap reader: %w", err)
	}
	if lt := reader.LinkType(); lt != layers.LinkTypeIEEE80211Radio {
		return nil, fmt.Errorf("capture file link type %s, want radiotap", lt)
	}
	h := &OfflineHandle{reader: reader}
	if tx != nil {
		h.tx = pcapgo.NewWriter(tx)
		if err := h.tx.WriteFileHeader(65536, layers.LinkTypeIEEE80211Radio); err != nil {
			return nil, fmt.Errorf("pcap writer: %w", err)
		}
	}
	return h, nil
}

func (h *OfflineHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reader.ReadPacketData()
}

func (h *OfflineHandle) WritePacketData(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return nil
	}
	ci := gopacket.CaptureInfo{CaptureLength: len(data), Length: len(data)}
	return h.tx.WritePacket(ci, data)
}

func (h *OfflineHandle) Close() {
	if h.file != nil {
		h.file.Close()
	}
}

// Filter returns the BPF expression selecting frames to or from bssid.
func Filter(bssid string) string {
	return fmt.Sprintf("wlan addr3 %s or wlan addr2 %s", bssid, bssid)
}
