//go:build darwin

package capture

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// pcapHandle wraps *pcap.Handle to implement Handle.
type pcapHandle struct {
	h *pcap.Handle
}

func (p *pcapHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := p.h.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}

func (p *pcapHandle) WritePacketData(data []byte) error {
	return p.h.WritePacketData(data)
}

func (p *pcapHandle) Close() {
	p.h.Close()
}

// Open creates a pcap handle with rfmon enabled (macOS/BPF).
func Open(iface string, pollTimeout time.Duration) (Handle, error) {
	inactive, err := pcap.NewInactiveHandle(iface)
	if err != nil {
		return nil, fmt.Errorf("pcap init failed: %w", err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetRFMon(true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMonitor, err)
	}
	inactive.SetSnapLen(65536)
	inactive.SetTimeout(pollTimeout)

	h, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("pcap activate failed: %w", err)
	}
	return &pcapHandle{h: h}, nil
}

func SetBPF(h Handle, iface, filter string) error {
	switch h := h.(type) {
	case *pcapHandle:
		return h.h.SetBPFFilter(filter)
	case *OfflineHandle:
		return nil
	default:
		return fmt.Errorf("unsupported handle type for BPF")
	}
}

// Stats returns pcap capture statistics.
func Stats(h Handle) (received, dropped uint64) {
	ph, ok := h.(*pcapHandle)
	if !ok {
		return 0, 0
	}
	stats, err := ph.h.Stats()
	if err != nil {
		return 0, 0
	}
	return uint64(stats.PacketsReceived), uint64(stats.PacketsDropped)
}
