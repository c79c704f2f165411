//go:build linux

package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// afpacketHandle wraps *afpacket.TPacket to implement Handle.
type afpacketHandle struct {
	tp *afpacket.TPacket
}

func (h *afpacketHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.tp.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, ErrReadTimeout
	}
	return data, ci, err
}

func (h *afpacketHandle) WritePacketData(data []byte) error {
	return h.tp.WritePacketData(data)
}

func (h *afpacketHandle) Close() {
	h.tp.Close()
}

// Open creates a TPacket V2 handle on a monitor interface. pollTimeout
// bounds every read so callers can check their own deadlines.
func Open(iface string, pollTimeout time.Duration) (Handle, error) {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(4096),
		afpacket.OptBlockSize(1024*1024),
		afpacket.OptNumBlocks(8),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion2),
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket init failed: %w", err)
	}
	return &afpacketHandle{tp: tp}, nil
}

// SetBPF compiles filter with libpcap and installs it on the handle.
func SetBPF(h Handle, iface, filter string) error {
	switch h := h.(type) {
	case *afpacketHandle:
		ph, err := pcap.OpenLive(iface, 1600, true, pcap.BlockForever)
		if err != nil {
			return err
		}
		defer ph.Close()

		insts, err := ph.CompileBPFFilter(filter)
		if err != nil {
			return err
		}

		raw := make([]bpf.RawInstruction, len(insts))
		for i, ins := range insts {
			raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
		}
		return h.tp.SetBPF(raw)

	case *OfflineHandle:
		return nil

	default:
		return fmt.Errorf("unsupported handle type for BPF")
	}
}

// Stats returns AF_PACKET ring statistics (frames received, dropped).
func Stats(h Handle) (received, dropped uint64) {
	ah, ok := h.(*afpacketHandle)
	if !ok {
		return 0, 0
	}
	_, stats, err := ah.tp.SocketStats()
	if err != nil {
		return 0, 0
	}
	return uint64(stats.Packets()), uint64(stats.Drops())
}
