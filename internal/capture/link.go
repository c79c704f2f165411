package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Redfern89/reaver-redfern89/internal/frame"
	"github.com/Redfern89/reaver-redfern89/internal/limiter"
	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

var (
	ErrAssociation = errors.New("capture: association failed")
	ErrNoBeacon    = errors.New("capture: no beacon from target")
)

// LinkConfig describes the target and transmit pacing.
type LinkConfig struct {
	Iface        string
	BSSID        net.HardwareAddr
	MAC          net.HardwareAddr
	SSID         string
	TxRate       float64 // frames per second
	TxBurst      float64
	AssocTimeout time.Duration
	Logger       *logrus.Entry
}

// Link is the station side of the air interface towards one BSSID.
type Link struct {
	handle  Handle
	builder *frame.Builder
	bucket  *limiter.TokenBucket
	log     *logrus.Entry
	iface   string
	bssid   net.HardwareAddr

	mu    sync.RWMutex
	mac   net.HardwareAddr
	ssid  string
	assoc time.Duration

	// command runner, replaced in tests
	run func(ctx context.Context, name string, args ...string) error
}

// NewLink wraps an open handle. The link owns the handle from here on.
func NewLink(h Handle, cfg LinkConfig) *Link {
	if cfg.TxRate <= 0 {
		cfg.TxRate = 100
	}
	if cfg.TxBurst <= 0 {
		cfg.TxBurst = 10
	}
	if cfg.AssocTimeout <= 0 {
		cfg.AssocTimeout = time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Link{
		handle:  h,
		builder: frame.NewBuilder(cfg.MAC, cfg.BSSID),
		bucket:  limiter.NewTokenBucket(cfg.TxRate, cfg.TxBurst),
		log:     log,
		iface:   cfg.Iface,
		bssid:   cfg.BSSID,
		mac:     cfg.MAC,
		ssid:    cfg.SSID,
		assoc:   cfg.AssocTimeout,
		run:     runCommand,
	}
}

func (l *Link) BSSID() net.HardwareAddr { return l.bssid }

func (l *Link) MAC() net.HardwareAddr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.mac
}

// SetMAC changes the address frames are sent from and accepted for.
func (l *Link) SetMAC(mac net.HardwareAddr) {
	l.mu.Lock()
	l.mac = append(net.HardwareAddr(nil), mac...)
	l.mu.Unlock()
	l.builder.SetSource(mac)
}

func (l *Link) SSID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ssid
}

func (l *Link) SetSSID(ssid string) {
	l.mu.Lock()
	l.ssid = ssid
	l.mu.Unlock()
}

// ReadFrame returns the next frame, classified relative to our MAC and the
// BSSID. It returns ErrReadTimeout when the poll interval passes quietly so
// callers can service their timers.
func (l *Link) ReadFrame(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	data, _, err := l.handle.ReadPacket()
	if err != nil {
		return frame.Frame{}, err
	}
	return frame.Classify(data, l.MAC(), l.bssid), nil
}

// Send transmits a raw frame through the token bucket.
func (l *Link) Send(ctx context.Context, data []byte) error {
	if err := l.bucket.Wait(ctx, 1); err != nil {
		return err
	}
	if err := l.handle.WritePacketData(data); err != nil {
		return fmt.Errorf("inject frame: %w", err)
	}
	return nil
}

func (l *Link) build(ctx context.Context, data []byte, err error) error {
	if err != nil {
		return fmt.Errorf("build frame: %w", err)
	}
	return l.Send(ctx, data)
}

func (l *Link) SendEAPOLStart(ctx context.Context) error {
	data, err := l.builder.EAPOLStart()
	return l.build(ctx, data, err)
}

func (l *Link) SendIdentityResponse(ctx context.Context, id uint8) error {
	data, err := l.builder.IdentityResponse(id)
	return l.build(ctx, data, err)
}

func (l *Link) SendWSC(ctx context.Context, id uint8, op wsc.Opcode, body []byte) error {
	data, err := l.builder.WSC(id, op, body)
	return l.build(ctx, data, err)
}

func (l *Link) SendEAPFailure(ctx context.Context, id uint8) error {
	data, err := l.builder.EAPFailure(id)
	return l.build(ctx, data, err)
}

// Reassociate runs open-system authentication followed by association.
// Any failure other than cancellation is returned wrapped in ErrAssociation;
// callers retry.
func (l *Link) Reassociate(ctx context.Context) error {
	data, err := l.builder.Authentication()
	if err := l.build(ctx, data, err); err != nil {
		return assocError("authentication request", err)
	}
	if err := l.await(ctx, frame.KindAuthResponse); err != nil {
		return assocError("authentication", err)
	}

	data, err = l.builder.AssociationRequest(l.SSID())
	if err := l.build(ctx, data, err); err != nil {
		return assocError("association request", err)
	}
	if err := l.await(ctx, frame.KindAssocResponse); err != nil {
		return assocError("association", err)
	}
	return nil
}

func assocError(step string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrAssociation, step, err)
}

func (l *Link) await(ctx context.Context, kind frame.Kind) error {
	deadline := time.Now().Add(l.assoc)
	for time.Now().Before(deadline) {
		f, err := l.ReadFrame(ctx)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		if f.Kind != kind {
			continue
		}
		if f.Status != 0 {
			return fmt.Errorf("status %d", f.Status)
		}
		return nil
	}
	return fmt.Errorf("no %s within %s", kind, l.assoc)
}

// NextBeacon waits up to timeout for a beacon from the BSSID.
func (l *Link) NextBeacon(ctx context.Context, timeout time.Duration) (*frame.Beacon, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f, err := l.ReadFrame(ctx)
		if errors.Is(err, ErrReadTimeout) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if f.Kind == frame.KindBeacon {
			return f.Beacon, nil
		}
	}
	return nil, ErrNoBeacon
}

// SetChannel tunes the interface with iw.
func (l *Link) SetChannel(ctx context.Context, channel int) error {
	if err := l.run(ctx, "iw", "dev", l.iface, "set", "channel", strconv.Itoa(channel)); err != nil {
		return fmt.Errorf("set channel %d on %s: %w", channel, l.iface, err)
	}
	l.log.WithField("channel", channel).Debug("Switched channel")
	return nil
}

func (l *Link) Stats() (received, dropped uint64) { return Stats(l.handle) }

// Close logs the capture counters and releases the handle.
func (l *Link) Close() {
	rx, dropped := l.Stats()
	l.log.WithFields(logrus.Fields{"received": rx, "dropped": dropped}).Debug("Capture closed")
	l.handle.Close()
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, out)
	}
	return err
}
