package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/Redfern89/reaver-redfern89/internal/campaign"
	"github.com/Redfern89/reaver-redfern89/internal/capture"
	"github.com/Redfern89/reaver-redfern89/internal/config"
	"github.com/Redfern89/reaver-redfern89/internal/exchange"
	"github.com/Redfern89/reaver-redfern89/internal/logging"
	"github.com/Redfern89/reaver-redfern89/internal/output"
	"github.com/Redfern89/reaver-redfern89/internal/session"
	"github.com/Redfern89/reaver-redfern89/internal/ui"
	"github.com/Redfern89/reaver-redfern89/internal/utils/netinfo"
	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

func run(parent context.Context, cfg *config.Config, jsonOut bool) error {
	if parent == nil {
		parent = context.Background()
	}

	// ── Target ─────────────────────────────────────────────────────────
	if cfg.Attack.BSSID == "" {
		return errors.New("no target BSSID, use -b")
	}
	if cfg.Capture.Interface == "" {
		return errors.New("no capture interface, use -i")
	}
	bssid, err := net.ParseMAC(cfg.Attack.BSSID)
	if err != nil {
		return fmt.Errorf("invalid BSSID %q: %w", cfg.Attack.BSSID, err)
	}

	// ── UI mode ────────────────────────────────────────────────────────
	var uiMode ui.Mode
	if cfg.Output.Quiet {
		uiMode = ui.ModeSilent
	} else if cfg.Output.NoTUI || jsonOut || !isatty.IsTerminal(os.Stdout.Fd()) {
		uiMode = ui.ModeText
	} else {
		uiMode = ui.ModeTUI
	}
	textOut := io.Writer(os.Stdout)
	if jsonOut {
		textOut = os.Stderr
	}

	// ── Logging ────────────────────────────────────────────────────────
	// The TUI owns the terminal, so console logs are dropped unless a log
	// file is configured.
	console := io.Writer(os.Stderr)
	if uiMode == ui.ModeTUI && cfg.Log.File == "" {
		console = io.Discard
	}
	logger, logCloser, err := logging.New(cfg.Log, console)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	runID := uuid.New().String()
	log := logger.WithFields(logrus.Fields{"run": runID})

	// ── Interface ──────────────────────────────────────────────────────
	iface := cfg.Capture.Interface
	wl, err := netinfo.GetWireless(iface)
	if err != nil {
		return err
	}
	if !wl.Monitor {
		return fmt.Errorf("%s is not in monitor mode, try: %s", iface, monitorHint(iface))
	}
	if !netinfo.Privileged() {
		log.Warn("Not running as root, frame injection will probably fail")
	}
	mac, err := netinfo.StationMAC(wl, cfg.Capture.MAC)
	if err != nil {
		return err
	}

	// ── Components ─────────────────────────────────────────────────────
	h, err := capture.Open(iface, cfg.Capture.PollTimeout.Duration)
	if err != nil {
		return err
	}
	if !cfg.Capture.NoBPF {
		if err := capture.SetBPF(h, iface, capture.Filter(bssid.String())); err != nil {
			log.WithError(err).Warn("Kernel filter not installed, filtering in user space")
		}
	}
	link := capture.NewLink(h, capture.LinkConfig{
		Iface:        iface,
		BSSID:        bssid,
		MAC:          mac,
		SSID:         cfg.Attack.ESSID,
		TxRate:       cfg.Capture.TxRate,
		TxBurst:      cfg.Capture.TxBurst,
		AssocTimeout: cfg.Capture.AssocTimeout.Duration,
		Logger:       log,
	})

	exch := exchange.New(link, &wsc.Unavailable{}, exchange.Policy{
		IgnoreOutOfOrder: cfg.Attack.IgnoreOutOfOrder,
		RepeatM6:         cfg.Attack.RepeatM6,
		TimeoutIsNack:    cfg.Attack.TimeoutIsNack,
		EAPTerminate:     cfg.Attack.EAPTerminate,
		ReceiveTimeout:   cfg.Attack.ReceiveTimeout.Duration,
		M57Timeout:       cfg.Attack.M57Timeout.Duration,
	}, log)

	var sessions campaign.Sessions
	if !cfg.Session.Disabled {
		store := session.NewStore(cfg.Session.Dir, cfg.Session.MaxAge.Duration)
		if cfg.Session.Reset {
			if err := store.Remove(bssid); err != nil {
				link.Close()
				return fmt.Errorf("reset session: %w", err)
			}
			log.WithField("path", store.Path(bssid)).Info("Discarded saved session")
		}
		sessions = store
	}

	ctrl := campaign.New(campaign.Config{
		StaticPIN:          cfg.Attack.PIN,
		MaxAttempts:        cfg.Attack.MaxAttempts,
		Delay:              cfg.Attack.Delay.Duration,
		RecurringEvery:     cfg.Attack.RecurringEvery,
		RecurringDelay:     cfg.Attack.RecurringDelay.Duration,
		LockDelay:          cfg.Attack.LockDelay.Duration,
		IgnoreLocks:        cfg.Attack.IgnoreLocks,
		MaxLockWaits:       cfg.Attack.MaxLockWaits,
		BeaconTimeout:      cfg.Attack.BeaconTimeout.Duration,
		FailWait:           cfg.Attack.FailWait.Duration,
		AssociationRetries: cfg.Attack.AssociationRetries,
		AssociationWait:    cfg.Attack.AssociationWait.Duration,
		MACChanger:         cfg.Attack.MACChanger,
		NoSession:          cfg.Session.Disabled,
		Unsupported:        unsupported(bssid, cfg.Attack.Unsupported),
	}, link, exch, sessions, log)

	// ── Output sinks ───────────────────────────────────────────────────
	sink := output.NewOutputSink()
	if cfg.Output.File != "" {
		fw, err := output.NewWriter(cfg.Output.File)
		if err != nil {
			link.Close()
			return err
		}
		sink.Add(fw)
	}
	if jsonOut {
		sink.Add(output.NewStdoutWriter(os.Stdout, 0))
	}
	if wh := cfg.Output.Webhook; wh != nil && wh.URL != "" {
		sink.Add(output.NewWebhookWriter(output.WebhookConfig{
			URL:        wh.URL,
			Timeout:    wh.Timeout.Duration,
			MaxRetries: wh.MaxRetries,
			Headers:    wh.Headers,
			Logger:     log,
		}))
	}
	record := func(event string, res *output.Result) {
		res.Event = event
		res.RunID = runID
		res.BSSID = bssid.String()
		res.ESSID = link.SSID()
		if res.Timestamp == "" {
			res.Stamp(time.Now())
		}
		if err := sink.Write(res); err != nil {
			log.WithError(err).Warn("Result not written")
		}
	}

	// ── Signals ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ── Events channel ─────────────────────────────────────────────────
	events := make(chan ui.Event, 256)
	ctrl.SetEvents(events)

	if cfg.Attack.Channel != 0 {
		if canSetChannel() {
			if err := link.SetChannel(ctx, cfg.Attack.Channel); err != nil {
				link.Close()
				return err
			}
		} else {
			log.Warnf("Cannot switch channels here, tune %s to channel %d yourself", iface, cfg.Attack.Channel)
		}
	}

	// ── Start UI ───────────────────────────────────────────────────────
	var program *tea.Program
	if uiMode == ui.ModeTUI {
		program = tea.NewProgram(ui.NewModel(bssid.String(), cfg.Attack.ESSID, iface, cancel), tea.WithAltScreen())
	}
	printer := &ui.TextPrinter{Out: textOut, Verbose: cfg.Output.Verbose}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		for ev := range events {
			if ev.Type == ui.EvtProgress {
				record(output.EventProgress, progressResult(ev.Stats, ev.Time))
			}
			switch uiMode {
			case ui.ModeTUI:
				program.Send(ev)
			case ui.ModeText:
				// The final result line covers the PIN.
				if ev.Type != ui.EvtCracked {
					printer.PrintEvent(ev)
				}
			}
		}
	}()

	log.WithFields(logrus.Fields{
		"bssid":     bssid.String(),
		"interface": iface,
		"mac":       mac.String(),
	}).Info("Starting")

	// ── Run (TUI blocks, text/silent wait for the campaign) ────────────
	var (
		sum    campaign.Summary
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sum, runErr = ctrl.Run(ctx)
	}()

	if uiMode == ui.ModeTUI {
		go func() {
			<-done
			program.Send(ui.Event{Type: ui.EvtDone})
		}()
		if _, err := program.Run(); err != nil {
			log.WithError(err).Error("TUI failed")
			cancel()
		}
	}
	<-done

	// ── Cleanup ────────────────────────────────────────────────────────
	close(events)
	<-pumpDone

	final := &output.Result{
		PIN:       sum.PIN,
		Attempts:  sum.Attempts,
		Progress:  sum.Progress,
		KeyStatus: ctrl.Space().Status().String(),
		Elapsed:   sum.Elapsed.Round(time.Second).String(),
	}
	if runErr != nil {
		final.Error = runErr.Error()
		record(output.EventFailed, final)
	} else {
		record(output.EventCracked, final)
	}
	if err := sink.Close(); err != nil {
		log.WithError(err).Warn("Closing outputs")
	}

	if err := printResult(textOut, final); err != nil {
		log.WithError(err).Warn("Result not printed")
	}

	if errors.Is(runErr, context.Canceled) && parent.Err() == nil {
		// Interrupted; progress is saved.
		return nil
	}
	return runErr
}

// printResult writes the closing report for res.
func printResult(w io.Writer, res *output.Result) error {
	fw := output.NewFormattedWriter(output.NewTextFormatter(w))
	if err := fw.Write(res); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func progressResult(s ui.Stats, at time.Time) *output.Result {
	return &output.Result{
		Attempts:      s.Attempts,
		Progress:      s.Progress,
		KeyStatus:     s.KeyStatus,
		SecondsPerPin: s.SecondsPerPin,
		Elapsed:       s.Elapsed.Round(time.Second).String(),
		Timestamp:     at.UTC().Format(time.RFC3339),
	}
}

// unsupported reports whether bssid starts with one of the configured
// vendor prefixes.
func unsupported(bssid net.HardwareAddr, prefixes []string) bool {
	s := strings.ToUpper(bssid.String())
	for _, p := range prefixes {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
