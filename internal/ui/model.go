package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

const maxLog = 500

type logLine struct {
	Type EventType
	Text string
	Time time.Time
}

// Model is the bubbletea TUI model.
type Model struct {
	// Config
	BSSID string
	ESSID string
	Iface string

	// Data
	stats   Stats
	current string
	found   string
	log     []logLine

	// Terminal
	width, height int
	done          bool
	quitting      bool

	// cancel stops the campaign when the user quits.
	cancel func()
}

func NewModel(bssid, essid, iface string, cancel func()) Model {
	return Model{
		BSSID:  bssid,
		ESSID:  essid,
		Iface:  iface,
		log:    make([]logLine, 0, 64),
		cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case Event:
		m.handleEvent(msg)
		if m.done {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *Model) handleEvent(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	switch ev.Type {
	case EvtAttempt:
		m.current = ev.PIN
		m.appendLog(ev.Type, fmt.Sprintf("Trying pin %q", ev.PIN), ev.Time)
	case EvtProgress:
		m.stats = ev.Stats
	case EvtCracked:
		m.found = ev.PIN
		m.appendLog(ev.Type, fmt.Sprintf("WPS PIN: %q", ev.PIN), ev.Time)
	case EvtDone:
		m.done = true
	default:
		m.appendLog(ev.Type, ev.Msg, ev.Time)
	}
}

func (m *Model) appendLog(t EventType, text string, at time.Time) {
	m.log = append(m.log, logLine{Type: t, Text: text, Time: at})
	if len(m.log) > maxLog {
		m.log = m.log[len(m.log)-maxLog:]
	}
}

func (m Model) View() string {
	if m.quitting || m.done {
		return ""
	}

	w := m.width
	if w < 40 {
		w = 80
	}

	var b strings.Builder

	// Line 1: header
	m.renderHeader(&b, w)
	// Line 2: progress
	m.renderProgress(&b, w)
	// Line 3: current candidate
	m.renderCurrent(&b, w)
	// Event log fills the rest
	m.renderLog(&b, w)
	m.renderHelp(&b, w)

	return b.String()
}

func (m Model) renderHeader(b *strings.Builder, w int) {
	title := styleAccent.Render("wps-brute")
	meta := styleDim.Render(fmt.Sprintf(" %s · %s · %s", m.Iface, m.BSSID, truncStr(m.ESSID, 32)))
	b.WriteString(" " + title + meta + "\n")
}

func (m Model) renderProgress(b *strings.Builder, w int) {
	barW := 20
	if w > 120 {
		barW = 30
	}
	frac := m.stats.Progress / 100
	filled := int(frac * float64(barW))
	if filled > barW {
		filled = barW
	}
	empty := barW - filled
	bar := styleBar.Render(strings.Repeat("█", filled)) + styleBarTrail.Render(strings.Repeat("░", empty))

	pct := fmt.Sprintf("%6.2f%%", m.stats.Progress)

	eta := ""
	if m.stats.SecondsPerPin > 0 && m.stats.Total > m.stats.Tested {
		rem := time.Duration(float64(m.stats.Total-m.stats.Tested)*m.stats.SecondsPerPin) * time.Second
		eta = " ETA " + fmtDuration(rem)
	}
	if frac >= 1 {
		eta = " done"
	}

	stats := fmt.Sprintf("  %s/%s tested  %d tries  %.0fs/pin  %s",
		fmtCompact(uint64(m.stats.Tested)),
		fmtCompact(uint64(m.stats.Total)),
		m.stats.Attempts,
		m.stats.SecondsPerPin,
		m.stats.KeyStatus)

	elapsed := m.stats.Elapsed.Truncate(time.Second).String()

	line := fmt.Sprintf(" %s %s%s%s  %s", bar, pct, eta, styleDim.Render(stats), styleDim.Render(elapsed))
	b.WriteString(line + "\n")
}

func (m Model) renderCurrent(b *strings.Builder, w int) {
	if m.found != "" {
		b.WriteString(" " + styleCracked.Render(" WPS PIN "+m.found+" ") + "\n")
		return
	}
	cur := m.current
	if cur == "" {
		cur = "-"
	}
	line := fmt.Sprintf(" %s %s", styleHeader.Render("pin"), styleAttempt.Render(cur))
	if m.stats.MAC != "" {
		line += styleDim.Render("  mac " + m.stats.MAC)
	}
	b.WriteString(line + "\n")
}

func (m Model) visibleRows() int {
	h := m.height
	if h <= 0 {
		h = 24
	}
	// header, progress, current, help
	vis := h - 4
	if vis < 1 {
		vis = 1
	}
	return vis
}

func (m Model) renderLog(b *strings.Builder, w int) {
	vis := m.visibleRows()
	start := 0
	if len(m.log) > vis {
		start = len(m.log) - vis
	}
	for _, l := range m.log[start:] {
		ts := styleDim.Render(l.Time.Format("15:04:05"))
		b.WriteString(" " + ts + " " + styleFor(l.Type).Render(truncStr(l.Text, w-11)) + "\n")
	}
	for i := len(m.log) - start; i < vis; i++ {
		b.WriteString("\n")
	}
}

func styleFor(t EventType) interface{ Render(...string) string } {
	switch t {
	case EvtWarning:
		return styleWarn
	case EvtLocked:
		return styleLocked
	case EvtAttempt:
		return styleAttempt
	case EvtCracked:
		return styleCracked
	default:
		return styleInfo
	}
}

func (m Model) renderHelp(b *strings.Builder, w int) {
	help := " q:quit (progress is saved)"
	b.WriteString(styleHelp.Render(truncStr(help, w)))
}

// ── Formatting helpers ────────────────────────────────────────────────

func fmtCompact(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 10_000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	if n < 1_000_000 {
		return fmt.Sprintf("%.0fk", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
}

func fmtDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, mnt)
	}
	if mnt > 0 {
		return fmt.Sprintf("%dm%02ds", mnt, s)
	}
	return fmt.Sprintf("%ds", s)
}

func truncStr(s string, w int) string {
	if w < 1 {
		return ""
	}
	if len(s) <= w {
		return s
	}
	if w < 2 {
		return s[:w]
	}
	return s[:w-1] + "…"
}

// ── TextPrinter (non-TUI mode) ───────────────────────────────────────

// TextPrinter writes "[+]" / "[!]" prefixed status lines.
type TextPrinter struct {
	Out     io.Writer
	Verbose bool
}

func (p *TextPrinter) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *TextPrinter) PrintEvent(ev Event) {
	w := p.out()
	switch ev.Type {
	case EvtInfo:
		fmt.Fprintf(w, "[+] %s\n", ev.Msg)
	case EvtWarning, EvtLocked:
		fmt.Fprintf(w, "[!] WARNING: %s\n", ev.Msg)
	case EvtAttempt:
		if p.Verbose {
			fmt.Fprintf(w, "[+] Trying pin %q\n", ev.PIN)
		}
	case EvtProgress:
		p.PrintStats(ev.Stats)
	case EvtCracked:
		fmt.Fprintf(w, "[+] WPS PIN: %q\n", ev.PIN)
	}
}

func (p *TextPrinter) PrintStats(s Stats) {
	fmt.Fprintf(p.out(), "[+] %.2f%% complete @ %s (%.0f seconds/pin)\n",
		s.Progress, time.Now().Format("2006-01-02 15:04:05"), s.SecondsPerPin)
}
