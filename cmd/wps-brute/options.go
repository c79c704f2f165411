package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Redfern89/reaver-redfern89/internal/config"
)

const envPrefix = "WPSBRUTE"

// registerFlags declares the CLI and binds every flag to its config key.
func registerFlags(cmd *cobra.Command, v *viper.Viper) {
	fs := cmd.Flags()
	fs.String("config", "", "YAML configuration file")

	// Target
	fs.StringP("interface", "i", "", "Monitor-mode interface")
	fs.StringP("bssid", "b", "", "Target AP BSSID")
	fs.StringP("essid", "e", "", "Target AP ESSID (learned from beacons if empty)")
	fs.IntP("channel", "c", 0, "Set the interface to this channel first")
	fs.StringP("mac", "m", "", "Station MAC to send from")
	fs.StringP("pin", "p", "", "Try this 4, 7 or 8 digit PIN first")

	// Pacing and evasion
	fs.DurationP("delay", "d", time.Second, "Delay between PIN attempts")
	fs.DurationP("lock-delay", "l", 60*time.Second, "Wait this long when the AP locks WPS")
	fs.BoolP("ignore-locks", "L", false, "Ignore locked state reported by the AP")
	fs.Int("max-lock-waits", 0, "Give up after this many lock waits in a row (0 = never)")
	fs.StringP("recurring-delay", "r", "", "Sleep y after every x attempts (x:y, e.g. 3:60s)")
	fs.DurationP("fail-wait", "x", 0, "Sleep after 10 unexpected failures")
	fs.IntP("max-attempts", "g", 0, "Quit after this many PIN attempts (0 = whole keyspace)")
	fs.BoolP("mac-changer", "M", false, "Change the station MAC after every attempt")
	fs.Int("assoc-retries", 50, "Association attempts before giving up (0 = forever)")
	fs.Duration("assoc-wait", 100*time.Millisecond, "Wait between association attempts")

	// Protocol
	fs.DurationP("timeout", "t", 5*time.Second, "Receive timeout")
	fs.DurationP("m57-timeout", "T", 400*time.Millisecond, "M5/M7 timeout")
	fs.BoolP("nack", "n", false, "Target AP always sends a NACK")
	fs.BoolP("ignore-out-of-order", "N", false, "Do not NACK out of order packets")
	fs.BoolP("repeat-m6", "6", false, "Send M6 again when M5 is repeated")
	fs.BoolP("eap-terminate", "E", false, "Terminate each WPS session with EAP FAIL")

	// Capture
	fs.Float64("tx-rate", 100, "Frame injection rate limit (frames/s)")
	fs.Bool("no-bpf", false, "Do not install a kernel capture filter")

	// Session
	fs.String("session-dir", "", "Directory for session files")
	fs.Duration("session-max-age", 0, "Ignore sessions older than this (0 = never)")
	fs.Bool("no-session", false, "Do not restore or save sessions")
	fs.Bool("reset-session", false, "Discard saved progress for the target first")

	// Output
	fs.StringP("output", "o", "", "Append JSONL result records to this file")
	fs.Bool("json", false, "Stream JSONL result records to stdout")
	fs.String("webhook", "", "POST JSONL result records to this URL")
	fs.BoolP("verbose", "v", false, "Print every PIN attempt")
	fs.BoolP("quiet", "q", false, "Only print the result")
	fs.Bool("no-tui", false, "Line-oriented output instead of the TUI")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-file", "", "Write logs to this rotating file")
	fs.String("log-format", "text", "Log format (text, json)")

	for key, flag := range flagKeys {
		v.BindPFlag(key, fs.Lookup(flag))
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	"capture.interface":          "interface",
	"attack.bssid":               "bssid",
	"attack.essid":               "essid",
	"attack.channel":             "channel",
	"capture.mac":                "mac",
	"attack.pin":                 "pin",
	"attack.delay":               "delay",
	"attack.lock_delay":          "lock-delay",
	"attack.ignore_locks":        "ignore-locks",
	"attack.max_lock_waits":      "max-lock-waits",
	"attack.recurring":           "recurring-delay",
	"attack.fail_wait":           "fail-wait",
	"attack.max_attempts":        "max-attempts",
	"attack.mac_changer":         "mac-changer",
	"attack.association_retries": "assoc-retries",
	"attack.association_wait":    "assoc-wait",
	"attack.receive_timeout":     "timeout",
	"attack.m57_timeout":         "m57-timeout",
	"attack.ignore_out_of_order": "ignore-out-of-order",
	"attack.repeat_m6":           "repeat-m6",
	"attack.eap_terminate":       "eap-terminate",
	"capture.tx_rate":            "tx-rate",
	"capture.no_bpf":             "no-bpf",
	"session.dir":                "session-dir",
	"session.max_age":            "session-max-age",
	"session.disabled":           "no-session",
	"session.reset":              "reset-session",
	"output.file":                "output",
	"output.json":                "json",
	"output.webhook_url":         "webhook",
	"output.verbose":             "verbose",
	"output.quiet":               "quiet",
	"output.no_tui":              "no-tui",
	"log.level":                  "log-level",
	"log.file":                   "log-file",
	"log.format":                 "log-format",
}

// loadConfig reads the optional config file and applies every flag or
// WPSBRUTE_* variable that was explicitly set on top of it.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, bool, error) {
	fs := cmd.Flags()
	cfg := config.Default()
	if path, _ := fs.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, false, err
		}
		cfg = loaded
	}

	strs := map[string]*string{
		"capture.interface": &cfg.Capture.Interface,
		"attack.bssid":      &cfg.Attack.BSSID,
		"attack.essid":      &cfg.Attack.ESSID,
		"capture.mac":       &cfg.Capture.MAC,
		"attack.pin":        &cfg.Attack.PIN,
		"session.dir":       &cfg.Session.Dir,
		"output.file":       &cfg.Output.File,
		"log.level":         &cfg.Log.Level,
		"log.file":          &cfg.Log.File,
		"log.format":        &cfg.Log.Format,
	}
	for key, p := range strs {
		if v.IsSet(key) {
			*p = v.GetString(key)
		}
	}

	ints := map[string]*int{
		"attack.channel":             &cfg.Attack.Channel,
		"attack.max_lock_waits":      &cfg.Attack.MaxLockWaits,
		"attack.max_attempts":        &cfg.Attack.MaxAttempts,
		"attack.association_retries": &cfg.Attack.AssociationRetries,
	}
	for key, p := range ints {
		if v.IsSet(key) {
			*p = v.GetInt(key)
		}
	}

	durs := map[string]*config.Duration{
		"attack.delay":            &cfg.Attack.Delay,
		"attack.lock_delay":       &cfg.Attack.LockDelay,
		"attack.fail_wait":        &cfg.Attack.FailWait,
		"attack.association_wait": &cfg.Attack.AssociationWait,
		"attack.receive_timeout":  &cfg.Attack.ReceiveTimeout,
		"attack.m57_timeout":      &cfg.Attack.M57Timeout,
		"session.max_age":         &cfg.Session.MaxAge,
	}
	for key, p := range durs {
		if v.IsSet(key) {
			p.Duration = v.GetDuration(key)
		}
	}

	bools := map[string]*bool{
		"attack.ignore_locks":        &cfg.Attack.IgnoreLocks,
		"attack.mac_changer":         &cfg.Attack.MACChanger,
		"attack.ignore_out_of_order": &cfg.Attack.IgnoreOutOfOrder,
		"attack.repeat_m6":           &cfg.Attack.RepeatM6,
		"attack.eap_terminate":       &cfg.Attack.EAPTerminate,
		"capture.no_bpf":             &cfg.Capture.NoBPF,
		"session.disabled":           &cfg.Session.Disabled,
		"session.reset":              &cfg.Session.Reset,
		"output.verbose":             &cfg.Output.Verbose,
		"output.quiet":               &cfg.Output.Quiet,
		"output.no_tui":              &cfg.Output.NoTUI,
	}
	for key, p := range bools {
		if v.IsSet(key) {
			*p = v.GetBool(key)
		}
	}

	if v.IsSet("capture.tx_rate") {
		cfg.Capture.TxRate = v.GetFloat64("capture.tx_rate")
	}
	if v.IsSet("attack.recurring") {
		every, delay, err := parseRecurring(v.GetString("attack.recurring"))
		if err != nil {
			return nil, false, err
		}
		cfg.Attack.RecurringEvery = every
		cfg.Attack.RecurringDelay = config.Duration{Duration: delay}
	}
	if fs.Changed("nack") {
		nack, _ := fs.GetBool("nack")
		cfg.Attack.TimeoutIsNack = !nack
	}
	if url := v.GetString("output.webhook_url"); url != "" {
		if cfg.Output.Webhook == nil {
			cfg.Output.Webhook = &config.WebhookOutput{}
		}
		cfg.Output.Webhook.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, v.GetBool("output.json"), nil
}

// parseRecurring parses "x:y": sleep y after every x attempts. A bare
// number for y is taken as seconds.
func parseRecurring(s string) (int, time.Duration, error) {
	countStr, delayStr, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("recurring delay %q: want x:y", s)
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count <= 0 {
		return 0, 0, fmt.Errorf("recurring delay %q: bad attempt count", s)
	}
	if secs, err := strconv.Atoi(delayStr); err == nil {
		return count, time.Duration(secs) * time.Second, nil
	}
	delay, err := time.ParseDuration(delayStr)
	if err != nil {
		return 0, 0, fmt.Errorf("recurring delay %q: %w", s, err)
	}
	return count, delay, nil
}
