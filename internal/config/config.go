package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level configuration structure.
type Config struct {
	Attack  AttackConfig  `yaml:"attack"`
	Capture CaptureConfig `yaml:"capture"`
	Session SessionConfig `yaml:"session"`
	Output  OutputConfig  `yaml:"output"`
	Log     LogConfig     `yaml:"log"`
}

// AttackConfig holds the target and the campaign policy.
type AttackConfig struct {
	BSSID   string `yaml:"bssid"`   // Target AP
	ESSID   string `yaml:"essid"`   // Learned from beacons when empty
	Channel int    `yaml:"channel"` // 0 keeps the current channel
	PIN     string `yaml:"pin"`     // Static 4, 7 or 8 digit PIN

	MaxAttempts    int      `yaml:"max_attempts"`    // 0 = whole keyspace
	Delay          Duration `yaml:"delay"`           // Before every attempt
	RecurringEvery int      `yaml:"recurring_every"` // Attempts between recurring delays
	RecurringDelay Duration `yaml:"recurring_delay"`
	FailWait       Duration `yaml:"fail_wait"` // After 10 failures in a row

	LockDelay     Duration `yaml:"lock_delay"`     // Between lock re-checks
	IgnoreLocks   bool     `yaml:"ignore_locks"`   // Attack while the AP reports a lock
	MaxLockWaits  int      `yaml:"max_lock_waits"` // 0 = wait forever
	BeaconTimeout Duration `yaml:"beacon_timeout"`

	AssociationRetries int      `yaml:"association_retries"` // 0 = retry forever
	AssociationWait    Duration `yaml:"association_wait"`

	ReceiveTimeout   Duration `yaml:"receive_timeout"`
	M57Timeout       Duration `yaml:"m57_timeout"`
	TimeoutIsNack    bool     `yaml:"timeout_is_nack"`
	IgnoreOutOfOrder bool     `yaml:"ignore_out_of_order"`
	RepeatM6         bool     `yaml:"repeat_m6"`
	EAPTerminate     bool     `yaml:"eap_terminate"`

	MACChanger  bool     `yaml:"mac_changer"` // Rotate the station MAC every attempt
	Unsupported []string `yaml:"unsupported"` // BSSID prefixes known not to be attackable
}

// CaptureConfig controls the monitor-mode interface.
type CaptureConfig struct {
	Interface    string   `yaml:"interface"`
	MAC          string   `yaml:"mac"`           // Station MAC override
	PollTimeout  Duration `yaml:"poll_timeout"`  // Blocking read bound
	TxRate       float64  `yaml:"tx_rate"`       // Frames per second
	TxBurst      float64  `yaml:"tx_burst"`      // Token bucket size
	AssocTimeout Duration `yaml:"assoc_timeout"` // Per auth/assoc response
	NoBPF        bool     `yaml:"no_bpf"`        // Skip the kernel filter
}

// SessionConfig controls progress persistence.
type SessionConfig struct {
	Dir      string   `yaml:"dir"`
	MaxAge   Duration `yaml:"max_age"` // 0 = never expires
	Disabled bool     `yaml:"disabled"`
	Reset    bool     `yaml:"reset"` // Discard saved progress before starting
}

// OutputConfig controls how results are reported.
type OutputConfig struct {
	File    string         `yaml:"file"`    // JSONL result file
	Webhook *WebhookOutput `yaml:"webhook"` // Webhook HTTP POST sink
	Verbose bool           `yaml:"verbose"` // Print every attempt
	Quiet   bool           `yaml:"quiet"`   // Silent mode
	NoTUI   bool           `yaml:"no_tui"`  // Disable TUI
}

// WebhookOutput configures the webhook output sink.
type WebhookOutput struct {
	URL        string            `yaml:"url"`
	Timeout    Duration          `yaml:"timeout"`
	MaxRetries int               `yaml:"max_retries"`
	Headers    map[string]string `yaml:"headers"`
}

// LogConfig controls the structured log.
type LogConfig struct {
	Level      string `yaml:"level"`  // logrus level name
	Format     string `yaml:"format"` // "text" or "json"
	File       string `yaml:"file"`   // Empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Duration wraps time.Duration for YAML unmarshalling from strings like "5s", "10m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Default returns the built-in settings. Loaded files override them.
func Default() *Config {
	return &Config{
		Attack: AttackConfig{
			Delay:              Duration{time.Second},
			LockDelay:          Duration{60 * time.Second},
			BeaconTimeout:      Duration{2 * time.Second},
			AssociationRetries: 50,
			AssociationWait:    Duration{100 * time.Millisecond},
			ReceiveTimeout:     Duration{5 * time.Second},
			M57Timeout:         Duration{400 * time.Millisecond},
			TimeoutIsNack:      true,
		},
		Capture: CaptureConfig{
			PollTimeout:  Duration{100 * time.Millisecond},
			TxRate:       100,
			TxBurst:      10,
			AssocTimeout: Duration{time.Second},
		},
		Session: SessionConfig{
			Dir: defaultSessionDir(),
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func defaultSessionDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/wps-brute/sessions"
	}
	return ".wps-brute"
}

// LoadConfig reads a YAML configuration file from the specified path on top
// of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects settings the campaign cannot run with.
func (c *Config) Validate() error {
	a := c.Attack
	switch {
	case a.MaxAttempts < 0:
		return fmt.Errorf("attack.max_attempts must not be negative")
	case a.RecurringEvery < 0:
		return fmt.Errorf("attack.recurring_every must not be negative")
	case a.MaxLockWaits < 0:
		return fmt.Errorf("attack.max_lock_waits must not be negative")
	case a.AssociationRetries < 0:
		return fmt.Errorf("attack.association_retries must not be negative")
	case a.Channel < 0 || a.Channel > 196:
		return fmt.Errorf("attack.channel %d out of range", a.Channel)
	case c.Capture.TxRate < 0:
		return fmt.Errorf("capture.tx_rate must not be negative")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", c.Log.Format)
	}
	return nil
}
