package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Result events.
const (
	EventProgress = "PROGRESS"
	EventCracked  = "CRACKED"
	EventFailed   = "FAILED"
)

// Result is one record about a campaign: periodic progress or its end.
type Result struct {
	Event         string  `json:"event"`
	RunID         string  `json:"run_id"`
	BSSID         string  `json:"bssid"`
	ESSID         string  `json:"essid,omitempty"`
	PIN           string  `json:"pin,omitempty"`
	Attempts      int     `json:"attempts"`
	Progress      float64 `json:"progress"`
	KeyStatus     string  `json:"key_status,omitempty"`
	SecondsPerPin float64 `json:"seconds_per_pin,omitempty"`
	Elapsed       string  `json:"elapsed,omitempty"`
	Error         string  `json:"error,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

// Stamp sets Timestamp to t in RFC 3339 UTC.
func (r *Result) Stamp(t time.Time) *Result {
	r.Timestamp = t.UTC().Format(time.RFC3339)
	return r
}

type Formatter interface {
	Write(res *Result) error
	Flush() error
}

// JSONFormatter writes JSONL.
type JSONFormatter struct {
	enc *json.Encoder
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{enc: json.NewEncoder(w)}
}

func (f *JSONFormatter) Write(res *Result) error {
	return f.enc.Encode(res)
}

func (f *JSONFormatter) Flush() error { return nil }

// TextFormatter writes the final report lines; progress records are skipped.
type TextFormatter struct {
	w io.Writer
}

func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{w: w}
}

func (f *TextFormatter) Write(res *Result) error {
	var err error
	switch res.Event {
	case EventCracked:
		_, err = fmt.Fprintf(f.w, "[+] WPS PIN: '%s'\n[+] AP SSID: '%s'\n", res.PIN, res.ESSID)
	case EventFailed:
		_, err = fmt.Fprintf(f.w, "[-] %s: %s (%.2f%% complete, %d attempts)\n",
			res.BSSID, res.Error, res.Progress, res.Attempts)
	}
	return err
}

func (f *TextFormatter) Flush() error { return nil }
