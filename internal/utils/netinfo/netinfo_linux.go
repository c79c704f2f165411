//go:build linux

package netinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// sysfs root, replaced in tests.
var sysClassNet = "/sys/class/net"

// probe reads the link type and wiphy from sysfs. Monitor-mode interfaces
// report the radiotap link type.
func probe(w *Wireless) error {
	dir := filepath.Join(sysClassNet, w.Name)

	phy, err := os.ReadFile(filepath.Join(dir, "phy80211", "name"))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotWireless, w.Name)
	}
	w.Phy = strings.TrimSpace(string(phy))

	raw, err := os.ReadFile(filepath.Join(dir, "type"))
	if err != nil {
		return fmt.Errorf("read link type of %s: %w", w.Name, err)
	}
	typ, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return fmt.Errorf("parse link type of %s: %w", w.Name, err)
	}
	w.Monitor = typ == unix.ARPHRD_IEEE80211_RADIOTAP
	return nil
}

// Privileged reports whether raw injection is likely to be permitted.
func Privileged() bool {
	return unix.Geteuid() == 0
}
