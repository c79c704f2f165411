// Package netinfo inspects the wireless interface used for capture.
package netinfo

import (
	"errors"
	"fmt"
	"net"
)

var ErrNotWireless = errors.New("netinfo: not a wireless interface")

// Wireless holds the discovered state of a capture interface.
type Wireless struct {
	Name    string
	MAC     net.HardwareAddr
	Up      bool
	Monitor bool
	Phy     string
}

// GetWireless discovers the interface's MAC and whether it is in monitor mode.
func GetWireless(ifaceName string) (*Wireless, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("interface not found: %w", err)
	}

	w := &Wireless{
		Name: iface.Name,
		MAC:  iface.HardwareAddr,
		Up:   iface.Flags&net.FlagUp != 0,
	}
	if err := probe(w); err != nil {
		return nil, err
	}
	return w, nil
}

// StationMAC returns the MAC frames are sent from: override when set,
// otherwise the interface address.
func StationMAC(w *Wireless, override string) (net.HardwareAddr, error) {
	if override != "" {
		mac, err := net.ParseMAC(override)
		if err != nil {
			return nil, fmt.Errorf("invalid MAC %q: %w", override, err)
		}
		return mac, nil
	}
	if len(w.MAC) != 6 {
		return nil, fmt.Errorf("%s has no usable MAC, set one explicitly", w.Name)
	}
	return w.MAC, nil
}
