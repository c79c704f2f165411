//go:build darwin

package netinfo

import "golang.org/x/sys/unix"

// probe cannot tell monitor mode on darwin; the pcap handle enables rfmon
// when it opens the interface.
func probe(w *Wireless) error {
	w.Monitor = true
	return nil
}

// Privileged reports whether raw injection is likely to be permitted.
func Privileged() bool {
	return unix.Geteuid() == 0
}
