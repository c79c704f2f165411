//go:build darwin

package main

import "fmt"

// The capture handle enables rfmon itself; there is no channel tool.
func canSetChannel() bool { return false }

func monitorHint(iface string) string {
	return fmt.Sprintf("sudo tcpdump -I -i %s -c 1", iface)
}
