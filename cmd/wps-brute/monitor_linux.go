//go:build linux

package main

import (
	"fmt"
	"os/exec"
)

func canSetChannel() bool {
	_, err := exec.LookPath("iw")
	return err == nil
}

func monitorHint(iface string) string {
	return fmt.Sprintf("ip link set %[1]s down && iw dev %[1]s set type monitor && ip link set %[1]s up", iface)
}
