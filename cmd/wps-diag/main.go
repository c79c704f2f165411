package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/Redfern89/reaver-redfern89/internal/capture"
	"github.com/Redfern89/reaver-redfern89/internal/frame"
	"github.com/Redfern89/reaver-redfern89/internal/wsc"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "usage: wps-diag <capture.pcap> <bssid> [station-mac]\n")
		os.Exit(1)
	}
	path := os.Args[1]
	bssid, err := net.ParseMAC(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: bssid: %v\n", err)
		os.Exit(1)
	}
	var station net.HardwareAddr
	if len(os.Args) > 3 {
		if station, err = net.ParseMAC(os.Args[3]); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: station: %v\n", err)
			os.Exit(1)
		}
	}

	h, err := capture.OpenOffline(path, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer h.Close()

	fmt.Printf("=== %s ===\n", path)
	fmt.Printf("BSSID:   %s\n", bssid)
	if station != nil {
		fmt.Printf("Station: %s\n", station)
	} else {
		fmt.Println("Station: (none, beacons only)")
	}

	counts := map[frame.Kind]int{}
	var first *frame.Beacon
	total := 0
	for {
		data, ci, err := h.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Printf("ERROR: read: %v\n", err)
			break
		}
		total++

		f := frame.Classify(data, station, bssid)
		counts[f.Kind]++
		ts := ci.Timestamp.Format("15:04:05.000000")
		switch f.Kind {
		case frame.KindBeacon:
			if first == nil {
				first = f.Beacon
			}
			if f.Beacon != nil && f.Beacon.Locked {
				fmt.Printf("%s  beacon        WPS locked\n", ts)
			}
		case frame.KindWSC:
			fmt.Printf("%s  wsc           id=%d op=%d msg=%s%s\n", ts, f.EAPID, f.Opcode, f.Msg(), configError(f.Attrs))
		case frame.KindAuthResponse, frame.KindAssocResponse:
			fmt.Printf("%s  %-13s status=%d\n", ts, f.Kind, f.Status)
		case frame.KindUnknown:
		default:
			fmt.Printf("%s  %-13s id=%d\n", ts, f.Kind, f.EAPID)
		}
	}

	fmt.Println("\n=== Access Point ===")
	if first == nil {
		fmt.Println("no beacon from target")
	} else {
		fmt.Printf("SSID:         %q\n", first.SSID)
		fmt.Printf("Channel:      %d\n", first.Channel)
		fmt.Printf("WPS:          %v\n", first.HasWPS)
		fmt.Printf("Locked:       %v\n", first.Locked)
		if first.HasWPS {
			fmt.Printf("Version:      0x%02x\n", first.Attrs.Version)
			fmt.Printf("State:        %d\n", first.Attrs.WPSState)
			fmt.Printf("Manufacturer: %s\n", first.Attrs.Manufacturer)
			fmt.Printf("Model:        %s %s\n", first.Attrs.ModelName, first.Attrs.ModelNumber)
			fmt.Printf("Device:       %s\n", first.Attrs.DeviceName)
		}
	}

	fmt.Println("\n=== Frames ===")
	fmt.Printf("Total: %d\n", total)
	for k := frame.KindUnknown; k <= frame.KindAssocResponse; k++ {
		if counts[k] > 0 {
			fmt.Printf("  %-16s %d\n", k, counts[k])
		}
	}
}

func configError(a wsc.Attributes) string {
	if !a.HasConfigError {
		return ""
	}
	switch a.ConfigError {
	case wsc.ConfigErrorSetupLocked:
		return " config-error=setup-locked"
	case wsc.ConfigErrorMessageTimeout:
		return " config-error=message-timeout"
	}
	return fmt.Sprintf(" config-error=%d", a.ConfigError)
}
