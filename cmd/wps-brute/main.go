package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Redfern89/reaver-redfern89/internal/campaign"
	"github.com/Redfern89/reaver-redfern89/internal/pin"
)

// Exit codes.
const (
	exitOK = iota
	exitError
	exitExhausted
	exitLocked
	exitUnsupported
	exitBudget
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "wps-brute -i <interface> -b <bssid> [flags]",
		Short: "Recover the WPS PIN of an access point",
		Long: `wps-brute drives the WPS registration protocol against one access point
and searches the PIN space half by half. Progress is saved per BSSID and
resumed on the next run.`,
		Example: `  wps-brute -i wlan0mon -b 00:11:22:33:44:55
  wps-brute -i wlan0mon -b 00:11:22:33:44:55 -c 6 -d 2s -r 3:60 --no-tui
  WPSBRUTE_ATTACK_LOCK_DELAY=5m wps-brute --config attack.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, jsonOut, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, jsonOut)
		},
	}
	registerFlags(cmd, v)
	return cmd
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, pin.ErrExhausted):
		return exitExhausted
	case errors.Is(err, campaign.ErrSetupLocked), errors.Is(err, campaign.ErrLockWaitExceeded):
		return exitLocked
	case errors.Is(err, campaign.ErrUnsupportedDevice):
		return exitUnsupported
	case errors.Is(err, campaign.ErrAttemptBudget):
		return exitBudget
	default:
		return exitError
	}
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[X] %v\n", err)
	}
	os.Exit(exitCode(err))
}
