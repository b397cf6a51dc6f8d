package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mmcdole/kinocast/internal/domain"
	"github.com/mmcdole/kinocast/internal/playback"
	"github.com/mmcdole/kinocast/internal/profile"
)

var flagHardware string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the device profile sent to the server",
	Args:  cobra.NoArgs,
	RunE:  profileRun,
}

var negotiateCmd = &cobra.Command{
	Use:   "negotiate <item-id>",
	Short: "Resolve how an item would be played without starting playback",
	Args:  cobra.ExactArgs(1),
	RunE:  negotiateRun,
}

func init() {
	profileCmd.Flags().StringVar(&flagHardware, "hardware", "", "Hardware identifier (defaults to device.hardware_id)")
	negotiateCmd.Flags().DurationVarP(&flagStart, "start", "s", 0, "Start offset, e.g. 1h2m or 90s")
}

func profileRun(cmd *cobra.Command, args []string) error {
	hardware := cfg.Device.HardwareID
	if flagHardware != "" {
		hardware = flagHardware
	}
	p := profile.New(hardware, logger)
	fmt.Fprintf(cmd.ErrOrStderr(), "hardware %s → tier %s\n", p.HardwareID(), p.Tier())
	return writeJSON(cmd.OutOrStdout(), p.BuildProfile(cfg.Device.MaxBitrate))
}

func negotiateRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.requireLogin(); err != nil {
		return err
	}

	plan, err := a.negotiator().Negotiate(cmd.Context(), playback.NegotiateRequest{
		ItemID:     args[0],
		StartTicks: domain.TicksFromDuration(flagStart),
		Profile:    a.profiler.BuildProfile(cfg.Device.MaxBitrate),
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), plan)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
