package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	flagDevice string
	flagForget bool
)

var castCmd = &cobra.Command{
	Use:   "cast",
	Short: "Discover cast receivers and play on them",
}

var castDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List cast receivers on the local network",
	Args:  cobra.NoArgs,
	RunE:  castDiscoverRun,
}

var castPlayCmd = &cobra.Command{
	Use:   "play <item-id>",
	Short: "Play an item on a cast receiver",
	Args:  cobra.ExactArgs(1),
	RunE:  castPlayRun,
}

func init() {
	castDiscoverCmd.Flags().BoolVar(&flagForget, "forget", false, "Forget remembered receivers first")
	castPlayCmd.Flags().StringVarP(&flagDevice, "device", "d", "", "Receiver id or name (fuzzy matched)")
	_ = castPlayCmd.MarkFlagRequired("device")

	castCmd.AddCommand(castDiscoverCmd)
	castCmd.AddCommand(castPlayCmd)
}

func castDiscoverRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if flagForget {
		if err := a.store.ForgetReceivers(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Cast.DiscoveryTimeout+5*time.Second)
	defer cancel()

	svc, err := a.castService(ctx)
	if err != nil {
		return err
	}
	devices, err := svc.Discover(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(os.Stderr, "No receivers found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODEL\tADDRESS\tID")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s:%d\t%s\n", d.FriendlyName, d.Model, d.Host, d.Port, d.ID)
	}
	return w.Flush()
}

func castPlayRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return runSession(cmd.Context(), a, args[0], flagDevice, func(ctx context.Context) error {
		svc, err := a.castService(ctx)
		if err != nil {
			return err
		}
		device, err := svc.Resolve(ctx, flagDevice)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Casting to %s\n", device.FriendlyName)
		return svc.CastTo(ctx, device)
	})
}
