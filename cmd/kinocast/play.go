package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/kinocast/internal/playback"
	"github.com/mmcdole/kinocast/internal/tui"
)

var (
	flagStart       time.Duration
	flagMetricsAddr string
	flagHeadless    bool
)

var playCmd = &cobra.Command{
	Use:   "play <item-id>",
	Short: "Play an item in the local player",
	Args:  cobra.ExactArgs(1),
	RunE:  playRun,
}

func init() {
	for _, cmd := range []*cobra.Command{playCmd, castPlayCmd} {
		cmd.Flags().DurationVarP(&flagStart, "start", "s", 0, "Start offset, e.g. 1h2m or 90s")
		cmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
		cmd.Flags().BoolVar(&flagHeadless, "headless", false, "Run without the now-playing view")
	}
}

func playRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return runSession(cmd.Context(), a, args[0], "", nil)
}

// runSession starts playback of itemID and blocks until it ends. before runs
// once the controller is up, ahead of the play request.
func runSession(ctx context.Context, a *app, itemID, device string, before func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := !flagHeadless && term.IsTerminal(int(os.Stdout.Fd()))

	var observer *tui.StatusObserver
	if interactive {
		observer = tui.NewStatusObserver()
		a.onUpdate(observer.Observe)
	}

	addr := flagMetricsAddr
	if addr == "" {
		addr = a.cfg.Metrics.Listen
	}
	if err := a.startPlayback(addr); err != nil {
		return err
	}
	if before != nil {
		if err := before(ctx); err != nil {
			return err
		}
	}

	if !interactive {
		return runHeadless(ctx, a, itemID)
	}
	return runInteractive(ctx, a, observer, itemID, device)
}

func runHeadless(ctx context.Context, a *app, itemID string) error {
	if err := a.playback.Play(ctx, itemID, flagStart); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Playing %s (ctrl+c to stop)\n", itemID)

	st, err := a.playback.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Playback %s\n", st.State)
	return nil
}

func runInteractive(ctx context.Context, a *app, observer *tui.StatusObserver, itemID, device string) error {
	model := tui.NewModel(a.controller, observer, itemID, device)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	playErr := make(chan error, 1)
	go func() {
		err := a.playback.Play(ctx, itemID, flagStart)
		playErr <- err
		if err != nil {
			observer.Close()
		}
	}()

	a.logger.Info("starting TUI")
	_, runErr := p.Run()

	select {
	case err := <-playErr:
		if err != nil {
			return err
		}
	default:
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		a.logger.Error("TUI error", "error", runErr)
		return fmt.Errorf("TUI error: %w", runErr)
	}

	if st, err := a.playback.Status(context.Background()); err == nil && st.State == playback.StateErrored && st.Err != nil {
		return st.Err
	}
	return nil
}
