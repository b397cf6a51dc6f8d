package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mmcdole/kinocast/internal/adapter"
)

var flagUsername string

var loginCmd = &cobra.Command{
	Use:   "login [server-url]",
	Short: "Sign in to a Jellyfin server and save the token",
	Args:  cobra.MaximumNArgs(1),
	RunE:  loginRun,
}

func init() {
	loginCmd.Flags().StringVarP(&flagUsername, "user", "u", "", "Username (prompted when empty)")
}

func loginRun(cmd *cobra.Command, args []string) error {
	serverURL := cfg.Server.URL
	if len(args) == 1 {
		serverURL = strings.TrimRight(args[0], "/")
	}
	if serverURL == "" {
		return errors.New("server URL is required")
	}
	cfg.Server.URL = serverURL
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	info, err := a.client.PublicSystemInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Found %s (Jellyfin %s)\n", info.Name, info.Version)

	reader := bufio.NewReader(os.Stdin)
	username := flagUsername
	if username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		username = strings.TrimSpace(input)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := readPassword(reader)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	result, err := a.client.AuthenticateByName(ctx, username, password)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if err := adapter.SaveCredentials(adapter.ServerConfig{
		URL:      serverURL,
		Token:    result.Token,
		UserID:   result.UserID,
		Username: result.Username,
	}); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Signed in as %s\n", result.Username)
	return nil
}

// readPassword reads without echo from a terminal, or a plain line otherwise.
func readPassword(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return string(b), err
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
