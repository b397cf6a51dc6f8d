package jellyfin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/kinocast/internal/domain"
)

const (
	clientName    = "Kinocast"
	clientVersion = "1.0.0"
	defaultDevice = "CLI"
)

// AuthResult is the outcome of a username/password login.
type AuthResult struct {
	Token    string
	UserID   string
	Username string
}

// AuthenticateByName exchanges a username and password for an access token.
// The token is returned to the caller; it is not stored anywhere.
func (c *Client) AuthenticateByName(ctx context.Context, username, password string) (*AuthResult, error) {
	body := authRequest{Username: username, Pw: password}

	respBody, err := c.doRequestWithRetries(ctx, http.MethodPost, "/Users/AuthenticateByName", nil, body, 0)
	if err != nil {
		if errors.Is(err, domain.ErrAuthFailed) {
			return nil, domain.ErrAuthFailed
		}
		return nil, err
	}

	var authResp AuthResponse
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return nil, fmt.Errorf("failed to parse auth response: %w", err)
	}

	return &AuthResult{
		Token:    authResp.AccessToken,
		UserID:   authResp.User.ID,
		Username: authResp.User.Name,
	}, nil
}

// buildAuthHeader constructs the X-Emby-Authorization header
func buildAuthHeader(creds domain.Credentials) string {
	device := creds.DeviceName
	if device == "" {
		device = defaultDevice
	}

	parts := []string{
		fmt.Sprintf(`MediaBrowser Client="%s"`, clientName),
		fmt.Sprintf(`Device="%s"`, device),
		fmt.Sprintf(`DeviceId="%s"`, creds.DeviceID),
		fmt.Sprintf(`Version="%s"`, clientVersion),
	}

	if creds.Token != "" {
		parts = append(parts, fmt.Sprintf(`Token="%s"`, creds.Token))
	}

	return strings.Join(parts, ", ")
}
