package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mmcdole/kinocast/internal/domain"
)

// PublicSystemInfo fetches the unauthenticated server identity.
// It fails when the server does not identify itself as Jellyfin.
func (c *Client) PublicSystemInfo(ctx context.Context) (*domain.ServerIdentity, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/System/Info/Public", nil, nil)
	if err != nil {
		return nil, err
	}

	var info PublicSystemInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse system info: %v", domain.ErrMalformedResponse, err)
	}

	if info.ProductName != "" && !strings.Contains(strings.ToLower(info.ProductName), "jellyfin") {
		return nil, fmt.Errorf("not a Jellyfin server (ProductName: %s)", info.ProductName)
	}

	return &domain.ServerIdentity{
		ID:      info.ID,
		Name:    info.ServerName,
		Version: info.Version,
	}, nil
}
