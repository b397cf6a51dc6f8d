package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mmcdole/kinocast/internal/domain"
)

// PlaybackInfo negotiates a playback plan for an item.
// The device profile travels in the body; the remaining parameters are sent both
// as query parameters and in the body, as the server accepts either.
func (c *Client) PlaybackInfo(ctx context.Context, req domain.PlaybackInfoRequest) (*domain.PlaybackInfo, error) {
	userID := req.UserID
	if userID == "" {
		userID = c.creds.UserID
	}

	query := url.Values{}
	query.Set("UserId", userID)
	query.Set("StartTimeTicks", strconv.FormatInt(int64(req.StartTicks), 10))
	query.Set("IsPlayback", "true")
	query.Set("AutoOpenLiveStream", "true")
	query.Set("MaxStreamingBitrate", strconv.Itoa(req.MaxStreamingBitrate))

	body := PlaybackInfoRequest{
		UserID:              userID,
		MaxStreamingBitrate: req.MaxStreamingBitrate,
		StartTimeTicks:      int64(req.StartTicks),
		AutoOpenLiveStream:  true,
		IsPlayback:          true,
		DeviceProfile:       mapDeviceProfile(req.Profile),
	}

	path := fmt.Sprintf("/Items/%s/PlaybackInfo", url.PathEscape(req.ItemID))
	// AutoOpenLiveStream makes this call non-idempotent, so it is sent once.
	respBody, err := c.doRequestWithRetries(ctx, http.MethodPost, path, query, body, 0)
	if err != nil {
		return nil, err
	}

	var resp PlaybackInfoResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse playback info: %v", domain.ErrMalformedResponse, err)
	}

	if resp.ErrorCode != "" {
		c.logger.Warn("playback info returned an error code", "itemID", req.ItemID, "errorCode", resp.ErrorCode)
	}

	return &domain.PlaybackInfo{
		PlaySessionID: resp.PlaySessionID,
		Sources:       mapMediaSources(resp.MediaSources),
	}, nil
}

var reportPaths = map[domain.ReportKind]string{
	domain.ReportStart:    "/Sessions/Playing",
	domain.ReportProgress: "/Sessions/Playing/Progress",
	domain.ReportStop:     "/Sessions/Playing/Stopped",
}

// ReportPlayback posts one session report. Reports are never retried.
func (c *Client) ReportPlayback(ctx context.Context, kind domain.ReportKind, state domain.SessionReportState, event domain.ProgressEvent) error {
	path, ok := reportPaths[kind]
	if !ok {
		return fmt.Errorf("unknown report kind %q", kind)
	}
	if kind != domain.ReportProgress {
		event = domain.EventNone
	}

	_, err := c.doRequestWithRetries(ctx, http.MethodPost, path, nil, newPlaybackReport(state, event), 0)
	return err
}
