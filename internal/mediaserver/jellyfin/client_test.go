package jellyfin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/kinocast/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(domain.Credentials{
		ServerURL:  srv.URL + "/",
		UserID:     "user-1",
		Token:      "tok-1",
		DeviceID:   "dev-1",
		DeviceName: "test-rig",
	}, nil)
	c.retryDelay = time.Millisecond
	return c
}

const playbackInfoJSON = `{
  "PlaySessionId": "ps-42",
  "MediaSources": [{
    "Id": "src-1",
    "ETag": "etag-9",
    "Container": "mkv",
    "RunTimeTicks": 72000000000,
    "SupportsDirectPlay": true,
    "SupportsDirectStream": true,
    "MediaStreams": [
      {"Type": "Video", "Index": 0, "Codec": "h264"},
      {"Type": "Audio", "Index": 1, "Codec": "eac3", "Language": "eng", "DisplayTitle": "English - EAC3", "IsDefault": true},
      {"Type": "Subtitle", "Index": 2, "Codec": "subrip", "DeliveryMethod": "External", "DeliveryUrl": "/Videos/item/src/Subtitles/2/Stream.vtt"}
    ]
  }]
}`

func TestPlaybackInfo_SendsProfileAndParses(t *testing.T) {
	var gotBody PlaybackInfoRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Items/item-7/PlaybackInfo", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "user-1", q.Get("UserId"))
		assert.Equal(t, "600000000", q.Get("StartTimeTicks"))
		assert.Equal(t, "true", q.Get("AutoOpenLiveStream"))
		assert.Equal(t, "true", q.Get("IsPlayback"))
		assert.Equal(t, "8000000", q.Get("MaxStreamingBitrate"))

		auth := r.Header.Get("X-Emby-Authorization")
		assert.Contains(t, auth, `DeviceId="dev-1"`)
		assert.Contains(t, auth, `Device="test-rig"`)
		assert.Contains(t, auth, `Token="tok-1"`)

		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &gotBody))
		_, _ = io.WriteString(w, playbackInfoJSON)
	})

	info, err := c.PlaybackInfo(context.Background(), domain.PlaybackInfoRequest{
		ItemID:              "item-7",
		StartTicks:          600000000,
		MaxStreamingBitrate: 8000000,
		Profile: domain.DeviceProfile{
			MaxStreamingBitrate: 8000000,
			DirectPlayProfiles: []domain.DirectPlayProfile{
				{Container: "mp4,mkv", MediaType: "Video", AudioCodecs: []string{"aac", "ac3"}, VideoCodecs: []string{"h264"}},
			},
			TranscodingProfiles: []domain.TranscodingProfile{
				{Container: "ts", MediaType: "Video", Protocol: "hls", MaxAudioChannels: 6, MinSegments: 2},
			},
		},
	})
	require.NoError(t, err)

	assert.True(t, gotBody.AutoOpenLiveStream)
	assert.Equal(t, int64(600000000), gotBody.StartTimeTicks)
	require.Len(t, gotBody.DeviceProfile.DirectPlayProfiles, 1)
	assert.Equal(t, "aac,ac3", gotBody.DeviceProfile.DirectPlayProfiles[0].AudioCodec)
	assert.Equal(t, "6", gotBody.DeviceProfile.TranscodingProfiles[0].MaxAudioChannels)

	assert.Equal(t, "ps-42", info.PlaySessionID)
	require.Len(t, info.Sources, 1)
	src := info.Sources[0]
	assert.Equal(t, "etag-9", src.ETag)
	assert.Equal(t, domain.Ticks(72000000000), src.RunTimeTicks)
	require.Len(t, src.Streams, 3)
	assert.Equal(t, domain.DeliveryExternal, src.Streams[2].DeliveryMethod)
	assert.Equal(t, "English - EAC3", src.Streams[1].DisplayTitle)
}

func TestPlaybackInfo_NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	info, err := c.PlaybackInfo(context.Background(), domain.PlaybackInfoRequest{ItemID: "item-7"})
	require.ErrorIs(t, err, domain.ErrServerUnreachable)
	assert.Nil(t, info)
	assert.Equal(t, int32(1), calls.Load(), "negotiation is a single request")
}

func TestPlaybackInfo_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "persistent 5xx",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			want:    domain.ErrServerUnreachable,
		},
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			want:    domain.ErrServerUnreachable,
		},
		{
			name:    "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusUnauthorized) },
			want:    domain.ErrAuthFailed,
		},
		{
			name:    "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "{not json") },
			want:    domain.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, tt.handler)
			_, err := c.PlaybackInfo(context.Background(), domain.PlaybackInfoRequest{ItemID: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPlaybackInfo_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(domain.Credentials{ServerURL: url}, nil)
	_, err := c.PlaybackInfo(context.Background(), domain.PlaybackInfoRequest{ItemID: "x"})
	assert.ErrorIs(t, err, domain.ErrServerUnreachable)
}

func TestReportPlayback_PathsAndBody(t *testing.T) {
	type call struct {
		path string
		body map[string]any
	}
	calls := make(chan call, 3)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls <- call{path: r.URL.Path, body: body}
		w.WriteHeader(http.StatusNoContent)
	})

	state := domain.SessionReportState{
		PlaySessionID:          "ps-1",
		ItemID:                 "item-1",
		MediaSourceID:          "src-1",
		PositionTicks:          12345,
		VolumeLevel:            100,
		AudioStreamIndex:       1,
		SubtitleStreamIndex:    -1,
		PlayMethod:             domain.PlayMethodTranscode,
		PlaybackStartTimeTicks: 99,
		CanSeek:                true,
	}
	ctx := context.Background()

	require.NoError(t, c.ReportPlayback(ctx, domain.ReportStart, state, domain.EventTimeUpdate))
	require.NoError(t, c.ReportPlayback(ctx, domain.ReportProgress, state, domain.EventPause))
	state.IsPaused = true
	require.NoError(t, c.ReportPlayback(ctx, domain.ReportStop, state, domain.EventNone))

	start := <-calls
	assert.Equal(t, "/Sessions/Playing", start.path)
	assert.NotContains(t, start.body, "EventName")
	assert.Equal(t, "ps-1", start.body["PlaySessionId"])
	assert.Equal(t, "Transcode", start.body["PlayMethod"])
	assert.EqualValues(t, 12345, start.body["PositionTicks"])
	assert.EqualValues(t, -1, start.body["SubtitleStreamIndex"])
	assert.EqualValues(t, 100, start.body["VolumeLevel"])
	assert.Equal(t, false, start.body["IsMuted"])

	progress := <-calls
	assert.Equal(t, "/Sessions/Playing/Progress", progress.path)
	assert.Equal(t, "pause", progress.body["EventName"])

	stop := <-calls
	assert.Equal(t, "/Sessions/Playing/Stopped", stop.path)
	assert.Equal(t, true, stop.body["IsPaused"])
}

func TestReportPlayback_DoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := c.ReportPlayback(context.Background(), domain.ReportProgress, domain.SessionReportState{}, domain.EventTimeUpdate)
	assert.ErrorIs(t, err, domain.ErrServerUnreachable)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPublicSystemInfo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/System/Info/Public", r.URL.Path)
		_, _ = io.WriteString(w, `{"ProductName":"Jellyfin Server","ServerName":"den","Version":"10.9.11","Id":"srv-1"}`)
	})

	id, err := c.PublicSystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ServerIdentity{ID: "srv-1", Name: "den", Version: "10.9.11"}, *id)
}

func TestPublicSystemInfo_RejectsOtherProducts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ProductName":"Emby Server","Id":"x"}`)
	})

	_, err := c.PublicSystemInfo(context.Background())
	assert.Error(t, err)
}

func TestAuthenticateByName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Users/AuthenticateByName", r.URL.Path)
		var body authRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Pw != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"AccessToken":"new-token","User":{"Id":"u-9","Name":"ada"}}`)
	})

	res, err := c.AuthenticateByName(context.Background(), "ada", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, &AuthResult{Token: "new-token", UserID: "u-9", Username: "ada"}, res)

	_, err = c.AuthenticateByName(context.Background(), "ada", "wrong")
	assert.ErrorIs(t, err, domain.ErrAuthFailed)
}

func TestBuildAuthHeader(t *testing.T) {
	h := buildAuthHeader(domain.Credentials{DeviceID: "abc"})
	assert.Equal(t, `MediaBrowser Client="Kinocast", Device="CLI", DeviceId="abc", Version="1.0.0"`, h)
}
