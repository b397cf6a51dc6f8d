package playback

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/kinocast/internal/domain"
)

type stubPlaybackInfo struct {
	info *domain.PlaybackInfo
	err  error
	got  domain.PlaybackInfoRequest
}

func (s *stubPlaybackInfo) PlaybackInfo(_ context.Context, req domain.PlaybackInfoRequest) (*domain.PlaybackInfo, error) {
	s.got = req
	return s.info, s.err
}

var testCreds = domain.Credentials{
	ServerURL: "http://jelly.local:8096/",
	UserID:    "user-1",
	Token:     "tok-1",
	DeviceID:  "dev-1",
}

func testStreams() []domain.MediaStream {
	return []domain.MediaStream{
		{Type: domain.StreamTypeVideo, Index: 0, Codec: "h264"},
		{Type: domain.StreamTypeAudio, Index: 1, Codec: "aac", Language: "jpn", DisplayTitle: "Japanese"},
		{Type: domain.StreamTypeAudio, Index: 2, Codec: "eac3", Language: "eng", DisplayTitle: "English", IsDefault: true},
		{Type: domain.StreamTypeSubtitle, Index: 3, Codec: "subrip", Language: "eng", DeliveryMethod: domain.DeliveryEmbed},
		{Type: domain.StreamTypeSubtitle, Index: 4, Codec: "pgssub", Language: "eng", DeliveryMethod: domain.DeliveryEncode},
		{Type: domain.StreamTypeSubtitle, Index: 5, Codec: "ass", Language: "fre", IsExternal: true, DeliveryMethod: domain.DeliveryExternal, DeliveryURL: "/Videos/item-1/src-1/Subtitles/5/0/Stream.ass"},
		{Type: domain.StreamTypeSubtitle, Index: 6, Codec: "dvdsub", Language: "ger", DeliveryMethod: domain.DeliveryDrop},
	}
}

func newTestNegotiator(api PlaybackInfoAPI) *Negotiator {
	return NewNegotiator(api, testCreds, NewTrackSelector(""), discardLogger())
}

func TestNegotiate_Transcode(t *testing.T) {
	api := &stubPlaybackInfo{info: &domain.PlaybackInfo{
		PlaySessionID: "ps-7",
		Sources: []domain.MediaSource{{
			ID:             "src-1",
			RunTimeTicks:   testRuntime,
			TranscodingURL: "/videos/item-1/master.m3u8?MediaSourceId=src-1&PlaySessionId=ps-7",
			Streams:        testStreams(),
		}},
	}}

	plan, err := newTestNegotiator(api).Negotiate(context.Background(), NegotiateRequest{
		ItemID:     "item-1",
		StartTicks: 1234,
		Profile:    domain.DeviceProfile{MaxStreamingBitrate: 20_000_000},
	})
	require.NoError(t, err)

	assert.Equal(t, "user-1", api.got.UserID)
	assert.Equal(t, domain.Ticks(1234), api.got.StartTicks)
	assert.Equal(t, 20_000_000, api.got.MaxStreamingBitrate)

	assert.Equal(t, domain.PlayMethodTranscode, plan.PlayMethod)
	assert.Equal(t, "ps-7", plan.PlaySessionID)
	assert.Equal(t, "src-1", plan.MediaSourceID)
	assert.Equal(t, domain.Ticks(1234), plan.StartTicks)
	assert.Equal(t, "http://jelly.local:8096/videos/item-1/main.m3u8?MediaSourceId=src-1&PlaySessionId=ps-7", plan.URL)

	require.NotEmpty(t, plan.SubtitleTracks)
	assert.Equal(t, domain.DisabledSubtitleIndex, plan.SubtitleTracks[0].ID)
	assert.Equal(t, "Disabled", plan.SubtitleTracks[0].Name)
}

func TestNegotiate_DirectPlay(t *testing.T) {
	api := &stubPlaybackInfo{info: &domain.PlaybackInfo{
		PlaySessionID: "ps-8",
		Sources: []domain.MediaSource{{
			ID:                 "src-1",
			ETag:               "etag-abc",
			SupportsDirectPlay: true,
			Streams:            testStreams(),
		}},
	}}

	plan, err := newTestNegotiator(api).Negotiate(context.Background(), NegotiateRequest{ItemID: "item-1"})
	require.NoError(t, err)

	assert.Equal(t, domain.PlayMethodDirectPlay, plan.PlayMethod)
	u, err := url.Parse(plan.URL)
	require.NoError(t, err)
	assert.Equal(t, "jelly.local:8096", u.Host)
	assert.Equal(t, "/Videos/item-1/stream", u.Path)
	q := u.Query()
	assert.Equal(t, "true", q.Get("Static"))
	assert.Equal(t, "src-1", q.Get("mediaSourceId"))
	assert.Equal(t, "dev-1", q.Get("deviceId"))
	assert.Equal(t, "tok-1", q.Get("api_key"))
	assert.Equal(t, "etag-abc", q.Get("Tag"))

	for _, tr := range plan.SubtitleTracks {
		assert.NotEqual(t, domain.DisabledSubtitleIndex, tr.ID, "direct play has no synthetic subtitle entry")
	}
}

func TestNegotiate_DirectStream(t *testing.T) {
	api := &stubPlaybackInfo{info: &domain.PlaybackInfo{
		PlaySessionID: "ps-9",
		Sources:       []domain.MediaSource{{ID: "src-1", ETag: "e", SupportsDirectStream: true}},
	}}

	plan, err := newTestNegotiator(api).Negotiate(context.Background(), NegotiateRequest{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PlayMethodDirectStream, plan.PlayMethod)
	assert.Contains(t, plan.URL, "/Videos/item-1/stream?")
}

func TestNegotiate_DirectPlayWithoutFlags(t *testing.T) {
	api := &stubPlaybackInfo{info: &domain.PlaybackInfo{
		PlaySessionID: "ps-10",
		Sources:       []domain.MediaSource{{ID: "src-1", ETag: "etag-1", Streams: testStreams()}},
	}}

	plan, err := newTestNegotiator(api).Negotiate(context.Background(), NegotiateRequest{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PlayMethodDirectPlay, plan.PlayMethod)

	u, err := url.Parse(plan.URL)
	require.NoError(t, err)
	assert.Equal(t, "/Videos/item-1/stream", u.Path)
	assert.Equal(t, "etag-1", u.Query().Get("Tag"))
}

func TestNegotiate_Tracks(t *testing.T) {
	api := &stubPlaybackInfo{info: &domain.PlaybackInfo{
		PlaySessionID: "ps-1",
		Sources:       []domain.MediaSource{{ID: "src-1", SupportsDirectPlay: true, Streams: testStreams()}},
	}}

	plan, err := newTestNegotiator(api).Negotiate(context.Background(), NegotiateRequest{ItemID: "item-1"})
	require.NoError(t, err)

	require.Len(t, plan.AudioTracks, 2)
	assert.Equal(t, 1, plan.AudioTracks[0].Ordinal)
	assert.Equal(t, 2, plan.AudioTracks[1].Ordinal)
	assert.Equal(t, 2, plan.DefaultAudioIndex, "the default-flagged audio stream wins")

	var ids []int
	for _, tr := range plan.SubtitleTracks {
		ids = append(ids, tr.ID)
		assert.NotEqual(t, domain.DeliveryEncode, tr.Delivery, "burned-in subtitles are never tracks")
	}
	assert.Equal(t, []int{3, 5, 6}, ids)

	embedded := plan.SubtitleTracks[0]
	assert.Equal(t, 1, embedded.Ordinal)
	assert.Empty(t, embedded.URL)

	external := plan.SubtitleTracks[1]
	assert.Equal(t, domain.DeliveryExternal, external.Delivery)
	assert.Equal(t, "http://jelly.local:8096/Videos/item-1/src-1/Subtitles/5/0/Stream.ass", external.URL)
	assert.Zero(t, external.Ordinal)

	assert.False(t, IsEligible(plan.SubtitleTracks[2]))
	assert.Equal(t, domain.DisabledSubtitleIndex, plan.DefaultSubtitleIndex)
}

func TestNegotiate_DefaultAudioFallsBackToFirst(t *testing.T) {
	api := &stubPlaybackInfo{info: &domain.PlaybackInfo{
		Sources: []domain.MediaSource{{ID: "src-1", SupportsDirectPlay: true, Streams: []domain.MediaStream{
			{Type: domain.StreamTypeAudio, Index: 7},
			{Type: domain.StreamTypeAudio, Index: 8},
		}}},
	}}

	plan, err := newTestNegotiator(api).Negotiate(context.Background(), NegotiateRequest{ItemID: "item-1"})
	require.NoError(t, err)
	assert.Equal(t, 7, plan.DefaultAudioIndex)
	assert.Equal(t, "Track 7", plan.AudioTracks[0].Name)
}

func TestNegotiate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		api    *stubPlaybackInfo
		reason error
	}{
		{
			name:   "server unreachable",
			api:    &stubPlaybackInfo{err: fmt.Errorf("failed to reach server: %w", domain.ErrServerUnreachable)},
			reason: domain.ErrServerUnreachable,
		},
		{
			name:   "auth failure is unreachable",
			api:    &stubPlaybackInfo{err: fmt.Errorf("%w: %w", domain.ErrServerUnreachable, domain.ErrAuthFailed)},
			reason: domain.ErrServerUnreachable,
		},
		{
			name:   "malformed response",
			api:    &stubPlaybackInfo{err: fmt.Errorf("failed to parse: %w", domain.ErrMalformedResponse)},
			reason: domain.ErrNoPlayableSource,
		},
		{
			name:   "no sources",
			api:    &stubPlaybackInfo{info: &domain.PlaybackInfo{PlaySessionID: "ps"}},
			reason: domain.ErrNoPlayableSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := newTestNegotiator(tt.api).Negotiate(context.Background(), NegotiateRequest{ItemID: "item-1"})
			require.Error(t, err)
			assert.Nil(t, plan)

			var nerr *domain.NegotiationError
			require.True(t, errors.As(err, &nerr))
			assert.Equal(t, "item-1", nerr.ItemID)
			assert.Equal(t, tt.reason, nerr.Reason)
			assert.ErrorIs(t, err, tt.reason)
		})
	}
}
