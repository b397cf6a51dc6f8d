package profile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/kinocast/internal/adapter"
	"github.com/mmcdole/kinocast/internal/domain"
)

var allTiers = []Tier{
	TierA4, TierA5, TierA5X, TierA6, TierA6X, TierA7, TierA7X, TierA8, TierA8X,
	TierA9, TierA9X, TierA10, TierA10X, TierA11, TierA12, TierA12X, TierA13, TierA14,
}

func TestLookupTier(t *testing.T) {
	tests := []struct {
		id    string
		want  Tier
		known bool
	}{
		{"iPhone3,1", TierA4, true},
		{"iPad5,3", TierA8X, true},
		{"AppleTV6,2", TierA10X, true},
		{"iPhone11,8", TierA12, true},
		{"iPad8,9", TierA12Z, true},
		{"GENERIC-HEVC", TierA10, true},
		{"Toaster1,1", TierLowest, false},
		{"", TierLowest, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()
			got, known := LookupTier(tt.id)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestNew_UnknownHardwareFallsBackToLowestTier(t *testing.T) {
	p := New("Mainframe9000", adapter.NullLogger())
	assert.Equal(t, TierLowest, p.Tier())

	prof := p.BuildProfile(0)
	require.Len(t, prof.DirectPlayProfiles, 1)
	assert.Equal(t, []string{"h264"}, prof.DirectPlayProfiles[0].VideoCodecs)
	assert.Equal(t, "ts", prof.TranscodingProfiles[0].Container)
}

func TestBuildProfile_Idempotent(t *testing.T) {
	for _, tier := range allTiers {
		a := BuildProfile(tier, 8_000_000)
		b := BuildProfile(tier, 8_000_000)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Fatalf("tier %s: profiles differ (-a +b):\n%s", tier, diff)
		}
	}
}

func TestBuildProfile_ReturnsIndependentSlices(t *testing.T) {
	a := BuildProfile(TierA12, 0)
	a.DirectPlayProfiles[0].AudioCodecs[0] = "mutated"

	b := BuildProfile(TierA12, 0)
	assert.Equal(t, "aac", b.DirectPlayProfiles[0].AudioCodecs[0])
}

func TestBuildProfile_Bitrates(t *testing.T) {
	prof := BuildProfile(TierA10, 0)
	assert.Equal(t, DefaultMaxStreamingBitrate, prof.MaxStreamingBitrate)
	assert.Equal(t, MaxStaticBitrate, prof.MaxStaticBitrate)
	assert.Equal(t, MusicTranscodingBitrate, prof.MusicTranscodingBitrate)

	prof = BuildProfile(TierA10, 4_000_000)
	assert.Equal(t, 4_000_000, prof.MaxStreamingBitrate)
}

func TestBuildProfile_GatedFeatures(t *testing.T) {
	tests := []struct {
		name       string
		tier       Tier
		audio      []string
		notAudio   []string
		video      []string
		notVideo   []string
		container  string
		channels   int
		codecCount int
	}{
		{
			name:       "base",
			tier:       TierA9X,
			audio:      []string{"aac", "mp3"},
			notAudio:   []string{"ac3", "eac3", "truehd"},
			video:      []string{"h264"},
			notVideo:   []string{"hevc", "dvhe"},
			container:  "ts",
			channels:   6,
			codecCount: 1,
		},
		{
			name:       "hevc and dolby digital",
			tier:       TierA10,
			audio:      []string{"ac3", "eac3", "flac"},
			notAudio:   []string{"truehd", "dts"},
			video:      []string{"hevc", "h264"},
			notVideo:   []string{"dvhe"},
			container:  "mp4",
			channels:   6,
			codecCount: 2,
		},
		{
			name:       "dolby vision",
			tier:       TierA11,
			audio:      []string{"eac3"},
			notAudio:   []string{"truehd"},
			video:      []string{"dvhe", "dvh1", "hevc"},
			container:  "mp4",
			channels:   6,
			codecCount: 2,
		},
		{
			name:       "atmos",
			tier:       TierA14,
			audio:      []string{"truehd", "dts", "eac3"},
			video:      []string{"dvhe", "hevc", "h264"},
			container:  "mp4",
			channels:   9,
			codecCount: 2,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prof := BuildProfile(tt.tier, 0)
			require.Len(t, prof.DirectPlayProfiles, 1)
			require.Len(t, prof.TranscodingProfiles, 1)

			direct := prof.DirectPlayProfiles[0]
			for _, c := range tt.audio {
				assert.Contains(t, direct.AudioCodecs, c)
			}
			for _, c := range tt.notAudio {
				assert.NotContains(t, direct.AudioCodecs, c)
			}
			for _, c := range tt.video {
				assert.Contains(t, direct.VideoCodecs, c)
			}
			for _, c := range tt.notVideo {
				assert.NotContains(t, direct.VideoCodecs, c)
			}

			transcode := prof.TranscodingProfiles[0]
			assert.Equal(t, tt.container, transcode.Container)
			assert.Equal(t, "hls", transcode.Protocol)
			assert.Equal(t, 2, transcode.MinSegments)
			assert.Equal(t, tt.channels, transcode.MaxAudioChannels)
			assert.Len(t, prof.CodecProfiles, tt.codecCount)
		})
	}
}

// Higher tiers never lose a gated capability held by a lower tier.
func TestBuildProfile_MonotonicAcrossTiers(t *testing.T) {
	for i := range allTiers {
		for j := i + 1; j < len(allTiers); j++ {
			lo, hi := allTiers[i], allTiers[j]
			loProf, hiProf := BuildProfile(lo, 0), BuildProfile(hi, 0)

			assertSubset(t, loProf.DirectPlayProfiles[0].AudioCodecs, hiProf.DirectPlayProfiles[0].AudioCodecs, lo, hi)
			assertSubset(t, loProf.DirectPlayProfiles[0].VideoCodecs, hiProf.DirectPlayProfiles[0].VideoCodecs, lo, hi)
			assertSubset(t, loProf.TranscodingProfiles[0].AudioCodecs, hiProf.TranscodingProfiles[0].AudioCodecs, lo, hi)
			assertSubset(t, loProf.TranscodingProfiles[0].VideoCodecs, hiProf.TranscodingProfiles[0].VideoCodecs, lo, hi)
			assert.GreaterOrEqual(t, hiProf.TranscodingProfiles[0].MaxAudioChannels, loProf.TranscodingProfiles[0].MaxAudioChannels)
			assert.GreaterOrEqual(t, len(hiProf.CodecProfiles), len(loProf.CodecProfiles))

			loFeat, hiFeat := FeaturesFor(lo), FeaturesFor(hi)
			assert.False(t, loFeat.DolbyDigital && !hiFeat.DolbyDigital)
			assert.False(t, loFeat.HEVC && !hiFeat.HEVC)
			assert.False(t, loFeat.DolbyVision && !hiFeat.DolbyVision)
			assert.False(t, loFeat.Atmos && !hiFeat.Atmos)
		}
	}
}

func TestBuildProfile_StaticConditions(t *testing.T) {
	prof := BuildProfile(TierA13, 0)

	byCodec := map[string][]domain.ProfileCondition{}
	for _, cp := range prof.CodecProfiles {
		byCodec[cp.Codec] = cp.Conditions
	}

	require.Contains(t, byCodec, "h264")
	assert.Contains(t, byCodec["h264"], domain.ProfileCondition{Condition: "LessThanEqual", Property: "VideoLevel", Value: "60"})
	assert.Contains(t, byCodec["h264"], domain.ProfileCondition{Condition: "NotEquals", Property: "IsAnamorphic", Value: "true"})
	require.Contains(t, byCodec, "hevc")
	assert.Contains(t, byCodec["hevc"], domain.ProfileCondition{Condition: "LessThanEqual", Property: "VideoLevel", Value: "160"})

	assert.Contains(t, prof.SubtitleProfiles, domain.SubtitleProfile{Format: "vtt", Method: domain.DeliveryExternal})
	assert.Contains(t, prof.SubtitleProfiles, domain.SubtitleProfile{Format: "pgssub", Method: domain.DeliveryEmbed})
}

func assertSubset(t *testing.T, sub, super []string, lo, hi Tier) {
	t.Helper()
	for _, c := range sub {
		assert.Containsf(t, super, c, "codec %q available at %s but missing at %s", c, lo, hi)
	}
}
