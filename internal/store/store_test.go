package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/kinocast/internal/domain"
)

func TestDeviceID_StableAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewStateStore(dir)
	require.NoError(t, err)
	id, err := s.DeviceID()
	require.NoError(t, err)
	require.NotEmpty(t, id)

	again, err := s.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, again)
	require.NoError(t, s.Close())

	reopened, err := NewStateStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	persisted, err := reopened.DeviceID()
	require.NoError(t, err)
	assert.Equal(t, id, persisted)
}

func TestReceivers(t *testing.T) {
	for _, tc := range []struct {
		name string
		dir  func(t *testing.T) string
	}{
		{"bolt", func(t *testing.T) string { return t.TempDir() }},
		{"memory", func(*testing.T) string { return "" }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s, err := NewStateStore(tc.dir(t))
			require.NoError(t, err)
			defer s.Close()

			base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
			tv := domain.ReceiverDevice{ID: "tv", FriendlyName: "Living Room TV", Host: "10.0.0.2", Port: 8009}
			old := domain.ReceiverDevice{ID: "old", FriendlyName: "Attic", Host: "10.0.0.9", Port: 8009}
			hub := domain.ReceiverDevice{ID: "hub", FriendlyName: "Kitchen", Host: "10.0.0.3", Port: 8009}

			require.NoError(t, s.SaveReceivers([]domain.ReceiverDevice{old}, base.Add(-48*time.Hour)))
			require.NoError(t, s.SaveReceivers([]domain.ReceiverDevice{tv}, base))
			require.NoError(t, s.SaveReceivers([]domain.ReceiverDevice{hub}, base.Add(time.Minute)))

			got, err := s.Receivers(base.Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, []domain.ReceiverDevice{hub, tv}, got)

			require.NoError(t, s.ForgetReceivers())
			got, err = s.Receivers(time.Time{})
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}
