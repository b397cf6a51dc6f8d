package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	negotiationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinocast_negotiations_total",
		Help: "Total number of playback negotiations by outcome",
	}, []string{"outcome"})

	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinocast_reports_total",
		Help: "Total number of session reports by kind and outcome",
	}, []string{"kind", "outcome"})

	bufferingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kinocast_buffering_total",
		Help: "Total number of times playback was flagged as buffering",
	})

	playbackState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "kinocast_playback_state",
		Help: "Current playback controller state (1 for the active state)",
	}, []string{"state"})

	castCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kinocast_cast_commands_total",
		Help: "Total number of commands sent to cast receivers by command and outcome",
	}, []string{"command", "outcome"})
)

var knownStates = []string{"idle", "negotiating", "loading", "playing", "paused", "scrubbing", "stopped", "errored"}

// RecordNegotiation records one negotiation outcome. The outcome is the play
// method on success or "failure".
func RecordNegotiation(outcome string) {
	negotiationsTotal.WithLabelValues(normalizeOutcome(outcome, "DirectPlay", "DirectStream", "Transcode", "failure")).Inc()
}

// RecordReport records one session report attempt.
func RecordReport(kind string, err error) {
	reportsTotal.WithLabelValues(normalizeOutcome(kind, "start", "progress", "stop"), outcomeOf(err)).Inc()
}

// RecordBuffering counts a raised buffering signal.
func RecordBuffering() {
	bufferingTotal.Inc()
}

// SetPlaybackState marks state as the active controller state.
func SetPlaybackState(state string) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		playbackState.WithLabelValues(s).Set(v)
	}
}

// RecordCastCommand records one command sent to a receiver.
func RecordCastCommand(command string, err error) {
	castCommandsTotal.WithLabelValues(command, outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func normalizeOutcome(v string, allowed ...string) string {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return a
		}
	}
	return "unknown"
}
