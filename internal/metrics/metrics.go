package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Playback metrics
	framesPresentedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "player_frames_presented_total",
		Help: "Total frames handed to the renderer",
	})

	framesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_frames_dropped_total",
		Help: "Total frames or packets skipped, by reason",
	}, []string{"reason"})

	seeksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_seeks_total",
		Help: "Seek requests by direction and outcome",
	}, []string{"direction", "outcome"})

	pacerDelaySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "player_pacer_delay_seconds",
		Help:    "Nominal inter-frame delay applied by the pacer",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
	})

	playbackState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "player_state",
		Help: "1 for the current transport state, 0 otherwise",
	}, []string{"state"})

	playbackRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "player_rate",
		Help: "Current playback rate multiplier",
	})

	playbackPositionSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "player_position_seconds",
		Help: "Timestamp of the last presented frame",
	})

	inputEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_input_events_total",
		Help: "Input events by event and origin",
	}, []string{"event", "origin"})

	// Remux metrics
	packetsReadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_packets_read_total",
		Help: "Packets read from the demuxer",
	}, []string{"container"})

	packetsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remux_packets_written_total",
		Help: "Packets written to the output container",
	})

	bytesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remux_bytes_written_total",
		Help: "Sample bytes written to the output container",
	})

	fragmentsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "remux_fragments_written_total",
		Help: "moof/mdat pairs written",
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "media_errors_total",
		Help: "Errors by operation and kind",
	}, []string{"op", "kind"})

	synthesizedPTS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "remux_synthesized_pts",
		Help: "Last synthesized presentation timestamp in output ticks",
	})
)

// States reported by the player_state gauge.
var knownStates = []string{"playing", "paused", "terminated"}

func RecordFramePresented(positionSeconds float64) {
	framesPresentedTotal.Inc()
	playbackPositionSeconds.Set(positionSeconds)
}

// RecordFrameDropped counts a frame that never reached the renderer.
func RecordFrameDropped(reason string) {
	framesDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordSeek counts a seek. outcome is "ok" or "rejected".
func RecordSeek(direction, outcome string) {
	seeksTotal.WithLabelValues(direction, outcome).Inc()
}

func ObservePacerDelay(seconds float64) {
	pacerDelaySeconds.Observe(seconds)
}

// SetPlaybackState flips the state gauge so exactly one state reads 1.
func SetPlaybackState(state string) {
	for _, s := range knownStates {
		v := 0.0
		if s == state {
			v = 1
		}
		playbackState.WithLabelValues(s).Set(v)
	}
}

func SetPlaybackRate(rate float64) {
	playbackRate.Set(rate)
}

func RecordInputEvent(event, origin string) {
	inputEventsTotal.WithLabelValues(event, origin).Inc()
}

func RecordPacketRead(container string) {
	packetsReadTotal.WithLabelValues(container).Inc()
}

func RecordPacketWritten(bytes int, pts int64) {
	packetsWrittenTotal.Inc()
	bytesWrittenTotal.Add(float64(bytes))
	synthesizedPTS.Set(float64(pts))
}

func RecordFragmentWritten() {
	fragmentsWrittenTotal.Inc()
}

// RecordError counts an error for op. kind is the errors.Kind string.
func RecordError(op, kind string) {
	errorsTotal.WithLabelValues(op, kind).Inc()
}
