// Package metrics exposes Prometheus instruments for the playback engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audio drop reasons.
const (
	DropSoftLimit = "soft_limit"
	DropHardLimit = "hard_limit"
)

var (
	FramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidplay_video_frames_delivered_total",
		Help: "Video frames handed to the frame callback",
	})

	// FramesSkipped counts pictures discarded while catching up to a seek target.
	FramesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidplay_video_frames_skipped_total",
		Help: "Video frames dropped before the seek watermark",
	})

	ScalerRebuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidplay_video_scaler_rebuilds_total",
		Help: "Number of times the RGBA scale context was recreated",
	})

	AudioBytesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidplay_audio_bytes_appended_total",
		Help: "PCM bytes appended to the audio buffer",
	})

	AudioChunksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidplay_audio_chunks_dropped_total",
		Help: "Resampled audio chunks discarded by buffer limit",
	}, []string{"reason"})

	AudioBuffered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidplay_audio_buffered_bytes",
		Help: "PCM bytes waiting to be read",
	})

	Seeks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidplay_seeks_total",
		Help: "Seek requests executed by the decode loop",
	})

	Stalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidplay_stalls_total",
		Help: "Sessions terminated because no packet arrived within the stall timeout",
	})

	OpenDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidplay_open_duration_seconds",
		Help:    "Time taken to probe a source and open its decoders",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"result"})
)

// ObserveOpen records how long an open attempt took.
func ObserveOpen(success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	OpenDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncAudioDropped records a discarded audio chunk.
func IncAudioDropped(reason string) {
	AudioChunksDropped.WithLabelValues(reason).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
