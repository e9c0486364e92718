// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all bridge counters and gauges.
type Metrics struct {
	ConnectionsTotal   prometheus.Counter
	ActiveSessions     prometheus.Gauge
	SessionsSwept      prometheus.Counter
	AuthFailures       prometheus.Counter
	FramesReceived     prometheus.Counter
	FramesSent         prometheus.Counter
	DecodeErrors       prometheus.Counter
	DroppedOutbound    prometheus.Counter
	AudioBytesBuffered prometheus.Counter
	Transcriptions     prometheus.Counter
	TranscriptionErrs  prometheus.Counter
	RelayRequests      prometheus.Counter
	RelayErrors        prometheus.Counter
}

// New registers all bridge metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_connections_total",
			Help: "Total number of accepted device connections",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_active_sessions",
			Help: "Current number of live sessions",
		}),
		SessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_sessions_swept_total",
			Help: "Total number of idle sessions evicted by the sweeper",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_received_total",
			Help: "Total number of frames received from devices",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_sent_total",
			Help: "Total number of frames sent to devices",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frame_decode_errors_total",
			Help: "Total number of inbound frames dropped by the codec",
		}),
		DroppedOutbound: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_outbound_dropped_total",
			Help: "Total number of outbound frames dropped on a full queue",
		}),
		AudioBytesBuffered: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_audio_bytes_buffered_total",
			Help: "Total audio bytes appended to session buffers",
		}),
		Transcriptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_transcriptions_total",
			Help: "Total number of transcription attempts",
		}),
		TranscriptionErrs: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_transcription_errors_total",
			Help: "Total number of failed or empty transcriptions",
		}),
		RelayRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_relay_requests_total",
			Help: "Total number of messages forwarded to the backend relay",
		}),
		RelayErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_relay_errors_total",
			Help: "Total number of failed relay calls",
		}),
	}
}
