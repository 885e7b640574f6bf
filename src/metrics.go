package vwire

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/*-------------------------------------------------------------
 *
 * Purpose:	Prometheus instrumentation for a running modem.
 *
 *		Counters only.  Momentary state like "transmitter
 *		busy" flips too fast at these bit rates to be worth
 *		a gauge; the frame and byte totals tell the story.
 *
 *		All methods accept a nil receiver so the bridges can
 *		call them unconditionally whether or not the metrics
 *		endpoint is enabled.
 *
 *--------------------------------------------------------------*/

type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     prometheus.Counter
	bytesReceived  prometheus.Counter
	bytesSent      prometheus.Counter
}

// NewMetrics creates and registers the collectors.  Daemons pass
// prometheus.DefaultRegisterer so ServeMetrics picks them up.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var f = promauto.With(reg)
	return &Metrics{
		framesReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vwire_frames_received_total",
				Help: "Frames decoded from the air, by checksum status",
			},
			[]string{"status"},
		),
		framesSent: f.NewCounter(
			prometheus.CounterOpts{
				Name: "vwire_frames_sent_total",
				Help: "Frames accepted for transmission",
			},
		),
		bytesReceived: f.NewCounter(
			prometheus.CounterOpts{
				Name: "vwire_bytes_received_total",
				Help: "Payload bytes decoded from the air",
			},
		),
		bytesSent: f.NewCounter(
			prometheus.CounterOpts{
				Name: "vwire_bytes_sent_total",
				Help: "Payload bytes accepted for transmission",
			},
		),
	}
}

// CountReceived records one decoded frame of n payload bytes.
func (m *Metrics) CountReceived(n int, ok bool) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(IfThenElse(ok, "ok", "bad_checksum")).Inc()
	m.bytesReceived.Add(float64(n))
}

// CountSent records one frame of n payload bytes queued for transmit.
func (m *Metrics) CountSent(n int) {
	if m == nil {
		return
	}
	m.framesSent.Inc()
	m.bytesSent.Add(float64(n))
}

// ServeMetrics exposes the default registry on listen at /metrics.
// It blocks, so run it from a goroutine.
func ServeMetrics(listen string) error {
	var mux = http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}
