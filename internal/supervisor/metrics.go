package supervisor

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the supervisor's counters on a prometheus registry.
// Pass a nil registerer to keep the metrics local (tests, headless runs).
type Metrics struct {
	FramesSent      prometheus.Counter
	TransportErrors prometheus.Counter
	Reconnects      prometheus.Counter
	ConnectionState prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canwake_frames_sent_total",
			Help: "Synthetic button frames written to the bus.",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canwake_transport_errors_total",
			Help: "Transport send/receive failures.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canwake_reconnects_total",
			Help: "Reconnection rounds triggered by the exception budget.",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canwake_connection_state",
			Help: "Current connection state (0 connected, 1 reconnecting, 2 failed).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.FramesSent, m.TransportErrors, m.Reconnects, m.ConnectionState)
	}
	return m
}
