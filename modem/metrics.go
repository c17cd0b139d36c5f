package modem

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the driver's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	CommandsSent    prometheus.Counter
	CommandTimeouts prometheus.Counter
	LinesReceived   prometheus.Counter
	Indications     *prometheus.CounterVec
	ResetPulses     prometheus.Counter
	Operations      *prometheus.CounterVec
	PauseWait       prometheus.Histogram
}

// NewMetrics creates the collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CommandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "commands_sent_total",
			Help:      "Total number of AT commands written to the module",
		}),
		CommandTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "command_timeouts_total",
			Help:      "Total number of expected responses that did not arrive in time",
		}),
		LinesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "lines_received_total",
			Help:      "Total number of lines read from the module",
		}),
		Indications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "indications_total",
			Help:      "Total number of asynchronous indications by code",
		}, []string{"code"}),
		ResetPulses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "reset_pulses_total",
			Help:      "Total number of reset line pulses",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "operations_total",
			Help:      "Total number of driver operations by name and outcome",
		}, []string{"op", "status"}),
		PauseWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "modem",
			Name:      "pause_wait_seconds",
			Help:      "Time spent waiting for the worker to hand over the transport",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.CommandsSent, m.CommandTimeouts, m.LinesReceived, m.Indications,
		m.ResetPulses, m.Operations, m.PauseWait,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) commandSent() {
	if m != nil {
		m.CommandsSent.Inc()
	}
}

func (m *Metrics) commandTimeout() {
	if m != nil {
		m.CommandTimeouts.Inc()
	}
}

func (m *Metrics) lineReceived() {
	if m != nil {
		m.LinesReceived.Inc()
	}
}

func (m *Metrics) indication(code int) {
	if m != nil {
		m.Indications.WithLabelValues(strconv.Itoa(code)).Inc()
	}
}

func (m *Metrics) resetPulse() {
	if m != nil {
		m.ResetPulses.Inc()
	}
}

func (m *Metrics) operation(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Operations.WithLabelValues(op, status).Inc()
}

func (m *Metrics) pauseWait(seconds float64) {
	if m != nil {
		m.PauseWait.Observe(seconds)
	}
}
