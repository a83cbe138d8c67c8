package reqdb

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AcquireBuckets covers pool waits from sub-millisecond to the usual
// request timeouts.
var AcquireBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics are the Prometheus collectors the middleware reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Acquisitions counts handle acquisitions by mode and result.
	Acquisitions *prometheus.CounterVec
	// AcquireDuration records how long requests waited on the pool.
	AcquireDuration *prometheus.HistogramVec
	// Finalizations counts commit, rollback and release by mode and result.
	Finalizations *prometheus.CounterVec
	// InFlight is the number of handles currently held by requests.
	InFlight prometheus.Gauge
}

// NewMetrics builds unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Acquisitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_handle_acquisitions_total",
				Help:      "Connection handle acquisitions",
			},
			[]string{"mode", "result"},
		),
		AcquireDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_handle_acquire_duration_seconds",
				Help:      "Time spent waiting for a connection or transaction",
				Buckets:   AcquireBuckets,
			},
			[]string{"mode"},
		),
		Finalizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_handle_finalizations_total",
				Help:      "Connection handle finalizations",
			},
			[]string{"mode", "action", "result"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_handles_in_flight",
				Help:      "Connection handles held by in-flight requests",
			},
		),
	}
}

// Register adds the collectors to reg. When reg already holds collectors
// with the same descriptors, m switches to those.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var err error

	if m.Acquisitions, err = registerOrReuse(reg, m.Acquisitions); err != nil {
		return err
	}
	if m.AcquireDuration, err = registerOrReuse(reg, m.AcquireDuration); err != nil {
		return err
	}
	if m.Finalizations, err = registerOrReuse(reg, m.Finalizations); err != nil {
		return err
	}
	if m.InFlight, err = registerOrReuse(reg, m.InFlight); err != nil {
		return err
	}
	return nil
}

// MustRegister is Register that panics.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	if err := m.Register(reg); err != nil {
		panic(err)
	}
}

func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

func (m *Metrics) acquired(mode Mode, err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.Acquisitions.WithLabelValues(mode.String(), result(err)).Inc()
	m.AcquireDuration.WithLabelValues(mode.String()).Observe(elapsed.Seconds())

	if err == nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) finalized(mode Mode, action string, err error) {
	if m == nil {
		return
	}

	m.Finalizations.WithLabelValues(mode.String(), action, result(err)).Inc()

	// InvalidState means the handle was already finalized and counted.
	if !errors.Is(err, ErrInvalidState) {
		m.InFlight.Dec()
	}
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}
