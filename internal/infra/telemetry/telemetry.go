package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetricsOptions controls construction of the access-control collectors.
type AccessMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
}

// AccessMetrics implements usecase.AccessMetrics with Prometheus counters.
type AccessMetrics struct {
	logins        *prometheus.CounterVec
	lockouts      prometheus.Counter
	rejections    *prometheus.CounterVec
	auditFailures *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec
}

// NewAccessMetrics registers the collectors, reusing ones already registered.
func NewAccessMetrics(opts AccessMetricsOptions) (*AccessMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "lab"
	}
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	logins, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Login attempts partitioned by outcome.",
	}, []string{"outcome"}))
	if err != nil {
		return nil, err
	}

	lockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "lockouts_total",
		Help:      "Number of times an account lock was engaged.",
	})
	if err := reg.Register(lockouts); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register lockouts collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("existing lockouts collector has unexpected type %T", already.ExistingCollector)
		}
		lockouts = existing
	}

	rejections, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "token_rejections_total",
		Help:      "Per-request authentication failures partitioned by reason.",
	}, []string{"reason"}))
	if err != nil {
		return nil, err
	}

	auditFailures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "write_failures_total",
		Help:      "Audit entries that could not be persisted, partitioned by action.",
	}, []string{"action"}))
	if err != nil {
		return nil, err
	}

	eventsDropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Domain events that never reached Kafka, partitioned by topic and reason.",
	}, []string{"topic", "reason"}))
	if err != nil {
		return nil, err
	}

	return &AccessMetrics{
		logins:        logins,
		lockouts:      lockouts,
		rejections:    rejections,
		auditFailures: auditFailures,
		eventsDropped: eventsDropped,
	}, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return vec, nil
}

// LoginAttempt counts one login by outcome.
func (m *AccessMetrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// LockEngaged counts a newly engaged lock.
func (m *AccessMetrics) LockEngaged() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

// TokenRejected counts a failed per-request authentication.
func (m *AccessMetrics) TokenRejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// AuditWriteFailed counts an audit entry that was dropped.
func (m *AccessMetrics) AuditWriteFailed(action string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(action).Inc()
}

// EventDropped counts a domain event lost before reaching a broker.
func (m *AccessMetrics) EventDropped(topic, reason string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(topic, reason).Inc()
}
