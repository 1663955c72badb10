// Package metrics exposes Prometheus counters and histograms for the
// connection lifecycle: handshake duration, bytes moved through the
// stream cipher, opcodes dispatched, open statement/result-set counts,
// authentication failures, and errors by kind.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the driver.
type Collector struct {
	Registry *prometheus.Registry

	handshakeDuration *prometheus.HistogramVec
	authFailures prometheus.Counter

	bytesEncrypted prometheus.Counter
	bytesDecrypted prometheus.Counter

	opcodesTotal *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec

	statementsActive prometheus.Gauge
	resultSetsActive prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics using a custom
// registry, so it is safe to call more than once (e.g. one registry per
// connection pool) without colliding with another Collector's metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		handshakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nuodb_handshake_duration_seconds",
				Help: "Duration of the session handshake",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"outcome"},
		),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nuodb_auth_failures_total",
			Help: "Total number of failed authentication attempts",
		}),
		bytesEncrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nuodb_bytes_encrypted_total",
			Help: "Total plaintext bytes passed through the send-side cipher",
		}),
		bytesDecrypted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nuodb_bytes_decrypted_total",
			Help: "Total ciphertext bytes passed through the receive-side cipher",
		}),
		opcodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nuodb_opcodes_dispatched_total",
				Help: "Total opcodes dispatched, by opcode name",
			},
			[]string{"opcode"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nuodb_errors_total",
				Help: "Total errors returned to callers, by error kind",
			},
			[]string{"kind"},
		),
		statementsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuodb_statements_active",
			Help: "Number of statement handles currently open",
		}),
		resultSetsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nuodb_result_sets_active",
			Help: "Number of result-set handles currently open",
		}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "nuodb_request_duration_seconds",
				Help: "Duration of one opcode request/response round trip",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"opcode"},
		),
	}

	reg.MustRegister(
		c.handshakeDuration,
		c.authFailures,
		c.bytesEncrypted,
		c.bytesDecrypted,
		c.opcodesTotal,
		c.errorsTotal,
		c.statementsActive,
		c.resultSetsActive,
		c.requestDuration,
	)

	return c
}

// HandshakeCompleted records a handshake attempt's duration and outcome.
func (c *Collector) HandshakeCompleted(d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.handshakeDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AuthFailure increments the authentication-failure counter.
func (c *Collector) AuthFailure() {
	c.authFailures.Inc()
}

// BytesEncrypted adds n to the send-side byte counter.
func (c *Collector) BytesEncrypted(n int) {
	c.bytesEncrypted.Add(float64(n))
}

// BytesDecrypted adds n to the receive-side byte counter.
func (c *Collector) BytesDecrypted(n int) {
	c.bytesDecrypted.Add(float64(n))
}

// OpcodeDispatched records one request/response round trip for the named
// opcode and its duration.
func (c *Collector) OpcodeDispatched(opcode string, d time.Duration) {
	c.opcodesTotal.WithLabelValues(opcode).Inc()
	c.requestDuration.WithLabelValues(opcode).Observe(d.Seconds())
}

// ErrorObserved increments the error counter for the given kind name.
func (c *Collector) ErrorObserved(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// StatementOpened/StatementClosed track the number of live statement
// handles.
func (c *Collector) StatementOpened() { c.statementsActive.Inc() }
func (c *Collector) StatementClosed() { c.statementsActive.Dec() }

// ResultSetOpened/ResultSetClosed track the number of live result-set
// handles.
func (c *Collector) ResultSetOpened() { c.resultSetsActive.Inc() }
func (c *Collector) ResultSetClosed() { c.resultSetsActive.Dec() }
