package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// newTestCollector creates a Collector registered with a fresh registry
// so tests don't conflict with each other or with the default registry.
func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	c := New()
	return c, c.Registry
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	g.Write(m)
	return m.GetGauge().GetValue()
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func TestStatementGaugeTracksOpenAndClose(t *testing.T) {
	c, _ := newTestCollector(t)

	c.StatementOpened()
	c.StatementOpened()
	if v := getGaugeValue(c.statementsActive); v != 2 {
		t.Errorf("got %v want 2", v)
	}

	c.StatementClosed()
	if v := getGaugeValue(c.statementsActive); v != 1 {
		t.Errorf("got %v want 1", v)
	}
}

func TestResultSetGaugeTracksOpenAndClose(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ResultSetOpened()
	c.ResultSetClosed()
	if v := getGaugeValue(c.resultSetsActive); v != 0 {
		t.Errorf("got %v want 0", v)
	}
}

func TestBytesCountersAccumulate(t *testing.T) {
	c, _ := newTestCollector(t)

	c.BytesEncrypted(10)
	c.BytesEncrypted(5)
	c.BytesDecrypted(7)

	if v := getCounterValue(c.bytesEncrypted); v != 15 {
		t.Errorf("got bytesEncrypted %v want 15", v)
	}
	if v := getCounterValue(c.bytesDecrypted); v != 7 {
		t.Errorf("got bytesDecrypted %v want 7", v)
	}
}

func TestAuthFailureIncrementsCounter(t *testing.T) {
	c, _ := newTestCollector(t)
	c.AuthFailure()
	c.AuthFailure()
	if v := getCounterValue(c.authFailures); v != 2 {
		t.Errorf("got %v want 2", v)
	}
}

func TestOpcodeDispatchedRecordsCountAndDuration(t *testing.T) {
	c, reg := newTestCollector(t)

	c.OpcodeDispatched("Execute", 5*time.Millisecond)
	c.OpcodeDispatched("Execute", 10*time.Millisecond)

	if v := getCounterValue(c.opcodesTotal.WithLabelValues("Execute")); v != 2 {
		t.Errorf("got opcode count %v want 2", v)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "nuodb_request_duration_seconds" {
			found = true
			if len(f.Metric) != 1 || f.Metric[0].GetHistogram().GetSampleCount() != 2 {
				t.Errorf("got histogram %+v", f.Metric)
			}
		}
	}
	if !found {
		t.Fatal("nuodb_request_duration_seconds not found in gathered metrics")
	}
}

func TestErrorObservedByKind(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ErrorObserved("DatabaseError")
	c.ErrorObserved("DatabaseError")
	c.ErrorObserved("Timeout")

	if v := getCounterValue(c.errorsTotal.WithLabelValues("DatabaseError")); v != 2 {
		t.Errorf("got DatabaseError count %v want 2", v)
	}
	if v := getCounterValue(c.errorsTotal.WithLabelValues("Timeout")); v != 1 {
		t.Errorf("got Timeout count %v want 1", v)
	}
}

func TestHandshakeCompletedRecordsOutcome(t *testing.T) {
	c, reg := newTestCollector(t)

	c.HandshakeCompleted(50*time.Millisecond, true)
	c.HandshakeCompleted(10*time.Millisecond, false)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range families {
		if f.GetName() == "nuodb_handshake_duration_seconds" {
			if len(f.Metric) != 2 {
				t.Errorf("expected 2 label combinations (success/failure), got %d", len(f.Metric))
			}
		}
	}
}
