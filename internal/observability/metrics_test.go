package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// gatherValue reads a counter or gauge sample from the default registry.
func gatherValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestMetricsRecord(t *testing.T) {
	ns := "test_observability_" + time.Now().Format("150405")
	m := NewMetrics(ns)

	m.ObserveSend("user", true)
	m.ObserveSend("user", true)
	m.ObserveReply("analyze_threat", 1200*time.Millisecond)
	m.ObserveFailure("transport", 0)
	m.ObserveHandoff()
	m.ObserveSessionEvent("created", 3)

	if got := gatherValue(t, ns+"_sends_total", map[string]string{"trigger": "user", "attachment": "yes"}); got != 2 {
		t.Fatalf("sends = %v, want 2", got)
	}
	if got := gatherValue(t, ns+"_replies_total", map[string]string{"intent": "analyze_threat"}); got != 1 {
		t.Fatalf("replies = %v, want 1", got)
	}
	if got := gatherValue(t, ns+"_analysis_failures_total", map[string]string{"kind": "transport"}); got != 1 {
		t.Fatalf("failures = %v, want 1", got)
	}
	if got := gatherValue(t, ns+"_complaint_handoffs_total", nil); got != 1 {
		t.Fatalf("handoffs = %v, want 1", got)
	}
	if got := gatherValue(t, ns+"_active_sessions", nil); got != 3 {
		t.Fatalf("active sessions = %v, want 3", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveSend("user", false)
	m.ObserveRejection("busy")
	m.ObserveReply("general_question", time.Second)
	m.ObserveFailure("server", time.Second)
	m.ObserveHandoff()
	m.ObserveSessionEvent("ended", 0)
	m.ObserveWSMessage("inbound", "client_send")
}
