package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestAccessMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewAccessMetrics(reg)

	metrics.IncAllowed("owner")
	metrics.IncAllowed("grant")
	metrics.IncDenied("grant")
	metrics.IncInvite("created")
	metrics.IncInvite("accepted")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "document_access_decisions", "result", "allow"); err != nil {
		t.Fatalf("fetch allow: %v", err)
	} else if got != 1 {
		t.Fatalf("expected allow=1 for first series, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "invite_lifecycle", "transition", "created"); err != nil {
		t.Fatalf("fetch created: %v", err)
	} else if got != 1 {
		t.Fatalf("expected created=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "invite_lifecycle", "transition", "accepted"); err != nil {
		t.Fatalf("fetch accepted: %v", err)
	} else if got != 1 {
		t.Fatalf("expected accepted=1, got %f", got)
	}
}

func TestAccessMetricsNilReceiverIsSafe(t *testing.T) {
	var metrics *AccessMetrics
	metrics.IncAllowed("owner")
	metrics.IncDenied("grant")
	metrics.IncInvite("cancelled")
}
