package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/trading-ecosystem/chaos-coordinator/pkg/driver"
)

func TestObserveDriverStatsMirrorsSnapshot(t *testing.T) {
	ObserveDriverStats("exchange", driver.ClientStats{
		RequestsSent:      5,
		ResponsesReceived: 4,
		ErrorsEncountered: 1,
	})

	tests := []struct {
		counter string
		want    float64
	}{
		{"requests_sent", 5},
		{"responses_received", 4},
		{"errors_encountered", 1},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(driverTraffic.WithLabelValues("exchange", tt.counter)); got != tt.want {
			t.Errorf("gauge %s = %v; want %v", tt.counter, got, tt.want)
		}
	}

	// a later snapshot overwrites; the gauges mirror the driver's counters
	ObserveDriverStats("exchange", driver.ClientStats{RequestsSent: 9, ResponsesReceived: 8, ErrorsEncountered: 2})
	if got := testutil.ToFloat64(driverTraffic.WithLabelValues("exchange", "requests_sent")); got != 9 {
		t.Errorf("gauge requests_sent = %v; want 9", got)
	}
}

func TestRecordActionCounts(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("risk", "alert_suppression", "success"))
	RecordAction("risk", "alert_suppression", true)
	after := testutil.ToFloat64(actionsTotal.WithLabelValues("risk", "alert_suppression", "success"))
	if after != before+1 {
		t.Errorf("actions counter did not advance: %v -> %v", before, after)
	}
}
