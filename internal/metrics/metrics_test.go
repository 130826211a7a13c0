package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	ConnectionTransition("inbound", "", "handshaking")
	ConnectionTransition("inbound", "handshaking", "active")
	if got := testutil.ToFloat64(connections.WithLabelValues("inbound", "handshaking")); got != 0 {
		t.Fatalf("handshaking gauge = %v, want 0", got)
	}
	ConnectionTransition("inbound", "active", "")
	AdmissionRejected("inbound", "passive_cap")
	Disconnect("protocol")
	Envelope("in", "inv")
	ParseFailure("checksum")
	PoWSolved(30 * time.Millisecond)

	before := testutil.ToFloat64(objects.WithLabelValues("msg", "accepted"))
	Object("msg", "accepted")
	if got := testutil.ToFloat64(objects.WithLabelValues("msg", "accepted")); got != before+1 {
		t.Fatalf("objects counter = %v, want %v", got, before+1)
	}
}
