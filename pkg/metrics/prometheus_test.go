package metrics_test

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/nexfin/pesitd/pkg/metrics"
)

// The package offers no way to reset its registry between tests, so these
// tests only check that a nil recorder never panics and that a real one
// records.
func TestNilRecorderIsNoOp(t *testing.T) {
	var r *metrics.PrometheusRecorder
	require.NotPanics(t, func() {
		r.RecordSessionAccepted()
		r.RecordSessionRejected("no-leader")
		r.SetActiveSessions(3)
		r.RecordTransferStarted("receive")
		r.RecordTransferCompleted("receive", 1024)
		r.RecordTransferFailed("send", 2)
		r.RecordSyncPoint("receive")
		r.RecordAbort(3, 311)
	})
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := metrics.InitRegistry()
	r := metrics.NewPrometheusRecorder()
	require.NotNil(t, r)

	r.RecordSessionAccepted()
	r.RecordTransferStarted("receive")
	r.RecordSyncPoint("receive")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.True(t, findCounterValue(families, "pesitd_sessions_accepted_total") >= 1)
}

func findCounterValue(families []*dto.MetricFamily, name string) float64 {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		var total float64
		for _, m := range fam.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
