package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/planning-engine/planning"
)

func TestPromRecorder_ConfirmOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPromRecorder(reg)
	require.NoError(t, err)

	rec.ObserveConfirmItem(planning.OutcomeCreated)
	rec.ObserveConfirmItem(planning.OutcomeCreated)
	rec.ObserveConfirmItem(planning.OutcomeSkipped)

	expected := `
# HELP planning_confirm_items_total Planning entries processed by confirm-day, by outcome
# TYPE planning_confirm_items_total counter
planning_confirm_items_total{outcome="created"} 2
planning_confirm_items_total{outcome="skipped"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(rec.confirmItems, strings.NewReader(expected)))
}

func TestPromRecorder_CacheLookups(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPromRecorder(reg)
	require.NoError(t, err)

	rec.ObserveCacheLookup(false)
	rec.ObserveCacheLookup(true)
	rec.ObserveCacheLookup(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.cacheLookups.WithLabelValues("miss")))
}

func TestNewPromRecorder_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromRecorder(reg)
	require.NoError(t, err)
	second, err := NewPromRecorder(reg)
	require.NoError(t, err)

	first.ObserveConfirmItem(planning.OutcomeLinked)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.confirmItems.WithLabelValues("linked")))
}
