// Package metrics exports engine observations to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/planning-engine/planning"
)

// PromRecorder implements planning.Recorder with Prometheus counters.
type PromRecorder struct {
	confirmItems *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
}

var _ planning.Recorder = (*PromRecorder)(nil)

// NewPromRecorder registers the engine metrics on reg. If reg is nil, the
// default registerer is used. Collectors that are already registered are
// reused.
func NewPromRecorder(reg prometheus.Registerer) (*PromRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	confirmItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_confirm_items_total",
		Help: "Planning entries processed by confirm-day, by outcome",
	}, []string{"outcome"})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planning_availability_cache_total",
		Help: "Availability resolver cache lookups, by result",
	}, []string{"result"})

	var err error
	if confirmItems, err = register(reg, confirmItems); err != nil {
		return nil, err
	}
	if cacheLookups, err = register(reg, cacheLookups); err != nil {
		return nil, err
	}
	return &PromRecorder{confirmItems: confirmItems, cacheLookups: cacheLookups}, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(*prometheus.CounterVec), nil
		}
		return nil, err
	}
	return c, nil
}

// ObserveConfirmItem counts one processed planning entry.
func (r *PromRecorder) ObserveConfirmItem(outcome planning.ConfirmOutcome) {
	r.confirmItems.WithLabelValues(string(outcome)).Inc()
}

// ObserveCacheLookup counts one resolver cache hit or miss.
func (r *PromRecorder) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}
