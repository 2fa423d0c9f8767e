// Package metrics instruments QueryService implementations with Prometheus
// timings and error counts.
package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const (
	promNamespace = "querykit"
	promSubsystem = "service"
)

var serviceLabels = []string{"entity", "method"}

// Collectors holds the metrics shared by every instrumented service.
type Collectors struct {
	Seconds *prom.HistogramVec
	Errors  *prom.CounterVec
}

// NewCollectors creates the collectors and registers them with reg. A nil
// reg leaves them unregistered.
func NewCollectors(reg prom.Registerer) (*Collectors, error) {
	c := &Collectors{
		Seconds: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "seconds",
			Help:      "duration of query service calls",
			Buckets:   prom.DefBuckets,
		}, serviceLabels),
		Errors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: promNamespace,
			Subsystem: promSubsystem,
			Name:      "errors",
			Help:      "errors from query service calls",
		}, serviceLabels),
	}
	if reg == nil {
		return c, nil
	}
	for _, col := range []prom.Collector{c.Seconds, c.Errors} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Time observes the time elapsed since it was called once the returned
// function runs. Use it as `defer Time(obs)()`.
func Time(obs prom.Observer) func() {
	start := time.Now()
	return func() {
		obs.Observe(time.Since(start).Seconds())
	}
}

// ErrCount increments c if *err is non-nil. Use it deferred.
func ErrCount(c prom.Counter, err *error) {
	if *err != nil {
		c.Inc()
	}
}
