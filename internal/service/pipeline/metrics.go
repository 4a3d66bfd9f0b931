package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce   sync.Once
	buildsTotal   *prometheus.CounterVec
	buildDuration prometheus.Histogram
)

func initMetrics() {
	metricsOnce.Do(func() {
		buildsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devploy",
			Subsystem: "pipeline",
			Name:      "builds_total",
			Help:      "Count of completed build attempts by terminal status",
		}, []string{"status"})

		buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "devploy",
			Subsystem: "pipeline",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of build attempts",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		})

		for _, collector := range []prometheus.Collector{buildsTotal, buildDuration} {
			if err := prometheus.Register(collector); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						buildsTotal = v
					case prometheus.Histogram:
						buildDuration = v
					}
				}
			}
		}
	})
}

func observeBuild(status string, duration time.Duration) {
	initMetrics()
	buildsTotal.With(prometheus.Labels{"status": status}).Inc()
	buildDuration.Observe(duration.Seconds())
}
