package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// NewMetricsRegistry builds a Prometheus registry carrying the Go runtime
// collectors plus every collector passed in (the gateway's own metrics from
// All()).
func NewMetricsRegistry(collectorsList ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	for _, c := range collectorsList {
		reg.MustRegister(c)
	}
	return reg
}
