package reviews

import "github.com/prometheus/client_golang/prometheus"

var cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pt_hub",
	Subsystem: "reviews",
	Name:      "cache_lookups_total",
	Help:      "Review cache lookups by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(cacheLookups)
}
