// Package observability holds the lead and upload metrics shared by the API and repository.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	leadsIngestedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pt_hub",
		Subsystem: "leads",
		Name:      "ingested_total",
		Help:      "Number of quiz submissions stored, labeled by triage segment.",
	}, []string{"segment"})

	leadsBottleneckCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pt_hub",
		Subsystem: "leads",
		Name:      "bottleneck_total",
		Help:      "Number of stored leads by diagnosed bottleneck and confidence.",
	}, []string{"bottleneck", "confidence"})

	spamFilteredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pt_hub",
		Subsystem: "leads",
		Name:      "spam_filtered_total",
		Help:      "Number of submissions dropped by the honeypot field.",
	})

	leadPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pt_hub",
		Subsystem: "persistence",
		Name:      "last_lead_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent lead persisted to Postgres.",
	})

	uploadsReceivedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pt_hub",
		Subsystem: "uploads",
		Name:      "received_total",
		Help:      "Number of audit files stored.",
	})

	uploadBytesHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pt_hub",
		Subsystem: "uploads",
		Name:      "bytes",
		Help:      "Size distribution of stored audit files.",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 7),
	})
)

func init() {
	prometheus.MustRegister(
		leadsIngestedCounter,
		leadsBottleneckCounter,
		spamFilteredCounter,
		leadPersistGauge,
		uploadsReceivedCounter,
		uploadBytesHistogram,
	)
}

// RecordLeadIngested counts a stored lead by its triage outcome.
func RecordLeadIngested(segment, bottleneck, confidence string) {
	leadsIngestedCounter.WithLabelValues(segment).Inc()
	leadsBottleneckCounter.WithLabelValues(bottleneck, confidence).Inc()
}

// RecordSpamFiltered counts a honeypot hit.
func RecordSpamFiltered() {
	spamFilteredCounter.Inc()
}

// RecordLeadPersisted updates the persistence watermark gauge.
func RecordLeadPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	leadPersistGauge.Set(float64(ts.Unix()))
}

// RecordUploadReceived counts a stored file and its size.
func RecordUploadReceived(size int64) {
	uploadsReceivedCounter.Inc()
	uploadBytesHistogram.Observe(float64(size))
}
