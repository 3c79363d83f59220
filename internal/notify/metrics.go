package notify

import "github.com/prometheus/client_golang/prometheus"

const (
	statusSent   = "sent"
	statusFailed = "failed"
)

var emailsSentCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pt_hub",
	Subsystem: "emails",
	Name:      "sent_total",
	Help:      "Number of transactional emails handed to the mail provider, by kind and outcome.",
}, []string{"kind", "status"})

func init() {
	prometheus.MustRegister(emailsSentCounter)
}

func recordEmail(kind, status string) {
	emailsSentCounter.WithLabelValues(kind, status).Inc()
}
