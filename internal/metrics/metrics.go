package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "taskline"

const (
	LabelMethod = "method"
	LabelRoute  = "route"
	LabelStatus = "status"
	LabelResult = "result"
)

var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status",
		Namespace: Namespace,
	},
	[]string{LabelMethod, LabelRoute, LabelStatus},
)

var HTTPDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Namespace: Namespace,
		Buckets:   prometheus.DefBuckets,
	},
	[]string{LabelMethod, LabelRoute},
)

var Logins = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "logins_total",
		Help:      "Login attempts by result",
		Namespace: Namespace,
	},
	[]string{LabelResult},
)

var WebhookDeliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries by result",
		Namespace: Namespace,
	},
	[]string{LabelResult},
)
