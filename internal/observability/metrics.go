package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"peer", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peersync",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"peer", "method", "path", "status"},
	)
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "sync",
			Name:      "messages_sent_total",
			Help:      "Protocol messages handed to the transport.",
		},
		[]string{"peer", "kind"},
	)
	messagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "sync",
			Name:      "messages_received_total",
			Help:      "Protocol messages decoded and dispatched.",
		},
		[]string{"peer", "kind"},
	)
	messagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peersync",
			Subsystem: "sync",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped on either direction, by reason.",
		},
		[]string{"peer", "direction", "reason"},
	)
	objects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "peersync",
			Subsystem: "sync",
			Name:      "objects",
			Help:      "Registered objects by authority.",
		},
		[]string{"peer", "authority"},
	)
	connected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "peersync",
			Subsystem: "sync",
			Name:      "connected",
			Help:      "1 while the peer link is up.",
		},
		[]string{"peer"},
	)
	tickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peersync",
			Subsystem: "sync",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent inside one tick.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025},
		},
		[]string{"peer"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			messagesSent, messagesReceived, messagesDropped,
			objects, connected, tickDuration,
		)
	})
}

func RecordHTTPRequest(peer, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(peer, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(peer, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordMessageSent(peer, kind string) {
	RegisterMetrics()
	messagesSent.WithLabelValues(peer, kind).Inc()
}

// PrimeMessageKinds creates zero-valued sent and received series for every
// kind so a scrape shows the full set before traffic arrives.
func PrimeMessageKinds(peer string, kinds []string) {
	RegisterMetrics()
	for _, kind := range kinds {
		messagesSent.WithLabelValues(peer, kind)
		messagesReceived.WithLabelValues(peer, kind)
	}
}

func RecordMessageReceived(peer, kind string) {
	RegisterMetrics()
	messagesReceived.WithLabelValues(peer, kind).Inc()
}

// RecordMessageDropped counts a message lost in direction "in" or "out".
func RecordMessageDropped(peer, direction, reason string) {
	RegisterMetrics()
	messagesDropped.WithLabelValues(peer, direction, reason).Inc()
}

func RecordObjects(peer string, authoritative, replicas int) {
	RegisterMetrics()
	objects.WithLabelValues(peer, "authoritative").Set(float64(authoritative))
	objects.WithLabelValues(peer, "replica").Set(float64(replicas))
}

func RecordConnected(peer string, up bool) {
	RegisterMetrics()
	v := 0.0
	if up {
		v = 1
	}
	connected.WithLabelValues(peer).Set(v)
}

func RecordTick(peer string, duration time.Duration) {
	RegisterMetrics()
	tickDuration.WithLabelValues(peer).Observe(duration.Seconds())
}
