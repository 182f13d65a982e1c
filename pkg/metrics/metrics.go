package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat",
		Name:      "connections_active",
		Help:      "Live websocket connections tracked by the presence registry.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "messages_sent_total",
		Help:      "Messages persisted by the pipeline.",
	})

	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "notifications_created_total",
		Help:      "Notifications persisted, by type.",
	}, []string{"type"})

	Pushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "pushes_total",
		Help:      "Live pushes by event and result (delivered|dropped).",
	}, []string{"event", "result"})

	Rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat",
		Name:      "rejections_total",
		Help:      "Requests rejected, by error code.",
	}, []string{"code"})
)

func init() {
	prometheus.MustRegister(ConnectionsActive, MessagesSent, NotificationsCreated, Pushes, Rejections)
}

// Push records the outcome of a best-effort live push.
func Push(event string, delivered bool) {
	result := "dropped"
	if delivered {
		result = "delivered"
	}
	Pushes.WithLabelValues(event, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
