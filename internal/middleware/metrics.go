package middleware

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "group_messaging",
		Name:      "operations_total",
		Help:      "Number of API operations by operation and result.",
	}, []string{"operation", "result"})

	fanoutWidth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "group_messaging",
		Name:      "message_recipients",
		Help:      "Number of per-recipient ciphertexts carried by appended messages.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// ObserveFanoutWidth は追加されたメッセージの宛先数を記録する。
func ObserveFanoutWidth(recipients int) {
	fanoutWidth.Observe(float64(recipients))
}

// MetricsHandler はPrometheusのスクレイプ用ハンドラを返す。
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
