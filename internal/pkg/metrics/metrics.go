package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration латентность API по маршрутам
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teledrive_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teledrive_backend_requests_total",
		Help: "Calls made to the remote Telegram-backed service",
	}, []string{"operation", "outcome"})

	BackendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teledrive_backend_request_duration_seconds",
		Help:    "Remote call duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation"})

	RankingFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "teledrive_ranking_fallbacks_total",
		Help: "Searches that fell back to substring matching",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teledrive_uploads_total",
		Help: "Upload attempts by result",
	}, []string{"result"})

	StaleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "teledrive_stale_results_total",
		Help: "Results discarded because a newer request superseded them",
	}, []string{"action"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teledrive_active_sessions",
		Help: "Gallery sessions held in memory",
	})

	NoticeClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "teledrive_notice_clients",
		Help: "Open websocket notice streams",
	})
)

// NoticeStats is implemented by the websocket notice hub.
type NoticeStats interface {
	Stats() (sent, dropped, connections int64)
}

// RegisterNoticeHub exposes the hub totals as counters.
func RegisterNoticeHub(reg prometheus.Registerer, hub NoticeStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "teledrive_notices_sent_total",
			Help: "Notices queued to websocket streams",
		}, func() float64 {
			sent, _, _ := hub.Stats()
			return float64(sent)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "teledrive_notices_dropped_total",
			Help: "Notices dropped because a stream queue was full",
		}, func() float64 {
			_, dropped, _ := hub.Stats()
			return float64(dropped)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "teledrive_notice_connections_total",
			Help: "Websocket notice streams accepted",
		}, func() float64 {
			_, _, connections := hub.Stats()
			return float64(connections)
		}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
