package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "livestream"

// PrometheusCollector records stream lifecycle and HTTP metrics.
type PrometheusCollector struct {
	factory promauto.Factory

	// Lifecycle
	streamsCreated    prometheus.Counter
	streamsEnded      *prometheus.CounterVec
	streamsDeleted    prometheus.Counter
	mediaStopFailures prometheus.Counter

	// Chat
	chatRoomsOpened  prometheus.Counter
	chatRoomsClosed  prometheus.Counter
	chatRoomFailures *prometheus.CounterVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the collector's metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		factory: factory,

		streamsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_created_total",
			Help:      "Total number of streams created",
		}),

		streamsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_ended_total",
			Help:      "Total number of streams ended, by path",
		}, []string{"path"}),

		streamsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_deleted_total",
			Help:      "Total number of streams deleted",
		}),

		mediaStopFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_stop_failures_total",
			Help:      "Total number of failed disconnect requests to the media server",
		}),

		chatRoomsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_rooms_opened_total",
			Help:      "Total number of chat rooms created for live streams",
		}),

		chatRoomsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_rooms_closed_total",
			Help:      "Total number of chat rooms closed by their stream",
		}),

		chatRoomFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_room_failures_total",
			Help:      "Total number of chat room operations that failed, by operation",
		}, []string{"op"}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
}

func (p *PrometheusCollector) StreamCreated() {
	p.streamsCreated.Inc()
}

func (p *PrometheusCollector) StreamEnded(path string) {
	p.streamsEnded.WithLabelValues(path).Inc()
}

func (p *PrometheusCollector) StreamDeleted() {
	p.streamsDeleted.Inc()
}

func (p *PrometheusCollector) ChatRoomOpened() {
	p.chatRoomsOpened.Inc()
}

func (p *PrometheusCollector) ChatRoomClosed() {
	p.chatRoomsClosed.Inc()
}

// TrackOpenRooms exports the live room count read from count at scrape
// time, so rooms dropped on hub shutdown or replaced are never miscounted.
// Call it once.
func (p *PrometheusCollector) TrackOpenRooms(count func() int) {
	p.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chat_rooms_open",
		Help:      "Number of chat rooms currently open",
	}, func() float64 { return float64(count()) })
}

func (p *PrometheusCollector) ChatRoomFailed(op string) {
	p.chatRoomFailures.WithLabelValues(op).Inc()
}

func (p *PrometheusCollector) MediaStopFailed() {
	p.mediaStopFailures.Inc()
}

// RecordHTTPRequest is called by the metrics middleware after each request.
func (p *PrometheusCollector) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, status).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
