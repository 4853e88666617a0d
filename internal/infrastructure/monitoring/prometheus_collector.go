package monitoring

import (
	"castline/internal/core/domain"
	"castline/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	chatMessagesTotal  *prometheus.CounterVec
	moderationTotal    *prometheus.CounterVec
	lifecycleTotal     *prometheus.CounterVec
	busPublishTotal    *prometheus.CounterVec
	droppedSamples     prometheus.Counter
	streamLive         prometheus.Gauge
	streamViewers      prometheus.Gauge
	gatewayConnections prometheus.Gauge
}

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the coordinator metrics on reg. Tests pass
// a fresh prometheus.NewRegistry().
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		chatMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_chat_messages_total",
			Help: "Chat messages appended to the timeline",
		}, []string{"type"}),

		moderationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_moderation_actions_total",
			Help: "Moderation actions by outcome",
		}, []string{"action", "outcome"}),

		lifecycleTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_lifecycle_callbacks_total",
			Help: "Ingest lifecycle callbacks by outcome",
		}, []string{"signal", "outcome"}),

		busPublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "castline_bus_publish_total",
			Help: "Events published on the fan-out bus",
		}, []string{"event", "status"}),

		droppedSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "castline_media_samples_dropped_total",
			Help: "Media samples dropped because the session store was unavailable",
		}),

		streamLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "castline_stream_live",
			Help: "1 while a broadcast is live",
		}),

		streamViewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "castline_stream_viewers",
			Help: "Current viewer count reported by the ingest process",
		}),

		gatewayConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "castline_gateway_connections",
			Help: "Open websocket connections on this process",
		}),
	}
}

func (p *PrometheusCollector) RecordChatMessage(typ domain.MessageType) {
	p.chatMessagesTotal.WithLabelValues(string(typ)).Inc()
}

func (p *PrometheusCollector) RecordModeration(action, outcome string) {
	p.moderationTotal.WithLabelValues(action, outcome).Inc()
}

func (p *PrometheusCollector) RecordLifecycle(signal, outcome string) {
	p.lifecycleTotal.WithLabelValues(signal, outcome).Inc()
}

func (p *PrometheusCollector) SetLive(live bool) {
	if live {
		p.streamLive.Set(1)
		return
	}
	p.streamLive.Set(0)
	p.streamViewers.Set(0)
}

func (p *PrometheusCollector) SetViewers(n int) {
	p.streamViewers.Set(float64(n))
}

func (p *PrometheusCollector) RecordBusPublish(event string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.busPublishTotal.WithLabelValues(event, status).Inc()
}

func (p *PrometheusCollector) RecordDroppedSample() {
	p.droppedSamples.Inc()
}

func (p *PrometheusCollector) GatewayConnected() {
	p.gatewayConnections.Inc()
}

func (p *PrometheusCollector) GatewayDisconnected() {
	p.gatewayConnections.Dec()
}
