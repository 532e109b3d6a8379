package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasender_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	GatewaySend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wagate_send_total", Help: "Gateway send outcomes"},
		[]string{"result", "http_status"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "wagate_send_latency_seconds", Help: "Gateway send latency"},
	)
	DispatchMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasender_dispatch_messages_total", Help: "Per-message dispatch outcomes"},
		[]string{"outcome"},
	)
	CampaignsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasender_campaigns_completed_total", Help: "Completed campaign passes"},
		[]string{"result"},
	)
	SchedulerClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasender_scheduler_claims_total", Help: "Scheduler claim attempts"},
		[]string{"result"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wasender_events_published_total", Help: "Events published to the bus"},
		[]string{"type"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, GatewaySend, GatewayLatency, DispatchMessages, CampaignsCompleted, SchedulerClaims, EventsPublished)
}
