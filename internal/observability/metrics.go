package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_api_requests_total", Help: "Inbound API requests"},
		[]string{"endpoint", "status"},
	)
	DiscoveryTenants = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_discovery_tenants_total", Help: "Per-tenant discovery passes"},
		[]string{"result"},
	)
	DiscoveryAppointments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_discovery_appointments_total", Help: "Fetched appointments by filter result"},
		[]string{"result"},
	)
	SourceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_source_requests_total", Help: "Scheduling backend calls"},
		[]string{"endpoint", "result"},
	)
	Delivery = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_delivery_total", Help: "Messaging gateway send outcomes"},
		[]string{"result", "http_status"},
	)
	GatewayLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "reminder_gateway_latency_seconds", Help: "Messaging gateway send latency"},
	)
	Confirmations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reminder_confirmation_total", Help: "Confirmation callback outcomes"},
		[]string{"outcome"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, DiscoveryTenants, DiscoveryAppointments, SourceRequests,
		Delivery, GatewayLatency, Confirmations)
}
