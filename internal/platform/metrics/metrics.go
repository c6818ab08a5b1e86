package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics: gateway session state, operator
// commands and health probes.
type Metrics struct {
	GatewayConnected prometheus.Gauge
	CommandsHandled  *prometheus.CounterVec
	HealthChecks     *prometheus.CounterVec
	ConfigReloads    *prometheus.CounterVec
}

// New creates and registers the process metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		GatewayConnected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sentrybot_gateway_connected",
			Help: "1 while the gateway session is connected and ready",
		}),
		CommandsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_commands_total",
			Help: "Operator commands handled by command and outcome",
		}, []string{"command", "outcome"}),
		HealthChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_health_checks_total",
			Help: "Health endpoint probes by endpoint and status",
		}, []string{"endpoint", "status"}),
		ConfigReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sentrybot_config_reloads_total",
			Help: "Configuration reloads by outcome",
		}, []string{"outcome"}),
	}
}

// SetGatewayConnected records the gateway session state.
func (m *Metrics) SetGatewayConnected(connected bool) {
	if connected {
		m.GatewayConnected.Set(1)
		return
	}
	m.GatewayConnected.Set(0)
}

// IncCommand counts a handled operator command.
func (m *Metrics) IncCommand(command, outcome string) {
	m.CommandsHandled.WithLabelValues(command, outcome).Inc()
}

// IncHealthCheck counts a health probe.
func (m *Metrics) IncHealthCheck(endpoint, status string) {
	m.HealthChecks.WithLabelValues(endpoint, status).Inc()
}

// IncConfigReload counts a configuration reload.
func (m *Metrics) IncConfigReload(outcome string) {
	m.ConfigReloads.WithLabelValues(outcome).Inc()
}
