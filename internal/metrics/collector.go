// Package metrics provides Prometheus metrics for eNodeB sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lte-gateway/enodebd/internal/datamodel"
	"github.com/lte-gateway/enodebd/pkg/tr069"
)

const namespace = "enodebd"

// Collector records session activity. It implements statemachine.Observer.
type Collector struct {
	transitions *prometheus.CounterVec
	requests    *prometheus.CounterVec
	violations  *prometheus.CounterVec
	timeouts    *prometheus.CounterVec
	transforms  *prometheus.CounterVec

	sessions  prometheus.Gauge
	connected *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions by target state",
		}, []string{"state"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_sent_total",
			Help:      "CWMP requests sent to devices by RPC",
		}, []string{"rpc"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_violations_total",
			Help:      "Messages a state did not expect",
		}, []string{"state", "message"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_timeouts_total",
			Help:      "State timeouts by state",
		}, []string{"state"}),
		transforms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_failures_total",
			Help:      "Parameter value conversions that failed",
		}, []string{"param"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of device sessions held in memory",
		}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enodeb_connected",
			Help:      "Whether the eNodeB is connected (1) or not (0)",
		}, []string{"serial"}),
	}

	reg.MustRegister(c.transitions, c.requests, c.violations, c.timeouts,
		c.transforms, c.sessions, c.connected)
	return c
}

// StateChanged counts a transition and tracks connectivity
func (c *Collector) StateChanged(serial, from, to string) {
	c.transitions.WithLabelValues(to).Inc()
	if to == "disconnected" {
		c.connected.WithLabelValues(serial).Set(0)
	} else if from == "disconnected" {
		c.connected.WithLabelValues(serial).Set(1)
	}
}

func (c *Collector) RequestSent(serial string, kind tr069.RPCKind) {
	c.requests.WithLabelValues(string(kind)).Inc()
}

func (c *Collector) ProtocolViolation(serial, state string, kind tr069.EventKind) {
	c.violations.WithLabelValues(state, string(kind)).Inc()
}

func (c *Collector) TimedOut(serial, state string) {
	c.timeouts.WithLabelValues(state).Inc()
}

func (c *Collector) TransformFailed(serial string, name datamodel.ParameterName, err error) {
	c.transforms.WithLabelValues(string(name)).Inc()
}

// SetSessions reports the number of live sessions
func (c *Collector) SetSessions(n int) {
	c.sessions.Set(float64(n))
}

// Forget drops per-device series
func (c *Collector) Forget(serial string) {
	c.connected.DeleteLabelValues(serial)
}
