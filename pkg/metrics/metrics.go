package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes reported for an agent call.
const (
	OutcomeOK        = "ok"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
	OutcomeMalformed = "malformed"
)

// Recorder captures adapter-side call metrics.
type Recorder interface {
	ObserveQuestion(outcome string, durationSeconds float64)
}

// ServerRecorder captures request metrics for the mock agent service.
type ServerRecorder interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements Recorder and ServerRecorder without emitting anything.
type Noop struct{}

func (Noop) ObserveQuestion(string, float64)                {}
func (Noop) ObserveRequest(string, string, string, float64) {}

// AgentProm implements Recorder backed by Prometheus collectors.
type AgentProm struct {
	questions        *prometheus.CounterVec
	questionDuration *prometheus.HistogramVec
	gatherer         prometheus.Gatherer
}

// NewAgentProm registers the question collectors on reg. A nil reg uses the
// default registry.
func NewAgentProm(namespace string, reg prometheus.Registerer) *AgentProm {
	p := &AgentProm{
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_questions_total",
			Help:      "Questions sent to the agent service by outcome",
		}, []string{"outcome"}),
		questionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_question_duration_seconds",
			Help:      "Agent question round-trip latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	p.gatherer = register(reg, p.questions, p.questionDuration)
	return p
}

func (p *AgentProm) ObserveQuestion(outcome string, durationSeconds float64) {
	p.questions.WithLabelValues(outcome).Inc()
	p.questionDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// WriteTextfile writes the registry in the text exposition format, for the
// node_exporter textfile collector.
func (p *AgentProm) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.gatherer)
}

// ServerProm implements ServerRecorder backed by Prometheus collectors.
type ServerProm struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gatherer        prometheus.Gatherer
}

// NewServerProm registers the mock agent request collectors on reg. A nil reg
// uses the default registry.
func NewServerProm(namespace string, reg prometheus.Registerer) *ServerProm {
	p := &ServerProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mock_agent_requests_total",
			Help:      "Mock agent HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mock_agent_request_duration_seconds",
			Help:      "Mock agent HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.gatherer = register(reg, p.requests, p.requestDuration)
	return p
}

func (p *ServerProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.requestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// Handler serves the registry p was registered on.
func (p *ServerProm) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) prometheus.Gatherer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(cs...)
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}
