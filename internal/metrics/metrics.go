package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the bot's counters on a private registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry
	webhooks *prometheus.CounterVec
	flows    *prometheus.CounterVec
	outbound *prometheus.CounterVec
	replies  *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdbot_webhook_requests_total",
			Help: "Inbound webhook requests by platform and HTTP status.",
		}, []string{"platform", "status"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdbot_flow_outcomes_total",
			Help: "Conversation flow outcomes.",
		}, []string{"flow", "outcome"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdbot_outbound_messages_total",
			Help: "Outbound sends by platform and result.",
		}, []string{"platform", "result"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pdbot_keyword_replies_total",
			Help: "Keyword replies by matched rule.",
		}, []string{"rule"}),
	}
	c.registry.MustRegister(
		c.webhooks, c.flows, c.outbound, c.replies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) WebhookRequest(platform, status string) {
	if c == nil {
		return
	}
	c.webhooks.WithLabelValues(platform, status).Inc()
}

// FlowOutcome implements conversation.FlowObserver.
func (c *Collector) FlowOutcome(flow, outcome string) {
	if c == nil {
		return
	}
	c.flows.WithLabelValues(flow, outcome).Inc()
}

// OutboundMessage implements notifier.Observer.
func (c *Collector) OutboundMessage(platform, result string) {
	if c == nil {
		return
	}
	c.outbound.WithLabelValues(platform, result).Inc()
}

func (c *Collector) KeywordReply(rule string) {
	if c == nil {
		return
	}
	c.replies.WithLabelValues(rule).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
