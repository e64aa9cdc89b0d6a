// Package metrics exposes Prometheus counters for the connection ledger and
// the live chat relay.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and the hub report to.
type Recorder interface {
	RecordConnectionRequest(outcome string)
	RecordNotification(channel string, err error)
	RecordChatEvent(action string)
	RecordRelay(event string, delivered bool)
	SetOnlineUsers(n int)
}

// Collector records into Prometheus.
type Collector struct {
	connectionRequests *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	chatEvents         *prometheus.CounterVec
	relays             *prometheus.CounterVec
	onlineUsers        prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectionRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_connection_requests_total",
			Help: "Connection request operations by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_notifications_total",
			Help: "Outbound notification attempts by channel and result.",
		}, []string{"channel", "success"}),
		chatEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_chat_events_total",
			Help: "Persisted chat mutations by action.",
		}, []string{"action"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alumni_relay_events_total",
			Help: "Live relay attempts by event type and whether a local client received them.",
		}, []string{"event", "delivered"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alumni_online_users",
			Help: "Users with an active live channel on this instance.",
		}),
	}

	reg.MustRegister(
		c.connectionRequests,
		c.notifications,
		c.chatEvents,
		c.relays,
		c.onlineUsers,
	)

	return c
}

func (c *Collector) RecordConnectionRequest(outcome string) {
	c.connectionRequests.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordNotification(channel string, err error) {
	c.notifications.WithLabelValues(channel, strconv.FormatBool(err == nil)).Inc()
}

func (c *Collector) RecordChatEvent(action string) {
	c.chatEvents.WithLabelValues(action).Inc()
}

func (c *Collector) RecordRelay(event string, delivered bool) {
	c.relays.WithLabelValues(event, strconv.FormatBool(delivered)).Inc()
}

func (c *Collector) SetOnlineUsers(n int) {
	c.onlineUsers.Set(float64(n))
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordConnectionRequest(string) {}
func (Nop) RecordNotification(string, error) {}
func (Nop) RecordChatEvent(string) {}
func (Nop) RecordRelay(string, bool) {}
func (Nop) SetOnlineUsers(int) {}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
