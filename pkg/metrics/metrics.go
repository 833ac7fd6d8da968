// Package metrics exposes node, command and time state figures to
// Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rocontrol/rocontrol-go/pkg/broadcast"
	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
)

// Command scopes.
const (
	ScopeBroadcast = "broadcast"
	ScopeTargeted  = "targeted"
)

// Metrics holds the event-driven counters.
type Metrics struct {
	NodeEvents *prometheus.CounterVec
	Commands   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NodeEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rocontrol_node_events_total",
			Help: "Total number of node registry events by type",
		}, []string{"type"}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rocontrol_commands_total",
			Help: "Total number of commands seen on the bus by scope",
		}, []string{"scope"}),
	}
}

// ObserveNodeEvent counts one registry event.
func (m *Metrics) ObserveNodeEvent(ev node.Event) {
	m.NodeEvents.WithLabelValues(ev.Type.String()).Inc()
}

// ObserveCommand counts one command.
func (m *Metrics) ObserveCommand(cmd command.Command) {
	scope := ScopeTargeted
	if cmd.Broadcast() {
		scope = ScopeBroadcast
	}
	m.Commands.WithLabelValues(scope).Inc()
}

// Run counts events from the given subscriptions until ctx is done or both
// subscriptions are closed. Either subscription may be nil.
func (m *Metrics) Run(ctx context.Context, events *broadcast.Subscription[node.Event], commands *broadcast.Subscription[command.Command]) error {
	var evC <-chan node.Event
	var cmdC <-chan command.Command
	if events != nil {
		evC = events.C
		defer events.Close()
	}
	if commands != nil {
		cmdC = commands.C
		defer commands.Close()
	}

	for evC != nil || cmdC != nil {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-evC:
			if !ok {
				evC = nil
				continue
			}
			m.ObserveNodeEvent(ev)
		case cmd, ok := <-cmdC:
			if !ok {
				cmdC = nil
				continue
			}
			m.ObserveCommand(cmd)
		}
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
