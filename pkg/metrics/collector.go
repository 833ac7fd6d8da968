package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

// NodeSource is read at scrape time. *node.Registry satisfies it.
type NodeSource interface {
	All() []node.Node
	DroppedEvents() uint64
}

// StateSource is read at scrape time. *timestate.Manager satisfies it.
type StateSource interface {
	All() []timestate.TimeState
}

// BusSource is read at scrape time. *command.Bus satisfies it.
type BusSource interface {
	Stats() (sent, acked uint64)
	Dropped() uint64
}

// Collector reports registry contents at scrape time. Any source may be nil.
type Collector struct {
	nodes  NodeSource
	states StateSource
	bus    BusSource

	nodesDesc   *prometheus.Desc
	statesDesc  *prometheus.Desc
	aliveDesc   *prometheus.Desc
	droppedDesc *prometheus.Desc
	acksDesc    *prometheus.Desc
}

// NewCollector creates a collector over the given sources.
func NewCollector(nodes NodeSource, states StateSource, bus BusSource) *Collector {
	return &Collector{
		nodes:  nodes,
		states: states,
		bus:    bus,
		nodesDesc: prometheus.NewDesc("rocontrol_nodes",
			"Known nodes by role and liveness", []string{"role", "online"}, nil),
		statesDesc: prometheus.NewDesc("rocontrol_time_states",
			"Registered time states by run state", []string{"run_state"}, nil),
		aliveDesc: prometheus.NewDesc("rocontrol_time_states_alive",
			"Time states updated within the liveness window", nil, nil),
		droppedDesc: prometheus.NewDesc("rocontrol_dropped_events",
			"Deliveries lost to slow subscribers", []string{"source"}, nil),
		acksDesc: prometheus.NewDesc("rocontrol_command_acks_total",
			"Command acknowledgments accepted", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nodesDesc
	ch <- c.statesDesc
	ch <- c.aliveDesc
	ch <- c.droppedDesc
	ch <- c.acksDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.nodes != nil {
		type key struct {
			role   string
			online string
		}
		counts := make(map[key]int)
		for _, role := range []node.Role{node.RoleMaster, node.RoleReceiver, node.RoleUnknown} {
			counts[key{role.String(), "true"}] = 0
			counts[key{role.String(), "false"}] = 0
		}
		for _, n := range c.nodes.All() {
			online := "false"
			if n.Online {
				online = "true"
			}
			counts[key{n.Role.String(), online}]++
		}
		for k, v := range counts {
			ch <- prometheus.MustNewConstMetric(c.nodesDesc, prometheus.GaugeValue, float64(v), k.role, k.online)
		}
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.GaugeValue, float64(c.nodes.DroppedEvents()), "node_events")
	}

	if c.states != nil {
		counts := map[timestate.RunState]int{
			timestate.Stopped: 0,
			timestate.Playing: 0,
			timestate.Paused:  0,
			timestate.Cueing:  0,
			timestate.Error:   0,
		}
		alive := 0
		for _, s := range c.states.All() {
			counts[s.RunState]++
			if s.IsAlive() {
				alive++
			}
		}
		for rs, v := range counts {
			ch <- prometheus.MustNewConstMetric(c.statesDesc, prometheus.GaugeValue, float64(v), rs.String())
		}
		ch <- prometheus.MustNewConstMetric(c.aliveDesc, prometheus.GaugeValue, float64(alive))
	}

	if c.bus != nil {
		_, acked := c.bus.Stats()
		ch <- prometheus.MustNewConstMetric(c.acksDesc, prometheus.CounterValue, float64(acked))
		ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.GaugeValue, float64(c.bus.Dropped()), "commands")
	}
}
