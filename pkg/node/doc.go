// Package node tracks the nodes of a rocontrol fleet.
//
// A Registry owns the known nodes of one process. Receivers register with
// the master and send heartbeats; the registry marks a node offline once
// no heartbeat arrived within the node timeout. The sweep that does this
// (CheckHealth) is driven externally, for example by RunHealthCheck.
//
// Discovery feeds LAN advertisements into the same registry, and
// HeartbeatEmitter is the receiver side of the liveness protocol.
//
// Every change is published as an Event. Event subscribers have bounded
// buffers; a slow subscriber loses events and nothing is replayed.
package node
