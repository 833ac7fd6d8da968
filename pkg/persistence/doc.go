// Package persistence saves a node's session to a YAML file so that a
// restarted node comes back with its configuration, registered time states
// and timelines.
//
// Only registry contents are persisted. Peer nodes are rediscovered and
// re-register after a restart.
package persistence
