// Package natsbus carries node traffic over NATS.
//
// Subjects (with the default "rocontrol" prefix):
//
//	rocontrol.register    receiver -> master, request/reply with a Reply
//	rocontrol.unregister  receiver -> master, request/reply with a Reply
//	rocontrol.heartbeat   receiver -> master, node.Heartbeat
//	rocontrol.ack         receiver -> master, command.Ack
//	rocontrol.command     master -> receivers, command.Command
//
// All payloads are JSON. Commands go to every receiver; each receiver
// drops commands addressed to another node. Heartbeats, acks and commands
// are fire-and-forget.
package natsbus
