// Package command implements the best-effort command bus.
//
// A master packages actions as Commands and publishes them to every
// transport currently subscribed. Delivery is fan-out with bounded
// per-subscriber buffers: a subscriber that joins after a send never sees
// it, and a full subscriber loses it. Recipients filter on TargetNode
// themselves (see Command.AddressedTo).
//
// Acknowledgments are validated and logged. They are not correlated with
// outstanding commands and nothing is retried; callers needing guaranteed
// delivery layer that on top.
package command
