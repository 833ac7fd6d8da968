// Package broadcast provides a bounded, lossy fan-out channel.
//
// A Broadcaster delivers every published value to each subscriber that was
// registered before the call to Publish. Each subscriber owns a buffered
// channel; when that buffer is full the value is dropped for that subscriber
// only. Publishers never block on slow or absent consumers, and values are
// never replayed to late subscribers.
//
// The node registry uses it for lifecycle events, the command bus for
// outbound commands, and the time-state engine for its snapshot stream.
package broadcast
