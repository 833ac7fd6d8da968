// Package log provides the structured lifecycle journal for rocontrol nodes.
//
// This package defines the Logger interface and Event types for recording
// what a node did: registrations, heartbeats and liveness changes of peer
// nodes, commands published and acknowledged, time state transitions and
// timeline changes. It is separate from operational logging (slog) - the
// journal is a complete machine-readable trace for debugging a show after
// the fact.
//
// # Basic Usage
//
// Components accept a Logger in their config; nil disables the journal:
//
//	// For development: log to console via slog
//	cfg.Journal = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to a binary file behind a bounded queue
//	file, _ := log.NewFileLogger("/var/log/rocontrol/node.rlog")
//	cfg.Journal = log.NewQueueLogger(file, log.DefaultQueueSize)
//
//	// Both: use MultiLogger
//	cfg.Journal = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    queue,
//	)
//
// Journal writes never fail or block the caller for long. FileLogger
// ignores encoding errors, and QueueLogger drops events when its queue is
// full rather than waiting for the writer.
//
// # File Format
//
// Journal files are a stream of CBOR-encoded events with integer keys and
// RFC3339Nano timestamps (.rlog extension). The rocontrol-log CLI tool
// provides viewing, filtering, and export capabilities.
package log
