// Command rocontrol-node runs one node of a rocontrol show network.
//
// A master tracks the receivers on the LAN, accepts their registrations
// and heartbeats, and publishes commands to them. A receiver advertises
// itself, registers with the master and executes the commands addressed to
// it. Both roles track local time states and timelines.
//
// Usage:
//
//	rocontrol-node [flags]
//
// Flags:
//
//	-role string          Node role: master, receiver (default "master")
//	-node-id string       Node ID (auto-generated if empty)
//	-port uint            Advertised service port (default 9000)
//	-config string        Configuration file path (YAML)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-framerate string     Master framerate (default "30")
//	-no-discovery         Disable LAN discovery
//	-nats-url string      NATS server URL for the node transport
//	-metrics-addr string  Prometheus listen address
//	-session string       Session file restored on start and saved on exit
//	-journal string       Journal file (CBOR) for lifecycle events
//	-interactive          Start the interactive console
//
// Examples:
//
//	# Start a master with a console
//	rocontrol-node -role master -interactive
//
//	# Start a receiver connected to the show's NATS server
//	rocontrol-node -role receiver -node-id stage-left -nats-url nats://10.0.0.1:4222
//
//	# Start a master that keeps its states across restarts
//	rocontrol-node -session /var/lib/rocontrol/session.yaml -journal master.rlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocontrol/rocontrol-go/cmd/rocontrol-node/interactive"
	"github.com/rocontrol/rocontrol-go/pkg/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, session, err := parseConfig(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Log output moves to the console once it exists so that it does not
	// break the prompt.
	logWriter := &switchWriter{w: os.Stderr}
	logger, err := newLogger(cfg.LogLevel, logWriter)
	if err != nil {
		return err
	}

	journal, closeJournal, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	app, err := NewApp(cfg, session, logger, journal)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info("rocontrol node starting",
		slog.String("node_id", cfg.Node.NodeID),
		slog.String("role", cfg.Node.Role.String()),
		slog.Int("port", int(cfg.Node.ListenPort)),
		slog.String("framerate", cfg.Framerate.String()),
		slog.Bool("discovery", cfg.Node.AutoDiscover),
		slog.Int("restored_states", app.States.Len()))

	if cfg.Interactive {
		console, err := interactive.New(interactive.Deps{
			Registry:  app.Registry,
			States:    app.States,
			Timelines: app.Timelines,
			Bus:       app.Bus,
			Save:      app.SaveSession,
		})
		if err != nil {
			return err
		}
		logWriter.set(console.Stdout())
		go console.Run(ctx, cancel)
	}

	runErr := app.Run(ctx)
	logger.Info("shutting down")

	if err := app.SaveSession(); err != nil {
		logger.Error("session not saved", slog.Any("error", err))
	}
	return runErr
}

// openJournal builds the journal from cfg. Without a journal file, events
// still reach the operational logger at debug level.
func openJournal(cfg Config, logger *slog.Logger) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(logger.With(slog.String("component", "journal")))
	if cfg.Journal == "" {
		return adapter, func() {}, nil
	}

	file, err := log.NewFileLogger(cfg.Journal)
	if err != nil {
		return nil, nil, fmt.Errorf("open journal: %w", err)
	}
	queue := log.NewQueueLogger(file, log.DefaultQueueSize)

	closeFn := func() {
		_ = queue.Close()
		_ = file.Close()
		logger.Info("journal closed",
			slog.String("path", file.Path()),
			slog.Uint64("written", file.Written()))
		if dropped := queue.Dropped(); dropped > 0 {
			logger.Warn("journal events dropped", slog.Uint64("count", dropped))
		}
	}
	return log.NewMultiLogger(queue, adapter), closeFn, nil
}
