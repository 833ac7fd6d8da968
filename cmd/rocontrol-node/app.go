package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/discovery"
	"github.com/rocontrol/rocontrol-go/pkg/log"
	"github.com/rocontrol/rocontrol-go/pkg/metrics"
	"github.com/rocontrol/rocontrol-go/pkg/natsbus"
	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/persistence"
	"github.com/rocontrol/rocontrol-go/pkg/timeline"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
	"github.com/rocontrol/rocontrol-go/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// App owns the registries of one node and the background tasks around them.
type App struct {
	cfg     Config
	logger  *slog.Logger
	journal log.Logger

	Registry  *node.Registry
	States    *timestate.Manager
	Timelines *timeline.Registry
	Bus       *command.Bus

	metrics  *metrics.Metrics
	promReg  *prometheus.Registry
	store    *persistence.SessionStore
	executor executor

	// discovery, nc, master and receiver are nil when disabled.
	discovery *node.Discovery
	nc        *nats.Conn
	master    *natsbus.Master
	receiver  *natsbus.Receiver
}

// NewApp creates the registries and restores session. Network services are
// connected here; background tasks start in Run.
func NewApp(cfg Config, session *persistence.Session, logger *slog.Logger, journal log.Logger) (*App, error) {
	journal = log.OrNoop(journal)

	nodeCfg := cfg.Node
	nodeCfg.Logger = logger.With(slog.String("component", "node"))
	nodeCfg.Journal = journal
	registry, err := node.NewRegistry(nodeCfg)
	if err != nil {
		return nil, err
	}
	nodeID := nodeCfg.NodeID

	states := timestate.NewManager(timestate.Config{
		MasterFramerate: cfg.Framerate,
		NodeID:          nodeID,
		Logger:          logger.With(slog.String("component", "timestate")),
		Journal:         journal,
	})
	timelines := timeline.NewRegistry(timeline.Config{
		Framerate:       cfg.Framerate,
		FramerateSource: states,
		NodeID:          nodeID,
		Logger:          logger.With(slog.String("component", "timeline")),
		Journal:         journal,
	})
	bus := command.NewBus(command.Config{
		NodeID:  nodeID,
		Logger:  logger.With(slog.String("component", "command")),
		Journal: journal,
	})

	if err := session.Apply(states, timelines); err != nil {
		logger.Warn("session partially restored", slog.Any("error", err))
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(registry, states, bus),
	)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		journal:   journal,
		Registry:  registry,
		States:    states,
		Timelines: timelines,
		Bus:       bus,
		metrics:   metrics.NewMetrics(promReg),
		promReg:   promReg,
		executor:  executor{states: states},
	}
	if cfg.Session != "" {
		a.store = persistence.NewSessionStore(cfg.Session)
	}

	if cfg.Node.AutoDiscover {
		if err := a.setupDiscovery(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.NATSURL != "" {
		if err := a.setupTransport(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) setupDiscovery() error {
	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		return fmt.Errorf("create advertiser: %w", err)
	}
	br, err := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	if err != nil {
		return fmt.Errorf("create browser: %w", err)
	}
	a.discovery = node.NewDiscovery(a.Registry, adv, br, node.DiscoveryConfig{
		Version: version.Current,
		Logger:  a.logger.With(slog.String("component", "discovery")),
		Journal: a.journal,
	})
	return nil
}

func (a *App) setupTransport() error {
	nodeID := a.Registry.Config().NodeID
	nc, err := natsbus.Connect(a.cfg.NATSURL, "rocontrol-"+nodeID, a.logger)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", node.ErrNetwork, a.cfg.NATSURL, err)
	}
	a.nc = nc

	logger := a.logger.With(slog.String("component", "natsbus"))
	switch a.cfg.Node.Role {
	case node.RoleMaster:
		a.master = natsbus.NewMaster(nc, a.Registry, a.Bus, natsbus.MasterConfig{
			Prefix: a.cfg.NATSPrefix,
			Logger: logger,
		})
		return a.master.Start()
	case node.RoleReceiver:
		host, _ := os.Hostname()
		a.receiver = natsbus.NewReceiver(nc, a.Registry, natsbus.ReceiverConfig{
			Prefix:  a.cfg.NATSPrefix,
			Address: host,
			Logger:  logger,
		})
		return a.receiver.Start()
	}
	return nil
}

// Metrics returns the Prometheus registry served on the metrics endpoint.
func (a *App) Metrics() prometheus.Gatherer {
	return a.promReg
}

// Run starts every background task and blocks until ctx is done or a task
// fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	events := a.Registry.Events()
	commands := a.Bus.Subscribe()
	g.Go(func() error {
		return a.metrics.Run(ctx, events, commands)
	})

	g.Go(func() error {
		return a.States.Run(ctx)
	})

	g.Go(func() error {
		return a.Registry.RunHealthCheck(ctx, a.cfg.Node.HeartbeatInterval)
	})

	if a.discovery != nil {
		if err := a.discovery.AdvertiseSelf(ctx); err != nil {
			a.logger.Warn("advertisement failed", slog.Any("error", err))
		}
		if err := a.discovery.Start(ctx); err != nil {
			a.logger.Warn("discovery failed", slog.Any("error", err))
		}
		g.Go(func() error {
			<-ctx.Done()
			return a.discovery.Stop()
		})
	}

	if a.master != nil {
		g.Go(func() error {
			return a.master.Run(ctx)
		})
	}

	if a.receiver != nil {
		g.Go(func() error {
			return a.runReceiver(ctx)
		})
	}

	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return a.serveMetrics(ctx)
		})
	}

	return g.Wait()
}

// runReceiver registers with the master, then sends heartbeats and
// executes received commands until ctx is done.
func (a *App) runReceiver(ctx context.Context) error {
	events := a.Registry.Events()
	defer events.Close()

	retry := time.NewTicker(a.cfg.Node.HeartbeatInterval)
	defer retry.Stop()
	for {
		err := a.receiver.Register(ctx)
		if err == nil {
			break
		}
		a.logger.Warn("registration failed", slog.Any("error", err))
		if errors.Is(err, node.ErrPermissionDenied) {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
		}
	}

	emitter := node.NewHeartbeatEmitter(a.receiver, node.HeartbeatConfig{
		NodeID:   a.Registry.Config().NodeID,
		Interval: a.cfg.Node.HeartbeatInterval,
		Metrics:  a.sampleMetrics,
		Logger:   a.logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return emitter.Run(ctx)
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events.C:
				if !ok {
					return nil
				}
				if ev.Type == node.EventCommandReceived && ev.Command != nil {
					a.handleCommand(*ev.Command)
				}
			}
		}
	})
	err := g.Wait()

	unregCtx, cancel := context.WithTimeout(context.Background(), natsbus.DefaultRequestTimeout)
	defer cancel()
	if uerr := a.receiver.Unregister(unregCtx); uerr != nil {
		a.logger.Debug("unregister failed", slog.Any("error", uerr))
	}
	return err
}

func (a *App) handleCommand(cmd command.Command) {
	status, msg := a.executor.execute(cmd)
	a.logger.Info("command executed",
		slog.String("command_id", cmd.CommandID),
		slog.String("command_type", cmd.CommandType),
		slog.String("status", string(status)))
	if err := a.receiver.Ack(cmd.CommandID, status, msg); err != nil {
		a.logger.Warn("ack failed", slog.String("command_id", cmd.CommandID), slog.Any("error", err))
	}
}

// sampleMetrics reports the figures sent with each heartbeat.
func (a *App) sampleMetrics() node.Metrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var fps float64
	for _, s := range a.States.Playing() {
		if s.Timecode != nil {
			fps = max(fps, s.Timecode.Framerate.FPS())
		}
	}
	return node.Metrics{
		DMXFPS:      float32(fps),
		MemoryUsage: float32(ms.HeapAlloc) / (1 << 20),
	}
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.promReg))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("metrics listening", slog.String("addr", a.cfg.MetricsAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SaveSession writes the current registries to the session file. It is a
// no-op without a session file.
func (a *App) SaveSession() error {
	if a.store == nil {
		return nil
	}
	cfg := a.Registry.Config()
	s := persistence.Capture(&cfg, a.States, a.Timelines)
	if err := a.store.Save(s); err != nil {
		return fmt.Errorf("save session %s: %w", a.store.Path(), err)
	}
	a.logger.Info("session saved",
		slog.String("path", a.store.Path()),
		slog.Int("states", len(s.States)),
		slog.Int("timelines", len(s.Timelines)))
	return nil
}

// Close releases network resources and closes the registries.
func (a *App) Close() {
	if a.master != nil {
		_ = a.master.Close()
	}
	if a.receiver != nil {
		_ = a.receiver.Close()
	}
	if a.nc != nil {
		natsbus.Close(a.nc)
	}
	a.Bus.Close()
	a.States.Close()
	a.Registry.Close()
}
