package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rocontrol/rocontrol-go/pkg/natsbus"
	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/persistence"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
)

// Config holds the node binary configuration. It is loaded from an
// optional YAML file and overridden by command-line flags.
type Config struct {
	// Node configures the registry, discovery and heartbeats.
	Node node.Config `yaml:"node"`

	// Framerate is the master framerate applied to started time states.
	Framerate timecode.Framerate `yaml:"framerate"`

	// NATSURL enables the node transport when set.
	NATSURL string `yaml:"nats_url,omitempty"`

	// NATSPrefix is the subject prefix of the node transport.
	NATSPrefix string `yaml:"nats_prefix,omitempty"`

	// MetricsAddr enables the Prometheus endpoint when set.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`

	// Session is the session file restored on start and saved on exit.
	Session string `yaml:"session,omitempty"`

	// Journal is the CBOR journal file.
	Journal string `yaml:"journal,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Interactive starts the console.
	Interactive bool `yaml:"interactive"`
}

// DefaultConfig returns the configuration of a standalone master with
// discovery enabled.
func DefaultConfig() Config {
	return Config{
		Node:       node.DefaultConfig(),
		Framerate:  timecode.DefaultFramerate,
		NATSPrefix: natsbus.DefaultPrefix,
		LogLevel:   "info",
	}
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if !c.Framerate.Valid() {
		return fmt.Errorf("%w: %d", timecode.ErrInvalidFramerate, uint8(c.Framerate))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// loadConfigFile decodes path over base. Unknown keys are rejected.
func loadConfigFile(path string, base Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	cfg := base
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// flagValues holds the raw flag values before they are merged.
type flagValues struct {
	role        string
	nodeID      string
	port        uint
	configFile  string
	logLevel    string
	framerate   string
	noDiscovery bool
	natsURL     string
	metricsAddr string
	session     string
	journal     string
	interactive bool
}

func newFlagSet(v *flagValues) *flag.FlagSet {
	fs := flag.NewFlagSet("rocontrol-node", flag.ContinueOnError)
	fs.StringVar(&v.role, "role", "master", "Node role: master, receiver")
	fs.StringVar(&v.nodeID, "node-id", "", "Node ID (auto-generated if empty)")
	fs.UintVar(&v.port, "port", uint(node.DefaultPort), "Advertised service port")
	fs.StringVar(&v.configFile, "config", "", "Configuration file path (YAML)")
	fs.StringVar(&v.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&v.framerate, "framerate", timecode.DefaultFramerate.String(), "Master framerate: 24, 25, 29.97, 30, 60")
	fs.BoolVar(&v.noDiscovery, "no-discovery", false, "Disable LAN discovery")
	fs.StringVar(&v.natsURL, "nats-url", "", "NATS server URL for the node transport")
	fs.StringVar(&v.metricsAddr, "metrics-addr", "", "Prometheus listen address (e.g. :9464)")
	fs.StringVar(&v.session, "session", "", "Session file restored on start and saved on exit")
	fs.StringVar(&v.journal, "journal", "", "Journal file (CBOR) for lifecycle events")
	fs.BoolVar(&v.interactive, "interactive", false, "Start the interactive console")
	return fs
}

// parseConfig builds the configuration from args. Precedence, lowest
// first: defaults, the saved session config, the config file, explicitly
// set flags. The loaded session is returned for restoring registries.
func parseConfig(args []string) (Config, *persistence.Session, error) {
	var v flagValues
	fs := newFlagSet(&v)
	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := DefaultConfig()

	// The config file may name the session, so it is read once for the
	// path and decoded again over the restored session config.
	sessionPath := v.session
	if v.configFile != "" && !set["session"] {
		fileCfg, err := loadConfigFile(v.configFile, cfg)
		if err != nil {
			return Config{}, nil, err
		}
		sessionPath = fileCfg.Session
	}

	var session *persistence.Session
	if sessionPath != "" {
		s, err := persistence.NewSessionStore(sessionPath).Load()
		if err != nil {
			return Config{}, nil, fmt.Errorf("load session: %w", err)
		}
		session = s
		if s.Config != nil {
			cfg.Node = *s.Config
		}
		if s.Framerate.Valid() {
			cfg.Framerate = s.Framerate
		}
	}

	if v.configFile != "" {
		fileCfg, err := loadConfigFile(v.configFile, cfg)
		if err != nil {
			return Config{}, nil, err
		}
		cfg = fileCfg
	}
	cfg.Session = sessionPath

	var errs []error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			r, err := node.ParseRole(v.role)
			errs = append(errs, err)
			cfg.Node.Role = r
		case "node-id":
			cfg.Node.NodeID = v.nodeID
		case "port":
			if v.port > 65535 {
				errs = append(errs, fmt.Errorf("port out of range: %d", v.port))
			}
			cfg.Node.ListenPort = uint16(v.port)
		case "log-level":
			cfg.LogLevel = v.logLevel
		case "framerate":
			fr, err := timecode.ParseFramerate(v.framerate)
			errs = append(errs, err)
			cfg.Framerate = fr
		case "no-discovery":
			cfg.Node.AutoDiscover = !v.noDiscovery
		case "nats-url":
			cfg.NATSURL = v.natsURL
		case "metrics-addr":
			cfg.MetricsAddr = v.metricsAddr
		case "journal":
			cfg.Journal = v.journal
		case "interactive":
			cfg.Interactive = v.interactive
		}
	})
	if err := errors.Join(errs...); err != nil {
		return Config{}, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, session, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// newLogger creates the operational logger writing text to w.
func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
