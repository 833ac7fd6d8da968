package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/persistence"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, session, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Nil(t, session)

	assert.Equal(t, node.RoleMaster, cfg.Node.Role)
	assert.Contains(t, cfg.Node.NodeID, "rocontrol-")
	assert.Equal(t, uint16(node.DefaultPort), cfg.Node.ListenPort)
	assert.True(t, cfg.Node.AutoDiscover)
	assert.Equal(t, timecode.DefaultFramerate, cfg.Framerate)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.NATSURL)
}

func TestParseConfigFlags(t *testing.T) {
	cfg, _, err := parseConfig([]string{
		"-role", "receiver",
		"-node-id", "stage-left",
		"-port", "9100",
		"-framerate", "25",
		"-no-discovery",
		"-nats-url", "nats://127.0.0.1:4222",
		"-metrics-addr", ":9464",
		"-log-level", "debug",
		"-interactive",
	})
	require.NoError(t, err)

	assert.Equal(t, node.RoleReceiver, cfg.Node.Role)
	assert.Equal(t, "stage-left", cfg.Node.NodeID)
	assert.Equal(t, uint16(9100), cfg.Node.ListenPort)
	assert.Equal(t, timecode.Fps25, cfg.Framerate)
	assert.False(t, cfg.Node.AutoDiscover)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Interactive)
}

func TestParseConfigInvalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"-role", "observer"},
		{"-framerate", "23.976"},
		{"-port", "70000"},
		{"-log-level", "loud"},
		{"-node-id", ""},
	} {
		_, _, err := parseConfig(args)
		assert.Error(t, err, "args %v", args)
	}
}

func TestParseConfigFileWithFlagOverride(t *testing.T) {
	path := writeFile(t, "node.yaml", `
node:
  role: receiver
  node_id: recv-file
  universes: [1, 2, 3]
  heartbeat_interval: 2s
  master_address: 10.0.0.1
  master_port: 9000
framerate: "29.97"
nats_url: nats://10.0.0.1:4222
log_level: warn
`)

	cfg, _, err := parseConfig([]string{"-config", path, "-node-id", "recv-flag"})
	require.NoError(t, err)

	assert.Equal(t, node.RoleReceiver, cfg.Node.Role)
	assert.Equal(t, "recv-flag", cfg.Node.NodeID)
	assert.Equal(t, []uint16{1, 2, 3}, cfg.Node.Universes)
	assert.Equal(t, 2*time.Second, cfg.Node.HeartbeatInterval)
	assert.Equal(t, node.DefaultNodeTimeout, cfg.Node.NodeTimeout)
	assert.Equal(t, "10.0.0.1", cfg.Node.MasterAddress)
	assert.Equal(t, timecode.Fps2997, cfg.Framerate)
	assert.Equal(t, "nats://10.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseConfigFileRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "node.yaml", "node:\n  colour: blue\n")
	_, _, err := parseConfig([]string{"-config", path})
	assert.Error(t, err)
}

func TestParseConfigMissingFile(t *testing.T) {
	_, _, err := parseConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestParseConfigRestoresSessionConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	saved := node.DefaultConfig()
	saved.NodeID = "master-saved"
	saved.Universes = []uint16{7}
	require.NoError(t, persistence.NewSessionStore(path).Save(&persistence.Session{
		Config:    &saved,
		Framerate: timecode.Fps60,
		States: []timestate.TimeState{
			{ID: "cues", Name: "Cues", SourceType: timestate.SourceCueList},
		},
	}))

	cfg, session, err := parseConfig([]string{"-session", path})
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, "master-saved", cfg.Node.NodeID)
	assert.Equal(t, []uint16{7}, cfg.Node.Universes)
	assert.Equal(t, timecode.Fps60, cfg.Framerate)
	assert.Equal(t, path, cfg.Session)
	assert.Len(t, session.States, 1)

	// Flags still win over the session.
	cfg, _, err = parseConfig([]string{"-session", path, "-node-id", "master-new", "-framerate", "24"})
	require.NoError(t, err)
	assert.Equal(t, "master-new", cfg.Node.NodeID)
	assert.Equal(t, timecode.Fps24, cfg.Framerate)
}

func TestParseConfigSessionFromFile(t *testing.T) {
	sessionPath := filepath.Join(t.TempDir(), "session.yaml")
	path := writeFile(t, "node.yaml", "session: "+sessionPath+"\n")

	cfg, session, err := parseConfig([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, sessionPath, cfg.Session)
	require.NotNil(t, session)
	assert.True(t, session.Empty())
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn", os.Stderr)
	require.NoError(t, err)
	assert.False(t, logger.Enabled(t.Context(), -4))

	_, err = newLogger("chatty", os.Stderr)
	assert.Error(t, err)
}
