// Package interactive provides the interactive command-line interface
// for rocontrol-node.
package interactive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/node"
	"github.com/rocontrol/rocontrol-go/pkg/timecode"
	"github.com/rocontrol/rocontrol-go/pkg/timeline"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

// Deps are the registries the console operates on.
type Deps struct {
	Registry  *node.Registry
	States    *timestate.Manager
	Timelines *timeline.Registry
	Bus       *command.Bus

	// Save persists the session. If nil, the save command is unavailable.
	Save func() error
}

// Console handles interactive mode for rocontrol-node.
type Console struct {
	deps Deps
	rl   *readline.Instance
	out  io.Writer

	closeOnce sync.Once
}

// New creates a console reading from the terminal.
func New(deps Deps) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          promptFor(deps.Registry.Config()),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{deps: deps, rl: rl, out: rl.Stdout()}, nil
}

// newWithWriter creates a console without a terminal, for Execute only.
func newWithWriter(deps Deps, out io.Writer) *Console {
	return &Console{deps: deps, out: out}
}

func promptFor(cfg node.Config) string {
	return cfg.Role.String() + "> "
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("nodes"),
		readline.PcItem("node"),
		readline.PcItem("states"),
		readline.PcItem("state"),
		readline.PcItem("register-state"),
		readline.PcItem("remove-state"),
		readline.PcItem("start"),
		readline.PcItem("pause"),
		readline.PcItem("stop"),
		readline.PcItem("cue"),
		readline.PcItem("fail"),
		readline.PcItem("meta"),
		readline.PcItem("timelines"),
		readline.PcItem("timeline",
			readline.PcItem("create"),
			readline.PcItem("show"),
			readline.PcItem("sync"),
			readline.PcItem("remove"),
		),
		readline.PcItem("framerate"),
		readline.PcItem("send"),
		readline.PcItem("status"),
		readline.PcItem("save"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run starts the interactive command loop. It calls cancel when the user
// quits or closes the input.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.close()

	// Readline blocks, so closing it is the only way to stop on shutdown.
	go func() {
		<-ctx.Done()
		c.close()
	}()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

func (c *Console) close() {
	c.closeOnce.Do(func() { c.rl.Close() })
}

// Execute runs one command line. It reports whether the user asked to quit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "nodes", "n":
		c.cmdNodes()
	case "node":
		c.cmdNode(args)
	case "states", "s":
		c.cmdStates(args)
	case "state":
		c.cmdState(args)
	case "register-state", "reg":
		c.cmdRegisterState(args)
	case "remove-state":
		c.cmdRemoveState(args)
	case "start", "pause", "stop", "cue":
		c.cmdTransition(cmd, args)
	case "fail":
		c.cmdFail(args)
	case "meta":
		c.cmdMeta(args)
	case "timelines":
		c.cmdTimelines()
	case "timeline", "tl":
		c.cmdTimeline(args)
	case "framerate", "fps":
		c.cmdFramerate(args)
	case "send":
		c.cmdSend(args)
	case "status":
		c.cmdStatus()
	case "save":
		c.cmdSave()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
rocontrol Node Commands:
  Nodes:
    nodes                         - List known nodes
    node <id>                     - Show node details

  Time States:
    states [type]                 - List time states, optionally of one source type
    state <id>                    - Show time state details
    register-state <id> <type> [duration_ms] [name...]
                                  - Register a time state (duration 0 = indefinite)
    remove-state <id>             - Remove a time state
    start|pause|stop|cue <id>     - Change run state
    fail <id> <reason...>         - Put a time state into error
    meta <id> <key> <value...>    - Set a metadata entry
    framerate [fps]               - Show or set the master framerate

  Timelines:
    timelines                     - List timelines
    timeline create <name> <state-id>...
    timeline show <id>            - Show a timeline with its states
    timeline sync <id> on|off     - Toggle sync
    timeline remove <id>          - Remove a timeline

  Commands:
    send <target|*> <type> [json] - Publish a command (* = broadcast)

  General:
    status                        - Show node status
    save                          - Save the session file
    help                          - Show this help
    quit                          - Exit node

  Source types: video_playback, audio_playback, ndi_stream, art_net_input,
                sacn_input, dmx_output, cue_list, executor`)
}

func (c *Console) cmdNodes() {
	nodes := c.deps.Registry.All()
	if len(nodes) == 0 {
		fmt.Fprintln(c.out, "No known nodes")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tROLE\tADDRESS\tONLINE\tLAST HEARTBEAT\tVERSION")
	for _, n := range nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			n.NodeID, n.Role, hostPort(n), yesNo(n.Online), ago(n.LastHeartbeat), n.Version)
	}
	tw.Flush()
}

func (c *Console) cmdNode(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: node <id>")
		return
	}
	n, err := c.deps.Registry.Get(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "Node %s\n", n.NodeID)
	fmt.Fprintf(c.out, "  Role:           %s\n", n.Role)
	fmt.Fprintf(c.out, "  Address:        %s\n", hostPort(n))
	fmt.Fprintf(c.out, "  Online:         %s\n", yesNo(n.Online))
	fmt.Fprintf(c.out, "  Last heartbeat: %s\n", ago(n.LastHeartbeat))
	fmt.Fprintf(c.out, "  Version:        %s\n", n.Version)
	fmt.Fprintf(c.out, "  Universes:      %v\n", n.Universes)
	fmt.Fprintf(c.out, "  Capabilities:   dmx_output=%t media_playback=%t input_processing=%t\n",
		n.Capabilities.DMXOutput, n.Capabilities.MediaPlayback, n.Capabilities.InputProcessing)
	if m := n.Metrics; m != nil {
		fmt.Fprintf(c.out, "  Metrics:        dmx_fps=%.1f cpu=%.1f%% mem=%.1fMB latency=%.1fms\n",
			m.DMXFPS, m.CPUUsage, m.MemoryUsage, m.NetworkLatencyMS)
	}
}

func (c *Console) cmdStates(args []string) {
	var states []timestate.TimeState
	if len(args) > 0 {
		st, err := timestate.ParseSourceType(args[0])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		states = c.deps.States.ByType(st)
	} else {
		states = c.deps.States.All()
	}
	if len(states) == 0 {
		fmt.Fprintln(c.out, "No time states")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATE\tTIMECODE\tPROGRESS\tALIVE")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Name, s.SourceType, s.RunState, formatTimecode(s), formatProgress(s), yesNo(s.IsAlive()))
	}
	tw.Flush()
}

func (c *Console) cmdState(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: state <id>")
		return
	}
	s, err := c.deps.States.Get(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(c.out, "Time state %s (%s)\n", s.ID, s.Name)
	fmt.Fprintf(c.out, "  Source:    %s\n", s.SourceType)
	fmt.Fprintf(c.out, "  Duration:  %s\n", s.DurationType)
	fmt.Fprintf(c.out, "  State:     %s\n", s.RunState)
	fmt.Fprintf(c.out, "  Elapsed:   %dms\n", s.ElapsedMS)
	fmt.Fprintf(c.out, "  Timecode:  %s\n", formatTimecode(s))
	fmt.Fprintf(c.out, "  Progress:  %s\n", formatProgress(s))
	if ms, ok := s.Remaining(); ok {
		fmt.Fprintf(c.out, "  Remaining: %dms\n", ms)
	}
	fmt.Fprintf(c.out, "  Frames:    %d (%d dropped)\n", s.FrameCount, s.DroppedFrames)
	fmt.Fprintf(c.out, "  Alive:     %s\n", yesNo(s.IsAlive()))
	for _, k := range slices.Sorted(maps.Keys(s.Metadata)) {
		fmt.Fprintf(c.out, "  %s: %s\n", k, s.Metadata[k])
	}
}

func (c *Console) cmdRegisterState(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: register-state <id> <type> [duration_ms] [name...]")
		return
	}
	st, err := timestate.ParseSourceType(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}

	reg := timestate.Registration{
		ID:           args[0],
		Name:         args[0],
		SourceType:   st,
		DurationType: timestate.IndefiniteDuration(),
	}
	if len(args) > 2 {
		ms, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(c.out, "Invalid duration: %s\n", args[2])
			return
		}
		if ms > 0 {
			reg.DurationType = timestate.FiniteDuration(ms)
		}
	}
	if len(args) > 3 {
		reg.Name = strings.Join(args[3:], " ")
	}

	s, err := c.deps.States.Register(reg)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Registered %s (%s, %s)\n", s.ID, s.SourceType, s.DurationType)
}

func (c *Console) cmdRemoveState(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: remove-state <id>")
		return
	}
	if err := c.deps.States.Remove(args[0]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Removed %s\n", args[0])
}

func (c *Console) cmdTransition(op string, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "Usage: %s <id>\n", op)
		return
	}

	var fn func(string) (timestate.TimeState, error)
	switch op {
	case "start":
		fn = c.deps.States.Start
	case "pause":
		fn = c.deps.States.Pause
	case "stop":
		fn = c.deps.States.Stop
	case "cue":
		fn = c.deps.States.Cue
	}

	s, err := fn(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s: %s at %s\n", s.ID, s.RunState, formatTimecode(s))
}

func (c *Console) cmdFail(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: fail <id> <reason...>")
		return
	}
	s, err := c.deps.States.Fail(args[0], strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s: %s (%s)\n", s.ID, s.RunState, s.Metadata[timestate.MetadataError])
}

func (c *Console) cmdMeta(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: meta <id> <key> <value...>")
		return
	}
	if err := c.deps.States.SetMetadata(args[0], args[1], strings.Join(args[2:], " ")); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "%s: %s set\n", args[0], args[1])
}

func (c *Console) cmdTimelines() {
	tls := c.deps.Timelines.All()
	if len(tls) == 0 {
		fmt.Fprintln(c.out, "No timelines")
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATES\tSYNC\tCREATED")
	for _, tl := range tls {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			tl.ID, tl.Name, len(tl.TimeStates), onOff(tl.SyncEnabled), tl.CreatedAt.Format(time.RFC3339))
	}
	tw.Flush()
}

func (c *Console) cmdTimeline(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: timeline create|show|sync|remove ...")
		return
	}

	switch strings.ToLower(args[0]) {
	case "create":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "Usage: timeline create <name> <state-id>...")
			return
		}
		id, err := c.deps.Timelines.Create(args[1], args[2:])
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Created timeline %s\n", id)

	case "show":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "Usage: timeline show <id>")
			return
		}
		res, err := c.deps.Timelines.Resolve(args[1], c.deps.States)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		tl := res.Timeline
		fmt.Fprintf(c.out, "Timeline %s (%s)\n", tl.ID, tl.Name)
		fmt.Fprintf(c.out, "  Master timecode: %s\n", tl.MasterTimecode)
		fmt.Fprintf(c.out, "  Sync:            %s\n", onOff(tl.SyncEnabled))
		for _, s := range res.States {
			fmt.Fprintf(c.out, "  - %s %s %s\n", s.ID, s.RunState, formatTimecode(s))
		}
		for _, id := range res.Missing {
			fmt.Fprintf(c.out, "  - %s (missing)\n", id)
		}

	case "sync":
		if len(args) < 3 {
			fmt.Fprintln(c.out, "Usage: timeline sync <id> on|off")
			return
		}
		enabled := strings.EqualFold(args[2], "on")
		if err := c.deps.Timelines.SetSync(args[1], enabled); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Timeline %s sync %s\n", args[1], onOff(enabled))

	case "remove", "rm":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "Usage: timeline remove <id>")
			return
		}
		if err := c.deps.Timelines.Remove(args[1]); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "Removed timeline %s\n", args[1])

	default:
		fmt.Fprintf(c.out, "Unknown timeline command: %s\n", args[0])
	}
}

func (c *Console) cmdFramerate(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(c.out, "Master framerate: %s\n", c.deps.States.MasterFramerate())
		return
	}
	fr, err := timecode.ParseFramerate(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if err := c.deps.States.SetMasterFramerate(fr); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Master framerate: %s\n", fr)
}

func (c *Console) cmdSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: send <target|*> <type> [json]")
		return
	}
	target := args[0]
	if target == "*" {
		target = ""
	}

	var payload any
	if len(args) > 2 {
		payload = json.RawMessage(strings.Join(args[2:], " "))
	}

	cmd, err := c.deps.Bus.TriggerAction(target, args[1], payload)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	scope := "broadcast"
	if !cmd.Broadcast() {
		scope = "to " + cmd.TargetNode
	}
	fmt.Fprintf(c.out, "Sent %s %s (%s)\n", cmd.CommandType, cmd.CommandID, scope)
}

func (c *Console) cmdStatus() {
	cfg := c.deps.Registry.Config()
	nodes := c.deps.Registry.All()
	online := 0
	for _, n := range nodes {
		if n.Online {
			online++
		}
	}
	sent, acked := c.deps.Bus.Stats()

	fmt.Fprintf(c.out, "Node:       %s (%s)\n", cfg.NodeID, cfg.Role)
	fmt.Fprintf(c.out, "Port:       %d\n", cfg.ListenPort)
	fmt.Fprintf(c.out, "Discovery:  %s\n", onOff(cfg.AutoDiscover))
	fmt.Fprintf(c.out, "Nodes:      %d known, %d online\n", len(nodes), online)
	fmt.Fprintf(c.out, "States:     %d registered, %d playing\n", c.deps.States.Len(), len(c.deps.States.Playing()))
	fmt.Fprintf(c.out, "Timelines:  %d\n", len(c.deps.Timelines.All()))
	fmt.Fprintf(c.out, "Framerate:  %s\n", c.deps.States.MasterFramerate())
	fmt.Fprintf(c.out, "Commands:   %d sent, %d acked, %d subscribers\n", sent, acked, c.deps.Bus.Subscribers())
	if dropped := c.deps.Registry.DroppedEvents() + c.deps.Bus.Dropped(); dropped > 0 {
		fmt.Fprintf(c.out, "Dropped:    %d events\n", dropped)
	}
}

func (c *Console) cmdSave() {
	if c.deps.Save == nil {
		fmt.Fprintln(c.out, "No session file configured (use -session)")
		return
	}
	if err := c.deps.Save(); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Session saved")
}

func hostPort(n node.Node) string {
	if n.Address == "" {
		return "-"
	}
	return fmt.Sprintf("%s:%d", n.Address, n.Port)
}

func formatTimecode(s timestate.TimeState) string {
	if s.Timecode == nil {
		return "-"
	}
	return s.Timecode.String()
}

func formatProgress(s timestate.TimeState) string {
	if !s.DurationType.IsFinite() {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", s.ProgressPercent)
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Millisecond).String() + " ago"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
