package main

import (
	"encoding/json"
	"fmt"

	"github.com/rocontrol/rocontrol-go/pkg/command"
	"github.com/rocontrol/rocontrol-go/pkg/timestate"
)

// Command types executed against the local time states.
const (
	CommandStart = "timestate.start"
	CommandPause = "timestate.pause"
	CommandStop  = "timestate.stop"
	CommandCue   = "timestate.cue"
)

// StatePayload addresses one time state.
type StatePayload struct {
	StateID string `json:"state_id"`
}

// executor applies received commands to the local time states.
type executor struct {
	states *timestate.Manager
}

// execute runs cmd and returns the acknowledgment to send.
func (e executor) execute(cmd command.Command) (command.AckStatus, string) {
	var op func(string) (timestate.TimeState, error)
	switch cmd.CommandType {
	case CommandStart:
		op = e.states.Start
	case CommandPause:
		op = e.states.Pause
	case CommandStop:
		op = e.states.Stop
	case CommandCue:
		op = e.states.Cue
	default:
		return command.AckFailed, fmt.Sprintf("unsupported command type %q", cmd.CommandType)
	}

	var p StatePayload
	if err := json.Unmarshal(cmd.Payload, &p); err != nil || p.StateID == "" {
		return command.AckFailed, "payload needs state_id"
	}
	if _, err := op(p.StateID); err != nil {
		return command.AckFailed, err.Error()
	}
	return command.AckExecuted, ""
}
