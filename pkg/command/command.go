package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Command errors.
var (
	ErrSerialization  = errors.New("serialization failure")
	ErrInvalidCommand = errors.New("invalid command")
	ErrClosed         = errors.New("command bus closed")
)

// Command is one action sent by the master. A Command is immutable once
// created; receivers must not modify Payload.
type Command struct {
	CommandID   string          `json:"command_id"`
	CommandType string          `json:"command_type"`
	TargetNode  string          `json:"target_node,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Broadcast reports whether the command has no target node.
func (c Command) Broadcast() bool {
	return c.TargetNode == ""
}

// AddressedTo reports whether a node with the given id should act on the
// command: broadcasts are for everybody, targeted commands only for their
// target.
func (c Command) AddressedTo(nodeID string) bool {
	return c.TargetNode == "" || c.TargetNode == nodeID
}

// Encode returns the JSON form of the command.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// DecodeCommand parses a JSON command.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if c.CommandID == "" || c.CommandType == "" {
		return Command{}, fmt.Errorf("%w: command_id and command_type are required", ErrSerialization)
	}
	return c, nil
}

// AckStatus is the outcome reported by a receiver.
type AckStatus string

// Acknowledgment statuses.
const (
	AckExecuted AckStatus = "executed"
	AckFailed   AckStatus = "failed"
	AckPending  AckStatus = "pending"
)

// Valid reports whether s is a known status.
func (s AckStatus) Valid() bool {
	switch s {
	case AckExecuted, AckFailed, AckPending:
		return true
	}
	return false
}

// Ack is a receiver's acknowledgment of a command.
type Ack struct {
	CommandID string    `json:"command_id"`
	NodeID    string    `json:"node_id"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
}

// Validate checks required fields and the status value.
func (a Ack) Validate() error {
	if a.CommandID == "" {
		return fmt.Errorf("%w: ack without command_id", ErrSerialization)
	}
	if a.NodeID == "" {
		return fmt.Errorf("%w: ack without node_id", ErrSerialization)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: unknown ack status %q", ErrSerialization, a.Status)
	}
	return nil
}

// DecodeAck parses and validates a JSON acknowledgment.
func DecodeAck(data []byte) (Ack, error) {
	var a Ack
	if err := json.Unmarshal(data, &a); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := a.Validate(); err != nil {
		return Ack{}, err
	}
	return a, nil
}
