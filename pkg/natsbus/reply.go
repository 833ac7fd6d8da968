package natsbus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocontrol/rocontrol-go/pkg/node"
)

// Reply is the response to register and unregister requests.
type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Reply codes.
const (
	CodePermissionDenied = "permission_denied"
	CodeNotFound         = "not_found"
	CodeSerialization    = "serialization"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// UnregisterRequest asks the master to drop a node.
type UnregisterRequest struct {
	NodeID string `json:"node_id"`
}

func okReply(msg string) Reply {
	return Reply{OK: true, Message: msg}
}

func errorReply(err error) Reply {
	code := CodeInternal
	switch {
	case errors.Is(err, node.ErrPermissionDenied):
		code = CodePermissionDenied
	case errors.Is(err, node.ErrNodeNotFound):
		code = CodeNotFound
	case errors.Is(err, node.ErrSerialization):
		code = CodeSerialization
	case errors.Is(err, node.ErrUnavailable):
		code = CodeUnavailable
	}
	return Reply{Error: err.Error(), Code: code}
}

// Err converts a failed reply back into a node error.
func (r Reply) Err() error {
	if r.OK {
		return nil
	}
	var sentinel error
	switch r.Code {
	case CodePermissionDenied:
		sentinel = node.ErrPermissionDenied
	case CodeNotFound:
		sentinel = node.ErrNodeNotFound
	case CodeSerialization:
		sentinel = node.ErrSerialization
	case CodeUnavailable:
		sentinel = node.ErrUnavailable
	default:
		return fmt.Errorf("master: %s", r.Error)
	}
	return fmt.Errorf("%w: master: %s", sentinel, r.Error)
}

func decodeReply(data []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(data, &r); err != nil {
		return Reply{}, fmt.Errorf("%w: reply: %v", node.ErrSerialization, err)
	}
	return r, nil
}
