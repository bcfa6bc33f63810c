// Package protocol implements the rosbridge v2 JSON envelope format and the
// dispatch of inbound envelopes by operation tag.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Operation tags carried in the "op" field of every envelope.
const (
	OpPublish            = "publish"
	OpSubscribe          = "subscribe"
	OpUnsubscribe        = "unsubscribe"
	OpAdvertise          = "advertise"
	OpUnadvertise        = "unadvertise"
	OpCallService        = "call_service"
	OpServiceResponse    = "service_response"
	OpAdvertiseService   = "advertise_service"
	OpUnadvertiseService = "unadvertise_service"
	OpSendActionGoal     = "send_action_goal"
	OpCancelActionGoal   = "cancel_action_goal"
	OpActionFeedback     = "action_feedback"
	OpActionResult       = "action_result"
	OpStatus             = "status"
	OpSetLevel           = "set_level"
	OpAuth               = "auth"
	OpFragment           = "fragment"
	OpPNG                = "png"
)

var (
	// ErrBinaryFrame reports a binary websocket frame. The protocol is
	// UTF-8 JSON text frames only; a binary frame is a fatal decode error
	// for that message.
	ErrBinaryFrame = errors.New("binary frames are not supported")
	// ErrMissingOp reports an envelope without an "op" field.
	ErrMissingOp = errors.New("envelope has no op field")
)

// UnhandledOperationError reports an envelope whose op has no handler. It
// indicates a protocol or version mismatch with the bridge, so it is
// surfaced rather than silently dropped.
type UnhandledOperationError struct {
	Op string
}

func (e *UnhandledOperationError) Error() string {
	return fmt.Sprintf("no handler for operation %q", e.Op)
}

// Message is one complete wire-level envelope. Payload content under keys
// like "msg" and "args" is schema-free from this library's point of view.
type Message map[string]any

// Op returns the operation tag, or the empty string if absent.
func (m Message) Op() string {
	op, _ := m[opField].(string)
	return op
}

// ID returns the correlation ID, or the empty string if absent.
func (m Message) ID() string {
	id, _ := m["id"].(string)
	return id
}

// StringField returns the named field coerced to a string.
func (m Message) StringField(name string) string {
	value, _ := m[name].(string)
	return value
}

// MapField returns the named field coerced to a nested mapping.
func (m Message) MapField(name string) map[string]any {
	value, _ := m[name].(map[string]any)
	return value
}

const opField = "op"

// Encode serializes one envelope to a UTF-8 JSON text frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses one text frame into an envelope and validates that it
// carries an operation tag.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if m.Op() == "" {
		return nil, ErrMissingOp
	}
	return m, nil
}
