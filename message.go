// Package rosbridge is a client for the rosbridge v2 protocol. It exchanges
// JSON envelopes with a rosbridge server over a websocket to publish and
// subscribe to topics, call and provide services, invoke preemptable
// actions and access the parameter server.
package rosbridge

import (
	"math"
	"time"

	"github.com/USA-RedDragon/rosbridge-client/internal/events"
	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
)

// Message is the body published to or received from a topic. Bodies are
// schema-free mappings; their structure is defined by the ROS message type
// of the topic.
type Message map[string]any

// ServiceRequest holds the arguments of a service call.
type ServiceRequest map[string]any

// ServiceResponse holds the values returned by a service call.
type ServiceResponse map[string]any

// Listener identifies one registered event callback. Keep the returned
// listener to remove it later; registering the same listener twice is a
// no-op.
type Listener = events.Listener

// NewListener wraps a callback for event registration.
func NewListener(fn func(any)) *Listener {
	return events.NewListener(fn)
}

// GoalStatus is the actionlib goal state enumeration.
type GoalStatus = protocol.GoalStatus

const (
	GoalStatusPending    = protocol.GoalStatusPending
	GoalStatusActive     = protocol.GoalStatusActive
	GoalStatusPreempted  = protocol.GoalStatusPreempted
	GoalStatusSucceeded  = protocol.GoalStatusSucceeded
	GoalStatusAborted    = protocol.GoalStatusAborted
	GoalStatusRejected   = protocol.GoalStatusRejected
	GoalStatusPreempting = protocol.GoalStatusPreempting
	GoalStatusRecalling  = protocol.GoalStatusRecalling
	GoalStatusRecalled   = protocol.GoalStatusRecalled
	GoalStatusLost       = protocol.GoalStatusLost
)

// Time is a ROS timestamp: seconds since epoch plus nanoseconds since the
// second.
type Time struct {
	Secs  int64 `json:"secs"`
	Nsecs int64 `json:"nsecs"`
}

func (t Time) IsZero() bool {
	return t.Secs == 0 && t.Nsecs == 0
}

func (t Time) ToNsec() int64 {
	return t.Secs*int64(time.Second) + t.Nsecs
}

func (t Time) ToSec() float64 {
	return float64(t.Secs) + float64(t.Nsecs)/float64(time.Second)
}

// Before reports whether t is strictly earlier than other, ordering on
// (secs, nsecs).
func (t Time) Before(other Time) bool {
	if t.Secs != other.Secs {
		return t.Secs < other.Secs
	}
	return t.Nsecs < other.Nsecs
}

// After reports whether t is strictly later than other.
func (t Time) After(other Time) bool {
	return other.Before(t)
}

func TimeFromSec(seconds float64) Time {
	secs := math.Floor(seconds)
	return Time{
		Secs:  int64(secs),
		Nsecs: int64((seconds - secs) * float64(time.Second)),
	}
}

func Now() Time {
	now := time.Now()
	return Time{Secs: now.Unix(), Nsecs: int64(now.Nanosecond())}
}

// timeFromMap reads a {"secs": ..., "nsecs": ...} mapping as produced by
// JSON decoding. Anything else decodes as the zero time.
func timeFromMap(value any) Time {
	m, _ := value.(map[string]any)
	return Time{
		Secs:  int64(numeric(m["secs"])),
		Nsecs: int64(numeric(m["nsecs"])),
	}
}

func (t Time) toMap() map[string]any {
	return map[string]any{"secs": t.Secs, "nsecs": t.Nsecs}
}

// Header is the std_msgs/Header mapping.
type Header struct {
	Seq     uint64 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

func numeric(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return 0
	}
}
