package rosbridge

import (
	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
)

// Action calls a ROS 2 action through the bridge's dedicated action
// operations. Unlike ActionClient, which drives the classic actionlib topic
// quintet, an Action correlates goals by request ID like a service call,
// with feedback delivered along the way.
type Action struct {
	ros        *Ros
	name       string
	actionType string
}

// NewAction binds an action name and type to a connection.
func NewAction(ros *Ros, name, actionType string) *Action {
	return &Action{
		ros:        ros,
		name:       name,
		actionType: actionType,
	}
}

func (a *Action) Name() string {
	return a.name
}

// SendGoal submits one goal. feedback may run any number of times before
// exactly one of resultback or errback; resultback receives the result
// values plus the named goal status. The returned goal ID identifies the
// goal for CancelGoal.
func (a *Action) SendGoal(goal Message, resultback, feedback, errback func(map[string]any)) string {
	id := a.ros.NextID(protocol.OpSendActionGoal, a.name)
	a.ros.CallAsyncAction(Message{
		"op":          protocol.OpSendActionGoal,
		"id":          id,
		"action":      a.name,
		"action_type": a.actionType,
		"args":        map[string]any(goal),
		"feedback":    true,
	}, resultback, feedback, errback)
	return id
}

// CancelGoal asks the bridge to cancel an in-flight goal. The pending
// correlation entry stays registered: the bridge answers a cancellation
// with a final action_result, which resolves it.
func (a *Action) CancelGoal(goalID string) {
	a.ros.SendOnReady(Message{
		"op":     protocol.OpCancelActionGoal,
		"id":     goalID,
		"action": a.name,
	})
}
