package rosbridge

import (
	"sync"

	"github.com/USA-RedDragon/rosbridge-client/internal/events"
)

// Server-side action events.
const (
	ServerEventGoal   = "goal"
	ServerEventCancel = "cancel"
)

// SimpleActionServer serves one goal at a time. A goal arriving while
// another executes is parked as the pending goal and a cancel event asks
// the executor to preempt; when the executor reports a terminal state the
// pending goal is promoted.
type SimpleActionServer struct {
	ros        *Ros
	serverName string
	actionName string

	feedbackTopic *Topic
	statusTopic   *Topic
	resultTopic   *Topic
	goalTopic     *Topic
	cancelTopic   *Topic

	emitter *events.Emitter

	mutex            sync.Mutex
	currentGoal      Message
	nextGoal         Message
	preemptRequested bool
}

func NewSimpleActionServer(ros *Ros, serverName, actionName string) *SimpleActionServer {
	server := &SimpleActionServer{
		ros:        ros,
		serverName: serverName,
		actionName: actionName,
		emitter:    events.NewEmitter(),
	}

	server.feedbackTopic, _ = NewTopic(ros, serverName+"/feedback", actionName+"Feedback", nil)
	server.statusTopic, _ = NewTopic(ros, serverName+"/status", "actionlib_msgs/GoalStatusArray", nil)
	server.resultTopic, _ = NewTopic(ros, serverName+"/result", actionName+"Result", nil)
	server.goalTopic, _ = NewTopic(ros, serverName+"/goal", actionName+"Goal", nil)
	server.cancelTopic, _ = NewTopic(ros, serverName+"/cancel", "actionlib_msgs/GoalID", nil)

	server.feedbackTopic.Advertise()
	server.statusTopic.Advertise()
	server.resultTopic.Advertise()

	server.goalTopic.Subscribe(server.onGoalMessage)
	server.cancelTopic.Subscribe(server.onCancelMessage)

	return server
}

// Start runs execute in a new goroutine for each goal that becomes
// current. The executor must end every goal with SetSucceeded,
// SetPreempted or SetAborted.
func (s *SimpleActionServer) Start(execute func(goal Message)) {
	s.emitter.On(ServerEventGoal, NewListener(func(data any) {
		goal, _ := data.(map[string]any)
		go execute(Message(goal))
	}))
}

// On registers a listener for goal or cancel events. Start covers the
// common case; On exists for servers that want to drive execution
// themselves.
func (s *SimpleActionServer) On(event string, listener *Listener) {
	s.emitter.On(event, listener)
}

func (s *SimpleActionServer) Off(event string, listener *Listener) {
	s.emitter.Off(event, listener)
}

// IsPreemptRequested reports whether the current goal should stop. The
// flag is the only preemption signal the executor polls.
func (s *SimpleActionServer) IsPreemptRequested() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.preemptRequested
}

// SendFeedback publishes feedback for the current goal.
func (s *SimpleActionServer) SendFeedback(feedback Message) {
	s.mutex.Lock()
	goalID := currentGoalID(s.currentGoal)
	s.mutex.Unlock()
	if goalID == nil {
		return
	}
	s.feedbackTopic.Publish(Message{
		"status": map[string]any{
			"goal_id": goalID,
			"status":  int(GoalStatusActive),
		},
		"feedback": map[string]any(feedback),
	})
}

// SetSucceeded finishes the current goal with the given result and
// promotes the pending goal, if any.
func (s *SimpleActionServer) SetSucceeded(result Message) {
	s.finishCurrent(GoalStatusSucceeded, result)
}

// SetPreempted finishes the current goal as preempted and promotes the
// pending goal, if any.
func (s *SimpleActionServer) SetPreempted() {
	s.finishCurrent(GoalStatusPreempted, Message{})
}

// SetAborted finishes the current goal as aborted and promotes the
// pending goal, if any.
func (s *SimpleActionServer) SetAborted() {
	s.finishCurrent(GoalStatusAborted, Message{})
}

// Dispose tears down every topic of the server.
func (s *SimpleActionServer) Dispose() {
	s.goalTopic.Unsubscribe()
	s.cancelTopic.Unsubscribe()
	s.feedbackTopic.Unadvertise()
	s.statusTopic.Unadvertise()
	s.resultTopic.Unadvertise()
}

func (s *SimpleActionServer) finishCurrent(status GoalStatus, result Message) {
	s.mutex.Lock()
	goalID := currentGoalID(s.currentGoal)
	if goalID == nil {
		s.mutex.Unlock()
		return
	}
	promoted := s.nextGoal
	s.currentGoal = promoted
	s.nextGoal = nil
	s.preemptRequested = false
	s.mutex.Unlock()

	s.resultTopic.Publish(Message{
		"status": map[string]any{
			"goal_id": goalID,
			"status":  int(status),
		},
		"result": map[string]any(result),
	})
	s.publishStatus()

	if promoted != nil {
		goal, _ := promoted["goal"].(map[string]any)
		s.emitter.Emit(ServerEventGoal, goal)
	}
}

func (s *SimpleActionServer) onGoalMessage(message Message) {
	s.mutex.Lock()
	if s.currentGoal != nil {
		// Park the new goal and ask the executor to yield.
		s.nextGoal = message
		s.preemptRequested = true
		s.mutex.Unlock()
		s.emitter.Emit(ServerEventCancel, nil)
		return
	}
	s.currentGoal = message
	s.mutex.Unlock()

	s.publishStatus()
	goal, _ := message["goal"].(map[string]any)
	s.emitter.Emit(ServerEventGoal, goal)
}

func (s *SimpleActionServer) onCancelMessage(message Message) {
	id, _ := message["id"].(string)
	stamp := timeFromMap(message["stamp"])

	s.mutex.Lock()
	cancelCurrent := false
	if id == "" && stamp.IsZero() {
		// Wildcard: drop the pending goal and preempt the current one.
		s.nextGoal = nil
		cancelCurrent = s.currentGoal != nil
	} else {
		if s.nextGoal != nil && cancelMatches(s.nextGoal, id, stamp) {
			s.nextGoal = nil
		}
		cancelCurrent = s.currentGoal != nil && cancelMatches(s.currentGoal, id, stamp)
	}
	if cancelCurrent {
		s.preemptRequested = true
	}
	s.mutex.Unlock()

	if cancelCurrent {
		s.emitter.Emit(ServerEventCancel, nil)
	}
}

func (s *SimpleActionServer) publishStatus() {
	s.mutex.Lock()
	statusList := []any{}
	if goalID := currentGoalID(s.currentGoal); goalID != nil {
		statusList = append(statusList, map[string]any{
			"goal_id": goalID,
			"status":  int(GoalStatusActive),
		})
	}
	if goalID := currentGoalID(s.nextGoal); goalID != nil {
		statusList = append(statusList, map[string]any{
			"goal_id": goalID,
			"status":  int(GoalStatusPending),
		})
	}
	s.mutex.Unlock()

	s.statusTopic.Publish(Message{"status_list": statusList})
}

// cancelMatches reports whether a cancel request with the given id and
// stamp targets the goal envelope. A non-empty id must match exactly; a
// non-zero stamp cancels every goal whose own stamp is not later than it.
func cancelMatches(goal Message, id string, stamp Time) bool {
	goalID, _ := goal["goal_id"].(map[string]any)
	if id != "" {
		gid, _ := goalID["id"].(string)
		return gid == id
	}
	if stamp.IsZero() {
		return false
	}
	goalStamp := timeFromMap(goalID["stamp"])
	return !goalStamp.After(stamp)
}

func currentGoalID(goal Message) map[string]any {
	if goal == nil {
		return nil
	}
	goalID, _ := goal["goal_id"].(map[string]any)
	return goalID
}
