package rosbridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/USA-RedDragon/rosbridge-client/internal/events"
	"github.com/google/uuid"
)

// Goal event names.
const (
	GoalEventStatus   = "status"
	GoalEventFeedback = "feedback"
	GoalEventResult   = "result"
	GoalEventTimeout  = "timeout"
)

// ActionClient drives goals against a ROS action server through the
// actionlib topic quintet (goal, cancel, status, feedback, result).
type ActionClient struct {
	ros        *Ros
	serverName string
	actionName string

	feedbackListener *Topic
	statusListener   *Topic
	resultListener   *Topic
	goalTopic        *Topic
	cancelTopic      *Topic

	emitter *events.Emitter

	mutex          sync.Mutex
	goals          map[string]*Goal
	receivedStatus bool
}

// ActionClientOptions tune an ActionClient. The zero value subscribes to
// all three server-to-client streams.
type ActionClientOptions struct {
	// Timeout emits a timeout event if the server publishes no status
	// within the window. Zero disables the check.
	Timeout time.Duration
	// OmitFeedback, OmitStatus and OmitResult skip the respective
	// subscriptions.
	OmitFeedback bool
	OmitStatus   bool
	OmitResult   bool
}

func NewActionClient(ros *Ros, serverName, actionName string, options *ActionClientOptions) *ActionClient {
	opts := ActionClientOptions{}
	if options != nil {
		opts = *options
	}

	client := &ActionClient{
		ros:        ros,
		serverName: serverName,
		actionName: actionName,
		emitter:    events.NewEmitter(),
		goals:      make(map[string]*Goal),
	}

	client.feedbackListener, _ = NewTopic(ros, serverName+"/feedback", actionName+"Feedback", nil)
	client.statusListener, _ = NewTopic(ros, serverName+"/status", "actionlib_msgs/GoalStatusArray", nil)
	client.resultListener, _ = NewTopic(ros, serverName+"/result", actionName+"Result", nil)
	client.goalTopic, _ = NewTopic(ros, serverName+"/goal", actionName+"Goal", nil)
	client.cancelTopic, _ = NewTopic(ros, serverName+"/cancel", "actionlib_msgs/GoalID", nil)

	client.goalTopic.Advertise()
	client.cancelTopic.Advertise()

	if !opts.OmitStatus {
		client.statusListener.Subscribe(client.onStatusMessage)
	}
	if !opts.OmitFeedback {
		client.feedbackListener.Subscribe(client.onFeedbackMessage)
	}
	if !opts.OmitResult {
		client.resultListener.Subscribe(client.onResultMessage)
	}

	if opts.Timeout > 0 {
		time.AfterFunc(opts.Timeout, func() {
			client.mutex.Lock()
			received := client.receivedStatus
			client.mutex.Unlock()
			if !received {
				client.emitter.Emit(GoalEventTimeout, nil)
			}
		})
	}

	return client
}

func (c *ActionClient) On(event string, listener *Listener) {
	c.emitter.On(event, listener)
}

func (c *ActionClient) Off(event string, listener *Listener) {
	c.emitter.Off(event, listener)
}

// CancelAll cancels every goal associated with this client.
func (c *ActionClient) CancelAll() {
	c.cancelTopic.Publish(Message{})
}

// Dispose unsubscribes and unadvertises every topic of this client.
func (c *ActionClient) Dispose() {
	c.goalTopic.Unadvertise()
	c.cancelTopic.Unadvertise()
	c.statusListener.Unsubscribe()
	c.feedbackListener.Unsubscribe()
	c.resultListener.Unsubscribe()
}

func (c *ActionClient) addGoal(goal *Goal) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.goals[goal.ID()] = goal
}

func (c *ActionClient) goalByID(id string) *Goal {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.goals[id]
}

func (c *ActionClient) onStatusMessage(message Message) {
	c.mutex.Lock()
	c.receivedStatus = true
	c.mutex.Unlock()

	statusList, _ := message["status_list"].([]any)
	for _, item := range statusList {
		status, _ := item.(map[string]any)
		goalID := goalIDFromStatus(status)
		if goal := c.goalByID(goalID); goal != nil {
			goal.handleStatus(status)
		}
	}
}

func (c *ActionClient) onFeedbackMessage(message Message) {
	status, _ := message["status"].(map[string]any)
	goal := c.goalByID(goalIDFromStatus(status))
	if goal == nil {
		return
	}
	goal.handleStatus(status)
	feedback, _ := message["feedback"].(map[string]any)
	goal.handleFeedback(feedback)
}

func (c *ActionClient) onResultMessage(message Message) {
	status, _ := message["status"].(map[string]any)
	goal := c.goalByID(goalIDFromStatus(status))
	if goal == nil {
		return
	}
	goal.handleStatus(status)
	result, _ := message["result"].(map[string]any)
	goal.handleResult(result)
}

func goalIDFromStatus(status map[string]any) string {
	goalID, _ := status["goal_id"].(map[string]any)
	id, _ := goalID["id"].(string)
	return id
}

// Goal is one preemptable action invocation. Its state is driven solely by
// inbound status, feedback and result messages matched by goal ID; once
// finished it is terminal and further updates are ignored.
type Goal struct {
	client  *ActionClient
	id      string
	message Message
	emitter *events.Emitter

	mutex    sync.Mutex
	finished bool
	status   GoalStatus
	hasStat  bool
	result   map[string]any
	feedback map[string]any
	done     chan struct{}
}

// NewGoal builds a goal for the client and registers it for inbound
// matching. The goal is not sent until Send.
func NewGoal(client *ActionClient, goalMessage Message) *Goal {
	goal := &Goal{
		client:  client,
		id:      fmt.Sprintf("goal_%s_%d", uuid.NewString(), time.Now().UnixMilli()),
		emitter: events.NewEmitter(),
		done:    make(chan struct{}),
	}
	goal.message = Message{
		"goal_id": map[string]any{
			"stamp": Time{}.toMap(),
			"id":    goal.id,
		},
		"goal": map[string]any(goalMessage),
	}
	client.addGoal(goal)
	return goal
}

func (g *Goal) ID() string {
	return g.id
}

func (g *Goal) On(event string, listener *Listener) {
	g.emitter.On(event, listener)
}

func (g *Goal) Off(event string, listener *Listener) {
	g.emitter.Off(event, listener)
}

// Send publishes the goal to the action server. A positive timeout emits a
// timeout event if no result arrives in the window; it only notifies, the
// goal is not cancelled.
func (g *Goal) Send(timeout time.Duration) {
	g.client.goalTopic.Publish(g.message)
	if timeout > 0 {
		time.AfterFunc(timeout, func() {
			if !g.IsFinished() {
				g.emitter.Emit(GoalEventTimeout, nil)
			}
		})
	}
}

// Cancel asks the server to preempt this goal.
func (g *Goal) Cancel() {
	g.client.cancelTopic.Publish(Message{"id": g.id})
}

// Wait blocks until the goal finishes or the timeout elapses and returns
// the result payload. A timeout of zero waits indefinitely.
func (g *Goal) Wait(timeout time.Duration) (map[string]any, error) {
	if timeout <= 0 {
		<-g.done
		return g.Result(), nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-g.done:
		return g.Result(), nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// IsFinished reports whether a result has been received and the goal has
// left the active states.
func (g *Goal) IsFinished() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.finished
}

// Status returns the last status received for the goal.
func (g *Goal) Status() GoalStatus {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.status
}

// Result returns the result payload, or nil while unfinished.
func (g *Goal) Result() map[string]any {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.result
}

// Feedback returns the most recent feedback payload.
func (g *Goal) Feedback() map[string]any {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.feedback
}

func (g *Goal) handleStatus(status map[string]any) {
	g.mutex.Lock()
	if g.finished {
		g.mutex.Unlock()
		return
	}
	g.status = GoalStatus(numeric(status["status"]))
	g.hasStat = true
	g.maybeFinishLocked()
	g.mutex.Unlock()
	g.emitter.Emit(GoalEventStatus, status)
}

func (g *Goal) handleFeedback(feedback map[string]any) {
	g.mutex.Lock()
	if g.finished {
		g.mutex.Unlock()
		return
	}
	g.feedback = feedback
	g.mutex.Unlock()
	g.emitter.Emit(GoalEventFeedback, feedback)
}

func (g *Goal) handleResult(result map[string]any) {
	g.mutex.Lock()
	if g.finished {
		g.mutex.Unlock()
		return
	}
	g.result = result
	g.maybeFinishLocked()
	g.mutex.Unlock()
	g.emitter.Emit(GoalEventResult, result)
}

// maybeFinishLocked marks the goal terminal once a result is present and
// the status has left the active states. Callers hold g.mutex.
func (g *Goal) maybeFinishLocked() {
	if g.finished || g.result == nil {
		return
	}
	if g.hasStat && g.status.IsActive() {
		return
	}
	g.finished = true
	close(g.done)
}
