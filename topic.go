package rosbridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
)

// reconnectDelay gives a fresh connection a moment to stabilize before
// channels re-register themselves.
const reconnectDelay = 1 * time.Second

// SupportedCompressionTypes lists the compression values accepted for
// subscriptions.
var SupportedCompressionTypes = []string{"none", "png", "cbor"}

// TopicOptions tune a Topic beyond its name and message type. The zero
// value is usable.
type TopicOptions struct {
	// Compression requested for subscriptions, one of
	// SupportedCompressionTypes. Defaults to "none".
	Compression string
	// Latch re-delivers the last published message to late subscribers.
	Latch bool
	// ThrottleRate is the minimum interval in milliseconds between
	// delivered messages.
	ThrottleRate int
	// QueueSize is the bridge-side republishing queue. Defaults to 100.
	QueueSize int
	// QueueLength is the bridge-side queue used when subscribing.
	QueueLength int
	// DisableReconnect stops the topic from re-registering itself after
	// the connection drops and recovers.
	DisableReconnect bool
}

// Topic publishes and/or subscribes to one ROS topic. Subscribe, Advertise
// and their inverses are idempotent: repeated calls in the same state are
// no-ops and emit nothing on the wire.
type Topic struct {
	ros         *Ros
	name        string
	messageType string
	options     TopicOptions

	mutex        sync.Mutex
	subscribeID  string
	advertiseID  string
	subscriber   *Listener
	subReconnect *Listener
	advReconnect *Listener
	advReset     *Listener
}

// NewTopic binds a topic name and message type to a connection. A nil
// options pointer selects the defaults.
func NewTopic(ros *Ros, name, messageType string, options *TopicOptions) (*Topic, error) {
	opts := TopicOptions{}
	if options != nil {
		opts = *options
	}
	if opts.Compression == "" {
		opts.Compression = "none"
	}
	if !supportedCompression(opts.Compression) {
		return nil, fmt.Errorf("unsupported compression type %q, must be one of %v",
			opts.Compression, SupportedCompressionTypes)
	}
	if opts.QueueSize == 0 {
		opts.QueueSize = 100
	}
	return &Topic{
		ros:         ros,
		name:        name,
		messageType: messageType,
		options:     opts,
	}, nil
}

func supportedCompression(compression string) bool {
	for _, supported := range SupportedCompressionTypes {
		if compression == supported {
			return true
		}
	}
	return false
}

func (t *Topic) Name() string {
	return t.name
}

// IsSubscribed reports whether the topic currently holds a subscription.
func (t *Topic) IsSubscribed() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.subscribeID != ""
}

// IsAdvertised reports whether the topic is currently advertised as a
// publisher.
func (t *Topic) IsAdvertised() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.advertiseID != ""
}

// Subscribe registers callback for every message published on the topic.
// Calling Subscribe while already subscribed is a no-op.
func (t *Topic) Subscribe(callback func(Message)) {
	t.mutex.Lock()
	if t.subscribeID != "" {
		t.mutex.Unlock()
		return
	}
	t.subscribeID = t.ros.NextID(protocol.OpSubscribe, t.name)
	t.subscriber = NewListener(func(payload any) {
		body, _ := payload.(map[string]any)
		callback(Message(body))
	})
	msg := t.subscribeMessage()
	t.mutex.Unlock()

	t.ros.On(t.name, t.subscriber)
	t.ros.SendOnReady(msg)

	if !t.options.DisableReconnect {
		t.mutex.Lock()
		t.subReconnect = NewListener(func(any) { t.resubscribe() })
		reconnect := t.subReconnect
		t.mutex.Unlock()
		t.ros.On(EventClose, reconnect)
	}
}

// Unsubscribe drops the subscription. Calling it while not subscribed is a
// no-op.
func (t *Topic) Unsubscribe() {
	t.mutex.Lock()
	if t.subscribeID == "" {
		t.mutex.Unlock()
		return
	}
	id := t.subscribeID
	t.subscribeID = ""
	t.subscriber = nil
	reconnect := t.subReconnect
	t.subReconnect = nil
	t.mutex.Unlock()

	if reconnect != nil {
		t.ros.Off(EventClose, reconnect)
	}
	t.ros.RemoveAllListeners(t.name)
	t.ros.SendOnReady(Message{
		"op":    protocol.OpUnsubscribe,
		"id":    id,
		"topic": t.name,
	})
}

// Advertise registers the topic as a publisher. Calling it while already
// advertised is a no-op.
func (t *Topic) Advertise() {
	t.mutex.Lock()
	if t.advertiseID != "" {
		t.mutex.Unlock()
		return
	}
	t.advertiseID = t.ros.NextID(protocol.OpAdvertise, t.name)
	msg := t.advertiseMessage()
	t.mutex.Unlock()

	t.ros.SendOnReady(msg)

	if t.options.DisableReconnect {
		// Without reconnection the advertisement dies with the
		// connection, so the state flag resets on close.
		t.mutex.Lock()
		t.advReset = NewListener(func(any) {
			t.mutex.Lock()
			t.advertiseID = ""
			t.mutex.Unlock()
		})
		reset := t.advReset
		t.mutex.Unlock()
		t.ros.On(EventClose, reset)
	} else {
		t.mutex.Lock()
		t.advReconnect = NewListener(func(any) { t.readvertise() })
		reconnect := t.advReconnect
		t.mutex.Unlock()
		t.ros.On(EventClose, reconnect)
	}
}

// Unadvertise unregisters the topic as a publisher. Calling it while not
// advertised is a no-op.
func (t *Topic) Unadvertise() {
	t.mutex.Lock()
	if t.advertiseID == "" {
		t.mutex.Unlock()
		return
	}
	id := t.advertiseID
	t.advertiseID = ""
	reconnect := t.advReconnect
	t.advReconnect = nil
	reset := t.advReset
	t.advReset = nil
	t.mutex.Unlock()

	if reconnect != nil {
		t.ros.Off(EventClose, reconnect)
	}
	if reset != nil {
		t.ros.Off(EventClose, reset)
	}
	t.ros.SendOnReady(Message{
		"op":    protocol.OpUnadvertise,
		"id":    id,
		"topic": t.name,
	})
}

// Publish sends one message on the topic, advertising first if needed.
func (t *Topic) Publish(message Message) {
	if !t.IsAdvertised() {
		t.Advertise()
	}

	t.ros.SendOnReady(Message{
		"op":    protocol.OpPublish,
		"id":    t.ros.NextID(protocol.OpPublish, t.name),
		"topic": t.name,
		"msg":   map[string]any(message),
		"latch": t.options.Latch,
	})
}

func (t *Topic) subscribeMessage() Message {
	return Message{
		"op":            protocol.OpSubscribe,
		"id":            t.subscribeID,
		"type":          t.messageType,
		"topic":         t.name,
		"compression":   t.options.Compression,
		"throttle_rate": t.options.ThrottleRate,
		"queue_length":  t.options.QueueLength,
	}
}

func (t *Topic) advertiseMessage() Message {
	return Message{
		"op":         protocol.OpAdvertise,
		"id":         t.advertiseID,
		"type":       t.messageType,
		"topic":      t.name,
		"latch":      t.options.Latch,
		"queue_size": t.options.QueueSize,
	}
}

// resubscribe re-issues the subscription with a fresh ID once the new
// connection has had a moment to stabilize. The subscriber callback keeps
// receiving the same logical stream.
func (t *Topic) resubscribe() {
	time.AfterFunc(reconnectDelay, func() {
		t.mutex.Lock()
		if t.subscribeID == "" {
			t.mutex.Unlock()
			return
		}
		t.subscribeID = t.ros.NextID(protocol.OpSubscribe, t.name)
		msg := t.subscribeMessage()
		t.mutex.Unlock()
		t.ros.SendOnReady(msg)
	})
}

func (t *Topic) readvertise() {
	time.AfterFunc(reconnectDelay, func() {
		t.mutex.Lock()
		if t.advertiseID == "" {
			t.mutex.Unlock()
			return
		}
		t.advertiseID = t.ros.NextID(protocol.OpAdvertise, t.name)
		msg := t.advertiseMessage()
		t.mutex.Unlock()
		t.ros.SendOnReady(msg)
	})
}
