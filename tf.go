package rosbridge

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// TFClient defaults.
const (
	DefaultFixedFrame           = "/base_link"
	DefaultAngularThreshold     = 2.0
	DefaultTranslationThreshold = 0.01
	DefaultTFRate               = 10.0
	DefaultUpdateDelay          = 50 * time.Millisecond
	DefaultTopicTimeout         = 2 * time.Second
	DefaultRepubServiceName     = "/republish_tfs"
)

// TFClientOptions tune a TFClient. Zero fields take the package defaults.
type TFClientOptions struct {
	FixedFrame           string
	AngularThreshold     float64
	TranslationThreshold float64
	Rate                 float64
	UpdateDelay          time.Duration
	TopicTimeout         time.Duration
	RepubServiceName     string
}

type tfFrame struct {
	listeners []*Listener
	transform map[string]any
}

// TFClient tracks transforms between a fixed frame and a set of source
// frames through the tf2 web republisher. Frame subscriptions are batched:
// changes to the frame set coalesce into a single republish request issued
// after a short delay.
type TFClient struct {
	ros     *Ros
	options TFClientOptions
	service *Service

	mutex           sync.Mutex
	frames          map[string]*tfFrame
	topic           *Topic
	updateScheduled bool
	disposed        bool

	closeListener *Listener
}

func NewTFClient(ros *Ros, options *TFClientOptions) *TFClient {
	opts := TFClientOptions{}
	if options != nil {
		opts = *options
	}
	if opts.FixedFrame == "" {
		opts.FixedFrame = DefaultFixedFrame
	}
	if opts.AngularThreshold == 0 {
		opts.AngularThreshold = DefaultAngularThreshold
	}
	if opts.TranslationThreshold == 0 {
		opts.TranslationThreshold = DefaultTranslationThreshold
	}
	if opts.Rate == 0 {
		opts.Rate = DefaultTFRate
	}
	if opts.UpdateDelay == 0 {
		opts.UpdateDelay = DefaultUpdateDelay
	}
	if opts.TopicTimeout == 0 {
		opts.TopicTimeout = DefaultTopicTimeout
	}
	if opts.RepubServiceName == "" {
		opts.RepubServiceName = DefaultRepubServiceName
	}

	client := &TFClient{
		ros:     ros,
		options: opts,
		frames:  make(map[string]*tfFrame),
	}
	client.service = NewService(ros, opts.RepubServiceName, "tf2_web_republisher/RepublishTFs", nil)

	client.closeListener = NewListener(func(any) {
		client.mutex.Lock()
		client.updateScheduled = false
		client.mutex.Unlock()
	})
	ros.On(EventClose, client.closeListener)

	return client
}

// Subscribe registers a listener for transform updates of the given frame.
// If a transform is already cached it is delivered immediately.
func (c *TFClient) Subscribe(frameID string, listener *Listener) {
	frameID = normalizeFrameID(frameID)

	c.mutex.Lock()
	frame, known := c.frames[frameID]
	if !known {
		frame = &tfFrame{}
		c.frames[frameID] = frame
		c.scheduleUpdateLocked()
	}
	frame.listeners = append(frame.listeners, listener)
	cached := frame.transform
	c.mutex.Unlock()

	if cached != nil {
		listener.Invoke(cached)
	}
}

// Unsubscribe removes a listener from a frame. With a nil listener every
// listener of the frame is removed. A frame left without listeners is
// dropped from the republish request.
func (c *TFClient) Unsubscribe(frameID string, listener *Listener) {
	frameID = normalizeFrameID(frameID)

	c.mutex.Lock()
	defer c.mutex.Unlock()
	frame, known := c.frames[frameID]
	if !known {
		return
	}
	if listener == nil {
		frame.listeners = nil
	} else {
		for i, existing := range frame.listeners {
			if existing == listener {
				frame.listeners = append(frame.listeners[:i:i], frame.listeners[i+1:]...)
				break
			}
		}
	}
	if len(frame.listeners) == 0 {
		delete(c.frames, frameID)
		c.scheduleUpdateLocked()
	}
}

// Dispose stops transform delivery and releases the underlying topic.
func (c *TFClient) Dispose() {
	c.mutex.Lock()
	c.disposed = true
	topic := c.topic
	c.topic = nil
	c.frames = make(map[string]*tfFrame)
	c.mutex.Unlock()

	c.ros.Off(EventClose, c.closeListener)
	if topic != nil {
		topic.Unsubscribe()
	}
}

// scheduleUpdateLocked coalesces frame set changes into one republish
// request. Callers hold c.mutex.
func (c *TFClient) scheduleUpdateLocked() {
	if c.updateScheduled || c.disposed {
		return
	}
	c.updateScheduled = true
	time.AfterFunc(c.options.UpdateDelay, c.updateGoal)
}

func (c *TFClient) updateGoal() {
	c.mutex.Lock()
	c.updateScheduled = false
	if c.disposed {
		c.mutex.Unlock()
		return
	}
	sourceFrames := make([]any, 0, len(c.frames))
	for frameID := range c.frames {
		sourceFrames = append(sourceFrames, frameID)
	}
	c.mutex.Unlock()

	request := ServiceRequest{
		"source_frames": sourceFrames,
		"target_frame":  c.options.FixedFrame,
		"angular_thres": c.options.AngularThreshold,
		"trans_thres":   c.options.TranslationThreshold,
		"rate":          c.options.Rate,
		"timeout":       TimeFromSec(c.options.TopicTimeout.Seconds()).toMap(),
	}
	callback := func(values map[string]any) {
		c.processResponse(ServiceResponse(values))
	}
	errback := func(values map[string]any) {
		slog.Warn("TF republish request failed", "service", c.service.Name(), "values", values)
	}
	if err := c.service.CallAsync(request, callback, errback); err != nil {
		slog.Warn("TF republish request not sent", "service", c.service.Name(), "error", err)
	}
}

func (c *TFClient) processResponse(response ServiceResponse) {
	topicName, _ := response["topic_name"].(string)
	if topicName == "" {
		return
	}

	c.mutex.Lock()
	if c.disposed {
		c.mutex.Unlock()
		return
	}
	previous := c.topic
	if previous != nil && previous.Name() == topicName {
		c.mutex.Unlock()
		return
	}
	topic, err := NewTopic(c.ros, topicName, "tf2_web_republisher/TFArray", nil)
	if err != nil {
		c.mutex.Unlock()
		return
	}
	c.topic = topic
	c.mutex.Unlock()

	if previous != nil {
		previous.Unsubscribe()
	}
	topic.Subscribe(c.processTFArray)
}

func (c *TFClient) processTFArray(message Message) {
	transforms, _ := message["transforms"].([]any)
	for _, item := range transforms {
		entry, _ := item.(map[string]any)
		childFrame, _ := entry["child_frame_id"].(string)
		frameID := normalizeFrameID(childFrame)
		transform, _ := entry["transform"].(map[string]any)
		if transform == nil {
			continue
		}

		c.mutex.Lock()
		frame, known := c.frames[frameID]
		if !known {
			c.mutex.Unlock()
			continue
		}
		frame.transform = transform
		listeners := make([]*Listener, len(frame.listeners))
		copy(listeners, frame.listeners)
		c.mutex.Unlock()

		for _, listener := range listeners {
			listener.Invoke(transform)
		}
	}
}

func normalizeFrameID(frameID string) string {
	return strings.TrimPrefix(frameID, "/")
}
