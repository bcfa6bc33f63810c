// Package relay forwards ROS topic traffic to a NATS server. Each relayed
// topic maps to one subject under a configurable prefix, with the topic's
// slashes folded into subject tokens.
package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rosbridge "github.com/USA-RedDragon/rosbridge-client"
)

// Publisher is the outbound side of the relay. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Options configure a Relay.
type Options struct {
	// SubjectPrefix is prepended to every relayed subject.
	SubjectPrefix string
	// Topics are the ROS topics to forward.
	Topics []string
	// RosapiTimeout bounds the type lookups done at startup.
	RosapiTimeout time.Duration
}

// Relay subscribes to a set of ROS topics and republishes every message as
// JSON on NATS.
type Relay struct {
	ros       *rosbridge.Ros
	publisher Publisher
	options   Options
	topics    []*rosbridge.Topic
}

func New(ros *rosbridge.Ros, publisher Publisher, options Options) *Relay {
	return &Relay{
		ros:       ros,
		publisher: publisher,
		options:   options,
	}
}

// Start resolves each topic's message type through rosapi and subscribes.
// Messages flow until Stop.
func (r *Relay) Start() error {
	for _, name := range r.options.Topics {
		messageType, err := r.ros.GetTopicType(name, r.options.RosapiTimeout)
		if err != nil {
			return fmt.Errorf("failed to resolve the type of %s: %w", name, err)
		}

		topic, err := rosbridge.NewTopic(r.ros, name, messageType, nil)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", name, err)
		}

		subject := SubjectFor(r.options.SubjectPrefix, name)
		topic.Subscribe(func(msg rosbridge.Message) {
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Warn("Failed to encode relayed message", "topic", name, "error", err)
				return
			}
			if err := r.publisher.Publish(subject, data); err != nil {
				slog.Warn("Failed to publish relayed message", "subject", subject, "error", err)
			}
		})
		slog.Info("Relaying topic", "topic", name, "subject", subject, "type", messageType)

		r.topics = append(r.topics, topic)
	}
	return nil
}

// Stop unsubscribes every relayed topic.
func (r *Relay) Stop() {
	for _, topic := range r.topics {
		topic.Unsubscribe()
	}
	r.topics = nil
}

// SubjectFor maps a ROS topic name to a NATS subject under the prefix.
// "/turtle1/cmd_vel" with prefix "ros" becomes "ros.turtle1.cmd_vel".
func SubjectFor(prefix, topic string) string {
	trimmed := strings.Trim(topic, "/")
	tokens := strings.Split(trimmed, "/")
	return prefix + "." + strings.Join(tokens, ".")
}
