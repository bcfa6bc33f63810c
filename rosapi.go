package rosbridge

import (
	"time"

	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
)

// Introspection helpers backed by the rosapi node. Every blocking variant
// accepts a timeout; zero waits indefinitely.

// NodeDetails describes the connections of one ROS node.
type NodeDetails struct {
	Subscribing []string
	Publishing  []string
	Services    []string
}

// GetTopics lists the topics currently known to the ROS master.
func (r *Ros) GetTopics(timeout time.Duration) ([]string, error) {
	client := NewService(r, "/rosapi/topics", "rosapi/Topics", nil)
	response, err := client.Call(ServiceRequest{}, timeout)
	if err != nil {
		return nil, err
	}
	return stringList(response["topics"]), nil
}

// GetTopicType resolves the message type of a topic.
func (r *Ros) GetTopicType(topic string, timeout time.Duration) (string, error) {
	client := NewService(r, "/rosapi/topic_type", "rosapi/TopicType", nil)
	response, err := client.Call(ServiceRequest{"topic": topic}, timeout)
	if err != nil {
		return "", err
	}
	topicType, _ := response["type"].(string)
	return topicType, nil
}

// GetTopicsForType lists the topics carrying the given message type.
func (r *Ros) GetTopicsForType(topicType string, timeout time.Duration) ([]string, error) {
	client := NewService(r, "/rosapi/topics_for_type", "rosapi/TopicsForType", nil)
	response, err := client.Call(ServiceRequest{"type": topicType}, timeout)
	if err != nil {
		return nil, err
	}
	return stringList(response["topics"]), nil
}

// GetServices lists the services currently advertised in the ROS graph.
func (r *Ros) GetServices(timeout time.Duration) ([]string, error) {
	client := NewService(r, "/rosapi/services", "rosapi/Services", nil)
	response, err := client.Call(ServiceRequest{}, timeout)
	if err != nil {
		return nil, err
	}
	return stringList(response["services"]), nil
}

// GetServiceType resolves the type of a service.
func (r *Ros) GetServiceType(service string, timeout time.Duration) (string, error) {
	client := NewService(r, "/rosapi/service_type", "rosapi/ServiceType", nil)
	response, err := client.Call(ServiceRequest{"service": service}, timeout)
	if err != nil {
		return "", err
	}
	serviceType, _ := response["type"].(string)
	return serviceType, nil
}

// GetActionServers lists the action servers currently running.
func (r *Ros) GetActionServers(timeout time.Duration) ([]string, error) {
	client := NewService(r, "/rosapi/action_servers", "rosapi/GetActionServers", nil)
	response, err := client.Call(ServiceRequest{}, timeout)
	if err != nil {
		return nil, err
	}
	return stringList(response["action_servers"]), nil
}

// GetNodes lists the nodes registered with the ROS master.
func (r *Ros) GetNodes(timeout time.Duration) ([]string, error) {
	client := NewService(r, "/rosapi/nodes", "rosapi/Nodes", nil)
	response, err := client.Call(ServiceRequest{}, timeout)
	if err != nil {
		return nil, err
	}
	return stringList(response["nodes"]), nil
}

// GetNodeDetails reports the topics and services a node is connected to.
func (r *Ros) GetNodeDetails(node string, timeout time.Duration) (NodeDetails, error) {
	client := NewService(r, "/rosapi/node_details", "rosapi/NodeDetails", nil)
	response, err := client.Call(ServiceRequest{"node": node}, timeout)
	if err != nil {
		return NodeDetails{}, err
	}
	return NodeDetails{
		Subscribing: stringList(response["subscribing"]),
		Publishing:  stringList(response["publishing"]),
		Services:    stringList(response["services"]),
	}, nil
}

// GetParams lists the names on the parameter server.
func (r *Ros) GetParams(timeout time.Duration) ([]string, error) {
	client := NewService(r, "/rosapi/get_param_names", "rosapi/GetParamNames", nil)
	response, err := client.Call(ServiceRequest{}, timeout)
	if err != nil {
		return nil, err
	}
	return stringList(response["names"]), nil
}

// GetParam fetches one parameter value.
func (r *Ros) GetParam(name string, timeout time.Duration) (any, error) {
	return NewParam(r, name).Get(timeout)
}

// SetParam stores one parameter value.
func (r *Ros) SetParam(name string, value any, timeout time.Duration) error {
	return NewParam(r, name).Set(value, timeout)
}

// DeleteParam removes one parameter.
func (r *Ros) DeleteParam(name string, timeout time.Duration) error {
	return NewParam(r, name).Delete(timeout)
}

// GetTime reads the current ROS time, which follows simulated clocks when
// the /clock topic is active.
func (r *Ros) GetTime(timeout time.Duration) (Time, error) {
	client := NewService(r, "/rosapi/get_time", "rosapi/GetTime", nil)
	response, err := client.Call(ServiceRequest{}, timeout)
	if err != nil {
		return Time{}, err
	}
	return timeFromMap(response["time"]), nil
}

// SetStatusLevel asks the server to report status messages at the given
// level (none, error, warning or info).
func (r *Ros) SetStatusLevel(level string, id string) {
	msg := Message{
		"op":    protocol.OpSetLevel,
		"level": level,
	}
	if id != "" {
		msg["id"] = id
	}
	r.SendOnReady(msg)
}

// Authenticate sends rosauth credentials to the server.
func (r *Ros) Authenticate(mac, client, dest, rand string, t int, level string, end int) {
	r.SendOnReady(Message{
		"op":     protocol.OpAuth,
		"mac":    mac,
		"client": client,
		"dest":   dest,
		"rand":   rand,
		"t":      t,
		"level":  level,
		"end":    end,
	})
}

func stringList(value any) []string {
	items, _ := value.([]any)
	list := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			list = append(list, s)
		}
	}
	return list
}
