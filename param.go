package rosbridge

import (
	"encoding/json"
	"fmt"
	"time"
)

// Param is one entry on the ROS parameter server, accessed through the
// rosapi services.
type Param struct {
	ros  *Ros
	name string
}

func NewParam(ros *Ros, name string) *Param {
	return &Param{ros: ros, name: name}
}

func (p *Param) Name() string {
	return p.name
}

// Get fetches the current value, blocking until it arrives or the timeout
// elapses. The parameter server stores values as JSON text; the decoded
// value is returned.
func (p *Param) Get(timeout time.Duration) (any, error) {
	client := NewService(p.ros, "/rosapi/get_param", "rosapi/GetParam", nil)
	response, err := client.Call(ServiceRequest{"name": p.name}, timeout)
	if err != nil {
		return nil, err
	}
	return decodeParamValue(response)
}

// GetAsync fetches the current value without blocking.
func (p *Param) GetAsync(callback func(any), errback func(map[string]any)) {
	client := NewService(p.ros, "/rosapi/get_param", "rosapi/GetParam", nil)
	_ = client.CallAsync(ServiceRequest{"name": p.name}, func(values map[string]any) {
		value, err := decodeParamValue(values)
		if err != nil {
			if errback != nil {
				errback(map[string]any{"error": err.Error()})
			}
			return
		}
		callback(value)
	}, errback)
}

// Set stores a new value, blocking until the server confirms or the timeout
// elapses.
func (p *Param) Set(value any, timeout time.Duration) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode parameter value: %w", err)
	}
	client := NewService(p.ros, "/rosapi/set_param", "rosapi/SetParam", nil)
	_, err = client.Call(ServiceRequest{"name": p.name, "value": string(encoded)}, timeout)
	return err
}

// SetAsync stores a new value without blocking.
func (p *Param) SetAsync(value any, callback, errback func(map[string]any)) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode parameter value: %w", err)
	}
	client := NewService(p.ros, "/rosapi/set_param", "rosapi/SetParam", nil)
	return client.CallAsync(ServiceRequest{"name": p.name, "value": string(encoded)}, callback, errback)
}

// Delete removes the parameter, blocking until the server confirms or the
// timeout elapses.
func (p *Param) Delete(timeout time.Duration) error {
	client := NewService(p.ros, "/rosapi/delete_param", "rosapi/DeleteParam", nil)
	_, err := client.Call(ServiceRequest{"name": p.name}, timeout)
	return err
}

// DeleteAsync removes the parameter without blocking.
func (p *Param) DeleteAsync(callback, errback func(map[string]any)) error {
	client := NewService(p.ros, "/rosapi/delete_param", "rosapi/DeleteParam", nil)
	return client.CallAsync(ServiceRequest{"name": p.name}, callback, errback)
}

func decodeParamValue(values map[string]any) (any, error) {
	raw, _ := values["value"].(string)
	if raw == "" {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to decode parameter value: %w", err)
	}
	return value, nil
}
