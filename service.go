package rosbridge

import (
	"errors"
	"sync"
	"time"

	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
)

// ErrAdvertised reports a service call on an instance that is currently
// advertised as a server.
var ErrAdvertised = errors.New("service is advertised as a server")

// ServiceHandler processes one inbound service request. It fills response
// and returns true on success; returning false sends the response values to
// the caller's error side.
type ServiceHandler func(request ServiceRequest, response ServiceResponse) bool

// ServiceOptions tune a Service. The zero value is usable.
type ServiceOptions struct {
	DisableReconnect bool
}

// Service is a client of a ROS service, or a server for one after
// Advertise.
type Service struct {
	ros         *Ros
	name        string
	serviceType string
	options     ServiceOptions

	mutex       sync.Mutex
	advertised  bool
	userHandler ServiceHandler
	handler     *Listener
	reconnect   *Listener
}

func NewService(ros *Ros, name, serviceType string, options *ServiceOptions) *Service {
	opts := ServiceOptions{}
	if options != nil {
		opts = *options
	}
	return &Service{
		ros:         ros,
		name:        name,
		serviceType: serviceType,
		options:     opts,
	}
}

func (s *Service) Name() string {
	return s.name
}

// IsAdvertised reports whether this instance acts as the service's server.
func (s *Service) IsAdvertised() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.advertised
}

// Call sends the request and blocks until the response arrives or the
// timeout elapses. A timeout of zero waits indefinitely.
func (s *Service) Call(request ServiceRequest, timeout time.Duration) (ServiceResponse, error) {
	if s.IsAdvertised() {
		return nil, ErrAdvertised
	}

	values, err := s.ros.CallSyncService(s.callMessage(request), timeout)
	if err != nil {
		return nil, err
	}
	return ServiceResponse(values), nil
}

// CallAsync sends the request and returns immediately; exactly one of
// callback or errback eventually runs with the response values.
func (s *Service) CallAsync(request ServiceRequest, callback, errback func(map[string]any)) error {
	if s.IsAdvertised() {
		return ErrAdvertised
	}

	s.ros.CallAsyncService(s.callMessage(request), callback, errback)
	return nil
}

func (s *Service) callMessage(request ServiceRequest) Message {
	return Message{
		"op":      protocol.OpCallService,
		"id":      s.ros.NextID(protocol.OpCallService, s.name),
		"service": s.name,
		"args":    map[string]any(request),
	}
}

// Advertise turns this instance into the service's server. handler runs for
// every inbound request. Calling Advertise while already advertised is a
// no-op.
func (s *Service) Advertise(handler ServiceHandler) {
	s.mutex.Lock()
	if s.advertised {
		s.mutex.Unlock()
		return
	}
	s.advertised = true
	s.userHandler = handler
	s.handler = NewListener(func(payload any) {
		envelope, _ := payload.(map[string]any)
		s.handleRequest(protocol.Message(envelope))
	})
	s.mutex.Unlock()

	s.ros.On(s.name, s.handler)
	s.ros.SendOnReady(s.advertiseMessage())

	if !s.options.DisableReconnect {
		s.mutex.Lock()
		s.reconnect = NewListener(func(any) { s.readvertise() })
		reconnect := s.reconnect
		s.mutex.Unlock()
		s.ros.On(EventClose, reconnect)
	}
}

// Unadvertise stops serving the service. Calling it while not advertised is
// a no-op.
func (s *Service) Unadvertise() {
	s.mutex.Lock()
	if !s.advertised {
		s.mutex.Unlock()
		return
	}
	s.advertised = false
	s.userHandler = nil
	handler := s.handler
	s.handler = nil
	reconnect := s.reconnect
	s.reconnect = nil
	s.mutex.Unlock()

	if reconnect != nil {
		s.ros.Off(EventClose, reconnect)
	}
	s.ros.SendOnReady(Message{
		"op":      protocol.OpUnadvertiseService,
		"service": s.name,
		"type":    s.serviceType,
	})
	if handler != nil {
		s.ros.Off(s.name, handler)
	}
}

// readvertise re-issues the advertisement once the new connection has had a
// moment to stabilize.
func (s *Service) readvertise() {
	time.AfterFunc(reconnectDelay, func() {
		if s.IsAdvertised() {
			s.ros.SendOnReady(s.advertiseMessage())
		}
	})
}

func (s *Service) advertiseMessage() Message {
	return Message{
		"op":      protocol.OpAdvertiseService,
		"service": s.name,
		"type":    s.serviceType,
	}
}

func (s *Service) handleRequest(request protocol.Message) {
	s.mutex.Lock()
	handler := s.userHandler
	advertised := s.advertised
	s.mutex.Unlock()
	if !advertised || handler == nil {
		return
	}

	response := ServiceResponse{}
	success := handler(ServiceRequest(request.MapField("args")), response)

	reply := Message{
		"op":      protocol.OpServiceResponse,
		"service": s.name,
		"values":  map[string]any(response),
		"result":  success,
	}
	if id := request.ID(); id != "" {
		reply["id"] = id
	}
	s.ros.SendOnReady(reply)
}
