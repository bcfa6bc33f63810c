package rosbridge

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/USA-RedDragon/rosbridge-client/internal/correlation"
	"github.com/USA-RedDragon/rosbridge-client/internal/events"
	"github.com/USA-RedDragon/rosbridge-client/internal/metrics"
	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
	"github.com/USA-RedDragon/rosbridge-client/internal/transport"
	gorillaWebsocket "github.com/gorilla/websocket"
)

// Lifecycle event names emitted by a Ros connection.
const (
	EventReady   = "ready"
	EventClose   = "close"
	EventClosing = "closing"
	EventError   = events.ErrorEvent
)

// ErrTimeout reports that a blocking operation did not complete within its
// deadline. The underlying request is not cancelled; a reply arriving after
// the deadline is silently discarded.
var ErrTimeout = errors.New("timed out waiting for the bridge")

// ServiceError reports a service call the bridge completed with
// result=false. Values carries the error payload returned by the service.
type ServiceError struct {
	Values map[string]any
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service call failed: %v", e.Values)
}

// Options configure a Ros connection.
type Options struct {
	// Host and Port locate the rosbridge server.
	Host string
	Port uint16
	// Secure selects wss instead of ws.
	Secure bool
	// Headers are extra HTTP headers sent with the websocket handshake.
	Headers http.Header
	// DisableReconnect turns off automatic reconnection after a dropped
	// connection. A deliberate Close never reconnects regardless.
	DisableReconnect bool
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	// EnableMetrics registers prometheus collectors for this connection.
	EnableMetrics bool
}

// URL builds the websocket endpoint for the options.
func (o Options) URL() string {
	scheme := "ws"
	if o.Secure {
		scheme = "wss"
	}
	port := o.Port
	if port == 0 {
		port = 9090
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, port)
}

// Ros is the connection manager. It owns the transport, correlates replies
// to requests, and routes topic traffic to subscribers. All channel
// abstractions (Topic, Service, Param, actions) operate through one Ros.
type Ros struct {
	options    Options
	emitter    *events.Emitter
	services   *correlation.Table
	actions    *correlation.ActionTable
	dispatcher *protocol.Dispatcher
	transport  *transport.Client
	metrics    *metrics.Metrics

	idCounter    atomic.Uint64
	isConnecting atomic.Bool
	everReady    atomic.Bool

	readyMutex   sync.Mutex
	ready        bool
	pendingReady []func()
}

// NewRos builds a connection manager for the given options. The connection
// is not opened until Connect or Run is called.
func NewRos(options Options) *Ros {
	emitter := events.NewEmitter()
	services := correlation.NewTable()
	actions := correlation.NewActionTable()

	ros := &Ros{
		options:    options,
		emitter:    emitter,
		services:   services,
		actions:    actions,
		dispatcher: protocol.NewDispatcher(emitter, services, actions),
	}
	if options.EnableMetrics {
		ros.metrics = metrics.NewMetrics()
	}
	ros.transport = transport.NewClient(transport.Options{
		URL:            options.URL(),
		Headers:        options.Headers,
		Reconnect:      !options.DisableReconnect,
		InitialBackoff: options.InitialBackoff,
		MaxBackoff:     options.MaxBackoff,
	}, transport.Callbacks{
		OnReady:   ros.handleReady,
		OnMessage: ros.handleMessage,
		OnClose:   ros.handleClose,
	})
	return ros
}

// Connect opens the connection. It is a no-op while already connected or
// while a connection attempt is in flight.
func (r *Ros) Connect() {
	if r.IsConnected() {
		return
	}
	if !r.isConnecting.CompareAndSwap(false, true) {
		return
	}
	r.transport.Connect()
	// The flag clears on ready, but a dial loop that gives up without
	// ever connecting would otherwise leave it set forever.
	go func() {
		<-r.transport.Done()
		r.isConnecting.Store(false)
	}()
}

// Run connects and blocks until the connection is ready or the timeout
// elapses.
func (r *Ros) Run(timeout time.Duration) error {
	ready := make(chan struct{}, 1)
	r.OnReady(func() {
		select {
		case ready <- struct{}{}:
		default:
		}
	}, false)
	r.Connect()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ready:
		return nil
	case <-timer.C:
		return fmt.Errorf("failed to connect to the bridge: %w", ErrTimeout)
	}
}

func (r *Ros) IsConnected() bool {
	return r.transport.IsConnected()
}

// IsConnecting reports whether a connection attempt is in flight.
func (r *Ros) IsConnecting() bool {
	return r.isConnecting.Load()
}

// Close emits the closing event synchronously while the connection is still
// usable, then starts the websocket close handshake. Automatic reconnection
// is suppressed: a deliberate close is final.
func (r *Ros) Close() {
	if r.IsConnected() {
		r.emitter.Emit(EventClosing, nil)
	}
	r.transport.Close()
}

// Done is closed once the connection has fully terminated and no further
// reconnection will happen.
func (r *Ros) Done() <-chan struct{} {
	return r.transport.Done()
}

// NextID generates a correlation ID for op against name. Counter values are
// unique for the lifetime of this Ros instance, starting at 1.
func (r *Ros) NextID(op, name string) string {
	return fmt.Sprintf("%s:%s:%d", op, name, r.idCounter.Add(1))
}

// On registers listener for the named event. Names are topic or service
// names, or one of the reserved lifecycle events.
func (r *Ros) On(event string, listener *Listener) {
	r.emitter.On(event, listener)
}

func (r *Ros) Off(event string, listener *Listener) {
	r.emitter.Off(event, listener)
}

// RemoveAllListeners removes every listener of the named event.
func (r *Ros) RemoveAllListeners(event string) {
	r.emitter.RemoveAll(event)
}

// Emit triggers the named event.
func (r *Ros) Emit(event string, payload any) {
	r.emitter.Emit(event, payload)
}

// OnReady runs callback once the connection is established, or immediately
// if it already is. With background set, the callback runs on its own
// goroutine; otherwise it runs on the caller's goroutine when already
// connected, or on the transport's when queued. Queued callbacks fire once
// on the next ready transition only.
func (r *Ros) OnReady(callback func(), background bool) {
	run := callback
	if background {
		run = func() { go callback() }
	}

	r.readyMutex.Lock()
	if r.ready {
		r.readyMutex.Unlock()
		run()
		return
	}
	r.pendingReady = append(r.pendingReady, run)
	r.readyMutex.Unlock()
}

// SendOnReady writes the envelope now if the connection is ready, otherwise
// queues it for the next ready transition. Writes are serialized; envelopes
// are never interleaved on the wire.
func (r *Ros) SendOnReady(msg Message) {
	r.OnReady(func() { r.send(msg) }, false)
}

// CallAsyncService registers the request for correlation and sends it once
// connected. Exactly one of callback or errback will eventually run, unless
// no reply ever arrives.
func (r *Ros) CallAsyncService(msg Message, callback func(map[string]any), errback func(map[string]any)) {
	id := protocol.Message(msg).ID()
	if err := r.services.Register(id, correlation.Callback(callback), correlation.Callback(errback)); err != nil {
		slog.Error("Failed to register service request", "id", id, "error", err)
		return
	}
	r.updatePendingGauge()
	r.SendOnReady(msg)
}

// CallSyncService sends the request and blocks until its reply arrives or
// the timeout elapses. A timeout of zero waits indefinitely. On timeout the
// caller is unblocked with ErrTimeout; a reply arriving later is silently
// discarded.
func (r *Ros) CallSyncService(msg Message, timeout time.Duration) (map[string]any, error) {
	type outcome struct {
		values map[string]any
		err    error
	}
	// Buffered so a late completion never blocks the dispatch loop.
	result := make(chan outcome, 1)

	r.CallAsyncService(msg,
		func(values map[string]any) {
			select {
			case result <- outcome{values: values}:
			default:
			}
		},
		func(values map[string]any) {
			select {
			case result <- outcome{err: &ServiceError{Values: values}}:
			default:
			}
		})

	if timeout <= 0 {
		res := <-result
		return res.values, res.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-result:
		return res.values, res.err
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// CallAsyncAction registers an action goal for correlation and sends it
// once connected. feedback may run any number of times before exactly one
// of resultback or errback.
func (r *Ros) CallAsyncAction(msg Message, resultback, feedback, errback func(map[string]any)) {
	id := protocol.Message(msg).ID()
	err := r.actions.Register(id,
		correlation.Callback(resultback),
		correlation.Callback(feedback),
		correlation.Callback(errback))
	if err != nil {
		slog.Error("Failed to register action goal", "id", id, "error", err)
		return
	}
	r.SendOnReady(msg)
}

func (r *Ros) send(msg Message) {
	data, err := protocol.Encode(protocol.Message(msg))
	if err != nil {
		slog.Error("Failed to encode envelope", "error", err)
		return
	}
	slog.Debug("Sending envelope", "op", protocol.Message(msg).Op(), "id", protocol.Message(msg).ID())
	if err := r.transport.Send(data); err != nil {
		slog.Warn("Failed to send envelope", "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.IncrementMessagesSent(protocol.Message(msg).Op())
	}
}

func (r *Ros) handleReady() {
	r.isConnecting.Store(false)
	if r.everReady.Swap(true) && r.metrics != nil {
		r.metrics.IncrementReconnects()
	}

	r.readyMutex.Lock()
	r.ready = true
	pending := r.pendingReady
	r.pendingReady = nil
	r.readyMutex.Unlock()

	slog.Info("Connected to the bridge", "url", r.options.URL())
	for _, fn := range pending {
		fn()
	}
	r.emitter.Emit(EventReady, nil)
}

func (r *Ros) handleClose() {
	r.readyMutex.Lock()
	r.ready = false
	r.readyMutex.Unlock()

	slog.Info("Disconnected from the bridge", "url", r.options.URL())
	r.emitter.Emit(EventClose, nil)
}

func (r *Ros) handleMessage(msgType int, data []byte) {
	if msgType != gorillaWebsocket.TextMessage {
		slog.Error("Dropping frame", "error", protocol.ErrBinaryFrame)
		return
	}

	msg, err := protocol.Decode(data)
	if err != nil {
		slog.Warn("Failed to decode envelope", "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.IncrementMessagesReceived(msg.Op())
	}

	err = r.dispatcher.Dispatch(msg)
	switch {
	case err == nil:
		r.updatePendingGauge()
	case errors.Is(err, correlation.ErrUnmatchedReply):
		// A race with a timed-out caller or a bridge-side bug. Not
		// fatal to the stream.
		slog.Warn("Reply without a pending request", "op", msg.Op(), "id", msg.ID())
		if r.metrics != nil {
			r.metrics.IncrementUnmatchedReplies()
		}
	default:
		slog.Warn("Failed to dispatch envelope", "op", msg.Op(), "error", err)
	}
}

func (r *Ros) updatePendingGauge() {
	if r.metrics != nil {
		r.metrics.SetPendingRequests(r.services.Len() + r.actions.Len())
	}
}
