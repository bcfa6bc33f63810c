// Package transport owns the websocket connection to the bridge: dialing,
// the single read loop, the serialized write path, and reconnection with
// capped backoff. A deliberate Close suppresses reconnection.
package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// bufferSize bounds the envelopes queueable while the writer is not
	// draining. OnReady runs before the pump starts, so sends it enqueues
	// past this bound would block the connect loop.
	bufferSize   = 1024
	closeTimeout = 5 * time.Second
)

var ErrNotConnected = errors.New("transport is not connected")

// Message is one outbound websocket frame.
type Message struct {
	Type int
	Data []byte
}

// Callbacks receive transport lifecycle and traffic notifications. OnMessage
// and the lifecycle callbacks are invoked from the transport's own
// goroutines and must not block on transport writes completing.
type Callbacks struct {
	OnReady   func()
	OnMessage func(msgType int, data []byte)
	OnClose   func()
}

// Options configure a Client.
type Options struct {
	URL            string
	Headers        http.Header
	Reconnect      bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client is a websocket client with automatic reconnection. All writes are
// funneled through a single goroutine so envelopes are never interleaved on
// the wire.
type Client struct {
	options   Options
	callbacks Callbacks

	mutex     sync.Mutex
	conn      *websocket.Conn
	writer    chan Message
	connected atomic.Bool
	closed    atomic.Bool
	started   atomic.Bool
	done      chan struct{}
}

func NewClient(options Options, callbacks Callbacks) *Client {
	if options.InitialBackoff <= 0 {
		options.InitialBackoff = 1 * time.Second
	}
	if options.MaxBackoff <= 0 {
		options.MaxBackoff = 30 * time.Second
	}
	return &Client{
		options:   options,
		callbacks: callbacks,
		done:      make(chan struct{}),
	}
}

// Connect starts the connection loop. Calling it more than once is a no-op.
func (c *Client) Connect() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.run()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Send enqueues one text frame for the writer goroutine.
func (c *Client) Send(data []byte) (err error) {
	c.mutex.Lock()
	writer := c.writer
	c.mutex.Unlock()
	if writer == nil {
		return ErrNotConnected
	}
	defer func() {
		// The writer channel is closed when the connection drops; a
		// racing send is reported as not connected.
		if recover() != nil {
			err = ErrNotConnected
		}
	}()
	writer <- Message{Type: websocket.TextMessage, Data: data}
	return nil
}

// Close initiates the websocket close handshake and suppresses any further
// reconnection. The closure itself completes asynchronously when the peer
// acknowledges, or when the close timeout elapses.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.mutex.Lock()
	conn := c.conn
	c.mutex.Unlock()
	if conn != nil {
		deadline := time.Now().Add(closeTimeout)
		err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		if err != nil {
			_ = conn.Close()
		}
	}
}

// Done is closed once the connection loop has fully stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) run() {
	defer close(c.done)

	backoff := c.options.InitialBackoff
	for !c.closed.Load() {
		conn, resp, err := websocket.DefaultDialer.Dial(c.options.URL, c.options.Headers)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			slog.Debug("Connection attempt failed", "url", c.options.URL, "error", err)
			if !c.options.Reconnect || c.closed.Load() {
				return
			}
			if !c.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, c.options.MaxBackoff)
			continue
		}
		backoff = c.options.InitialBackoff

		c.attach(conn)
		if c.callbacks.OnReady != nil {
			c.callbacks.OnReady()
		}

		c.pump(conn)

		c.detach(conn)
		if c.callbacks.OnClose != nil {
			c.callbacks.OnClose()
		}

		if c.closed.Load() || !c.options.Reconnect {
			return
		}
		if !c.sleep(backoff) {
			return
		}
	}
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mutex.Lock()
	c.conn = conn
	c.writer = make(chan Message, bufferSize)
	c.mutex.Unlock()
	c.connected.Store(true)
}

func (c *Client) detach(conn *websocket.Conn) {
	c.connected.Store(false)
	c.mutex.Lock()
	if c.conn == conn {
		c.conn = nil
		close(c.writer)
		c.writer = nil
	}
	c.mutex.Unlock()
	_ = conn.Close()
}

// pump reads frames until the connection fails and feeds the writer channel
// in between. It returns once the read loop has ended.
func (c *Client) pump(conn *websocket.Conn) {
	c.mutex.Lock()
	writer := c.writer
	c.mutex.Unlock()

	readFailed := make(chan struct{})
	go func() {
		defer close(readFailed)
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if c.callbacks.OnMessage != nil {
				c.callbacks.OnMessage(msgType, data)
			}
		}
	}()

	for {
		select {
		case <-readFailed:
			return
		case msg := <-writer:
			if err := conn.WriteMessage(msg.Type, msg.Data); err != nil {
				<-readFailed
				return
			}
		}
	}
}

func (c *Client) sleep(d time.Duration) bool {
	time.Sleep(d)
	return !c.closed.Load()
}
