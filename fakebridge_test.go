package rosbridge_test

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	rosbridge "github.com/USA-RedDragon/rosbridge-client"
	"github.com/gorilla/websocket"
)

// fakeBridge is an in-process rosbridge server for tests. It records every
// inbound envelope and lets tests push envelopes to the client, either
// directly or from an auto-responder installed with respond.
type fakeBridge struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mutex   sync.Mutex
	conn    *websocket.Conn
	handler func(envelope map[string]any)

	received chan map[string]any
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	bridge := &fakeBridge{
		t:        t,
		received: make(chan map[string]any, 64),
	}
	bridge.server = httptest.NewServer(http.HandlerFunc(bridge.serve))
	t.Cleanup(bridge.server.Close)
	return bridge
}

// respond installs an auto-responder invoked for every inbound envelope.
func (b *fakeBridge) respond(handler func(envelope map[string]any)) {
	b.mutex.Lock()
	b.handler = handler
	b.mutex.Unlock()
}

func (b *fakeBridge) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mutex.Lock()
	b.conn = conn
	b.mutex.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var envelope map[string]any
		if err := json.Unmarshal(data, &envelope); err != nil {
			b.t.Errorf("malformed frame from client: %v", err)
			continue
		}
		b.mutex.Lock()
		handler := b.handler
		b.mutex.Unlock()
		if handler != nil {
			handler(envelope)
		}
		b.received <- envelope
	}
}

// send pushes one envelope to the connected client.
func (b *fakeBridge) send(envelope map[string]any) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.conn == nil {
		b.t.Errorf("send before a client connected")
		return
	}
	if err := b.conn.WriteJSON(envelope); err != nil {
		b.t.Errorf("failed to write to client: %v", err)
	}
}

// sendBinary pushes one binary frame to the connected client.
func (b *fakeBridge) sendBinary(data []byte) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.conn == nil {
		b.t.Errorf("send before a client connected")
		return
	}
	if err := b.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		b.t.Errorf("failed to write to client: %v", err)
	}
}

// dropConn closes the server side of the current connection, simulating a
// network failure.
func (b *fakeBridge) dropConn() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// publish pushes a topic publication to the client.
func (b *fakeBridge) publish(topic string, msg map[string]any) {
	b.send(map[string]any{"op": "publish", "topic": topic, "msg": msg})
}

// expect waits for the next inbound envelope with the given op, discarding
// others.
func (b *fakeBridge) expect(op string) map[string]any {
	b.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case envelope := <-b.received:
			if envelope["op"] == op {
				return envelope
			}
		case <-deadline:
			b.t.Fatalf("timed out waiting for a %q envelope", op)
			return nil
		}
	}
}

// expectPublish waits for the next publication on the given topic and
// returns its msg payload.
func (b *fakeBridge) expectPublish(topic string) map[string]any {
	b.t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case envelope := <-b.received:
			if envelope["op"] == "publish" && envelope["topic"] == topic {
				msg, _ := envelope["msg"].(map[string]any)
				return msg
			}
		case <-deadline:
			b.t.Fatalf("timed out waiting for a publication on %q", topic)
			return nil
		}
	}
}

// expectNone asserts that no envelope with the given op arrives within the
// window.
func (b *fakeBridge) expectNone(op string, window time.Duration) {
	b.t.Helper()
	deadline := time.After(window)
	for {
		select {
		case envelope := <-b.received:
			if envelope["op"] == op {
				b.t.Fatalf("unexpected %q envelope: %v", op, envelope)
			}
		case <-deadline:
			return
		}
	}
}

func (b *fakeBridge) options() rosbridge.Options {
	b.t.Helper()
	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(b.server.URL, "http://"))
	if err != nil {
		b.t.Fatalf("failed to parse test server address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		b.t.Fatalf("failed to parse test server port: %v", err)
	}
	return rosbridge.Options{
		Host:             host,
		Port:             uint16(port),
		DisableReconnect: true,
	}
}

// connect dials the fake bridge and waits until the connection is ready.
func (b *fakeBridge) connect() *rosbridge.Ros {
	b.t.Helper()
	ros := rosbridge.NewRos(b.options())
	if err := ros.Run(5 * time.Second); err != nil {
		b.t.Fatalf("failed to connect to the fake bridge: %v", err)
	}
	b.t.Cleanup(ros.Close)
	return ros
}
