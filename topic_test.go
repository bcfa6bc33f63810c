package rosbridge_test

import (
	"testing"
	"time"

	rosbridge "github.com/USA-RedDragon/rosbridge-client"
)

func TestSubscribeReceivesPublications(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)
	ros := bridge.connect()

	topic, err := rosbridge.NewTopic(ros, "/chatter", "std_msgs/String", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	messages := make(chan rosbridge.Message, 1)
	topic.Subscribe(func(msg rosbridge.Message) {
		messages <- msg
	})

	sent := bridge.expect("subscribe")
	if sent["topic"] != "/chatter" || sent["type"] != "std_msgs/String" {
		t.Errorf("unexpected subscribe envelope: %v", sent)
	}
	if sent["compression"] != "none" {
		t.Errorf("unexpected compression: %v", sent["compression"])
	}

	bridge.publish("/chatter", map[string]any{"data": "hello"})

	select {
	case msg := <-messages:
		if msg["data"] != "hello" {
			t.Errorf("unexpected message: %v", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the publication")
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)
	ros := bridge.connect()

	topic, _ := rosbridge.NewTopic(ros, "/chatter", "std_msgs/String", nil)
	topic.Subscribe(func(rosbridge.Message) {})
	topic.Subscribe(func(rosbridge.Message) {})

	bridge.expect("subscribe")
	bridge.expectNone("subscribe", 200*time.Millisecond)
}

func TestResubscribeUsesFreshID(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)
	ros := bridge.connect()

	topic, _ := rosbridge.NewTopic(ros, "/chatter", "std_msgs/String", nil)

	topic.Subscribe(func(rosbridge.Message) {})
	first := bridge.expect("subscribe")

	topic.Unsubscribe()
	unsub := bridge.expect("unsubscribe")
	if unsub["id"] != first["id"] {
		t.Errorf("unsubscribe must reuse the subscription id: got %v, want %v", unsub["id"], first["id"])
	}

	topic.Subscribe(func(rosbridge.Message) {})
	second := bridge.expect("subscribe")
	if second["id"] == first["id"] {
		t.Errorf("a new subscription must not reuse id %v", first["id"])
	}
}

func TestReconnectRestoresSubscription(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)

	options := bridge.options()
	options.DisableReconnect = false
	options.InitialBackoff = 50 * time.Millisecond
	options.MaxBackoff = 200 * time.Millisecond
	ros := rosbridge.NewRos(options)
	if err := ros.Run(5 * time.Second); err != nil {
		t.Fatalf("failed to connect to the fake bridge: %v", err)
	}
	t.Cleanup(ros.Close)

	topic, _ := rosbridge.NewTopic(ros, "/chatter", "std_msgs/String", nil)
	topic.Subscribe(func(rosbridge.Message) {})
	first := bridge.expect("subscribe")

	bridge.dropConn()

	second := bridge.expect("subscribe")
	if second["topic"] != "/chatter" {
		t.Errorf("unexpected resubscribe envelope: %v", second)
	}
	if second["id"] == first["id"] {
		t.Errorf("a resubscription must not reuse id %v", first["id"])
	}
}

func TestPublishAdvertisesFirst(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)
	ros := bridge.connect()

	topic, _ := rosbridge.NewTopic(ros, "/cmd_vel", "geometry_msgs/Twist", nil)
	topic.Publish(rosbridge.Message{"linear": map[string]any{"x": 0.5}})

	advertised := bridge.expect("advertise")
	if advertised["topic"] != "/cmd_vel" || advertised["type"] != "geometry_msgs/Twist" {
		t.Errorf("unexpected advertise envelope: %v", advertised)
	}

	published := bridge.expect("publish")
	if published["topic"] != "/cmd_vel" {
		t.Errorf("unexpected publish envelope: %v", published)
	}
	msg, _ := published["msg"].(map[string]any)
	linear, _ := msg["linear"].(map[string]any)
	if linear["x"] != 0.5 {
		t.Errorf("unexpected payload: %v", published["msg"])
	}
}

func TestAdvertiseIsIdempotent(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)
	ros := bridge.connect()

	topic, _ := rosbridge.NewTopic(ros, "/cmd_vel", "geometry_msgs/Twist", nil)
	topic.Advertise()
	topic.Advertise()

	bridge.expect("advertise")
	bridge.expectNone("advertise", 200*time.Millisecond)

	if !topic.IsAdvertised() {
		t.Error("expected the topic to be advertised")
	}

	topic.Unadvertise()
	bridge.expect("unadvertise")
	if topic.IsAdvertised() {
		t.Error("expected the topic to be unadvertised")
	}
}

func TestNewTopicRejectsUnknownCompression(t *testing.T) {
	t.Parallel()
	bridge := newFakeBridge(t)
	ros := bridge.connect()

	_, err := rosbridge.NewTopic(ros, "/chatter", "std_msgs/String", &rosbridge.TopicOptions{
		Compression: "gzip",
	})
	if err == nil {
		t.Error("expected an error for unsupported compression")
	}
}
