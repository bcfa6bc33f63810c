package protocol_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/USA-RedDragon/rosbridge-client/internal/correlation"
	"github.com/USA-RedDragon/rosbridge-client/internal/events"
	"github.com/USA-RedDragon/rosbridge-client/internal/protocol"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	original := protocol.Message{
		"op":    protocol.OpPublish,
		"id":    "publish:/chatter:1",
		"topic": "/chatter",
		"msg": map[string]any{
			"data": "hi",
			"header": map[string]any{
				"seq":      float64(4),
				"frame_id": "base_link",
				"stamp":    map[string]any{"secs": float64(10), "nsecs": float64(500)},
			},
		},
		"latch": false,
	}

	data, err := protocol.Encode(original)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := protocol.Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(original, decoded) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", decoded, original)
	}
}

func TestDecodeMissingOp(t *testing.T) {
	t.Parallel()
	_, err := protocol.Decode([]byte(`{"topic":"/chatter"}`))
	if !errors.Is(err, protocol.ErrMissingOp) {
		t.Errorf("expected ErrMissingOp, got %v", err)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	t.Parallel()
	if _, err := protocol.Decode([]byte{0x1f, 0x8b, 0x00}); err == nil {
		t.Error("expected decode error for non-JSON payload")
	}
}

func newDispatcher() (*protocol.Dispatcher, *events.Emitter, *correlation.Table, *correlation.ActionTable) {
	emitter := events.NewEmitter()
	services := correlation.NewTable()
	actions := correlation.NewActionTable()
	return protocol.NewDispatcher(emitter, services, actions), emitter, services, actions
}

func TestDispatchPublish(t *testing.T) {
	t.Parallel()
	dispatcher, emitter, _, _ := newDispatcher()

	var got map[string]any
	emitter.On("/chatter", events.NewListener(func(payload any) {
		got, _ = payload.(map[string]any)
	}))

	err := dispatcher.Dispatch(protocol.Message{
		"op":    protocol.OpPublish,
		"topic": "/chatter",
		"msg":   map[string]any{"data": "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["data"] != "hi" {
		t.Errorf("expected msg body, got %v", got)
	}
}

func TestDispatchServiceResponse(t *testing.T) {
	t.Parallel()
	dispatcher, _, services, _ := newDispatcher()

	var got map[string]any
	_ = services.Register("call_service:/add:1", func(values map[string]any) { got = values }, nil)

	err := dispatcher.Dispatch(protocol.Message{
		"op":      protocol.OpServiceResponse,
		"id":      "call_service:/add:1",
		"service": "/add",
		"values":  map[string]any{"sum": float64(42)},
		"result":  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["sum"] != float64(42) {
		t.Errorf("expected sum 42, got %v", got)
	}
}

func TestDispatchServiceResponseFailure(t *testing.T) {
	t.Parallel()
	dispatcher, _, services, _ := newDispatcher()

	var got map[string]any
	_ = services.Register("id", nil, func(values map[string]any) { got = values })

	err := dispatcher.Dispatch(protocol.Message{
		"op":     protocol.OpServiceResponse,
		"id":     "id",
		"values": map[string]any{"error": "bad"},
		"result": false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["error"] != "bad" {
		t.Errorf("expected error values, got %v", got)
	}
}

func TestDispatchUnmatchedServiceResponse(t *testing.T) {
	t.Parallel()
	dispatcher, _, _, _ := newDispatcher()

	err := dispatcher.Dispatch(protocol.Message{
		"op": protocol.OpServiceResponse,
		"id": "never-sent",
	})
	if !errors.Is(err, correlation.ErrUnmatchedReply) {
		t.Errorf("expected ErrUnmatchedReply, got %v", err)
	}
}

func TestDispatchInboundServiceRequest(t *testing.T) {
	t.Parallel()
	dispatcher, emitter, _, _ := newDispatcher()

	var got map[string]any
	emitter.On("/add", events.NewListener(func(payload any) {
		got, _ = payload.(map[string]any)
	}))

	err := dispatcher.Dispatch(protocol.Message{
		"op":      protocol.OpCallService,
		"id":      "remote:1",
		"service": "/add",
		"args":    map[string]any{"a": float64(2), "b": float64(40)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "remote:1" {
		t.Errorf("expected whole envelope, got %v", got)
	}
}

func TestDispatchActionFeedbackWithoutEntry(t *testing.T) {
	t.Parallel()
	dispatcher, _, _, _ := newDispatcher()

	// Feedback after abandonment must not error out.
	err := dispatcher.Dispatch(protocol.Message{
		"op":     protocol.OpActionFeedback,
		"id":     "abandoned",
		"action": "/fibonacci",
		"values": map[string]any{"sequence": []any{float64(0), float64(1)}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatchActionResultMapsStatus(t *testing.T) {
	t.Parallel()
	dispatcher, _, _, actions := newDispatcher()

	var got map[string]any
	_ = actions.Register("goal", func(values map[string]any) { got = values }, nil, nil)

	err := dispatcher.Dispatch(protocol.Message{
		"op":     protocol.OpActionResult,
		"id":     "goal",
		"action": "/fibonacci",
		"values": map[string]any{"sequence": []any{float64(0), float64(1), float64(1)}},
		"status": float64(3),
		"result": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["status"] != "SUCCEEDED" {
		t.Errorf("expected SUCCEEDED, got %v", got["status"])
	}
	if _, ok := got["values"].(map[string]any); !ok {
		t.Errorf("expected nested values, got %v", got["values"])
	}
}

func TestDispatchUnknownOp(t *testing.T) {
	t.Parallel()
	dispatcher, _, _, _ := newDispatcher()

	err := dispatcher.Dispatch(protocol.Message{"op": "bogus"})
	var unhandled *protocol.UnhandledOperationError
	if !errors.As(err, &unhandled) {
		t.Fatalf("expected UnhandledOperationError, got %v", err)
	}
	if unhandled.Op != "bogus" {
		t.Errorf("expected op bogus, got %q", unhandled.Op)
	}
}

func TestDispatchUnsupportedFrameIsDropped(t *testing.T) {
	t.Parallel()
	dispatcher, _, _, _ := newDispatcher()

	for _, op := range []string{protocol.OpFragment, protocol.OpPNG} {
		if err := dispatcher.Dispatch(protocol.Message{"op": op}); err != nil {
			t.Errorf("expected %q frames to be dropped, got %v", op, err)
		}
	}
}

func TestGoalStatusNames(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status protocol.GoalStatus
		name   string
		active bool
	}{
		{protocol.GoalStatusPending, "PENDING", true},
		{protocol.GoalStatusActive, "ACTIVE", true},
		{protocol.GoalStatusPreempted, "PREEMPTED", false},
		{protocol.GoalStatusSucceeded, "SUCCEEDED", false},
		{protocol.GoalStatusAborted, "ABORTED", false},
		{protocol.GoalStatusRejected, "REJECTED", false},
		{protocol.GoalStatusPreempting, "PREEMPTING", true},
		{protocol.GoalStatusRecalling, "RECALLING", true},
		{protocol.GoalStatusRecalled, "RECALLED", false},
		{protocol.GoalStatusLost, "LOST", false},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.status.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.status.IsActive(); got != tt.active {
				t.Errorf("IsActive() = %v, want %v", got, tt.active)
			}
		})
	}
}
