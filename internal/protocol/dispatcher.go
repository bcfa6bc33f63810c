package protocol

import (
	"context"
	"log/slog"

	"github.com/USA-RedDragon/rosbridge-client/internal/correlation"
	"github.com/USA-RedDragon/rosbridge-client/internal/events"
)

// Dispatcher routes one decoded envelope to exactly one consumer. The set of
// operations is closed, so routing is a single exhaustive switch instead of
// a mutable handler table.
type Dispatcher struct {
	emitter  *events.Emitter
	services *correlation.Table
	actions  *correlation.ActionTable
}

func NewDispatcher(emitter *events.Emitter, services *correlation.Table, actions *correlation.ActionTable) *Dispatcher {
	return &Dispatcher{
		emitter:  emitter,
		services: services,
		actions:  actions,
	}
}

// Dispatch routes msg by its operation tag. Errors are fatal to the current
// message only; the caller logs them and keeps processing the stream.
func (d *Dispatcher) Dispatch(msg Message) error {
	switch msg.Op() {
	case OpPublish:
		d.emitter.Emit(msg.StringField("topic"), msg.MapField("msg"))
		return nil
	case OpServiceResponse:
		return d.services.Resolve(msg.ID(), d.replyValues(msg), resultOK(msg))
	case OpCallService:
		// Inbound request: this client is the server for the service.
		d.emitter.Emit(msg.StringField("service"), map[string]any(msg))
		return nil
	case OpSendActionGoal, OpCancelActionGoal:
		// Inbound goal traffic for a locally provided action.
		d.emitter.Emit(msg.StringField("action"), map[string]any(msg))
		return nil
	case OpActionFeedback:
		d.actions.Feedback(msg.ID(), msg.MapField("values"))
		return nil
	case OpActionResult:
		status := GoalStatus(numericField(msg, "status"))
		values := map[string]any{
			"status": status.String(),
			"values": msg.MapField("values"),
		}
		return d.actions.Resolve(msg.ID(), values, resultOK(msg))
	case OpFragment, OpPNG:
		// Fragment reassembly and png decompression are not implemented;
		// the frame is dropped rather than treated as a protocol violation.
		slog.Warn("Dropping unsupported frame", "op", msg.Op())
		return nil
	case OpStatus:
		slog.Log(context.Background(), statusLevel(msg.StringField("level")), "Bridge status message",
			"level", msg.StringField("level"), "msg", msg.StringField("msg"))
		d.emitter.Emit(OpStatus, map[string]any(msg))
		return nil
	default:
		return &UnhandledOperationError{Op: msg.Op()}
	}
}

// replyValues wraps the values payload of a service response. The error
// side receives the raw values; the success side receives them unchanged as
// the response body.
func (d *Dispatcher) replyValues(msg Message) map[string]any {
	return msg.MapField("values")
}

// resultOK reports whether a reply carries a successful result. A missing
// result field counts as success; only an explicit false routes to the
// error side.
func resultOK(msg Message) bool {
	result, present := msg["result"].(bool)
	return !present || result
}

// statusLevel maps a rosbridge status level name to a slog level. Unknown
// names log as warnings.
func statusLevel(level string) slog.Level {
	switch level {
	case "info":
		return slog.LevelInfo
	case "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

func numericField(msg Message, name string) int {
	switch value := msg[name].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return 0
	}
}
