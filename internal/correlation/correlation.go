// Package correlation tracks outstanding request IDs and completes each one
// exactly once when its reply arrives.
package correlation

import (
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrUnmatchedReply reports a reply whose ID has no pending entry. It
	// indicates a bridge-side bug or a race with reconnection, so it is
	// surfaced to the caller instead of being thrown into unrelated code.
	ErrUnmatchedReply = errors.New("no pending request matches reply ID")
	// ErrDuplicateID reports a request ID registered twice.
	ErrDuplicateID = errors.New("request ID already pending")
)

// Callback receives the values payload of a reply.
type Callback func(values map[string]any)

type pendingCall struct {
	onSuccess Callback
	onError   Callback
}

// Table maps request IDs to pending completions. Each entry is consumed and
// removed by exactly one Resolve; an entry whose reply never arrives stays
// until the owning connection is discarded.
type Table struct {
	pending *xsync.MapOf[string, pendingCall]
}

func NewTable() *Table {
	return &Table{
		pending: xsync.NewMapOf[string, pendingCall](),
	}
}

func (t *Table) Register(id string, onSuccess, onError Callback) error {
	if _, loaded := t.pending.LoadOrStore(id, pendingCall{onSuccess: onSuccess, onError: onError}); loaded {
		return ErrDuplicateID
	}
	return nil
}

// Resolve removes the entry for id and invokes exactly one of its callbacks.
// ok selects the success side; a false result routes values to the error
// side. An unknown id returns ErrUnmatchedReply.
func (t *Table) Resolve(id string, values map[string]any, ok bool) error {
	call, loaded := t.pending.LoadAndDelete(id)
	if !loaded {
		return ErrUnmatchedReply
	}
	if ok {
		if call.onSuccess != nil {
			call.onSuccess(values)
		}
	} else {
		if call.onError != nil {
			call.onError(values)
		}
	}
	return nil
}

// Len reports the number of outstanding requests.
func (t *Table) Len() int {
	return t.pending.Size()
}

type pendingGoal struct {
	onResult   Callback
	onFeedback Callback
	onError    Callback
}

// ActionTable is the action-scoped variant of Table. Feedback deliveries
// look up without removing, since a goal receives any number of feedback
// messages before its single result.
type ActionTable struct {
	pending *xsync.MapOf[string, pendingGoal]
}

func NewActionTable() *ActionTable {
	return &ActionTable{
		pending: xsync.NewMapOf[string, pendingGoal](),
	}
}

func (t *ActionTable) Register(id string, onResult, onFeedback, onError Callback) error {
	goal := pendingGoal{onResult: onResult, onFeedback: onFeedback, onError: onError}
	if _, loaded := t.pending.LoadOrStore(id, goal); loaded {
		return ErrDuplicateID
	}
	return nil
}

// Feedback delivers intermediate values for id. A missing entry is skipped
// silently; the bridge may deliver feedback after a client-side timeout
// already abandoned the goal.
func (t *ActionTable) Feedback(id string, values map[string]any) {
	goal, loaded := t.pending.Load(id)
	if !loaded {
		return
	}
	if goal.onFeedback != nil {
		goal.onFeedback(values)
	}
}

func (t *ActionTable) Resolve(id string, values map[string]any, ok bool) error {
	goal, loaded := t.pending.LoadAndDelete(id)
	if !loaded {
		return ErrUnmatchedReply
	}
	if ok {
		if goal.onResult != nil {
			goal.onResult(values)
		}
	} else {
		if goal.onError != nil {
			goal.onError(values)
		}
	}
	return nil
}

func (t *ActionTable) Len() int {
	return t.pending.Size()
}
