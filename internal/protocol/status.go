package protocol

// GoalStatus is the actionlib goal state enumeration.
type GoalStatus int

const (
	GoalStatusPending GoalStatus = iota
	GoalStatusActive
	GoalStatusPreempted
	GoalStatusSucceeded
	GoalStatusAborted
	GoalStatusRejected
	GoalStatusPreempting
	GoalStatusRecalling
	GoalStatusRecalled
	GoalStatusLost
)

var goalStatusNames = map[GoalStatus]string{
	GoalStatusPending:    "PENDING",
	GoalStatusActive:     "ACTIVE",
	GoalStatusPreempted:  "PREEMPTED",
	GoalStatusSucceeded:  "SUCCEEDED",
	GoalStatusAborted:    "ABORTED",
	GoalStatusRejected:   "REJECTED",
	GoalStatusPreempting: "PREEMPTING",
	GoalStatusRecalling:  "RECALLING",
	GoalStatusRecalled:   "RECALLED",
	GoalStatusLost:       "LOST",
}

func (s GoalStatus) String() string {
	name, ok := goalStatusNames[s]
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// IsActive reports whether the status is one of the in-flight states. A
// goal with a received result is finished only once its status has left
// these states.
func (s GoalStatus) IsActive() bool {
	switch s {
	case GoalStatusPending, GoalStatusActive, GoalStatusPreempting, GoalStatusRecalling:
		return true
	default:
		return false
	}
}
