package extract

import "fmt"

// State names the step of the extraction a log line or outcome belongs to.
type State int

const (
	NavigatingUser State = iota
	SelectingMonth
	WaitingForList
	EnumeratingActivities
	OpeningDetail
	ReadingDetail
	ClosingDetail
	MonthExhausted
	UserFailed
)

var stateNames = [...]string{
	NavigatingUser:        "navigating-user",
	SelectingMonth:        "selecting-month",
	WaitingForList:        "waiting-for-list",
	EnumeratingActivities: "enumerating-activities",
	OpeningDetail:         "opening-detail",
	ReadingDetail:         "reading-detail",
	ClosingDetail:         "closing-detail",
	MonthExhausted:        "month-exhausted",
	UserFailed:            "user-failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

type Status int

const (
	StatusOK Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of one extraction step. Skipped means the step's unit of work
// (an activity, a month) is dropped and extraction moves on, Failed means the whole user
// cannot continue.
type Outcome[T any] struct {
	Value  T
	Status Status
	State  State
	Reason error
}

func OK[T any](state State, value T) Outcome[T] {
	return Outcome[T]{Value: value, Status: StatusOK, State: state}
}

func Skipped[T any](state State, reason error) Outcome[T] {
	return Outcome[T]{Status: StatusSkipped, State: state, Reason: reason}
}

func Failed[T any](state State, reason error) Outcome[T] {
	return Outcome[T]{Status: StatusFailed, State: state, Reason: reason}
}

func (o Outcome[T]) OK() bool {
	return o.Status == StatusOK
}
