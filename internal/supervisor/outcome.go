package supervisor

import (
	"fmt"
	"time"

	"map-annotator/internal/navigator"
)

// PreemptedMessage is the outcome message for goals cancelled by this
// process, whether by an explicit cancel or a newer goal.
const PreemptedMessage = "GoToLocation was preempted"

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateActive
	StateTerminating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequesting:
		return "REQUESTING"
	case StateActive:
		return "ACTIVE"
	case StateTerminating:
		return "TERMINATING"
	case StateDone:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, s, StateIdle, StateDone, "state")
}

type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	Aborted
	Preempted
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "SUCCEEDED"
	case Aborted:
		return "ABORTED"
	case Preempted:
		return "PREEMPTED"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *OutcomeKind) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, k, Succeeded, Preempted, "outcome")
}

// Reason is the internal cause behind an outcome. Several reasons collapse
// into the same OutcomeKind but are kept apart for diagnostics.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNotFound
	ReasonSendFailed
	ReasonNavigationFailed
	ReasonNavigatorPreempted
	ReasonStatusUnavailable
	ReasonCancelRequested
	ReasonSuperseded
	ReasonShutdown
)

var reasonNames = map[Reason]string{
	ReasonNone:               "none",
	ReasonNotFound:           "not_found",
	ReasonSendFailed:         "send_failed",
	ReasonNavigationFailed:   "navigation_failed",
	ReasonNavigatorPreempted: "navigator_preempted",
	ReasonStatusUnavailable:  "status_unavailable",
	ReasonCancelRequested:    "cancel_requested",
	ReasonSuperseded:         "superseded",
	ReasonShutdown:           "shutdown",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Reason) UnmarshalText(b []byte) error {
	return unmarshalEnum(b, r, ReasonNone, ReasonShutdown, "reason")
}

// unmarshalEnum finds the value in [first, last] whose String matches b.
func unmarshalEnum[T interface {
	~int
	String() string
}](b []byte, dst *T, first, last T, what string) error {
	for v := first; v <= last; v++ {
		if v.String() == string(b) {
			*dst = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, b)
}

type GoalRequest struct {
	Name string `json:"name"`
}

// Outcome is the single terminal result of a goal request.
type Outcome struct {
	GoalID      string           `json:"goal_id"`
	Name        string           `json:"name"`
	Kind        OutcomeKind      `json:"outcome"`
	Message     string           `json:"message,omitempty"`
	Reason      Reason           `json:"reason"`
	FinalStatus navigator.Status `json:"navigator_status"`
	Started     time.Time        `json:"started"`
	Finished    time.Time        `json:"finished"`
}

func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Feedback describes the in-flight goal each time its state or navigator
// status changes.
type Feedback struct {
	GoalID string           `json:"goal_id"`
	Name   string           `json:"name"`
	State  State            `json:"state"`
	Status navigator.Status `json:"navigator_status"`
}

// Observer receives supervisor events on the supervisor goroutine.
// Implementations must not block.
type Observer interface {
	GoalFeedback(Feedback)
	GoalFinished(Outcome)
}

func notFoundMessage(name string) string {
	return fmt.Sprintf("no pose named %s", name)
}

func navigationFailedMessage(name string) string {
	return fmt.Sprintf("unable to navigate to %s", name)
}
