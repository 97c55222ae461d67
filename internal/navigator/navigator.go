// Package navigator defines the contract with the robot's navigation stack
// and the goal status vocabulary it reports in.
package navigator

import (
	"context"
	"errors"
	"fmt"

	"map-annotator/internal/pose"
)

var ErrUnknownHandle = errors.New("unknown navigation handle")

// Handle identifies a goal sent to the navigator.
type Handle string

type Status int

const (
	Pending Status = iota
	Active
	Succeeded
	Recalled
	Rejected
	Preempted
	Aborted
	Lost
)

var statusNames = map[Status]string{
	Pending:   "PENDING",
	Active:    "ACTIVE",
	Succeeded: "SUCCEEDED",
	Recalled:  "RECALLED",
	Rejected:  "REJECTED",
	Preempted: "PREEMPTED",
	Aborted:   "ABORTED",
	Lost:      "LOST",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for st, name := range statusNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown navigator status %q", b)
}

// IsTerminal reports whether the navigator will not report anything else for
// the goal.
func (s Status) IsTerminal() bool {
	switch s {
	case Succeeded, Recalled, Rejected, Preempted, Aborted, Lost:
		return true
	}
	return false
}

// IsSuccess is true only for Succeeded; every other terminal status is a
// navigation failure.
func (s Status) IsSuccess() bool { return s == Succeeded }

// Navigator is the navigation subsystem. Implementations must be safe for
// concurrent use.
type Navigator interface {
	SendGoal(ctx context.Context, target pose.Pose) (Handle, error)
	Cancel(ctx context.Context, h Handle) error
	Status(ctx context.Context, h Handle) (Status, error)
}

