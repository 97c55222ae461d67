package supervisor

import (
	"context"
	"time"

	"map-annotator/internal/navigator"
	"map-annotator/internal/pose"
)

// attempt is the single live navigation goal.
type attempt struct {
	id       string
	name     string
	target   pose.Pose
	handle   navigator.Handle
	status   navigator.Status
	reply    chan<- Outcome
	started  time.Time
	failures int
	stopPoll context.CancelFunc
}

func (a *attempt) stopPolling() {
	if a.stopPoll != nil {
		a.stopPoll()
	}
}

func (a *attempt) feedback(st State) Feedback {
	return Feedback{GoalID: a.id, Name: a.name, State: st, Status: a.status}
}

// event is anything the Run goroutine consumes.
type event interface {
	apply(ctx context.Context, s *Supervisor)
}

type acceptEvent struct {
	req    GoalRequest
	goalID string
	reply  chan Outcome
}

func (e acceptEvent) apply(ctx context.Context, s *Supervisor) { s.accept(ctx, e) }

type preemptEvent struct {
	goalID string
}

func (e preemptEvent) apply(ctx context.Context, s *Supervisor) { s.cancel(ctx, e) }

type statusEvent struct {
	goalID string
	status navigator.Status
	err    error
}

func (e statusEvent) apply(ctx context.Context, s *Supervisor) { s.observe(ctx, e) }

type queryEvent struct {
	reply chan Snapshot
}

func (e queryEvent) apply(_ context.Context, s *Supervisor) { e.reply <- s.snapshot() }
