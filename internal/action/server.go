// Package action exposes the goal supervisor as a long-running operation:
// submit and wait for the outcome, watch feedback, cancel.
package action

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"map-annotator/internal/navigator"
	"map-annotator/internal/publisher"
	"map-annotator/internal/supervisor"
)

// cancelGrace bounds how long Submit waits for the outcome of a goal it
// cancelled because the caller went away.
const cancelGrace = 5 * time.Second

type Server struct {
	sup      *supervisor.Supervisor
	logger   *slog.Logger
	active   atomic.Bool
	feedback *publisher.Latch[supervisor.Feedback]
	outcomes *publisher.Latch[supervisor.Outcome]
}

// New builds the supervisor with the server registered as an observer.
func New(poses supervisor.PoseSource, nav navigator.Navigator, opts supervisor.Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		logger:   opts.Logger.With("component", "action"),
		feedback: publisher.NewLatch[supervisor.Feedback](),
		outcomes: publisher.NewLatch[supervisor.Outcome](),
	}
	opts.Observers = append(append([]supervisor.Observer(nil), opts.Observers...), s)
	s.sup = supervisor.New(poses, nav, opts)
	return s
}

// Run drives the supervisor until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	defer s.feedback.Close()
	defer s.outcomes.Close()
	return s.sup.Run(ctx)
}

// Send submits req without waiting for the outcome.
func (s *Server) Send(ctx context.Context, req supervisor.GoalRequest) (*supervisor.Goal, error) {
	return s.sup.Submit(ctx, req)
}

// Submit blocks until req reaches an outcome. If ctx ends first the goal is
// cancelled and its Preempted outcome is returned with a nil error.
func (s *Server) Submit(ctx context.Context, req supervisor.GoalRequest) (supervisor.Outcome, error) {
	g, err := s.sup.Submit(ctx, req)
	if err != nil {
		return supervisor.Outcome{}, err
	}
	out, err := g.Wait(ctx)
	if err == nil || errors.Is(err, supervisor.ErrStopped) {
		return out, err
	}

	s.logger.Info("caller left, cancelling goal", "goal_id", g.ID, "name", g.Name, "error", err)
	graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelGrace)
	defer cancel()
	if perr := s.sup.Preempt(graceCtx, g.ID); perr != nil {
		return supervisor.Outcome{}, perr
	}
	return g.Wait(graceCtx)
}

// Cancel preempts the live goal. It is a no-op while idle.
func (s *Server) Cancel(ctx context.Context) error {
	return s.sup.Preempt(ctx, "")
}

// CancelGoal preempts goalID if it is still the live goal.
func (s *Server) CancelGoal(ctx context.Context, goalID string) error {
	return s.sup.Preempt(ctx, goalID)
}

// IsActive reports whether a goal was live at the last supervisor event.
func (s *Server) IsActive() bool { return s.active.Load() }

// Status asks the supervisor for its current state.
func (s *Server) Status(ctx context.Context) (supervisor.Snapshot, error) {
	return s.sup.Snapshot(ctx)
}

// Subscribe streams feedback, starting with the most recent one.
func (s *Server) Subscribe() (<-chan supervisor.Feedback, func()) {
	return s.feedback.Subscribe()
}

// SubscribeOutcomes streams outcomes, starting with the most recent one.
func (s *Server) SubscribeOutcomes() (<-chan supervisor.Outcome, func()) {
	return s.outcomes.Subscribe()
}

func (s *Server) GoalFeedback(fb supervisor.Feedback) {
	s.active.Store(fb.State != supervisor.StateDone && fb.State != supervisor.StateIdle)
	s.feedback.Publish(fb)
}

func (s *Server) GoalFinished(out supervisor.Outcome) {
	s.active.Store(false)
	s.outcomes.Publish(out)
}
