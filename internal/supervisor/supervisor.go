// Package supervisor turns named-pose goal requests into navigator goals and
// follows each one to exactly one outcome.
//
// All supervisor state is owned by the goroutine running Run. Submit, Preempt
// and Snapshot only enqueue events, so at most one navigation attempt can
// exist at a time regardless of how many callers race.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"map-annotator/internal/clock"
	"map-annotator/internal/navigator"
	"map-annotator/internal/pose"
)

// ErrStopped is returned once Run has exited.
var ErrStopped = errors.New("goal supervisor stopped")

const (
	DefaultPollInterval      = 100 * time.Millisecond
	MaxPollInterval          = 250 * time.Millisecond
	defaultStatusTimeout     = 500 * time.Millisecond
	defaultCommandTimeout    = 2 * time.Second
	defaultMaxStatusFailures = 20
	defaultQueueSize         = 16
)

// PoseSource resolves goal names. *registry.Registry satisfies it.
type PoseSource interface {
	Lookup(name string) (pose.Pose, error)
}

type Options struct {
	// PollInterval is the navigator status cadence while a goal is live.
	PollInterval time.Duration
	// StatusTimeout bounds each navigator status call.
	StatusTimeout time.Duration
	// CommandTimeout bounds SendGoal and Cancel calls.
	CommandTimeout time.Duration
	// MaxStatusFailures consecutive status errors mark the goal Lost.
	MaxStatusFailures int
	QueueSize         int
	Clock             clock.Clock
	Logger            *slog.Logger
	Observers         []Observer
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollInterval > MaxPollInterval {
		o.PollInterval = MaxPollInterval
	}
	if o.StatusTimeout <= 0 {
		o.StatusTimeout = defaultStatusTimeout
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = defaultCommandTimeout
	}
	if o.MaxStatusFailures <= 0 {
		o.MaxStatusFailures = defaultMaxStatusFailures
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type Supervisor struct {
	poses   PoseSource
	nav     navigator.Navigator
	opts    Options
	logger  *slog.Logger
	events  chan event
	stopped chan struct{}

	// Owned by the Run goroutine.
	state State
	cur   *attempt
}

func New(poses PoseSource, nav navigator.Navigator, opts Options) *Supervisor {
	opts.applyDefaults()
	return &Supervisor{
		poses:   poses,
		nav:     nav,
		opts:    opts,
		logger:  opts.Logger.With("component", "supervisor"),
		events:  make(chan event, opts.QueueSize),
		stopped: make(chan struct{}),
		state:   StateIdle,
	}
}

// Goal is a handle on a submitted request.
type Goal struct {
	ID      string
	Name    string
	done    chan Outcome
	stopped <-chan struct{}
}

// Done delivers the outcome exactly once.
func (g *Goal) Done() <-chan Outcome { return g.done }

// Wait blocks until the outcome, ctx expiry, or supervisor shutdown.
func (g *Goal) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-g.done:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case <-g.stopped:
		select {
		case o := <-g.done:
			return o, nil
		default:
			return Outcome{}, ErrStopped
		}
	}
}

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	State State     `json:"state"`
	Goal  *Feedback `json:"goal,omitempty"`
}

func (s Snapshot) Active() bool { return s.State != StateIdle }

// Stopped is closed when Run returns.
func (s *Supervisor) Stopped() <-chan struct{} { return s.stopped }

// Submit queues a goal request. A live goal is preempted before the new one
// is considered.
func (s *Supervisor) Submit(ctx context.Context, req GoalRequest) (*Goal, error) {
	g := &Goal{
		ID:      uuid.New().String()[:8],
		Name:    req.Name,
		done:    make(chan Outcome, 1),
		stopped: s.stopped,
	}
	ev := acceptEvent{req: req, goalID: g.ID, reply: g.done}
	if err := s.enqueue(ctx, ev); err != nil {
		return nil, err
	}
	return g, nil
}

// Preempt cancels goalID, or whichever goal is live when goalID is empty.
// It is a no-op when nothing matches.
func (s *Supervisor) Preempt(ctx context.Context, goalID string) error {
	return s.enqueue(ctx, preemptEvent{goalID: goalID})
}

func (s *Supervisor) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := s.enqueue(ctx, queryEvent{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-s.stopped:
		return Snapshot{}, ErrStopped
	}
}

func (s *Supervisor) enqueue(ctx context.Context, ev event) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

// Run consumes events until ctx is done. A goal still live at that point is
// preempted and requests still queued are answered with a shutdown outcome.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("goal supervisor started", "poll_interval", s.opts.PollInterval)
	defer close(s.stopped)

	for {
		select {
		case <-ctx.Done():
			s.shutdown(context.WithoutCancel(ctx))
			return nil
		case ev := <-s.events:
			ev.apply(ctx, s)
		}
	}
}

func (s *Supervisor) shutdown(ctx context.Context) {
	if s.cur != nil {
		s.preempt(ctx, ReasonShutdown)
	}
	for {
		select {
		case ev := <-s.events:
			if acc, ok := ev.(acceptEvent); ok {
				now := s.opts.Clock.Now()
				acc.reply <- Outcome{
					GoalID:   acc.goalID,
					Name:     acc.req.Name,
					Kind:     Aborted,
					Message:  ErrStopped.Error(),
					Reason:   ReasonShutdown,
					Started:  now,
					Finished: now,
				}
			}
		default:
			s.logger.Info("goal supervisor stopped")
			return
		}
	}
}

func (s *Supervisor) accept(ctx context.Context, ev acceptEvent) {
	if s.cur != nil {
		s.logger.Info("new goal supersedes live goal",
			"previous", s.cur.name, "previous_id", s.cur.id, "next", ev.req.Name)
		s.preempt(ctx, ReasonSuperseded)
	}

	now := s.opts.Clock.Now()
	target, err := s.poses.Lookup(ev.req.Name)
	if err != nil {
		out := Outcome{
			GoalID:      ev.goalID,
			Name:        ev.req.Name,
			Kind:        Aborted,
			Message:     notFoundMessage(ev.req.Name),
			Reason:      ReasonNotFound,
			FinalStatus: navigator.Rejected,
			Started:     now,
			Finished:    now,
		}
		s.logger.Error("goal rejected", "goal_id", ev.goalID, "error", out.Message)
		s.deliver(ev.reply, out)
		return
	}

	a := &attempt{
		id:      ev.goalID,
		name:    ev.req.Name,
		target:  target,
		status:  navigator.Pending,
		reply:   ev.reply,
		started: now,
	}
	s.cur = a
	s.setState(StateRequesting)

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	h, err := s.nav.SendGoal(sendCtx, target)
	cancel()
	if err != nil {
		s.logger.Error("navigator refused goal", "goal_id", a.id, "name", a.name, "error", err)
		s.finish(Aborted, ReasonSendFailed, navigationFailedMessage(a.name), navigator.Rejected)
		return
	}
	a.handle = h
	s.logger.Info("goal sent", "goal_id", a.id, "name", a.name, "handle", h, "target", target.String())

	pollCtx, stop := context.WithCancel(ctx)
	a.stopPoll = stop
	go s.poll(pollCtx, a.id, h)
}

func (s *Supervisor) observe(ctx context.Context, ev statusEvent) {
	a := s.cur
	if a == nil || a.id != ev.goalID {
		s.logger.Debug("dropping status for finished goal", "goal_id", ev.goalID, "status", ev.status)
		return
	}

	if ev.err != nil {
		a.failures++
		s.logger.Warn("navigator status unavailable",
			"goal_id", a.id, "failures", a.failures, "error", ev.err)
		if a.failures >= s.opts.MaxStatusFailures {
			s.finish(Aborted, ReasonStatusUnavailable, navigationFailedMessage(a.name), navigator.Lost)
		}
		return
	}
	a.failures = 0

	changed := ev.status != a.status
	a.status = ev.status

	switch {
	case !ev.status.IsTerminal():
		if s.state == StateRequesting {
			s.setState(StateActive)
		} else if changed {
			s.emitFeedback()
		}
	case ev.status.IsSuccess():
		s.finish(Succeeded, ReasonNone, "", ev.status)
	case ev.status == navigator.Preempted:
		s.finish(Aborted, ReasonNavigatorPreempted, navigationFailedMessage(a.name), ev.status)
	default:
		s.finish(Aborted, ReasonNavigationFailed, navigationFailedMessage(a.name), ev.status)
	}
}

func (s *Supervisor) cancel(ctx context.Context, ev preemptEvent) {
	if s.cur == nil {
		s.logger.Debug("cancel requested while idle")
		return
	}
	if ev.goalID != "" && ev.goalID != s.cur.id {
		s.logger.Debug("cancel for goal that is no longer live", "goal_id", ev.goalID, "live", s.cur.id)
		return
	}
	s.preempt(ctx, ReasonCancelRequested)
}

// preempt asks the navigator to stop the live goal and resolves it as
// Preempted without waiting for the navigator to confirm.
func (s *Supervisor) preempt(ctx context.Context, reason Reason) {
	a := s.cur
	s.setState(StateTerminating)
	a.stopPolling()

	if a.handle != "" {
		cancelCtx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
		if err := s.nav.Cancel(cancelCtx, a.handle); err != nil {
			s.logger.Warn("navigator cancel failed", "goal_id", a.id, "handle", a.handle, "error", err)
		}
		cancel()
	}
	s.finish(Preempted, reason, PreemptedMessage, a.status)
}

// finish emits the outcome for the live goal and returns to Idle.
func (s *Supervisor) finish(kind OutcomeKind, reason Reason, msg string, status navigator.Status) {
	a := s.cur
	a.stopPolling()
	a.status = status
	s.setState(StateDone)

	out := Outcome{
		GoalID:      a.id,
		Name:        a.name,
		Kind:        kind,
		Message:     msg,
		Reason:      reason,
		FinalStatus: status,
		Started:     a.started,
		Finished:    s.opts.Clock.Now(),
	}
	switch kind {
	case Succeeded:
		s.logger.Info("goal succeeded", "goal_id", a.id, "name", a.name, "duration", out.Duration())
	case Preempted:
		s.logger.Warn("goal preempted", "goal_id", a.id, "name", a.name, "reason", reason)
	default:
		s.logger.Error("goal aborted", "goal_id", a.id, "name", a.name,
			"reason", reason, "navigator_status", status, "error", msg)
	}

	s.cur = nil
	s.state = StateIdle
	s.deliver(a.reply, out)
}

// deliver notifies observers before the waiter so anyone woken by the
// outcome sees observer state already updated.
func (s *Supervisor) deliver(reply chan<- Outcome, out Outcome) {
	for _, o := range s.opts.Observers {
		o.GoalFinished(out)
	}
	reply <- out
}

func (s *Supervisor) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug("state transition", "from", s.state, "to", st)
	s.state = st
	s.emitFeedback()
}

func (s *Supervisor) emitFeedback() {
	if s.cur == nil || len(s.opts.Observers) == 0 {
		return
	}
	fb := s.cur.feedback(s.state)
	for _, o := range s.opts.Observers {
		o.GoalFeedback(fb)
	}
}

func (s *Supervisor) snapshot() Snapshot {
	snap := Snapshot{State: s.state}
	if s.cur != nil {
		fb := s.cur.feedback(s.state)
		snap.Goal = &fb
	}
	return snap
}

// poll reports navigator status for one attempt until the attempt is
// stopped or a terminal status has been posted.
func (s *Supervisor) poll(ctx context.Context, goalID string, h navigator.Handle) {
	t := s.opts.Clock.NewTicker(s.opts.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}

		statusCtx, cancel := context.WithTimeout(ctx, s.opts.StatusTimeout)
		st, err := s.nav.Status(statusCtx, h)
		cancel()
		if ctx.Err() != nil {
			return
		}

		select {
		case s.events <- statusEvent{goalID: goalID, status: st, err: err}:
		case <-ctx.Done():
			return
		}
		if err == nil && st.IsTerminal() {
			return
		}
	}
}
