package navigator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"map-annotator/internal/clock"
	"map-annotator/internal/pose"
)

type SimConfig struct {
	// Speed is the straight-line travel speed in metres per second.
	Speed float64
	// PendingFor is how long a goal sits in Pending before moving.
	PendingFor time.Duration
	// FailRate is the probability that a goal aborts halfway.
	FailRate float64
	Seed     int64
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		Speed:      0.5,
		PendingFor: 200 * time.Millisecond,
		Seed:       time.Now().UnixNano(),
	}
}

// Sim is an in-process Navigator that drives the robot in a straight line to
// each goal. Like a single-goal action client, sending a new goal recalls or
// preempts the previous one.
type Sim struct {
	mu      sync.Mutex
	clock   clock.Clock
	cfg     SimConfig
	rng     *rand.Rand
	robot   pose.Pose
	goals   map[Handle]*simGoal
	current Handle
	logger  *slog.Logger
}

type simGoal struct {
	from   pose.Pose
	target pose.Pose
	sent   time.Time
	travel time.Duration
	fail   bool
	done   bool
	final  Status
}

func NewSim(cfg SimConfig, clk clock.Clock, logger *slog.Logger) *Sim {
	if cfg.Speed <= 0 {
		cfg.Speed = DefaultSimConfig().Speed
	}
	if cfg.PendingFor < 0 {
		cfg.PendingFor = 0
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sim{
		clock:  clk,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		robot:  pose.Default(),
		goals:  make(map[Handle]*simGoal),
		logger: logger.With("component", "sim_navigator"),
	}
}

func (s *Sim) SendGoal(ctx context.Context, target pose.Pose) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if prev, ok := s.goals[s.current]; ok && !prev.done {
		s.settleLocked(prev, now, true)
		s.logger.Info("previous goal superseded", "handle", s.current, "status", prev.final)
	}

	dist := s.robot.PlanarDistance(target)
	g := &simGoal{
		from:   s.robot,
		target: target,
		sent:   now,
		travel: travelTime(dist, s.cfg.Speed),
		fail:   s.cfg.FailRate > 0 && s.rng.Float64() < s.cfg.FailRate,
	}
	h := Handle(uuid.New().String()[:8])
	s.goals[h] = g
	s.current = h
	s.logger.Info("goal accepted", "handle", h, "target", target.String(), "travel", g.travel)
	return h, nil
}

func (s *Sim) Cancel(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[h]
	if !ok {
		return fmt.Errorf("cancel %s: %w", h, ErrUnknownHandle)
	}
	if !g.done {
		s.settleLocked(g, s.clock.Now(), true)
		s.logger.Info("goal cancelled", "handle", h, "status", g.final)
	}
	return nil
}

func (s *Sim) Status(ctx context.Context, h Handle) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Lost, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.goals[h]
	if !ok {
		return Lost, fmt.Errorf("status %s: %w", h, ErrUnknownHandle)
	}
	if g.done {
		return g.final, nil
	}
	st := s.statusAt(g, s.clock.Now())
	if st.IsTerminal() {
		s.settleLocked(g, s.clock.Now(), false)
	}
	return st, nil
}

// Robot returns where the simulated robot currently is.
func (s *Sim) Robot() pose.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.goals[s.current]; ok && !g.done {
		return s.positionAt(g, s.clock.Now())
	}
	return s.robot
}

// travelTime is how long covering dist takes at speed, saturating at the
// longest representable duration.
func travelTime(dist, speed float64) time.Duration {
	secs := dist / speed
	if math.IsNaN(secs) || secs >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs * float64(time.Second))
}

func (s *Sim) statusAt(g *simGoal, now time.Time) Status {
	moving := now.Sub(g.sent) - s.cfg.PendingFor
	switch {
	case moving < 0:
		return Pending
	case g.fail && moving >= g.travel/2:
		return Aborted
	case moving >= g.travel:
		return Succeeded
	default:
		return Active
	}
}

func (s *Sim) positionAt(g *simGoal, now time.Time) pose.Pose {
	moving := now.Sub(g.sent) - s.cfg.PendingFor
	if moving <= 0 {
		return g.from
	}
	limit := g.travel
	if g.fail {
		limit = g.travel / 2
	}
	if moving >= limit && !g.fail {
		return g.target
	}
	if moving > limit {
		moving = limit
	}
	frac := 1.0
	if g.travel > 0 {
		frac = float64(moving) / float64(g.travel)
	}
	p := g.target
	p.Position.X = g.from.Position.X + (g.target.Position.X-g.from.Position.X)*frac
	p.Position.Y = g.from.Position.Y + (g.target.Position.Y-g.from.Position.Y)*frac
	return p
}

// settleLocked fixes the goal's final status. A goal stopped before it
// started moving is Recalled, one stopped mid-way Preempted.
func (s *Sim) settleLocked(g *simGoal, now time.Time, stopped bool) {
	st := s.statusAt(g, now)
	if stopped && !st.IsTerminal() {
		if st == Pending {
			st = Recalled
		} else {
			st = Preempted
		}
	}
	s.robot = s.positionAt(g, now)
	g.done = true
	g.final = st
}
