// Package router dispatches pose commands to the registry, the marker board
// and the navigator, and republishes the known names after every change.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"map-annotator/internal/markers"
	"map-annotator/internal/navigator"
	"map-annotator/internal/pose"
	"map-annotator/internal/registry"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmptyName      = errors.New("pose name is empty")
)

type Kind string

const (
	Create Kind = "create"
	Delete Kind = "delete"
	GoTo   Kind = "goto"
)

// ParseKind accepts the command names used on every ingress.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Create, Delete, GoTo:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

type Command struct {
	Kind Kind   `json:"command"`
	Name string `json:"name"`
}

func (c Command) String() string { return string(c.Kind) + " " + c.Name }

// Markers is the subset of the marker board the router drives.
type Markers interface {
	Start(poses []pose.NamedPose)
	CreateDefault(name string) pose.Pose
	CurrentPose(name string) (pose.Pose, bool)
	Erase(name string)
}

// Publisher receives the full, sorted name list.
type Publisher interface {
	Publish(names []string)
}

// Recorder is told about every dispatched command.
type Recorder interface {
	ObserveCommand(command, result string)
	ObservePoses(n int)
}

type Options struct {
	// CommandTimeout bounds one-shot navigator calls.
	CommandTimeout time.Duration
	Logger         *slog.Logger
	Recorder       Recorder
}

type Router struct {
	reg     *registry.Registry
	markers Markers
	nav     navigator.Navigator
	names   Publisher
	opts    Options
	logger  *slog.Logger
}

func New(reg *registry.Registry, m Markers, nav navigator.Navigator, names Publisher, opts Options) *Router {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		reg:     reg,
		markers: m,
		nav:     nav,
		names:   names,
		opts:    opts,
		logger:  opts.Logger.With("component", "router"),
	}
}

// Dispatch applies one command. Errors are logged here as well as returned,
// so ingress loops may drop them.
func (r *Router) Dispatch(ctx context.Context, cmd Command) error {
	err := r.dispatch(ctx, cmd)
	r.record(cmd.Kind, err)
	return err
}

func (r *Router) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case Create, Delete, GoTo:
	default:
		r.logger.Warn("ignoring unknown command", "command", string(cmd.Kind), "name", cmd.Name)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Kind)
	}
	if cmd.Name == "" {
		r.logger.Warn("ignoring command without a name", "command", string(cmd.Kind))
		return ErrEmptyName
	}

	switch cmd.Kind {
	case Create:
		p := r.markers.CreateDefault(cmd.Name)
		if cur, ok := r.markers.CurrentPose(cmd.Name); ok {
			p = cur
		}
		r.reg.Upsert(cmd.Name, p)
		r.logger.Info("pose created", "name", cmd.Name, "pose", p.String())
		r.Publish()
	case Delete:
		r.markers.Erase(cmd.Name)
		r.reg.Remove(cmd.Name)
		r.logger.Info("pose deleted", "name", cmd.Name)
		r.Publish()
	case GoTo:
		return r.goTo(ctx, cmd.Name)
	}
	return nil
}

// goTo is the unsupervised path: the goal is sent and forgotten.
func (r *Router) goTo(ctx context.Context, name string) error {
	target, err := r.reg.Lookup(name)
	if err != nil {
		r.logger.Error(fmt.Sprintf("No pose named %s", name))
		return fmt.Errorf("goto %s: %w", name, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.opts.CommandTimeout)
	defer cancel()
	h, err := r.nav.SendGoal(sendCtx, target)
	if err != nil {
		r.logger.Error("navigator refused goal", "name", name, "error", err)
		return fmt.Errorf("goto %s: %w", name, err)
	}
	r.logger.Info("goal sent without supervision", "name", name, "handle", h, "target", target.String())
	return nil
}

// HandlePoseUpdate stores a marker the operator moved.
func (r *Router) HandlePoseUpdate(u markers.Update) {
	r.reg.Upsert(u.Name, u.Pose)
	r.logger.Debug("pose updated from marker", "name", u.Name, "pose", u.Pose.String())
	r.Publish()
}

// Reload replaces every pose, typically after the store changed on disk.
func (r *Router) Reload(poses map[string]pose.Pose) {
	r.reg.Replace(poses)
	r.markers.Start(r.reg.NamedPoses())
	r.logger.Info("poses reloaded", "poses", len(poses))
	r.Publish()
}

// Publish republishes the full name list.
func (r *Router) Publish() {
	names := r.reg.Names()
	r.names.Publish(names)
	if r.opts.Recorder != nil {
		r.opts.Recorder.ObservePoses(len(names))
	}
}

// Inputs are the streams Run consumes. Nil or closed channels are skipped.
type Inputs struct {
	Commands <-chan Command
	Updates  <-chan markers.Update
	Reloads  <-chan map[string]pose.Pose
}

// Run is the single writer of the registry. It returns when ctx is done.
func (r *Router) Run(ctx context.Context, in Inputs) error {
	r.logger.Info("command router started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("command router stopped")
			return nil
		case cmd, ok := <-in.Commands:
			if !ok {
				in.Commands = nil
				continue
			}
			_ = r.Dispatch(ctx, cmd)
		case u, ok := <-in.Updates:
			if !ok {
				in.Updates = nil
				continue
			}
			r.HandlePoseUpdate(u)
		case poses, ok := <-in.Reloads:
			if !ok {
				in.Reloads = nil
				continue
			}
			r.Reload(poses)
		}
	}
}

func (r *Router) record(kind Kind, err error) {
	if r.opts.Recorder == nil {
		return
	}
	r.opts.Recorder.ObserveCommand(string(kind), Result(err))
}

// Result classifies a Dispatch error for metrics and API responses.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownCommand):
		return "unknown"
	case errors.Is(err, ErrEmptyName):
		return "invalid"
	case errors.Is(err, registry.ErrNotFound):
		return "not_found"
	}
	return "error"
}
