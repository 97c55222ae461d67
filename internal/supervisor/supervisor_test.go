package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"map-annotator/internal/clock"
	"map-annotator/internal/navigator"
	"map-annotator/internal/pose"
	"map-annotator/internal/registry"
)

// scriptedNav replays one status script per SendGoal call. The last entry of
// a script repeats forever.
type scriptedNav struct {
	mu        sync.Mutex
	scripts   [][]navigator.Status
	sendErr   error
	statusErr error
	next      int
	handles   map[navigator.Handle][]navigator.Status
	polls     map[navigator.Handle]int
	calls     []string
}

func newScriptedNav(scripts ...[]navigator.Status) *scriptedNav {
	return &scriptedNav{
		scripts: scripts,
		handles: make(map[navigator.Handle][]navigator.Status),
		polls:   make(map[navigator.Handle]int),
	}
}

func (n *scriptedNav) SendGoal(_ context.Context, _ pose.Pose) (navigator.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sendErr != nil {
		n.calls = append(n.calls, "send:error")
		return "", n.sendErr
	}
	h := navigator.Handle(fmt.Sprintf("h%d", n.next+1))
	script := []navigator.Status{navigator.Active}
	if n.next < len(n.scripts) {
		script = n.scripts[n.next]
	}
	n.next++
	n.handles[h] = script
	n.calls = append(n.calls, "send:"+string(h))
	return h, nil
}

func (n *scriptedNav) Cancel(_ context.Context, h navigator.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "cancel:"+string(h))
	return nil
}

func (n *scriptedNav) Status(_ context.Context, h navigator.Handle) (navigator.Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.statusErr != nil {
		return navigator.Lost, n.statusErr
	}
	script := n.handles[h]
	i := n.polls[h]
	n.polls[h]++
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i], nil
}

func (n *scriptedNav) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

type recorder struct {
	mu       sync.Mutex
	outcomes []Outcome
	feedback []Feedback
}

func (r *recorder) GoalFeedback(fb Feedback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, fb)
}

func (r *recorder) GoalFinished(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []State
	for _, fb := range r.feedback {
		out = append(out, fb.State)
	}
	return out
}

type harness struct {
	sup   *Supervisor
	clk   *clock.Manual
	nav   *scriptedNav
	rec   *recorder
	poses *registry.Registry
}

func newHarness(t *testing.T, nav *scriptedNav, tweak func(*Options)) *harness {
	t.Helper()
	poses := registry.New()
	poses.Upsert("dock", pose.Default())
	poses.Upsert("kitchen", pose.FromXYYaw(4, 1, 0))

	clk := clock.NewManual(time.Unix(0, 0))
	rec := &recorder{}
	opts := Options{Clock: clk, Observers: []Observer{rec}}
	if tweak != nil {
		tweak(&opts)
	}
	sup := New(poses, nav, opts)

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-sup.Stopped()
	})
	return &harness{sup: sup, clk: clk, nav: nav, rec: rec, poses: poses}
}

func (h *harness) submit(t *testing.T, name string) *Goal {
	t.Helper()
	g, err := h.sup.Submit(context.Background(), GoalRequest{Name: name})
	require.NoError(t, err)
	return g
}

// await pumps the manual clock until the goal resolves.
func (h *harness) await(t *testing.T, g *Goal) Outcome {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case o := <-g.Done():
			return o
		case <-deadline:
			t.Fatalf("goal %s (%s) did not resolve", g.ID, g.Name)
		case <-time.After(time.Millisecond):
			h.clk.Advance(DefaultPollInterval)
		}
	}
}

func (h *harness) awaitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.clk.Advance(DefaultPollInterval)
		snap, err := h.sup.Snapshot(context.Background())
		return err == nil && snap.State == want
	}, 5*time.Second, time.Millisecond)
}

func assertNoOutcome(t *testing.T, g *Goal) {
	t.Helper()
	select {
	case o := <-g.Done():
		t.Fatalf("unexpected outcome %+v", o)
	default:
	}
}

func TestSubmit_UnknownNameIsRejected(t *testing.T) {
	h := newHarness(t, newScriptedNav(), nil)

	out := h.await(t, h.submit(t, "ghost"))

	assert.Equal(t, Aborted, out.Kind)
	assert.Equal(t, ReasonNotFound, out.Reason)
	assert.Equal(t, "no pose named ghost", out.Message)
	assert.Empty(t, h.nav.Calls(), "no navigation attempt may be created")

	snap, err := h.sup.Snapshot(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Active())
}

func TestSubmit_ImmediateSuccess(t *testing.T) {
	h := newHarness(t, newScriptedNav([]navigator.Status{navigator.Succeeded}), nil)

	g := h.submit(t, "dock")
	out := h.await(t, g)

	assert.Equal(t, Succeeded, out.Kind)
	assert.Equal(t, g.ID, out.GoalID)
	assert.Equal(t, "dock", out.Name)
	assert.Equal(t, navigator.Succeeded, out.FinalStatus)
	assert.Empty(t, out.Message)

	outcomes := h.rec.Outcomes()
	require.Len(t, outcomes, 1)
	assert.Equal(t, Succeeded, outcomes[0].Kind)
}

func TestSubmit_ProgressesThroughActive(t *testing.T) {
	nav := newScriptedNav([]navigator.Status{
		navigator.Pending, navigator.Active, navigator.Active, navigator.Succeeded,
	})
	h := newHarness(t, nav, nil)

	out := h.await(t, h.submit(t, "kitchen"))

	assert.Equal(t, Succeeded, out.Kind)
	// Pending -> Active is a status change, so Active is reported twice.
	assert.Equal(t, []State{StateRequesting, StateActive, StateActive, StateDone}, h.rec.States())
}

func TestSubmit_TerminalFailures(t *testing.T) {
	testCases := []struct {
		status navigator.Status
		reason Reason
	}{
		{navigator.Recalled, ReasonNavigationFailed},
		{navigator.Rejected, ReasonNavigationFailed},
		{navigator.Aborted, ReasonNavigationFailed},
		{navigator.Lost, ReasonNavigationFailed},
		{navigator.Preempted, ReasonNavigatorPreempted},
	}

	for _, tc := range testCases {
		t.Run(tc.status.String(), func(t *testing.T) {
			nav := newScriptedNav([]navigator.Status{navigator.Active, tc.status})
			h := newHarness(t, nav, nil)

			out := h.await(t, h.submit(t, "kitchen"))

			assert.Equal(t, Aborted, out.Kind)
			assert.Equal(t, tc.reason, out.Reason)
			assert.Equal(t, "unable to navigate to kitchen", out.Message)
			assert.Equal(t, tc.status, out.FinalStatus)
			assert.Len(t, h.rec.Outcomes(), 1)
		})
	}
}

func TestSubmit_FirstTerminalStatusWins(t *testing.T) {
	nav := newScriptedNav([]navigator.Status{navigator.Aborted, navigator.Succeeded})
	h := newHarness(t, nav, nil)

	out := h.await(t, h.submit(t, "dock"))
	assert.Equal(t, Aborted, out.Kind)

	// Later pumping must not produce a second outcome.
	for i := 0; i < 10; i++ {
		h.clk.Advance(DefaultPollInterval)
	}
	_, err := h.sup.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, h.rec.Outcomes(), 1)
}

func TestCancel_WhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, newScriptedNav(), nil)

	require.NoError(t, h.sup.Preempt(context.Background(), ""))

	snap, err := h.sup.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, h.rec.Outcomes())
	assert.Empty(t, h.nav.Calls())
}

func TestCancel_ActiveGoalIsPreempted(t *testing.T) {
	h := newHarness(t, newScriptedNav([]navigator.Status{navigator.Active}), nil)

	g := h.submit(t, "kitchen")
	h.awaitState(t, StateActive)
	assertNoOutcome(t, g)

	require.NoError(t, h.sup.Preempt(context.Background(), ""))
	out := h.await(t, g)

	assert.Equal(t, Preempted, out.Kind)
	assert.Equal(t, PreemptedMessage, out.Message)
	assert.Equal(t, "GoToLocation was preempted", out.Message)
	assert.Equal(t, ReasonCancelRequested, out.Reason)
	assert.Equal(t, []string{"send:h1", "cancel:h1"}, h.nav.Calls())
}

func TestCancel_StaleGoalIDIsIgnored(t *testing.T) {
	h := newHarness(t, newScriptedNav([]navigator.Status{navigator.Active}), nil)

	g := h.submit(t, "kitchen")
	h.awaitState(t, StateActive)

	require.NoError(t, h.sup.Preempt(context.Background(), "not-"+g.ID))
	snap, err := h.sup.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateActive, snap.State)
	require.NotNil(t, snap.Goal)
	assert.Equal(t, g.ID, snap.Goal.GoalID)
	assertNoOutcome(t, g)
}

func TestSubmit_NewGoalPreemptsLiveGoal(t *testing.T) {
	nav := newScriptedNav(
		[]navigator.Status{navigator.Active},
		[]navigator.Status{navigator.Active, navigator.Succeeded},
	)
	h := newHarness(t, nav, nil)

	first := h.submit(t, "kitchen")
	h.awaitState(t, StateActive)

	second := h.submit(t, "dock")
	firstOut := h.await(t, first)
	assert.Equal(t, Preempted, firstOut.Kind)
	assert.Equal(t, ReasonSuperseded, firstOut.Reason)
	assert.Equal(t, PreemptedMessage, firstOut.Message)

	secondOut := h.await(t, second)
	assert.Equal(t, Succeeded, secondOut.Kind)

	// The old goal is cancelled before the new one is sent.
	assert.Equal(t, []string{"send:h1", "cancel:h1", "send:h2"}, nav.Calls())

	outcomes := h.rec.Outcomes()
	require.Len(t, outcomes, 2)
	assert.Equal(t, first.ID, outcomes[0].GoalID)
	assert.Equal(t, second.ID, outcomes[1].GoalID)
}

func TestSubmit_NewUnknownGoalStillPreemptsLiveGoal(t *testing.T) {
	h := newHarness(t, newScriptedNav([]navigator.Status{navigator.Active}), nil)

	first := h.submit(t, "kitchen")
	h.awaitState(t, StateActive)

	second := h.submit(t, "ghost")
	assert.Equal(t, Preempted, h.await(t, first).Kind)
	assert.Equal(t, ReasonNotFound, h.await(t, second).Reason)
	assert.Equal(t, []string{"send:h1", "cancel:h1"}, h.nav.Calls())
}

func TestSubmit_SendFailure(t *testing.T) {
	nav := newScriptedNav()
	nav.sendErr = errors.New("move_base unavailable")
	h := newHarness(t, nav, nil)

	out := h.await(t, h.submit(t, "dock"))

	assert.Equal(t, Aborted, out.Kind)
	assert.Equal(t, ReasonSendFailed, out.Reason)
	assert.Equal(t, "unable to navigate to dock", out.Message)

	snap, err := h.sup.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
}

func TestSubmit_StatusFailuresBecomeLost(t *testing.T) {
	nav := newScriptedNav()
	nav.statusErr = errors.New("timeout")
	h := newHarness(t, nav, func(o *Options) { o.MaxStatusFailures = 3 })

	out := h.await(t, h.submit(t, "dock"))

	assert.Equal(t, Aborted, out.Kind)
	assert.Equal(t, ReasonStatusUnavailable, out.Reason)
	assert.Equal(t, navigator.Lost, out.FinalStatus)
}

func TestRun_ShutdownPreemptsLiveGoal(t *testing.T) {
	nav := newScriptedNav([]navigator.Status{navigator.Active})
	clk := clock.NewManual(time.Unix(0, 0))
	poses := registry.New()
	poses.Upsert("dock", pose.Default())
	sup := New(poses, nav, Options{Clock: clk})

	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	g, err := sup.Submit(context.Background(), GoalRequest{Name: "dock"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := sup.Snapshot(context.Background())
		return err == nil && snap.Active()
	}, time.Second, time.Millisecond)

	cancel()
	out, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Preempted, out.Kind)
	assert.Equal(t, ReasonShutdown, out.Reason)
	assert.Contains(t, nav.Calls(), "cancel:h1")

	<-sup.Stopped()
	_, err = sup.Submit(context.Background(), GoalRequest{Name: "dock"})
	assert.ErrorIs(t, err, ErrStopped)
	_, err = sup.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestObserve_DropsStatusForOtherGoals(t *testing.T) {
	rec := &recorder{}
	sup := New(registry.New(), newScriptedNav(), Options{Observers: []Observer{rec}})

	sup.observe(context.Background(), statusEvent{goalID: "gone", status: navigator.Succeeded})

	assert.Empty(t, rec.Outcomes())
	assert.Equal(t, StateIdle, sup.state)
}

func TestOptions_Defaults(t *testing.T) {
	var o Options
	o.applyDefaults()
	assert.Equal(t, DefaultPollInterval, o.PollInterval)
	assert.NotNil(t, o.Clock)

	o = Options{PollInterval: time.Second}
	o.applyDefaults()
	assert.Equal(t, MaxPollInterval, o.PollInterval)
}
