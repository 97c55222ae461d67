package action

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"map-annotator/internal/clock"
	"map-annotator/internal/navigator"
	"map-annotator/internal/pose"
	"map-annotator/internal/registry"
	"map-annotator/internal/supervisor"
)

// stuckNav accepts goals and then reports one fixed status forever.
type stuckNav struct {
	mu     sync.Mutex
	status navigator.Status
	calls  []string
	next   int
}

func (n *stuckNav) SendGoal(context.Context, pose.Pose) (navigator.Handle, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	h := navigator.Handle("h" + string(rune('0'+n.next)))
	n.calls = append(n.calls, "send:"+string(h))
	return h, nil
}

func (n *stuckNav) Cancel(_ context.Context, h navigator.Handle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, "cancel:"+string(h))
	return nil
}

func (n *stuckNav) Status(context.Context, navigator.Handle) (navigator.Status, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status, nil
}

func (n *stuckNav) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func startServer(t *testing.T, nav navigator.Navigator, clk clock.Clock) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	reg.Upsert("kitchen", pose.FromXYYaw(3, 2, 0))
	reg.Upsert("dock", pose.Default())

	srv := New(reg, nav, supervisor.Options{PollInterval: 5 * time.Millisecond, Clock: clk})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv, reg
}

func TestSubmit_Succeeds(t *testing.T) {
	nav := &stuckNav{status: navigator.Succeeded}
	srv, _ := startServer(t, nav, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := srv.Submit(ctx, supervisor.GoalRequest{Name: "dock"})
	require.NoError(t, err)

	assert.Equal(t, supervisor.Succeeded, out.Kind)
	assert.Equal(t, "dock", out.Name)
	assert.False(t, srv.IsActive())
}

func TestSubmit_UnknownName(t *testing.T) {
	nav := &stuckNav{status: navigator.Active}
	srv, _ := startServer(t, nav, clock.NewManual(time.Unix(0, 0)))

	out, err := srv.Submit(context.Background(), supervisor.GoalRequest{Name: "attic"})
	require.NoError(t, err)

	assert.Equal(t, supervisor.Aborted, out.Kind)
	assert.Equal(t, supervisor.ReasonNotFound, out.Reason)
	assert.Contains(t, out.Message, "attic")
	assert.Empty(t, nav.Calls())
}

func TestCancel_KitchenScenario(t *testing.T) {
	nav := &stuckNav{status: navigator.Active}
	srv, _ := startServer(t, nav, clock.NewManual(time.Unix(0, 0)))

	result := make(chan supervisor.Outcome, 1)
	go func() {
		out, err := srv.Submit(context.Background(), supervisor.GoalRequest{Name: "kitchen"})
		assert.NoError(t, err)
		result <- out
	}()

	require.Eventually(t, srv.IsActive, time.Second, time.Millisecond)
	require.NoError(t, srv.Cancel(context.Background()))

	select {
	case out := <-result:
		assert.Equal(t, supervisor.Preempted, out.Kind)
		assert.Equal(t, "GoToLocation was preempted", out.Message)
		assert.Equal(t, supervisor.ReasonCancelRequested, out.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome after cancel")
	}
	assert.Equal(t, []string{"send:h1", "cancel:h1"}, nav.Calls())
	assert.False(t, srv.IsActive())
}

func TestCancel_IdleIsNoop(t *testing.T) {
	nav := &stuckNav{status: navigator.Active}
	srv, _ := startServer(t, nav, clock.NewManual(time.Unix(0, 0)))

	outcomes, unsub := srv.SubscribeOutcomes()
	defer unsub()

	require.NoError(t, srv.Cancel(context.Background()))
	snap, err := srv.Status(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.Active())
	assert.Empty(t, nav.Calls())
	select {
	case out := <-outcomes:
		t.Fatalf("unexpected outcome %+v", out)
	default:
	}
}

func TestSubmit_CallerGoneCancelsGoal(t *testing.T) {
	nav := &stuckNav{status: navigator.Active}
	srv, _ := startServer(t, nav, clock.NewManual(time.Unix(0, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan supervisor.Outcome, 1)
	go func() {
		out, err := srv.Submit(ctx, supervisor.GoalRequest{Name: "kitchen"})
		assert.NoError(t, err)
		result <- out
	}()

	require.Eventually(t, srv.IsActive, time.Second, time.Millisecond)
	cancel()

	select {
	case out := <-result:
		assert.Equal(t, supervisor.Preempted, out.Kind)
		assert.Equal(t, "kitchen", out.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome after the caller left")
	}
	assert.Equal(t, []string{"send:h1", "cancel:h1"}, nav.Calls())
}

func TestSubscribe_ReceivesFeedback(t *testing.T) {
	nav := &stuckNav{status: navigator.Active}
	srv, _ := startServer(t, nav, nil)

	fb, unsub := srv.Subscribe()
	defer unsub()

	g, err := srv.Send(context.Background(), supervisor.GoalRequest{Name: "kitchen"})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-fb:
			assert.Equal(t, g.ID, f.GoalID)
			if f.State == supervisor.StateActive && f.Status == navigator.Active {
				require.NoError(t, srv.CancelGoal(context.Background(), g.ID))
				out, err := g.Wait(context.Background())
				require.NoError(t, err)
				assert.Equal(t, supervisor.Preempted, out.Kind)
				return
			}
		case <-deadline:
			t.Fatal("goal never reported active")
		}
	}
}
