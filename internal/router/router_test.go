package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"map-annotator/internal/markers"
	"map-annotator/internal/navigator"
	"map-annotator/internal/pose"
	"map-annotator/internal/publisher"
	"map-annotator/internal/registry"
)

type fakeNav struct {
	mu      sync.Mutex
	sent    []pose.Pose
	sendErr error
}

func (f *fakeNav) SendGoal(_ context.Context, p pose.Pose) (navigator.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, p)
	return "h1", nil
}

func (f *fakeNav) Cancel(context.Context, navigator.Handle) error { return nil }

func (f *fakeNav) Status(context.Context, navigator.Handle) (navigator.Status, error) {
	return navigator.Active, nil
}

func (f *fakeNav) Sent() []pose.Pose {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pose.Pose(nil), f.sent...)
}

// recordingPublisher keeps every published list and checks each one against
// the registry at publish time.
type recordingPublisher struct {
	reg       *registry.Registry
	published [][]string
	stale     bool
}

func (p *recordingPublisher) Publish(names []string) {
	if len(names) != p.reg.Len() {
		p.stale = true
	}
	p.published = append(p.published, names)
}

func (p *recordingPublisher) Last() []string {
	if len(p.published) == 0 {
		return nil
	}
	return p.published[len(p.published)-1]
}

type countingRecorder struct {
	mu       sync.Mutex
	commands map[string]int
	poses    int
}

func (c *countingRecorder) ObserveCommand(command, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.commands == nil {
		c.commands = make(map[string]int)
	}
	c.commands[command+"/"+result]++
}

func (c *countingRecorder) ObservePoses(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poses = n
}

type fixture struct {
	router *Router
	reg    *registry.Registry
	board  *markers.Board
	nav    *fakeNav
	pub    *recordingPublisher
	rec    *countingRecorder
}

func newFixture() *fixture {
	reg := registry.New()
	board := markers.NewBoard(nil)
	nav := &fakeNav{}
	pub := &recordingPublisher{reg: reg}
	rec := &countingRecorder{}
	return &fixture{
		router: New(reg, board, nav, pub, Options{Recorder: rec}),
		reg:    reg,
		board:  board,
		nav:    nav,
		pub:    pub,
		rec:    rec,
	}
}

func TestParseKind(t *testing.T) {
	testCases := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"create", Create, false},
		{" Delete ", Delete, false},
		{"GOTO", GoTo, false},
		{"teleport", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseKind(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnknownCommand)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDispatch_DockScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.router.Dispatch(ctx, Command{Kind: Create, Name: "dock"}))
	assert.Equal(t, []string{"dock"}, f.reg.Names())
	assert.Equal(t, []string{"dock"}, f.pub.Last())

	p, err := f.reg.Lookup("dock")
	require.NoError(t, err)
	assert.Equal(t, pose.Default(), p)

	require.NoError(t, f.router.Dispatch(ctx, Command{Kind: GoTo, Name: "dock"}))
	assert.Equal(t, []pose.Pose{pose.Default()}, f.nav.Sent())

	require.NoError(t, f.router.Dispatch(ctx, Command{Kind: Delete, Name: "dock"}))
	assert.Empty(t, f.reg.Names())
	assert.Empty(t, f.pub.Last())
	_, ok := f.board.CurrentPose("dock")
	assert.False(t, ok)

	assert.False(t, f.pub.stale, "a name list was published before the registry changed")
	assert.Equal(t, 1, f.rec.commands["create/ok"])
	assert.Equal(t, 1, f.rec.commands["goto/ok"])
	assert.Equal(t, 1, f.rec.commands["delete/ok"])
	assert.Equal(t, 0, f.rec.poses)
}

func TestDispatch_CreateUsesEditedMarker(t *testing.T) {
	f := newFixture()
	f.board.CreateDefault("kitchen")
	moved := pose.FromXYYaw(4, 2, 0)
	require.NoError(t, f.board.Move(context.Background(), "kitchen", moved))

	require.NoError(t, f.router.Dispatch(context.Background(), Command{Kind: Create, Name: "kitchen"}))

	p, err := f.reg.Lookup("kitchen")
	require.NoError(t, err)
	assert.Equal(t, moved, p)
}

func TestDispatch_DeleteMissingIsNoop(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.router.Dispatch(context.Background(), Command{Kind: Delete, Name: "ghost"}))
	assert.Equal(t, [][]string{{}}, f.pub.published)
}

func TestDispatch_GoToUnknownName(t *testing.T) {
	f := newFixture()
	err := f.router.Dispatch(context.Background(), Command{Kind: GoTo, Name: "ghost"})
	assert.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, f.nav.Sent())
	assert.Empty(t, f.pub.published)
	assert.Equal(t, 1, f.rec.commands["goto/not_found"])
}

func TestDispatch_GoToSendFailure(t *testing.T) {
	f := newFixture()
	f.reg.Upsert("dock", pose.Default())
	f.nav.sendErr = errors.New("navigator offline")

	err := f.router.Dispatch(context.Background(), Command{Kind: GoTo, Name: "dock"})
	assert.Error(t, err)
	assert.Equal(t, "error", Result(err))
}

func TestDispatch_RejectsBadCommands(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	err := f.router.Dispatch(ctx, Command{Kind: "teleport", Name: "dock"})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	err = f.router.Dispatch(ctx, Command{Kind: Create})
	assert.ErrorIs(t, err, ErrEmptyName)

	assert.Zero(t, f.reg.Len())
	assert.Empty(t, f.pub.published)
	assert.Equal(t, 1, f.rec.commands["teleport/unknown"])
	assert.Equal(t, 1, f.rec.commands["create/invalid"])
}

func TestHandlePoseUpdate(t *testing.T) {
	f := newFixture()
	p := pose.FromXYYaw(1, 1, 0)
	f.router.HandlePoseUpdate(markers.Update{Name: "door", Pose: p})

	got, err := f.reg.Lookup("door")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.Equal(t, []string{"door"}, f.pub.Last())
}

func TestReload(t *testing.T) {
	f := newFixture()
	f.reg.Upsert("old", pose.Default())

	f.router.Reload(map[string]pose.Pose{"a": pose.Default(), "b": pose.FromXYYaw(1, 0, 0)})

	assert.Equal(t, []string{"a", "b"}, f.reg.Names())
	assert.Equal(t, []string{"a", "b"}, f.board.Names())
	assert.Equal(t, []string{"a", "b"}, f.pub.Last())
}

func TestRun_ProcessesAllInputs(t *testing.T) {
	reg := registry.New()
	board := markers.NewBoard(nil)
	names := publisher.NewLatch[[]string]()
	r := New(reg, board, &fakeNav{}, names, Options{})

	cmds := make(chan Command)
	reloads := make(chan map[string]pose.Pose)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, Inputs{Commands: cmds, Updates: board.Updates(), Reloads: reloads})
	}()

	sub, unsub := names.Subscribe()
	defer unsub()

	cmds <- Command{Kind: Create, Name: "dock"}
	assert.Equal(t, []string{"dock"}, waitFor(t, sub, 1))

	require.NoError(t, board.Move(ctx, "dock", pose.FromXYYaw(5, 5, 0)))
	reloads <- map[string]pose.Pose{"dock": pose.Default(), "lab": pose.Default()}
	assert.Equal(t, []string{"dock", "lab"}, waitFor(t, sub, 2))

	// A closed ingress must not stop the loop.
	close(cmds)
	require.NoError(t, board.Move(ctx, "lab", pose.FromXYYaw(1, 1, 0)))
	assert.Eventually(t, func() bool {
		p, err := reg.Lookup("lab")
		return err == nil && p.Position.X == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
}

// waitFor reads name lists until one of length n shows up.
func waitFor(t *testing.T, ch <-chan []string, n int) []string {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case names := <-ch:
			if len(names) == n {
				return names
			}
		case <-deadline:
			t.Fatalf("no name list of length %d", n)
			return nil
		}
	}
}
