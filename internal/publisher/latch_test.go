package publisher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatch_LateSubscriberGetsLatest(t *testing.T) {
	l := NewLatch[[]string]()
	l.Publish([]string{"dock"})
	l.Publish([]string{"dock", "kitchen"})

	ch, unsub := l.Subscribe()
	defer unsub()

	assert.Equal(t, []string{"dock", "kitchen"}, <-ch)
}

func TestLatch_NothingPublished(t *testing.T) {
	l := NewLatch[int]()
	_, ok := l.Latest()
	assert.False(t, ok)

	ch, unsub := l.Subscribe()
	defer unsub()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %d", v)
	default:
	}
}

func TestLatch_SlowSubscriberSeesNewest(t *testing.T) {
	l := NewLatch[int]()
	ch, unsub := l.Subscribe()
	defer unsub()

	for i := 1; i <= 5; i++ {
		l.Publish(i)
	}
	assert.Equal(t, 5, <-ch)

	select {
	case v := <-ch:
		t.Fatalf("stale value %d still queued", v)
	default:
	}

	v, ok := l.Latest()
	require.True(t, ok)
	assert.Equal(t, 5, v)
}

func TestLatch_Unsubscribe(t *testing.T) {
	l := NewLatch[int]()
	ch, unsub := l.Subscribe()
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic on the closed channel.
	l.Publish(1)
}

func TestLatch_Close(t *testing.T) {
	l := NewLatch[int]()
	ch, unsub := l.Subscribe()
	l.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := l.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
