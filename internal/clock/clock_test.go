package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_TickerFiresWhenDue(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)
	tk := m.NewTicker(100 * time.Millisecond)
	defer tk.Stop()

	m.Advance(50 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	m.Advance(50 * time.Millisecond)
	select {
	case ts := <-tk.C():
		assert.Equal(t, start.Add(100*time.Millisecond), ts)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestManual_DropsUnreadTicks(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	tk := m.NewTicker(10 * time.Millisecond)
	defer tk.Stop()

	m.Advance(10 * time.Millisecond)
	m.Advance(10 * time.Millisecond)
	m.Advance(10 * time.Millisecond)

	<-tk.C()
	select {
	case <-tk.C():
		t.Fatal("expected a single buffered tick")
	default:
	}
}

func TestManual_StopRemovesTicker(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	tk := m.NewTicker(time.Second)
	assert.Equal(t, 1, m.Tickers())

	tk.Stop()
	assert.Equal(t, 0, m.Tickers())

	m.Advance(time.Minute)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestManual_Now(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)
	m.Advance(3 * time.Second)

	assert.Equal(t, start.Add(3*time.Second), m.Now())
}
