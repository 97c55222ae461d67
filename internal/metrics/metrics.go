// Package metrics records goal and command activity as Prometheus metrics and
// keeps a short history of per-goal timing records.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"map-annotator/internal/supervisor"
)

const namespace = "annotator"

const defaultHistory = 50

// GoalMetrics is the timing record of one finished goal.
type GoalMetrics struct {
	GoalID     string    `json:"goal_id"`
	Name       string    `json:"name"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DurationMs int64     `json:"duration_ms"`
	Succeeded  bool      `json:"succeeded"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	Err        string    `json:"err,omitempty"`
}

// Finalize computes derived fields.
func (g *GoalMetrics) Finalize() {
	g.DurationMs = g.End.Sub(g.Start).Milliseconds()
}

func recordFor(out supervisor.Outcome) GoalMetrics {
	g := GoalMetrics{
		GoalID:    out.GoalID,
		Name:      out.Name,
		Start:     out.Started,
		End:       out.Finished,
		Succeeded: out.Kind == supervisor.Succeeded,
		Outcome:   out.Kind.String(),
		Reason:    out.Reason.String(),
	}
	if !g.Succeeded {
		g.Err = out.Message
	}
	g.Finalize()
	return g
}

// Collector implements supervisor.Observer and router.Recorder.
type Collector struct {
	GoalsTotal    *prometheus.CounterVec
	GoalDuration  *prometheus.HistogramVec
	GoalActive    prometheus.Gauge
	CommandsTotal *prometheus.CounterVec
	Poses         prometheus.Gauge

	mu      sync.Mutex
	history []GoalMetrics
	limit   int
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		GoalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goals_total",
			Help:      "Goals finished, by outcome and internal reason.",
		}, []string{"outcome", "reason"}),
		GoalDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "goal_duration_seconds",
			Help:      "Time from goal acceptance to outcome.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"outcome"}),
		GoalActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goal_active",
			Help:      "1 while a navigation goal is live.",
		}),
		CommandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Pose commands dispatched, by command and result.",
		}, []string{"command", "result"}),
		Poses: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poses",
			Help:      "Named poses currently stored.",
		}),
		limit: defaultHistory,
	}
}

func (c *Collector) GoalFeedback(fb supervisor.Feedback) {
	switch fb.State {
	case supervisor.StateRequesting, supervisor.StateActive, supervisor.StateTerminating:
		c.GoalActive.Set(1)
	default:
		c.GoalActive.Set(0)
	}
}

func (c *Collector) GoalFinished(out supervisor.Outcome) {
	c.GoalActive.Set(0)
	kind := out.Kind.String()
	c.GoalsTotal.WithLabelValues(kind, out.Reason.String()).Inc()
	c.GoalDuration.WithLabelValues(kind).Observe(out.Duration().Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, recordFor(out))
	if len(c.history) > c.limit {
		c.history = c.history[len(c.history)-c.limit:]
	}
}

func (c *Collector) ObserveCommand(command, result string) {
	c.CommandsTotal.WithLabelValues(command, result).Inc()
}

func (c *Collector) ObservePoses(n int) {
	c.Poses.Set(float64(n))
}

// History returns the most recent goal records, oldest first.
func (c *Collector) History() []GoalMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]GoalMetrics(nil), c.history...)
}
