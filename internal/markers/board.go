// Package markers is the in-process marker board: one draggable marker per
// named pose. Operator moves are reported as Update events.
package markers

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"map-annotator/internal/pose"
)

var ErrUnknownMarker = errors.New("no marker with that name")

const updateBuffer = 64

// Update reports that the operator moved a marker.
type Update struct {
	Name string    `json:"name"`
	Pose pose.Pose `json:"pose"`
}

type Board struct {
	mu      sync.RWMutex
	markers map[string]pose.Pose
	updates chan Update
	logger  *slog.Logger
}

func NewBoard(logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		markers: make(map[string]pose.Pose),
		updates: make(chan Update, updateBuffer),
		logger:  logger.With("component", "markers"),
	}
}

// Start places a marker for every stored pose, replacing whatever the board
// held before.
func (b *Board) Start(poses []pose.NamedPose) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markers = make(map[string]pose.Pose, len(poses))
	for _, np := range poses {
		b.markers[np.Name] = np.Pose
	}
	b.logger.Info("marker board started", "markers", len(poses))
}

// CreateDefault places a marker for name at the default pose unless one
// already exists, and returns the marker's pose.
func (b *Board) CreateDefault(name string) pose.Pose {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.markers[name]; ok {
		return p
	}
	p := pose.Default()
	b.markers[name] = p
	b.logger.Debug("marker created", "name", name)
	return p
}

func (b *Board) CurrentPose(name string) (pose.Pose, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.markers[name]
	return p, ok
}

func (b *Board) Erase(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.markers, name)
}

func (b *Board) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.markers))
	for n := range b.markers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Move drags an existing marker to p and emits an Update. It blocks while the
// update buffer is full.
func (b *Board) Move(ctx context.Context, name string, p pose.Pose) error {
	b.mu.Lock()
	if _, ok := b.markers[name]; !ok {
		b.mu.Unlock()
		return ErrUnknownMarker
	}
	b.markers[name] = p
	b.mu.Unlock()

	select {
	case b.updates <- Update{Name: name, Pose: p}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Updates delivers operator moves in the order they were made.
func (b *Board) Updates() <-chan Update { return b.updates }
