// Package registry holds the in-memory name → pose mapping.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"map-annotator/internal/pose"
	"map-annotator/internal/store"
)

var (
	ErrNotFound = errors.New("pose not found")

	// ErrStoreUnavailable wraps load failures. The registry is left empty
	// and callers are expected to log it as a warning.
	ErrStoreUnavailable = errors.New("pose store unavailable")

	ErrStoreWrite = errors.New("pose store write failed")
)

// Registry maps names to poses. Writers are serialized by the caller (the
// command router); readers may run concurrently and always observe whole
// poses.
type Registry struct {
	mu    sync.RWMutex
	poses map[string]pose.Pose
	dirty bool
}

func New() *Registry {
	return &Registry{poses: make(map[string]pose.Pose)}
}

// Upsert inserts or overwrites name.
func (r *Registry) Upsert(name string, p pose.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poses[name] = p
	r.dirty = true
}

// Remove deletes name; absent names are ignored. Reports whether anything
// was removed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.poses[name]; !ok {
		return false
	}
	delete(r.poses, name)
	r.dirty = true
	return true
}

func (r *Registry) Lookup(name string) (pose.Pose, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.poses[name]
	if !ok {
		return pose.Pose{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Names returns a fresh, sorted slice of every stored name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.poses))
	for name := range r.poses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the whole mapping.
func (r *Registry) Snapshot() map[string]pose.Pose {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() map[string]pose.Pose {
	out := make(map[string]pose.Pose, len(r.poses))
	for k, v := range r.poses {
		out[k] = v
	}
	return out
}

// NamedPoses returns every entry ordered by name.
func (r *Registry) NamedPoses() []pose.NamedPose {
	snap := r.Snapshot()
	out := make([]pose.NamedPose, 0, len(snap))
	for name, p := range snap {
		out = append(out, pose.NamedPose{Name: name, Pose: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.poses)
}

// Replace swaps in poses wholesale. The result matches what is on disk, so
// the registry is clean afterwards.
func (r *Registry) Replace(poses map[string]pose.Pose) {
	next := make(map[string]pose.Pose, len(poses))
	for k, v := range poses {
		next[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poses = next
	r.dirty = false
}

// Equal reports whether the registry currently holds exactly poses.
func (r *Registry) Equal(poses map[string]pose.Pose) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return equalMaps(r.poses, poses)
}

func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// LoadFrom replaces the registry with the store's contents. On any failure
// the registry is emptied and an ErrStoreUnavailable-wrapped error returned.
func (r *Registry) LoadFrom(ctx context.Context, s store.Store) error {
	poses, err := s.Load(ctx)
	if err != nil {
		r.Replace(nil)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	r.Replace(poses)
	return nil
}

// SaveTo writes a snapshot to the store and clears the dirty flag on
// success.
func (r *Registry) SaveTo(ctx context.Context, s store.Store) error {
	r.mu.RLock()
	snap := r.snapshotLocked()
	r.mu.RUnlock()

	if err := s.Save(ctx, snap); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	r.mu.Lock()
	// Only clear if nothing changed while we were writing.
	if equalMaps(r.poses, snap) {
		r.dirty = false
	}
	r.mu.Unlock()
	return nil
}

func equalMaps(a, b map[string]pose.Pose) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
