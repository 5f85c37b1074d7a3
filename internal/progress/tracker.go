// Package progress persists which actors a batch run has processed, so an
// interrupted run can resume losing at most the in-flight actor.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"actorset/internal/infra"
)

// Failure records one actor that could not be processed.
type Failure struct {
	ActorID   string    `json:"actor_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the JSON document written after every actor.
type State struct {
	StartedAt       time.Time `json:"started_at"`
	LastUpdated     time.Time `json:"last_updated"`
	CompletedActors []string  `json:"completed_actors"`
	FailedActors    []Failure `json:"failed_actors"`
	CurrentActor    string    `json:"current_actor,omitempty"`
}

// Tracker owns one progress file. It is an explicit context object with a
// open -> update-per-actor -> flush lifecycle; no process-wide state.
type Tracker struct {
	path  string
	state State
	now   func() time.Time
}

// Open loads an existing progress file or starts a fresh run if none exists.
func Open(path string) (*Tracker, error) {
	t := &Tracker{path: path, now: time.Now}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.state = State{StartedAt: t.now().UTC()}
			return t, nil
		}
		return nil, fmt.Errorf("progress: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &t.state); err != nil {
		return nil, fmt.Errorf("progress: decode %s: %w", path, err)
	}
	return t, nil
}

// State returns a snapshot of the current progress.
func (t *Tracker) State() State {
	snapshot := t.state
	snapshot.CompletedActors = append([]string(nil), t.state.CompletedActors...)
	snapshot.FailedActors = append([]Failure(nil), t.state.FailedActors...)
	return snapshot
}

// SetCurrent marks the actor now being processed and flushes immediately, so
// a crash points at the actor that was in flight.
func (t *Tracker) SetCurrent(actorID string) error {
	t.state.CurrentActor = actorID
	return t.flush()
}

// MarkCompleted records a successfully processed actor and flushes.
func (t *Tracker) MarkCompleted(actorID string) error {
	if !contains(t.state.CompletedActors, actorID) {
		t.state.CompletedActors = append(t.state.CompletedActors, actorID)
	}
	t.state.CurrentActor = ""
	return t.flush()
}

// MarkFailed records a failed actor with its error and flushes.
func (t *Tracker) MarkFailed(actorID string, procErr error) error {
	msg := ""
	if procErr != nil {
		msg = procErr.Error()
	}
	t.state.FailedActors = append(t.state.FailedActors, Failure{
		ActorID:   actorID,
		Error:     msg,
		Timestamp: t.now().UTC(),
	})
	t.state.CurrentActor = ""
	return t.flush()
}

// Remaining returns all minus completed minus failed, preserving the order of
// all.
func (t *Tracker) Remaining(all []string) []string {
	done := make(map[string]bool, len(t.state.CompletedActors)+len(t.state.FailedActors))
	for _, id := range t.state.CompletedActors {
		done[id] = true
	}
	for _, f := range t.state.FailedActors {
		done[f.ActorID] = true
	}
	remaining := make([]string, 0, len(all))
	for _, id := range all {
		if !done[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// Reset clears the progress file and starts a fresh run.
func (t *Tracker) Reset() error {
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("progress: remove %s: %w", t.path, err)
	}
	t.state = State{StartedAt: t.now().UTC()}
	return nil
}

func (t *Tracker) flush() error {
	t.state.LastUpdated = t.now().UTC()
	if t.state.StartedAt.IsZero() {
		t.state.StartedAt = t.state.LastUpdated
	}
	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("progress: encode: %w", err)
	}
	if err := infra.WriteFileAtomic(t.path, data, 0o644); err != nil {
		return fmt.Errorf("progress: save: %w", err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
