package progress

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func trackerPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "balance_progress.json")
}

func TestTrackerPersistsAfterEveryActor(t *testing.T) {
	path := trackerPath(t)
	tracker, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tracker.MarkCompleted("a1"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := tracker.MarkFailed("a2", errors.New("evaluation failed")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	// A fresh Open sees everything flushed so far.
	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	state := reloaded.State()
	if !reflect.DeepEqual(state.CompletedActors, []string{"a1"}) {
		t.Fatalf("completed = %v", state.CompletedActors)
	}
	if len(state.FailedActors) != 1 || state.FailedActors[0].ActorID != "a2" {
		t.Fatalf("failed = %#v", state.FailedActors)
	}
	if state.FailedActors[0].Error != "evaluation failed" {
		t.Fatalf("failure error = %q", state.FailedActors[0].Error)
	}
}

func TestRemainingPreservesInputOrder(t *testing.T) {
	tracker, err := Open(trackerPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tracker.MarkCompleted("a3"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := tracker.MarkFailed("a1", errors.New("x")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got := tracker.Remaining([]string{"a1", "a2", "a3", "a4"})
	if !reflect.DeepEqual(got, []string{"a2", "a4"}) {
		t.Fatalf("remaining = %v, want [a2 a4]", got)
	}
}

func TestSetCurrentSurvivesCrash(t *testing.T) {
	path := trackerPath(t)
	tracker, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tracker.SetCurrent("a7"); err != nil {
		t.Fatalf("SetCurrent: %v", err)
	}
	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reloaded.State().CurrentActor != "a7" {
		t.Fatalf("current = %q, want a7", reloaded.State().CurrentActor)
	}
}

func TestMarkCompletedDeduplicates(t *testing.T) {
	tracker, err := Open(trackerPath(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = tracker.MarkCompleted("a1")
	_ = tracker.MarkCompleted("a1")
	if got := tracker.State().CompletedActors; len(got) != 1 {
		t.Fatalf("completed = %v, want single entry", got)
	}
}

func TestResetClearsFile(t *testing.T) {
	path := trackerPath(t)
	tracker, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := tracker.MarkCompleted("a1"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := tracker.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("progress file still exists after reset")
	}
	if got := tracker.Remaining([]string{"a1"}); len(got) != 1 {
		t.Fatalf("remaining after reset = %v, want [a1]", got)
	}
}
