package order

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTransitionAppendsHistory(t *testing.T) {
	o := New("o1", t0)

	steps := []Status{StatusAccepted, StatusPreparing, StatusDelivering}
	for i, next := range steps {
		o = Transition(o, next, t0.Add(time.Duration(i+1)*time.Minute))
		if got := len(o.StatusHistory); got != i+2 {
			t.Fatalf("after %d transitions history length = %d, want %d", i+1, got, i+2)
		}
		last := o.StatusHistory[len(o.StatusHistory)-1]
		if last.Status != o.Status {
			t.Fatalf("last history entry %s does not match current status %s", last.Status, o.Status)
		}
	}
	if o.IsArchived {
		t.Error("non-terminal transitions must not archive the order")
	}
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	o := New("o1", t0)
	o = Transition(o, StatusAccepted, t0.Add(time.Minute))

	snapshot := o.Clone()
	_ = Transition(o, StatusDelivering, t0.Add(2*time.Minute))

	if len(o.StatusHistory) != len(snapshot.StatusHistory) {
		t.Fatalf("input history grew from %d to %d", len(snapshot.StatusHistory), len(o.StatusHistory))
	}
	if o.Status != snapshot.Status {
		t.Fatalf("input status changed from %s to %s", snapshot.Status, o.Status)
	}
}

func TestTransitionTerminalArchives(t *testing.T) {
	for _, terminal := range []Status{StatusDelivered, StatusRefused, StatusUnavailable} {
		o := New("o1", t0)
		o = Transition(o, terminal, t0.Add(time.Minute))
		if !o.IsArchived {
			t.Errorf("transition to %s must set the archive flag", terminal)
		}
	}
}

func TestTransitionPreservesManualArchive(t *testing.T) {
	o := New("o1", t0)
	o.IsArchived = true

	o = Transition(o, StatusAccepted, t0.Add(time.Minute))
	if !o.IsArchived {
		t.Error("a non-terminal transition cleared a manual archive flag")
	}
}

func TestTransitionFromTerminalAllowed(t *testing.T) {
	// The source system imposes no transition graph; delivered -> pending is
	// reachable and must stay archived until an explicit restore.
	o := New("o1", t0)
	o = Transition(o, StatusDelivered, t0.Add(time.Minute))
	o = Transition(o, StatusPending, t0.Add(2*time.Minute))

	if o.Status != StatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
	if !o.IsArchived {
		t.Error("leaving a terminal status must not clear the archive flag")
	}
	if len(o.StatusHistory) != 3 {
		t.Fatalf("history length = %d, want 3", len(o.StatusHistory))
	}
}

func TestCloneIsDeep(t *testing.T) {
	o := New("o1", t0)
	o.Items = []Item{{Name: "Pizza", Quantity: 1, Price: 10}}

	dup := o.Clone()
	dup.StatusHistory[0].Status = StatusRefused
	dup.Items[0].Name = "Burger"

	if o.StatusHistory[0].Status != StatusPending {
		t.Error("clone shares status history with the original")
	}
	if o.Items[0].Name != "Pizza" {
		t.Error("clone shares items with the original")
	}
}

func TestNewOrder(t *testing.T) {
	o := New("o1", t0)
	if o.Status != StatusPending {
		t.Fatalf("status = %s, want pending", o.Status)
	}
	if o.IsArchived {
		t.Error("new orders start unarchived")
	}
	if len(o.StatusHistory) != 1 || o.StatusHistory[0].Status != StatusPending {
		t.Fatalf("history = %+v, want single pending entry", o.StatusHistory)
	}
}
