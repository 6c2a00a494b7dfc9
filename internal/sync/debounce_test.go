package sync

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestDebouncer(clk *fakeClock) (*Debouncer, *atomic.Int32) {
	var fires atomic.Int32
	d := NewDebouncer(clk, 500*time.Millisecond, 2*time.Second, func() {
		fires.Add(1)
	}, nil)
	return d, &fires
}

func TestOrderChannelCoalescesBurst(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	// Ten updates 100ms apart: each one restarts the 500ms timer.
	for i := 0; i < 10; i++ {
		d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpUpdate})
		clk.Advance(100 * time.Millisecond)
	}
	if got := fires.Load(); got != 0 {
		t.Fatalf("refetch fired %d times during the burst", got)
	}

	clk.Advance(399 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Fatalf("refetch fired %d times before the quiet period elapsed", got)
	}

	clk.Advance(time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Fatalf("refetch fired %d times, want exactly 1", got)
	}

	// Nothing else pending.
	clk.Advance(10 * time.Second)
	if got := fires.Load(); got != 1 {
		t.Fatalf("refetch fired %d times after the quiet period, want 1", got)
	}
}

func TestOrderInsertBypassesDebounce(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpInsert})
	if got := fires.Load(); got != 1 {
		t.Fatalf("insert fired %d refetches immediately, want 1", got)
	}
}

func TestOrderInsertCancelsPendingTimer(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpUpdate})
	d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpInsert})
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after insert, want 1", got)
	}

	// The pending update timer was absorbed by the immediate refetch.
	clk.Advance(time.Second)
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after advancing, want 1", got)
	}
}

func TestReferenceTablesShareOneTimer(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	for _, table := range []string{"drivers", "stores", "products", "settings"} {
		d.Pulse(ChangeEvent{Table: table, Operation: OpUpdate})
		clk.Advance(time.Second)
	}
	// Each pulse landed within 2s of the previous, so the shared timer kept
	// resetting and nothing fired yet.
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d during reference burst, want 0", got)
	}

	clk.Advance(time.Second)
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after reference quiet period, want 1", got)
	}
}

func TestChannelsAreIndependent(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpUpdate})
	d.Pulse(ChangeEvent{Table: "drivers", Operation: OpUpdate})

	clk.Advance(500 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d after order quiet period, want 1", got)
	}

	clk.Advance(1500 * time.Millisecond)
	if got := fires.Load(); got != 2 {
		t.Fatalf("fires = %d after reference quiet period, want 2", got)
	}
}

func TestStopCancelsTimersAndDropsPulses(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpUpdate})
	d.Pulse(ChangeEvent{Table: "drivers", Operation: OpUpdate})
	d.Stop()

	clk.Advance(time.Minute)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d after Stop, want 0", got)
	}

	d.Pulse(ChangeEvent{Table: TableOrders, Operation: OpInsert})
	if got := fires.Load(); got != 0 {
		t.Fatalf("a stopped debouncer fired %d refetches", got)
	}
}

func TestUnwatchedTableIgnored(t *testing.T) {
	clk := newFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	d, fires := newTestDebouncer(clk)

	d.Pulse(ChangeEvent{Table: "audit_log", Operation: OpInsert})
	clk.Advance(time.Minute)
	if got := fires.Load(); got != 0 {
		t.Fatalf("fires = %d for an unwatched table, want 0", got)
	}
}
