package sync

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/order"
)

type fakeStore struct {
	mu stdsync.Mutex

	fetch    []order.Order
	fetchErr error

	statusErr  error
	driverErr  error
	archiveErr error
	notesErr   error
	deleteErr  map[string]error

	// onStatus runs inside UpdateStatus, before the error is returned, to
	// simulate work landing while the write is outstanding.
	onStatus func()

	deleted []string
	calls   []string
}

func (s *fakeStore) FetchOrders(ctx context.Context) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "fetch")
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := make([]order.Order, len(s.fetch))
	for i, o := range s.fetch {
		out[i] = o.Clone()
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id string, status order.Status, history []order.HistoryEntry, archived bool) error {
	s.mu.Lock()
	s.calls = append(s.calls, "status:"+id)
	hook := s.onStatus
	err := s.statusErr
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (s *fakeStore) UpdateDriver(ctx context.Context, id, driverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "driver:"+id)
	return s.driverErr
}

func (s *fakeStore) UpdateArchived(ctx context.Context, id string, archived bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "archive:"+id)
	return s.archiveErr
}

func (s *fakeStore) UpdateNotes(ctx context.Context, id, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "notes:"+id)
	return s.notesErr
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "delete:"+id)
	if err, ok := s.deleteErr[id]; ok {
		return err
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeCache struct {
	mu   stdsync.Mutex
	data map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("cache miss")
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = make(map[string][]byte)
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.Sync = config.Sync{
		OrderDebounce:      500 * time.Millisecond,
		ReferenceDebounce:  2 * time.Second,
		FetchLimit:         500,
		PageSize:           10,
		DefaultDeliveryFee: 5,
	}
	return cfg
}

func newTestController(t *testing.T, store *fakeStore, clk Clock) *Controller {
	t.Helper()
	if clk == nil {
		clk = newFakeClock(base)
	}
	return NewController(Params{
		Store:  store,
		Config: testConfig(),
		Logger: zap.NewNop(),
		Clock:  clk,
	})
}

func seededController(t *testing.T, orders ...order.Order) (*Controller, *fakeStore) {
	t.Helper()
	store := &fakeStore{fetch: orders}
	c := newTestController(t, store, nil)
	if err := c.RefetchAll(context.Background()); err != nil {
		t.Fatalf("seed refetch: %v", err)
	}
	return c, store
}

func sortedOrders(c *Controller) []order.Order {
	out := c.Orders()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func TestRefetchAllReplacesSet(t *testing.T) {
	o1 := makeOrder("o1", order.StatusPending, false, base)
	o2 := makeOrder("o2", order.StatusAccepted, false, base.Add(time.Minute))
	c, store := seededController(t, o1, o2)

	if _, ok := c.Get("o1"); !ok {
		t.Fatal("o1 missing after refetch")
	}
	if _, ok := c.Get("o2"); !ok {
		t.Fatal("o2 missing after refetch")
	}

	// An id absent from the next fetch disappears locally too.
	store.mu.Lock()
	store.fetch = []order.Order{o1}
	store.mu.Unlock()
	if err := c.RefetchAll(context.Background()); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if _, ok := c.Get("o2"); ok {
		t.Fatal("o2 should be removed after a refetch that no longer includes it")
	}
}

func TestRefetchAllIdempotent(t *testing.T) {
	c, _ := seededController(t,
		makeOrder("o1", order.StatusPending, false, base),
		makeOrder("o2", order.StatusDelivered, true, base.Add(time.Minute)),
	)

	first := sortedOrders(c)
	if err := c.RefetchAll(context.Background()); err != nil {
		t.Fatalf("second refetch: %v", err)
	}
	second := sortedOrders(c)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("back-to-back refetches diverged:\n%+v\n%+v", first, second)
	}
}

func TestRefetchFailureLeavesStateUntouched(t *testing.T) {
	c, store := seededController(t, makeOrder("o1", order.StatusPending, false, base))

	store.mu.Lock()
	store.fetchErr = errors.New("store down")
	store.mu.Unlock()

	if err := c.RefetchAll(context.Background()); err == nil {
		t.Fatal("expected refetch error")
	}
	if _, ok := c.Get("o1"); !ok {
		t.Fatal("a failed refetch must not clear the in-memory set")
	}
	if len(c.Notices()) == 0 {
		t.Fatal("a failed refetch must surface a notice")
	}
}

func TestHappyPathStatusFlow(t *testing.T) {
	c, _ := seededController(t, order.New("O1", base))
	ctx := context.Background()

	if err := c.ChangeStatus(ctx, "O1", order.StatusDelivering); err != nil {
		t.Fatalf("transition to delivering: %v", err)
	}

	o, _ := c.Get("O1")
	if o.Status != order.StatusDelivering || o.IsArchived {
		t.Fatalf("state = (%s, archived=%v), want (delivering, false)", o.Status, o.IsArchived)
	}
	if len(o.StatusHistory) != 2 ||
		o.StatusHistory[0].Status != order.StatusPending ||
		o.StatusHistory[1].Status != order.StatusDelivering {
		t.Fatalf("history = %+v, want [pending, delivering]", o.StatusHistory)
	}

	active := c.GetView(TabActive, Filters{}, 1)
	history := c.GetView(TabHistory, Filters{}, 1)
	if len(active.Orders) != 1 || len(history.Orders) != 0 {
		t.Fatalf("active=%d history=%d, want 1/0", len(active.Orders), len(history.Orders))
	}

	// Terminal transition archives and moves the order to history.
	if err := c.ChangeStatus(ctx, "O1", order.StatusDelivered); err != nil {
		t.Fatalf("transition to delivered: %v", err)
	}
	o, _ = c.Get("O1")
	if !o.IsArchived {
		t.Fatal("delivered order must be archived automatically")
	}
	active = c.GetView(TabActive, Filters{}, 1)
	history = c.GetView(TabHistory, Filters{}, 1)
	if len(active.Orders) != 0 || len(history.Orders) != 1 {
		t.Fatalf("active=%d history=%d after delivery, want 0/1", len(active.Orders), len(history.Orders))
	}
}

func TestStatusChangeRollsBackOnRemoteFailure(t *testing.T) {
	c, store := seededController(t, order.New("O1", base))

	before, _ := c.Get("O1")
	store.mu.Lock()
	store.statusErr = errors.New("write rejected")
	store.mu.Unlock()

	if err := c.ChangeStatus(context.Background(), "O1", order.StatusDelivered); err == nil {
		t.Fatal("expected mutation error")
	}

	after, _ := c.Get("O1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("rollback mismatch:\nbefore %+v\nafter  %+v", before, after)
	}
	if len(c.Notices()) == 0 {
		t.Fatal("a rollback must raise a user-visible notice")
	}
}

func TestFailedDriverAssignmentRollsBack(t *testing.T) {
	c, store := seededController(t, order.New("O2", base))

	// Record the driver value each time subscribers are notified, to prove
	// the optimistic value was visible before the remote write resolved.
	var mu stdsync.Mutex
	var seen []string
	cancel := c.Subscribe(func() {
		if o, ok := c.Get("O2"); ok {
			mu.Lock()
			seen = append(seen, o.AssignedDriverID)
			mu.Unlock()
		}
	})
	defer cancel()

	store.mu.Lock()
	store.driverErr = errors.New("write rejected")
	store.mu.Unlock()

	if err := c.AssignDriver(context.Background(), "O2", "D1"); err == nil {
		t.Fatal("expected mutation error")
	}

	o, _ := c.Get("O2")
	if o.AssignedDriverID != "" {
		t.Fatalf("driver = %q after rollback, want empty", o.AssignedDriverID)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "D1" || seen[1] != "" {
		t.Fatalf("observed driver values %v, want [D1, \"\"]", seen)
	}
	if len(c.Notices()) == 0 {
		t.Fatal("a rollback must raise a user-visible notice")
	}
}

func TestMutateUnknownIDIsSilentNoop(t *testing.T) {
	c, store := seededController(t)

	if err := c.ChangeStatus(context.Background(), "ghost", order.StatusAccepted); err != nil {
		t.Fatalf("mutating a missing order must be a no-op, got %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	for _, call := range store.calls {
		if call == "status:ghost" {
			t.Fatal("no remote write may be issued for a missing order")
		}
	}
	if len(c.Notices()) != 0 {
		t.Fatal("the missing-order no-op is intentionally invisible")
	}
}

func TestArchiveRestoreFlipFlagOnly(t *testing.T) {
	c, _ := seededController(t, order.New("O1", base))
	ctx := context.Background()

	if err := c.Archive(ctx, "O1"); err != nil {
		t.Fatalf("archive: %v", err)
	}
	o, _ := c.Get("O1")
	if !o.IsArchived || o.Status != order.StatusPending || len(o.StatusHistory) != 1 {
		t.Fatalf("archive changed more than the flag: %+v", o)
	}
	if v := c.GetView(TabActive, Filters{}, 1); len(v.Orders) != 0 {
		t.Fatal("archived order still visible in active view")
	}

	if err := c.Restore(ctx, "O1"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	o, _ = c.Get("O1")
	if o.IsArchived {
		t.Fatal("restore did not clear the flag")
	}
}

func TestRestoreTerminalOrderStaysInHistory(t *testing.T) {
	delivered := order.Transition(order.New("O1", base), order.StatusDelivered, base.Add(time.Minute))
	c, _ := seededController(t, delivered)

	if err := c.Restore(context.Background(), "O1"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	o, _ := c.Get("O1")
	if o.IsArchived {
		t.Fatal("restore must clear the flag even on a terminal order")
	}
	// Terminal status alone keeps it in history and out of active.
	if v := c.GetView(TabActive, Filters{}, 1); len(v.Orders) != 0 {
		t.Fatal("terminal order leaked into the active view")
	}
	if v := c.GetView(TabHistory, Filters{}, 1); len(v.Orders) != 1 {
		t.Fatal("terminal order missing from the history view")
	}
}

func TestDeleteRollsBackOnRemoteFailure(t *testing.T) {
	c, store := seededController(t, order.New("O1", base))

	store.mu.Lock()
	store.deleteErr = map[string]error{"O1": errors.New("delete rejected")}
	store.mu.Unlock()

	if err := c.Delete(context.Background(), "O1"); err == nil {
		t.Fatal("expected delete error")
	}
	if _, ok := c.Get("O1"); !ok {
		t.Fatal("failed delete must re-insert the captured record")
	}
	if len(c.Notices()) == 0 {
		t.Fatal("a failed delete must raise a notice")
	}
}

func TestBulkDeletePartialFailure(t *testing.T) {
	c, store := seededController(t,
		order.New("O3", base),
		order.New("O4", base.Add(time.Minute)),
		order.New("O5", base.Add(2*time.Minute)),
	)

	store.mu.Lock()
	store.deleteErr = map[string]error{"O4": errors.New("delete rejected")}
	store.mu.Unlock()

	failed := c.BulkDelete(context.Background(), []string{"O3", "O4", "O5"})

	if len(failed) != 1 || failed[0] != "O4" {
		t.Fatalf("failed = %v, want [O4]", failed)
	}
	if _, ok := c.Get("O3"); ok {
		t.Fatal("O3 should stay deleted despite the later failure")
	}
	if _, ok := c.Get("O5"); ok {
		t.Fatal("O5 should be deleted")
	}
	if _, ok := c.Get("O4"); !ok {
		t.Fatal("O4 should be restored after its failed delete")
	}
}

func TestStaleRollbackIsSkippedAfterRefetch(t *testing.T) {
	c, store := seededController(t, order.New("O1", base))

	// Server truth that lands mid-write: the order already moved on.
	serverTruth := order.Transition(order.New("O1", base), order.StatusAccepted, base.Add(time.Minute))

	store.mu.Lock()
	store.statusErr = errors.New("write rejected")
	store.onStatus = func() {
		store.mu.Lock()
		store.fetch = []order.Order{serverTruth}
		store.mu.Unlock()
		if err := c.RefetchAll(context.Background()); err != nil {
			t.Errorf("mid-write refetch: %v", err)
		}
	}
	store.mu.Unlock()

	// The failure callback arrives after the refetch; restoring the stale
	// snapshot would resurrect pre-refetch state, so it must be skipped.
	if err := c.ChangeStatus(context.Background(), "O1", order.StatusDelivered); err == nil {
		t.Fatal("expected mutation error")
	}

	o, _ := c.Get("O1")
	if o.Status != order.StatusAccepted {
		t.Fatalf("status = %s, want the refetched server truth (accepted)", o.Status)
	}
}

func TestGetViewResetsPageOnFilterOrTabChange(t *testing.T) {
	var orders []order.Order
	for i := 0; i < 30; i++ {
		orders = append(orders, makeOrder(orderID(i), order.StatusPending, false, base.Add(time.Duration(i)*time.Minute)))
	}
	c, _ := seededController(t, orders...)

	// The first call primes the remembered tab and filters.
	if v := c.GetView(TabActive, Filters{}, 1); v.TotalPages != 3 {
		t.Fatalf("total pages = %d, want 3", v.TotalPages)
	}

	v := c.GetView(TabActive, Filters{}, 3)
	if v.Page != 3 {
		t.Fatalf("page = %d, want 3", v.Page)
	}

	// Same tab and filters: the requested page sticks.
	v = c.GetView(TabActive, Filters{}, 2)
	if v.Page != 2 {
		t.Fatalf("page = %d, want 2", v.Page)
	}

	// New filter: back to page 1 regardless of what was asked for.
	v = c.GetView(TabActive, Filters{Search: "o0"}, 2)
	if v.Page != 1 {
		t.Fatalf("page = %d after filter change, want 1", v.Page)
	}

	// Tab switch resets too.
	v = c.GetView(TabHistory, Filters{Search: "o0"}, 4)
	if v.Page != 1 {
		t.Fatalf("page = %d after tab change, want 1", v.Page)
	}
}

func TestChangeFeedDrivesRefetch(t *testing.T) {
	clk := newFakeClock(base)
	store := &fakeStore{fetch: []order.Order{order.New("O1", base)}}
	c := NewController(Params{
		Store:  store,
		Config: testConfig(),
		Logger: zap.NewNop(),
		Clock:  clk,
	})
	if err := c.RefetchAll(context.Background()); err != nil {
		t.Fatalf("seed refetch: %v", err)
	}
	defer c.Stop()

	countFetches := func() int {
		store.mu.Lock()
		defer store.mu.Unlock()
		n := 0
		for _, call := range store.calls {
			if call == "fetch" {
				n++
			}
		}
		return n
	}
	baseline := countFetches()

	// A burst of updates collapses into one refetch after the quiet period.
	for i := 0; i < 5; i++ {
		c.HandleChange(ChangeEvent{Table: TableOrders, Operation: OpUpdate})
	}
	clk.Advance(500 * time.Millisecond)
	if got := countFetches(); got != baseline+1 {
		t.Fatalf("fetch count = %d, want %d", got, baseline+1)
	}

	// An insert refetches without waiting.
	c.HandleChange(ChangeEvent{Table: TableOrders, Operation: OpInsert})
	if got := countFetches(); got != baseline+2 {
		t.Fatalf("fetch count = %d after insert, want %d", got, baseline+2)
	}
}

func TestStartFallsBackToCachedSnapshot(t *testing.T) {
	snapshotSource := &fakeStore{fetch: []order.Order{order.New("O1", base)}}
	cacheStore := &fakeCache{}

	// First controller populates the snapshot cache.
	warm := NewController(Params{
		Store:  snapshotSource,
		Cache:  cacheStore,
		Config: testConfig(),
		Logger: zap.NewNop(),
		Clock:  newFakeClock(base),
	})
	if err := warm.RefetchAll(context.Background()); err != nil {
		t.Fatalf("warm refetch: %v", err)
	}

	// Second controller starts against a dead store.
	cold := NewController(Params{
		Store:  &fakeStore{fetchErr: errors.New("store down")},
		Cache:  cacheStore,
		Config: testConfig(),
		Logger: zap.NewNop(),
		Clock:  newFakeClock(base),
	})
	if err := cold.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, ok := cold.Get("O1"); !ok {
		t.Fatal("cached snapshot not served after a failed initial fetch")
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	c, _ := seededController(t, order.New("O1", base))

	var mu stdsync.Mutex
	count := 0
	cancel := c.Subscribe(func() {
		mu.Lock()
		count++
		mu.Unlock()
	})

	if err := c.SetNotes(context.Background(), "O1", "leave at door"); err != nil {
		t.Fatalf("set notes: %v", err)
	}
	mu.Lock()
	got := count
	mu.Unlock()
	if got == 0 {
		t.Fatal("subscriber was not notified")
	}

	cancel()
	if err := c.SetNotes(context.Background(), "O1", "ring the bell"); err != nil {
		t.Fatalf("set notes: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if count != got {
		t.Fatal("unsubscribed callback still fired")
	}
}

func orderID(i int) string {
	return fmt.Sprintf("o%02d", i)
}
