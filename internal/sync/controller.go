package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/beacon/internal/cache"
	"github.com/Additional-Code/beacon/internal/config"
	"github.com/Additional-Code/beacon/internal/messaging"
	"github.com/Additional-Code/beacon/internal/order"
	"github.com/Additional-Code/beacon/pkg/errorbank"
)

var tracer = otel.Tracer("github.com/Additional-Code/beacon/sync")

const (
	snapshotCacheKey = "orders:snapshot"
	maxNotices       = 50
	refetchTimeout   = 30 * time.Second
)

// Store is the persistent-store boundary the controller writes through. The
// bun repository implements it; tests swap in fakes.
type Store interface {
	FetchOrders(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status, history []order.HistoryEntry, archived bool) error
	UpdateDriver(ctx context.Context, id, driverID string) error
	UpdateArchived(ctx context.Context, id string, archived bool) error
	UpdateNotes(ctx context.Context, id, notes string) error
	Delete(ctx context.Context, id string) error
}

// Notice is a short-lived, user-visible message, typically a rollback report.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notices as they are raised. Optional; the controller
// always keeps its own recent-notice buffer as well.
type Notifier interface {
	Notify(Notice)
}

// MutationEvent is published to the message bus after a remote write lands.
type MutationEvent struct {
	Type    string    `json:"type"`
	OrderID string    `json:"order_id"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// Controller owns the authoritative in-memory order set. Every local
// mutation applies optimistically before its remote write; every remote
// failure restores the captured snapshot unless a refetch has replaced the
// whole set in the meantime, in which case the rollback is a silent no-op
// because the refetched state is the newer truth.
type Controller struct {
	mu     stdsync.RWMutex
	orders map[string]order.Order
	// gen increments whenever the whole set is replaced; a rollback whose
	// captured generation is stale must not fire.
	gen uint64

	store     Store
	deb       *Debouncer
	clock     Clock
	cache     cache.Store
	publisher messaging.Client
	publish   bool
	topic     string
	logger    *zap.Logger

	notifier Notifier
	noticeMu stdsync.Mutex
	notices  []Notice

	subMu   stdsync.Mutex
	subs    map[int]func()
	nextSub int

	viewMu      stdsync.Mutex
	viewTab     Tab
	viewFilters Filters
	viewInit    bool

	pageSize int
}

// Params defines dependencies for constructing the Controller.
type Params struct {
	fx.In

	Store     Store
	Cache     cache.Store `optional:"true"`
	Config    config.Config
	Logger    *zap.Logger
	Publisher messaging.Client `optional:"true"`
	Notifier  Notifier         `optional:"true"`
	Clock     Clock            `optional:"true"`
}

// NewController wires the controller and its debouncer.
func NewController(p Params) *Controller {
	clk := p.Clock
	if clk == nil {
		clk = SystemClock()
	}

	c := &Controller{
		orders:    make(map[string]order.Order),
		store:     p.Store,
		clock:     clk,
		cache:     p.Cache,
		publisher: p.Publisher,
		publish:   p.Config.Messaging.Enabled && p.Publisher != nil,
		topic:     p.Config.Messaging.Kafka.Topic,
		logger:    p.Logger,
		notifier:  p.Notifier,
		subs:      make(map[int]func()),
		pageSize:  p.Config.Sync.PageSize,
	}

	c.deb = NewDebouncer(
		clk,
		p.Config.Sync.OrderDebounce,
		p.Config.Sync.ReferenceDebounce,
		c.refetchFromDebounce,
		p.Logger,
	)

	return c
}

// Start performs the initial load. A failed first fetch falls back to the
// cached snapshot when one exists; either way startup proceeds, because a
// stale or empty set recovers on the next change notification.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.RefetchAll(ctx); err != nil {
		if c.primeFromCache(ctx) {
			c.logInfo("serving cached order snapshot until the store recovers")
		} else {
			c.logWarn("starting with an empty order set", zap.Error(err))
		}
	}
	return nil
}

// Stop cancels the debounce timers.
func (c *Controller) Stop() {
	c.deb.Stop()
}

// HandleChange routes one push notification into the debouncer.
func (c *Controller) HandleChange(ev ChangeEvent) {
	c.deb.Pulse(ev)
}

// Subscribe registers fn to run after every state change. The returned
// function unregisters it.
func (c *Controller) Subscribe(fn func()) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// RefetchAll replaces the entire order set from the persistent store. On
// failure the previous set stays untouched: stale-but-consistent beats
// empty-but-fresh. Concurrent calls are safe; the last one to complete wins.
func (c *Controller) RefetchAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "SyncController.RefetchAll")
	defer span.End()

	fetched, err := c.store.FetchOrders(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		refetchTotal.WithLabelValues("error").Inc()
		c.notice("warn", "could not refresh orders; showing the last known state")
		return errorbank.Unavailable("failed to refresh orders", errorbank.WithCause(err))
	}

	set := make(map[string]order.Order, len(fetched))
	for _, o := range fetched {
		set[o.ID] = o
	}

	c.mu.Lock()
	c.orders = set
	c.gen++
	c.mu.Unlock()

	refetchTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("orders.count", len(fetched)))
	c.notifySubscribers()
	c.writeSnapshot(ctx, fetched)
	return nil
}

// Get returns a snapshot of one order.
func (c *Controller) Get(id string) (order.Order, bool) {
	c.mu.RLock()
	o, ok := c.orders[id]
	c.mu.RUnlock()
	if !ok {
		return order.Order{}, false
	}
	return o.Clone(), true
}

// Orders returns a snapshot of the whole set, in no particular order.
func (c *Controller) Orders() []order.Order {
	c.mu.RLock()
	out := make([]order.Order, 0, len(c.orders))
	for _, o := range c.orders {
		out = append(out, o)
	}
	c.mu.RUnlock()
	return out
}

// GetView derives one page for the requested tab and filters. Changing the
// tab or any filter resets pagination to the first page so the caller never
// lands silently on an out-of-range page.
func (c *Controller) GetView(tab Tab, f Filters, page int) View {
	c.viewMu.Lock()
	if !c.viewInit || tab != c.viewTab || !f.Equal(c.viewFilters) {
		page = 1
		c.viewTab = tab
		c.viewFilters = f
		c.viewInit = true
	}
	c.viewMu.Unlock()

	return Partition(c.Orders(), tab, f, page, c.pageSize)
}

// Notices returns the recent user-visible notices, newest last.
func (c *Controller) Notices() []Notice {
	c.noticeMu.Lock()
	out := make([]Notice, len(c.notices))
	copy(out, c.notices)
	c.noticeMu.Unlock()
	return out
}

// ChangeStatus moves an order through the state machine. Any enumerated
// status is legal from any other; the remote write carries the full
// transition result (status, history, archive flag) in one partial update.
func (c *Controller) ChangeStatus(ctx context.Context, id string, to order.Status) error {
	if !to.Valid() {
		return errorbank.BadRequest("unknown order status", errorbank.WithDetail("status", string(to)))
	}

	ctx, span := tracer.Start(ctx, "SyncController.ChangeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.status", string(to)))

	prev, next, gen, ok := c.applyLocal(id, func(o order.Order) order.Order {
		return order.Transition(o, to, c.clock.Now())
	})
	if !ok {
		return nil
	}

	if err := c.store.UpdateStatus(ctx, id, next.Status, next.StatusHistory, next.IsArchived); err != nil {
		span.RecordError(err)
		c.rollback(id, prev, gen, "status")
		c.notice("error", "status change for order "+id+" did not save and was undone")
		return errorbank.Internal("failed to update order status", errorbank.WithCause(err))
	}

	c.publishEvent(ctx, "order.status_changed", next)
	return nil
}

// AssignDriver sets or clears the driver on an order. An empty driverID
// clears the assignment.
func (c *Controller) AssignDriver(ctx context.Context, id, driverID string) error {
	ctx, span := tracer.Start(ctx, "SyncController.AssignDriver")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	prev, next, gen, ok := c.applyLocal(id, func(o order.Order) order.Order {
		o.AssignedDriverID = driverID
		return o
	})
	if !ok {
		return nil
	}

	if err := c.store.UpdateDriver(ctx, id, driverID); err != nil {
		span.RecordError(err)
		c.rollback(id, prev, gen, "driver")
		c.notice("error", "driver assignment for order "+id+" did not save and was undone")
		return errorbank.Internal("failed to assign driver", errorbank.WithCause(err))
	}

	c.publishEvent(ctx, "order.driver_assigned", next)
	return nil
}

// Archive hides an order from the active view without touching its status or
// history.
func (c *Controller) Archive(ctx context.Context, id string) error {
	return c.setArchived(ctx, id, true)
}

// Restore clears the archive flag, even on a terminally-statused order.
func (c *Controller) Restore(ctx context.Context, id string) error {
	return c.setArchived(ctx, id, false)
}

func (c *Controller) setArchived(ctx context.Context, id string, archived bool) error {
	ctx, span := tracer.Start(ctx, "SyncController.SetArchived")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id), attribute.Bool("order.archived", archived))

	prev, next, gen, ok := c.applyLocal(id, func(o order.Order) order.Order {
		o.IsArchived = archived
		return o
	})
	if !ok {
		return nil
	}

	if err := c.store.UpdateArchived(ctx, id, archived); err != nil {
		span.RecordError(err)
		c.rollback(id, prev, gen, "archive")
		c.notice("error", "archive change for order "+id+" did not save and was undone")
		return errorbank.Internal("failed to update archive flag", errorbank.WithCause(err))
	}

	c.publishEvent(ctx, "order.archived_changed", next)
	return nil
}

// SetNotes updates the free-text notes on an order.
func (c *Controller) SetNotes(ctx context.Context, id, notes string) error {
	ctx, span := tracer.Start(ctx, "SyncController.SetNotes")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	prev, next, gen, ok := c.applyLocal(id, func(o order.Order) order.Order {
		o.Notes = notes
		return o
	})
	if !ok {
		return nil
	}

	if err := c.store.UpdateNotes(ctx, id, notes); err != nil {
		span.RecordError(err)
		c.rollback(id, prev, gen, "notes")
		c.notice("error", "note edit for order "+id+" did not save and was undone")
		return errorbank.Internal("failed to update notes", errorbank.WithCause(err))
	}

	c.publishEvent(ctx, "order.notes_changed", next)
	return nil
}

// Delete removes an order permanently. The local removal is immediate; a
// failed remote delete re-inserts the captured record.
func (c *Controller) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "SyncController.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	c.mu.Lock()
	prev, ok := c.orders[id]
	if !ok {
		// Already gone, most likely removed by a concurrent refetch. The
		// disappearance is the newer truth, so this is not an error.
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	delete(c.orders, id)
	c.mu.Unlock()
	c.notifySubscribers()

	if err := c.store.Delete(ctx, id); err != nil {
		span.RecordError(err)
		c.mu.Lock()
		if c.gen == gen {
			if _, exists := c.orders[id]; !exists {
				c.orders[id] = prev
			}
		}
		c.mu.Unlock()
		rollbackTotal.WithLabelValues("delete").Inc()
		c.notifySubscribers()
		c.notice("error", "order "+id+" could not be deleted and was restored")
		return errorbank.Internal("failed to delete order", errorbank.WithCause(err))
	}

	c.publishEvent(ctx, "order.deleted", prev)
	return nil
}

// BulkDelete deletes each id independently and returns the ids whose remote
// delete failed. Items that succeeded before a failure stay deleted; partial
// success is expected and is not itself an error.
func (c *Controller) BulkDelete(ctx context.Context, ids []string) (failed []string) {
	for _, id := range ids {
		if err := c.Delete(ctx, id); err != nil {
			failed = append(failed, id)
		}
	}
	return failed
}

// applyLocal captures the pre-mutation snapshot, applies mutate to a copy,
// installs the result and notifies subscribers, all before any network I/O.
// A missing id is a silent no-op.
func (c *Controller) applyLocal(id string, mutate func(order.Order) order.Order) (prev, next order.Order, gen uint64, ok bool) {
	c.mu.Lock()
	current, found := c.orders[id]
	if !found {
		c.mu.Unlock()
		return order.Order{}, order.Order{}, 0, false
	}
	prev = current.Clone()
	gen = c.gen
	next = mutate(current.Clone())
	c.orders[id] = next
	c.mu.Unlock()

	c.notifySubscribers()
	return prev, next, gen, true
}

// rollback restores the captured snapshot after a failed remote write. It
// skips silently when the set was replaced since the capture or the order is
// gone: the refetched state already reflects server truth.
func (c *Controller) rollback(id string, prev order.Order, gen uint64, mutation string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if _, ok := c.orders[id]; !ok {
		c.mu.Unlock()
		return
	}
	c.orders[id] = prev
	c.mu.Unlock()

	rollbackTotal.WithLabelValues(mutation).Inc()
	c.notifySubscribers()
}

func (c *Controller) refetchFromDebounce() {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	// RefetchAll already surfaces failures as notices.
	_ = c.RefetchAll(ctx)
}

func (c *Controller) notifySubscribers() {
	c.subMu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (c *Controller) notice(level, message string) {
	n := Notice{Level: level, Message: message, At: c.clock.Now()}

	c.noticeMu.Lock()
	c.notices = append(c.notices, n)
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
	c.noticeMu.Unlock()

	if c.notifier != nil {
		c.notifier.Notify(n)
	}
	c.logWarn(message)
}

func (c *Controller) publishEvent(ctx context.Context, typ string, o order.Order) {
	if !c.publish {
		return
	}
	event := MutationEvent{
		Type:    typ,
		OrderID: o.ID,
		Status:  string(o.Status),
		At:      c.clock.Now(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		c.logWarn("marshal mutation event", zap.Error(err))
		return
	}
	if err := c.publisher.Publish(ctx, []byte("order-"+o.ID), payload); err != nil {
		c.logWarn("publish mutation event", zap.Error(err))
	}
}

func (c *Controller) writeSnapshot(ctx context.Context, orders []order.Order) {
	if c.cache == nil {
		return
	}
	payload, err := json.Marshal(orders)
	if err != nil {
		c.logWarn("marshal order snapshot", zap.Error(err))
		return
	}
	if err := c.cache.Set(ctx, snapshotCacheKey, payload, 0); err != nil {
		c.logWarn("order snapshot cache write failed", zap.Error(err))
	}
}

func (c *Controller) primeFromCache(ctx context.Context) bool {
	if c.cache == nil {
		return false
	}
	payload, err := c.cache.Get(ctx, snapshotCacheKey)
	if err != nil {
		return false
	}
	var orders []order.Order
	if err := json.Unmarshal(payload, &orders); err != nil {
		c.logWarn("order snapshot cache decode failed", zap.Error(err))
		return false
	}

	set := make(map[string]order.Order, len(orders))
	for _, o := range orders {
		set[o.ID] = o
	}
	c.mu.Lock()
	c.orders = set
	c.gen++
	c.mu.Unlock()
	c.notifySubscribers()
	return true
}

func (c *Controller) logWarn(msg string, fields ...zap.Field) {
	if c.logger != nil {
		c.logger.Warn(msg, fields...)
	}
}

func (c *Controller) logInfo(msg string, fields ...zap.Field) {
	if c.logger != nil {
		c.logger.Info(msg, fields...)
	}
}
