package sync

import (
	"encoding/json"
	stdsync "sync"
	"time"

	"go.uber.org/zap"
)

// Operation is the kind of row change reported by the store's push channel.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// TableOrders is the only latency-sensitive table; everything else routes
// through the slower reference channel.
const TableOrders = "orders"

// referenceTables share a single debounce timer. Driver positions alone can
// change once per second, so these never trigger an immediate refetch.
var referenceTables = map[string]struct{}{
	"stores":         {},
	"sub_categories": {},
	"products":       {},
	"drivers":        {},
	"profiles":       {},
	"settings":       {},
}

// ChangeEvent is one push notification from the persistent store. The engine
// only routes on Table and Operation; Row is carried for logging but never
// merged locally — a full refetch is always cheaper to reason about.
type ChangeEvent struct {
	Table     string          `json:"table"`
	Operation Operation       `json:"operation"`
	Row       json.RawMessage `json:"row,omitempty"`
}

// Debouncer coalesces bursts of change notifications into single refetches.
// Two independent trailing-edge channels: a short one for order rows and a
// longer shared one for reference tables. A new order insert bypasses the
// debounce entirely because a just-placed order must show up right away.
type Debouncer struct {
	mu         stdsync.Mutex
	clock      Clock
	orderDelay time.Duration
	refDelay   time.Duration
	orderTimer Timer
	refTimer   Timer
	fire       func()
	stopped    bool
	logger     *zap.Logger
}

// NewDebouncer builds a debouncer that invokes fire after each quiet period.
func NewDebouncer(clock Clock, orderDelay, refDelay time.Duration, fire func(), logger *zap.Logger) *Debouncer {
	return &Debouncer{
		clock:      clock,
		orderDelay: orderDelay,
		refDelay:   refDelay,
		fire:       fire,
		logger:     logger,
	}
}

// Pulse routes one change event onto its channel. Each new event restarts the
// channel's timer, so the refetch fires once per quiet period no matter how
// many notifications arrived during the burst.
func (d *Debouncer) Pulse(ev ChangeEvent) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	switch {
	case ev.Table == TableOrders:
		if ev.Operation == OpInsert {
			// A pending order-channel timer is redundant once we refetch now.
			if d.orderTimer != nil {
				d.orderTimer.Stop()
				d.orderTimer = nil
			}
			d.mu.Unlock()
			if d.logger != nil {
				d.logger.Debug("order insert; refetching immediately")
			}
			debounceFires.WithLabelValues("order_insert").Inc()
			d.fire()
			return
		}
		if d.orderTimer != nil {
			d.orderTimer.Stop()
		}
		d.orderTimer = d.clock.AfterFunc(d.orderDelay, d.fireOrders)
	case isReferenceTable(ev.Table):
		if d.refTimer != nil {
			d.refTimer.Stop()
		}
		d.refTimer = d.clock.AfterFunc(d.refDelay, d.fireReference)
	default:
		if d.logger != nil {
			d.logger.Debug("ignoring change on unwatched table", zap.String("table", ev.Table))
		}
	}
	d.mu.Unlock()
}

// Stop cancels both timers. Safe to call more than once; a stopped debouncer
// drops all further pulses so nothing fires against a torn-down subscriber.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.orderTimer != nil {
		d.orderTimer.Stop()
		d.orderTimer = nil
	}
	if d.refTimer != nil {
		d.refTimer.Stop()
		d.refTimer = nil
	}
}

func (d *Debouncer) fireOrders() {
	d.mu.Lock()
	d.orderTimer = nil
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	debounceFires.WithLabelValues("order").Inc()
	d.fire()
}

func (d *Debouncer) fireReference() {
	d.mu.Lock()
	d.refTimer = nil
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	debounceFires.WithLabelValues("reference").Inc()
	d.fire()
}

func isReferenceTable(table string) bool {
	_, ok := referenceTables[table]
	return ok
}
